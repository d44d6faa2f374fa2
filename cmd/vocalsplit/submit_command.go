package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"vocalsplit/internal/api"
	"vocalsplit/internal/apiclient"
	"vocalsplit/internal/config"
)

const defaultPollInterval = time.Second

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var interval time.Duration
	var outputDir string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Upload an audio or video file for vocal isolation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve %q: %w", args[0], err)
			}
			info, err := os.Stat(source)
			if err != nil {
				return fmt.Errorf("inspect %q: %w", source, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", source)
			}

			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.Upload(cmd.Context(), source)
				if err != nil {
					return fmt.Errorf("upload %s: %w", filepath.Base(source), err)
				}
				if !wait && outputDir == "" {
					if jsonOutput {
						return writeJSON(cmd, resp)
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s as job %s\n", filepath.Base(source), resp.JobID)
					return nil
				}

				if !jsonOutput {
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s as job %s\n", filepath.Base(source), resp.JobID)
				}
				final, err := waitForJob(cmd.Context(), client, resp.JobID, interval, progressPrinter(cmd.OutOrStdout(), jsonOutput))
				if err != nil {
					return err
				}
				if jsonOutput {
					if err := writeJSON(cmd, final); err != nil {
						return err
					}
				}
				if final.Status == "error" {
					return fmt.Errorf("job %s failed: %s", final.ID, final.Error)
				}
				if outputDir != "" {
					saved, err := downloadResult(cmd.Context(), client, final, outputDir)
					if err != nil {
						return err
					}
					if !jsonOutput {
						fmt.Fprintf(cmd.OutOrStdout(), "Saved result to %s\n", saved)
					}
				} else if !jsonOutput {
					fmt.Fprintf(cmd.OutOrStdout(), "Result: %s%s\n", client.BaseURL(), final.ResultURL)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for the job to finish")
	cmd.Flags().DurationVar(&interval, "interval", defaultPollInterval, "Polling interval while waiting")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Download the result into this directory (implies --wait)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// waitForJob polls the job until it reaches a terminal status. onChange sees
// every distinct status/progress pair.
func waitForJob(ctx context.Context, client *apiclient.Client, id string, interval time.Duration, onChange func(api.JobStatus)) (api.JobStatus, error) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last api.JobStatus
	for {
		status, err := client.JobStatus(ctx, id)
		if err != nil {
			return last, fmt.Errorf("poll job %s: %w", id, err)
		}
		if onChange != nil && (status.Status != last.Status || status.Progress != last.Progress) {
			onChange(status)
		}
		last = status
		if status.Status == "completed" || status.Status == "error" {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

func progressPrinter(out io.Writer, quiet bool) func(api.JobStatus) {
	if quiet {
		return nil
	}
	return func(status api.JobStatus) {
		fmt.Fprintf(out, "  %3d%%  %s\n", status.Progress, status.Status)
	}
}

func downloadResult(ctx context.Context, client *apiclient.Client, status api.JobStatus, dir string) (string, error) {
	if status.ResultURL == "" {
		return "", fmt.Errorf("job %s has no result", status.ID)
	}
	dir, err := config.ExpandPath(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	name := path.Base(status.ResultURL)
	target := filepath.Join(dir, name)
	file, err := os.Create(target)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", target, err)
	}
	if _, err := client.Download(ctx, name, file); err != nil {
		_ = file.Close()
		_ = os.Remove(target)
		return "", fmt.Errorf("download %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, nil
}
