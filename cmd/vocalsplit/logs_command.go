package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vocalsplit/internal/api"
	"vocalsplit/internal/apiclient"
	"vocalsplit/internal/logs"
)

const (
	logPageSize   = 200
	logFileFollow = time.Second
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	var jobID string
	var component string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		Long: "Display daemon log events from the running daemon. When no daemon answers,\n" +
			"the current vocalsplit.log in paths.log_dir is read instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			query := apiclient.LogQuery{Limit: lines, Tail: true, JobID: jobID, Component: component}
			err = streamLogsFromAPI(cmd, client, query, follow)
			if !apiclient.IsUnavailable(err) {
				return err
			}
			if jobID != "" || component != "" {
				return fmt.Errorf("filters need a running daemon: %w", err)
			}

			cfg, cfgErr := ctx.ensureConfig()
			if cfgErr != nil {
				return cfgErr
			}
			return tailLogFile(cmd, filepath.Join(cfg.Paths.LogDir, "vocalsplit.log"), lines, follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 10, "Number of recent entries to show (0 for all buffered)")
	cmd.Flags().StringVar(&jobID, "job", "", "Only show events for this job id")
	cmd.Flags().StringVar(&component, "component", "", "Only show events from this component")
	return cmd
}

func streamLogsFromAPI(cmd *cobra.Command, client *apiclient.Client, query apiclient.LogQuery, follow bool) error {
	if query.Limit <= 0 {
		query.Limit = logPageSize
	}
	printed := false
	for {
		resp, err := client.Logs(cmd.Context(), query)
		if err != nil {
			if printed && errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if resp.Dropped {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: some log events were evicted before they could be read")
		}
		for _, evt := range resp.Events {
			fmt.Fprintln(cmd.OutOrStdout(), formatLogEvent(evt))
			printed = true
		}
		if !follow {
			if !printed {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		}
		query.Since = resp.Next
		query.Limit = logPageSize
		query.Tail = false
		query.Follow = true
	}
}

func tailLogFile(cmd *cobra.Command, path string, lines int, follow bool) error {
	opts := logs.TailOptions{Offset: -1, Limit: lines}
	if lines <= 0 {
		opts.Offset = 0
	}
	printed := false
	for {
		result, err := logs.Tail(cmd.Context(), path, opts)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		for _, line := range result.Lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
			printed = true
		}
		if !follow {
			if !printed {
				fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			}
			return nil
		}
		opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: logFileFollow}
	}
}

func formatLogEvent(evt api.LogEvent) string {
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{evt.Timestamp.Local().Format("2006-01-02 15:04:05"), level}
	if c := strings.TrimSpace(evt.Component); c != "" {
		parts = append(parts, "["+c+"]")
	}
	if subject := logSubject(evt.JobID, evt.Stage); subject != "" {
		parts = append(parts, subject)
	}
	line := strings.Join(parts, " ")
	if msg := strings.TrimSpace(evt.Message); msg != "" {
		line += " - " + msg
	}
	if len(evt.Fields) == 0 {
		return line
	}
	keys := make([]string, 0, len(evt.Fields))
	for k := range evt.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(line)
	for _, k := range keys {
		if strings.TrimSpace(evt.Fields[k]) == "" {
			continue
		}
		b.WriteString("\n    - ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(evt.Fields[k])
	}
	return b.String()
}

func logSubject(jobID, stage string) string {
	jobID = shortID(strings.TrimSpace(jobID))
	stage = strings.TrimSpace(stage)
	switch {
	case jobID != "" && stage != "":
		return fmt.Sprintf("job %s (%s)", jobID, stage)
	case jobID != "":
		return "job " + jobID
	default:
		return stage
	}
}
