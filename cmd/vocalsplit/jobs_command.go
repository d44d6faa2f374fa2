package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"vocalsplit/internal/api"
	"vocalsplit/internal/apiclient"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs known to the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.Jobs(cmd.Context(), statusFilter)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "File", "Kind", "Status", "Progress", "Elapsed", "Detail"},
					jobRows(resp.Jobs),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only list jobs in this status (e.g. separating, error)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func jobRows(views []api.JobView) [][]string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		detail := v.ResultURL
		if v.ErrorMessage != "" {
			detail = truncate(v.ErrorMessage, 48)
		}
		rows = append(rows, []string{
			v.ID,
			truncate(v.Filename, 40),
			v.MediaKind,
			v.StatusLabel,
			strconv.Itoa(v.Progress) + "%",
			formatElapsed(v.ElapsedMS),
			detail,
		})
	}
	return rows
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if limit <= 1 || len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
