package main

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"vocalsplit/internal/api"
	"vocalsplit/internal/apiclient"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history [JOB_ID]",
		Short: "Show journaled status transitions",
		Long: "Show the status transitions recorded in the history journal for one job,\n" +
			"or the most recent transitions across all jobs when no id is given.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.History(cmd.Context(), id, limit)
				if apiclient.StatusCode(err) == http.StatusServiceUnavailable {
					return fmt.Errorf("history journal is disabled; set history.enabled = true and restart the daemon")
				}
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Events) == 0 {
					fmt.Fprintln(out, "No history recorded")
					return nil
				}
				headers := []string{"Recorded", "Job", "From", "To", "Progress", "Detail"}
				aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}
				fmt.Fprint(out, renderTable(headers, historyRows(resp.Events), aligns))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Number of recent transitions when no job id is given")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func historyRows(events []api.HistoryEvent) [][]string {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		from := e.From
		if from == "" {
			from = "-"
		}
		detail := e.ResultPath
		if e.ErrorMessage != "" {
			detail = truncate(e.ErrorMessage, 48)
		}
		rows = append(rows, []string{
			e.RecordedAt,
			shortID(e.JobID),
			from,
			e.To,
			strconv.Itoa(e.Progress) + "%",
			detail,
		})
	}
	return rows
}

// shortID keeps the first uuid group, enough to tell jobs apart in a table.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
