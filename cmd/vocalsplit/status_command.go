package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vocalsplit/internal/api"
	"vocalsplit/internal/apiclient"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	var interval time.Duration
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status [JOB_ID]",
		Short: "Show daemon status, or the status of one job",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				if watch {
					return errors.New("--watch requires a job id")
				}
				return showDaemonStatus(cmd, ctx, jsonOutput)
			}
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *apiclient.Client) error {
				if watch {
					final, err := waitForJob(cmd.Context(), client, id, interval, progressPrinter(cmd.OutOrStdout(), jsonOutput))
					if err != nil {
						return err
					}
					if jsonOutput {
						return writeJSON(cmd, final)
					}
					if final.Status == "error" {
						return fmt.Errorf("job %s failed: %s", final.ID, final.Error)
					}
					return nil
				}
				view, err := client.Job(cmd.Context(), id)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, view)
				}
				printJobView(cmd.OutOrStdout(), view, client.BaseURL(), shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Poll until the job finishes")
	cmd.Flags().DurationVar(&interval, "interval", defaultPollInterval, "Polling interval for --watch")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printJobView(out io.Writer, view api.JobView, baseURL string, colorize bool) {
	for _, line := range renderSectionHeader("Job "+view.ID, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out, renderStatusLine("Status", jobStatusKind(view.Status), view.StatusLabel, colorize))
	fmt.Fprintln(out, renderStatusLine("Progress", statusInfo, fmt.Sprintf("%d%%", view.Progress), colorize))
	fmt.Fprintln(out, renderStatusLine("File", statusInfo, fmt.Sprintf("%s (%s)", view.Filename, view.MediaKind), colorize))
	fmt.Fprintln(out, renderStatusLine("Elapsed", statusInfo, formatElapsed(view.ElapsedMS), colorize))
	if view.ResultURL != "" {
		fmt.Fprintln(out, renderStatusLine("Result", statusOK, baseURL+view.ResultURL, colorize))
	}
	if view.ErrorMessage != "" {
		fmt.Fprintln(out, renderStatusLine("Error", statusError, view.ErrorMessage, colorize))
	}
}

func showDaemonStatus(cmd *cobra.Command, ctx *commandContext, jsonOutput bool) error {
	client, err := ctx.client()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	status, err := client.Status(cmd.Context())
	if apiclient.IsUnavailable(err) {
		if jsonOutput {
			return writeJSON(cmd, api.DaemonStatus{})
		}
		for _, line := range renderSectionHeader("Daemon", colorize) {
			fmt.Fprintln(out, line)
		}
		fmt.Fprintln(out, renderStatusLine("vocalsplit", statusError, "Not running at "+client.BaseURL(), colorize))
		return nil
	}
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(cmd, status)
	}

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(out, line)
	}
	if status.Running {
		fmt.Fprintln(out, renderStatusLine("vocalsplit", statusOK, fmt.Sprintf("Running (pid %d)", status.PID), colorize))
	} else {
		fmt.Fprintln(out, renderStatusLine("vocalsplit", statusWarn, "Serving but scheduler stopped", colorize))
	}
	if status.StartedAt != "" {
		fmt.Fprintln(out, renderStatusLine("Started", statusInfo, status.StartedAt, colorize))
	}
	fmt.Fprintln(out, renderStatusLine("History", statusInfo, orNone(status.HistoryPath), colorize))
	fmt.Fprintln(out, renderStatusLine("Log", statusInfo, orNone(status.LogPath), colorize))
	fmt.Fprintln(out, renderStatusLine("Live clients", statusInfo, strconv.Itoa(status.WSClients), colorize))
	if status.LastError != "" {
		fmt.Fprintln(out, renderStatusLine("Last error", statusError, fmt.Sprintf("%s (job %s)", status.LastError, status.LastJobID), colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Stages", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, h := range status.StageHealth {
		kind := statusOK
		if !h.Ready {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(h.Name, kind, h.Detail, colorize))
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Dependencies", colorize) {
		fmt.Fprintln(out, line)
	}
	for _, line := range dependencyLines(status.Dependencies, colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Workers", colorize) {
		fmt.Fprintln(out, line)
	}
	sched := status.Scheduler
	fmt.Fprint(out, renderTable(
		[]string{"Workers", "Busy", "Queued", "Submitted", "Finished"},
		[][]string{{
			strconv.Itoa(sched.Workers),
			strconv.Itoa(sched.Busy),
			strconv.Itoa(sched.Queued),
			strconv.FormatUint(sched.Submitted, 10),
			strconv.FormatUint(sched.Finished, 10),
		}},
		[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
	))
	fmt.Fprintln(out)

	for _, line := range renderSectionHeader("Jobs", colorize) {
		fmt.Fprintln(out, line)
	}
	rows := countRows(status.JobCounts)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No jobs")
	} else {
		fmt.Fprint(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}

	if status.HistoryOutcomes == nil {
		return nil
	}
	fmt.Fprintln(out)
	for _, line := range renderSectionHeader("History", colorize) {
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Completed: %d\n", status.HistoryOutcomes["completed"])
	fmt.Fprintf(out, "Failed:    %d\n", status.HistoryOutcomes["error"])
	return nil
}

// statusOrder lists wire statuses in pipeline order for count tables.
var statusOrder = []string{"uploaded", "extracting_audio", "separating", "post_processing", "completed", "error"}

func countRows(counts map[string]int) [][]string {
	rank := make(map[string]int, len(statusOrder))
	for i, s := range statusOrder {
		rank[s] = i
	}
	keys := make([]string, 0, len(counts))
	for k, v := range counts {
		if v > 0 {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, iok := rank[keys[i]]
		rj, jok := rank[keys[j]]
		if iok != jok {
			return iok
		}
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, strconv.Itoa(counts[k])})
	}
	return rows
}

func formatElapsed(ms int64) string {
	if ms <= 0 {
		return "0s"
	}
	d := time.Duration(ms) * time.Millisecond
	if d < time.Minute {
		return d.Round(100 * time.Millisecond).String()
	}
	return d.Round(time.Second).String()
}

func orNone(value string) string {
	if strings.TrimSpace(value) == "" {
		return "none"
	}
	return value
}
