package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vocalsplit/internal/api"
	"vocalsplit/internal/preflight"
)

func newDepsCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Check external tools and directories on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statuses := api.FromDependencies(preflight.CheckSystemDeps(cmd.Context(), cfg))
			checks := preflight.RunAll(cmd.Context(), cfg)
			if jsonOutput {
				return writeJSON(cmd, struct {
					Dependencies []api.DependencyStatus `json:"dependencies"`
					Checks       []api.CheckResult      `json:"checks"`
				}{statuses, api.FromChecks(checks)})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Dependencies", colorize) {
				fmt.Fprintln(out, line)
			}
			rows := make([][]string, 0, len(statuses))
			for _, s := range statuses {
				rows = append(rows, []string{s.Name, s.Command, yesNo(s.Optional), yesNo(s.Available), dependencyDetail(s)})
			}
			fmt.Fprint(out, renderTable([]string{"Name", "Command", "Optional", "Available", "Detail"}, rows, nil))
			fmt.Fprintln(out)

			for _, line := range renderSectionHeader("Directories", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, check := range checks {
				if !strings.HasSuffix(check.Name, "directory") {
					continue
				}
				kind := statusOK
				if !check.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(check.Name, kind, check.Detail, colorize))
			}

			if failed := preflight.Failed(checks); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, f := range failed {
					names = append(names, f.Name)
				}
				return fmt.Errorf("%d check(s) failed: %s", len(failed), strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func dependencyDetail(s api.DependencyStatus) string {
	if s.Available {
		if s.Path != "" {
			return s.Path
		}
		return "Ready"
	}
	if d := strings.TrimSpace(s.Detail); d != "" {
		return d
	}
	return "not available"
}

// dependencyLines renders dependency availability as status lines with a
// trailing summary of the required tools that are missing.
func dependencyLines(statuses []api.DependencyStatus, colorize bool) []string {
	lines := make([]string, 0, len(statuses)+1)
	var missing []string
	for _, dep := range statuses {
		if dep.Available {
			message := "Ready"
			if dep.Command != "" {
				message = fmt.Sprintf("Ready (command: %s)", dep.Command)
			}
			lines = append(lines, renderStatusLine(dep.Name, statusOK, message, colorize))
			continue
		}
		kind := statusError
		if dep.Optional {
			kind = statusWarn
		} else {
			missing = append(missing, dep.Name)
		}
		lines = append(lines, renderStatusLine(dep.Name, kind, dependencyDetail(dep), colorize))
	}
	if len(missing) > 0 {
		lines = append(lines, renderStatusLine("Missing", statusError, strings.Join(missing, ", "), colorize))
	}
	return lines
}
