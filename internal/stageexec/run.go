package stageexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
)

// maxOutputBytes bounds how much tool output is carried into a Failure.
const maxOutputBytes = 4096

// Executor runs an external binary to completion. A non-zero exit status is
// reported through exitCode with a nil error; err is reserved for processes
// that could not be started or waited on.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (output []byte, exitCode int, err error)
}

// CommandExecutor runs binaries with os/exec and captures combined output.
type CommandExecutor struct{}

// Run implements Executor.
func (CommandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err == nil {
		return output, 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, exitErr.ExitCode(), nil
	}
	return output, -1, err
}

// Invocation describes one external tool run for a pipeline stage.
type Invocation struct {
	Stage  string
	Binary string
	Args   []string
	// Outputs lists files the tool must leave behind, non-empty, for the run
	// to count as successful.
	Outputs []string
}

// Result summarizes a successful run.
type Result struct {
	Output   string
	Duration time.Duration
	LogPath  string
}

// Failure is returned when a tool cannot start, exits non-zero, or does not
// produce its expected outputs.
type Failure struct {
	Stage    string
	Binary   string
	ExitCode int
	Output   string
	Missing  string
	Err      error
}

func (f *Failure) Error() string {
	name := filepath.Base(f.Binary)
	var msg string
	switch {
	case f.Err != nil:
		msg = fmt.Sprintf("%s failed to run: %v", name, f.Err)
	case f.Missing != "":
		msg = fmt.Sprintf("%s did not produce %s", name, f.Missing)
	default:
		msg = fmt.Sprintf("%s exited with status %d", name, f.ExitCode)
	}
	if f.Output != "" {
		msg += ": " + f.Output
	}
	return msg
}

// Unwrap exposes the external tool marker and the underlying start error.
func (f *Failure) Unwrap() []error {
	if f.Err != nil {
		return []error{services.ErrExternalTool, f.Err}
	}
	return []error{services.ErrExternalTool}
}

// Runner executes stage invocations. The zero value is not usable; construct
// with NewRunner.
type Runner struct {
	exec   Executor
	logDir string
	logger *slog.Logger
}

// NewRunner builds a Runner. When logDir is set, each invocation's output is
// also written to <logDir>/tool/<job>-<stage>.log.
func NewRunner(executor Executor, logDir string, logger *slog.Logger) *Runner {
	if executor == nil {
		executor = CommandExecutor{}
	}
	return &Runner{
		exec:   executor,
		logDir: strings.TrimSpace(logDir),
		logger: logging.NewComponentLogger(logger, "stageexec"),
	}
}

// Run executes inv and blocks until the tool exits. Success is decided by the
// exit status and the presence of every expected output.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("tool invocation",
		logging.String(logging.FieldEventType, "tool_start"),
		logging.String("binary", inv.Binary),
		logging.String("args", strings.Join(inv.Args, " ")),
	)

	started := time.Now()
	raw, exitCode, err := r.exec.Run(ctx, inv.Binary, inv.Args)
	result := Result{
		Output:   boundOutput(raw),
		Duration: time.Since(started),
	}
	result.LogPath = r.writeToolLog(ctx, inv, raw, exitCode, logger)

	if err != nil {
		return result, &Failure{Stage: inv.Stage, Binary: inv.Binary, ExitCode: -1, Output: result.Output, Err: err}
	}
	if exitCode != 0 {
		return result, &Failure{Stage: inv.Stage, Binary: inv.Binary, ExitCode: exitCode, Output: result.Output}
	}
	for _, path := range inv.Outputs {
		if !nonEmptyFile(path) {
			return result, &Failure{Stage: inv.Stage, Binary: inv.Binary, Output: result.Output, Missing: path}
		}
	}

	logger.Debug("tool finished",
		logging.String(logging.FieldEventType, "tool_complete"),
		logging.String("binary", inv.Binary),
		logging.Duration("elapsed", result.Duration),
	)
	return result, nil
}

func (r *Runner) writeToolLog(ctx context.Context, inv Invocation, output []byte, exitCode int, logger *slog.Logger) string {
	if r.logDir == "" {
		return ""
	}
	jobID, _ := services.JobIDFromContext(ctx)
	if jobID == "" {
		jobID = "adhoc"
	}
	stage := inv.Stage
	if stage == "" {
		stage = filepath.Base(inv.Binary)
	}
	path := filepath.Join(r.logDir, "tool", fmt.Sprintf("%s-%s.log", jobID, stage))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Debug("tool log unavailable", logging.Error(err))
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "$ %s %s\n", inv.Binary, strings.Join(inv.Args, " "))
	b.Write(output)
	if len(output) > 0 && output[len(output)-1] != '\n' {
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "exit status %d\n", exitCode)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		logger.Debug("tool log write failed", logging.Error(err))
		return ""
	}
	return path
}

// boundOutput trims whitespace and keeps the tail of long output, where tools
// print their fatal error.
func boundOutput(raw []byte) string {
	out := strings.TrimSpace(string(raw))
	if len(out) <= maxOutputBytes {
		return out
	}
	tail := out[len(out)-maxOutputBytes:]
	for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
		tail = tail[1:]
	}
	if idx := strings.IndexByte(tail, '\n'); idx >= 0 && idx < len(tail)-1 {
		tail = tail[idx+1:]
	}
	return "..." + tail
}

func nonEmptyFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
