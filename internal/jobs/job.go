package jobs

import (
	"fmt"
	"strings"
	"time"
)

// Job is a snapshot of one vocal isolation request.
type Job struct {
	ID               string
	InputPath        string
	OriginalFilename string
	MediaKind        MediaKind
	Status           Status
	Progress         int
	ResultPath       string
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	StageStartedAt   time.Time
	FinishedAt       time.Time
}

// IsTerminal reports whether the job has completed or failed.
func (j Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// Elapsed reports how long the job has been running, or ran in total once
// terminal.
func (j Job) Elapsed(now time.Time) time.Duration {
	if j.CreatedAt.IsZero() {
		return 0
	}
	end := now
	if !j.FinishedAt.IsZero() {
		end = j.FinishedAt
	}
	if end.Before(j.CreatedAt) {
		return 0
	}
	return end.Sub(j.CreatedAt)
}

// Start moves an uploaded job into its first stage.
func (j *Job) Start() {
	j.Status = j.MediaKind.FirstStage()
	j.Progress = ProgressStarted
}

// Advance records a stage checkpoint.
func (j *Job) Advance(status Status, progress int) {
	j.Status = status
	j.Progress = progress
}

// Complete marks the job finished with the given result artifact.
func (j *Job) Complete(resultPath string) {
	j.Status = StatusCompleted
	j.Progress = ProgressCompleted
	j.ResultPath = resultPath
}

// Fail marks the job failed. Progress is left at the last checkpoint.
func (j *Job) Fail(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "unknown failure"
	}
	j.Status = StatusError
	j.ErrorMessage = message
	j.ResultPath = ""
}

// validate checks the per-record invariants.
func (j Job) validate() error {
	if strings.TrimSpace(j.ID) == "" {
		return fmt.Errorf("%w: id is empty", ErrInvariant)
	}
	if _, ok := ParseMediaKind(string(j.MediaKind)); !ok {
		return fmt.Errorf("%w: unknown media kind %q", ErrInvariant, j.MediaKind)
	}
	if _, ok := ParseStatus(string(j.Status)); !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvariant, j.Status)
	}
	if j.Progress < 0 || j.Progress > ProgressCompleted {
		return fmt.Errorf("%w: progress %d out of range", ErrInvariant, j.Progress)
	}
	if (j.Status == StatusCompleted) != (j.ResultPath != "") {
		return fmt.Errorf("%w: result path must be set exactly when completed", ErrInvariant)
	}
	if (j.Status == StatusError) != (j.ErrorMessage != "") {
		return fmt.Errorf("%w: error message must be set exactly on error", ErrInvariant)
	}
	if j.Status == StatusCompleted && j.Progress != ProgressCompleted {
		return fmt.Errorf("%w: completed job at %d%%", ErrInvariant, j.Progress)
	}
	return nil
}

// checkUpdate validates next as a successor of prev.
func checkUpdate(prev, next Job) error {
	if next.ID != prev.ID ||
		next.InputPath != prev.InputPath ||
		next.OriginalFilename != prev.OriginalFilename ||
		next.MediaKind != prev.MediaKind ||
		!next.CreatedAt.Equal(prev.CreatedAt) {
		return fmt.Errorf("%w: immutable field changed", ErrInvariant)
	}
	if prev.Status.IsTerminal() {
		return fmt.Errorf("%w: job %s is already %s", ErrInvalidTransition, prev.ID, prev.Status)
	}
	if next.Status != prev.Status && !CanTransition(prev.Status, next.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Status, next.Status)
	}
	if next.Status == StatusExtractingAudio && next.MediaKind != MediaVideo {
		return fmt.Errorf("%w: audio jobs skip extraction", ErrInvalidTransition)
	}
	if err := next.validate(); err != nil {
		return err
	}
	switch {
	case next.Status == StatusError:
		if next.Progress != prev.Progress {
			return fmt.Errorf("%w: progress must freeze on failure", ErrInvariant)
		}
	case next.Progress < prev.Progress:
		return fmt.Errorf("%w: progress moved backwards %d -> %d", ErrInvariant, prev.Progress, next.Progress)
	}
	return nil
}
