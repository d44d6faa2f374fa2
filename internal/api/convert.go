package api

import (
	"net/url"
	"path/filepath"
	"sort"
	"time"

	"vocalsplit/internal/deps"
	"vocalsplit/internal/history"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/preflight"
	"vocalsplit/internal/stage"
	"vocalsplit/internal/workflow"
)

// ResultURL returns the download path for a result artifact, or "" when
// there is none.
func ResultURL(resultPath string) string {
	if resultPath == "" {
		return ""
	}
	return "/download/" + url.PathEscape(filepath.Base(resultPath))
}

// StatusFromJob builds the polling payload for job.
func StatusFromJob(job jobs.Job) JobStatus {
	dto := JobStatus{
		ID:       job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
		Filename: job.OriginalFilename,
	}
	switch job.Status {
	case jobs.StatusCompleted:
		dto.ResultURL = ResultURL(job.ResultPath)
	case jobs.StatusError:
		dto.Error = job.ErrorMessage
	}
	return dto
}

// FromJob converts a registry snapshot to its list representation.
func FromJob(job jobs.Job, now time.Time) JobView {
	dto := JobView{
		ID:           job.ID,
		Filename:     job.OriginalFilename,
		MediaKind:    string(job.MediaKind),
		Status:       string(job.Status),
		StatusLabel:  job.Status.Label(),
		Progress:     job.Progress,
		Active:       job.Status.IsProcessing(),
		ErrorMessage: job.ErrorMessage,
		ElapsedMS:    job.Elapsed(now).Milliseconds(),
	}
	if job.Status == jobs.StatusCompleted {
		dto.ResultURL = ResultURL(job.ResultPath)
	}
	dto.CreatedAt = formatTime(job.CreatedAt)
	dto.UpdatedAt = formatTime(job.UpdatedAt)
	dto.FinishedAt = formatTime(job.FinishedAt)
	return dto
}

// FromJobs converts registry snapshots, preserving order.
func FromJobs(list []jobs.Job, now time.Time) []JobView {
	out := make([]JobView, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job, now))
	}
	return out
}

// CountsByStatus renders registry counts with every status present.
func CountsByStatus(counts map[jobs.Status]int) map[string]int {
	out := make(map[string]int, len(jobs.AllStatuses()))
	for _, status := range jobs.AllStatuses() {
		out[string(status)] = counts[status]
	}
	return out
}

// FromSchedulerStats converts worker pool counters.
func FromSchedulerStats(stats workflow.Stats) SchedulerStats {
	return SchedulerStats{
		Running:   stats.Running,
		Workers:   stats.Workers,
		Busy:      stats.Busy,
		Queued:    stats.Queued,
		Submitted: stats.Submitted,
		Finished:  stats.Finished,
	}
}

// StageHealthSlice converts stage readiness records sorted by name.
func StageHealthSlice(records []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(records))
	for _, h := range records {
		out = append(out, StageHealth{Name: h.Name, Ready: h.Ready, Detail: h.Detail})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// FromDependencies converts dependency probe results.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, DependencyStatus{
			Name:        s.Name,
			Command:     s.Command,
			Description: s.Description,
			Optional:    s.Optional,
			Available:   s.Available,
			Path:        s.Path,
			Detail:      s.Detail,
		})
	}
	return out
}

// FromChecks converts preflight results.
func FromChecks(results []preflight.Result) []CheckResult {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		out = append(out, CheckResult{Name: r.Name, Passed: r.Passed, Detail: r.Detail})
	}
	return out
}

// FromHistory converts journal rows.
func FromHistory(events []history.Event) []HistoryEvent {
	out := make([]HistoryEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, HistoryEvent{
			ID:           evt.ID,
			JobID:        evt.JobID,
			Filename:     evt.Filename,
			From:         string(evt.From),
			To:           string(evt.To),
			Progress:     evt.Progress,
			ResultPath:   evt.ResultPath,
			ErrorMessage: evt.ErrorMessage,
			RecordedAt:   formatTime(evt.RecordedAt),
		})
	}
	return out
}

// FromLogEvents converts stream hub entries.
func FromLogEvents(events []logging.LogEvent) []LogEvent {
	out := make([]LogEvent, 0, len(events))
	for _, evt := range events {
		out = append(out, LogEvent{
			Sequence:      evt.Sequence,
			Timestamp:     evt.Timestamp,
			Level:         evt.Level,
			Message:       evt.Message,
			Component:     evt.Component,
			JobID:         evt.JobID,
			Stage:         evt.Stage,
			Worker:        evt.Worker,
			EventType:     evt.EventType,
			CorrelationID: evt.CorrelationID,
			Fields:        evt.Fields,
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
