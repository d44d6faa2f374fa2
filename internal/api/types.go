package api

import "time"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest describes an upload that has already been written to disk.
// JobID is optional; callers that name the stored file after the job id
// generate it up front with NewJobID.
type SubmitRequest struct {
	JobID            string `json:"job_id,omitempty" validate:"omitempty,uuid"`
	InputPath        string `json:"input_path" validate:"required,filepath"`
	OriginalFilename string `json:"original_filename" validate:"required,max=255"`
	MediaKind        string `json:"media_kind" validate:"required,oneof=audio video"`
}

// SubmitResult is returned once a job is queued.
type SubmitResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// UploadResponse is the body of a successful POST /upload.
type UploadResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// JobStatus is the polling payload for a single job.
type JobStatus struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Filename  string `json:"filename"`
	ResultURL string `json:"result_url,omitempty"`
	Error     string `json:"error,omitempty"`
}

// JobView is the full snapshot listed by GET /api/jobs and pushed over the
// websocket.
type JobView struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	MediaKind    string `json:"media_kind"`
	Status       string `json:"status"`
	StatusLabel  string `json:"status_label"`
	Progress     int    `json:"progress"`
	Active       bool   `json:"active"`
	ResultURL    string `json:"result_url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	FinishedAt   string `json:"finished_at,omitempty"`
	ElapsedMS    int64  `json:"elapsed_ms"`
}

// JobListResponse wraps a collection of job snapshots.
type JobListResponse struct {
	Jobs   []JobView      `json:"jobs"`
	Counts map[string]int `json:"counts"`
}

// SchedulerStats mirrors the worker pool counters.
type SchedulerStats struct {
	Running   bool   `json:"running"`
	Workers   int    `json:"workers"`
	Busy      int    `json:"busy"`
	Queued    int    `json:"queued"`
	Submitted uint64 `json:"submitted"`
	Finished  uint64 `json:"finished"`
}

// StageHealth mirrors readiness reporting for pipeline stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Path        string `json:"path,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// CheckResult is one preflight directory or tool check.
type CheckResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    string             `json:"started_at,omitempty"`
	LockFilePath string             `json:"lock_file_path"`
	HistoryPath  string             `json:"history_path,omitempty"`
	LogPath      string             `json:"log_path,omitempty"`
	Scheduler    SchedulerStats     `json:"scheduler"`
	JobCounts    map[string]int     `json:"job_counts"`
	LastError    string             `json:"last_error,omitempty"`
	LastJobID    string             `json:"last_job_id,omitempty"`
	StageHealth  []StageHealth      `json:"stage_health"`
	Dependencies []DependencyStatus `json:"dependencies"`
	Checks       []CheckResult      `json:"checks"`
	WSClients    int                `json:"ws_clients"`

	// HistoryOutcomes counts journaled terminal states across daemon runs.
	HistoryOutcomes map[string]int `json:"history_outcomes,omitempty"`
}

// HistoryEvent is one journal row.
type HistoryEvent struct {
	ID           int64  `json:"id"`
	JobID        string `json:"job_id"`
	Filename     string `json:"filename"`
	From         string `json:"from,omitempty"`
	To           string `json:"to"`
	Progress     int    `json:"progress"`
	ResultPath   string `json:"result_path,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	RecordedAt   string `json:"recorded_at"`
}

// HistoryResponse wraps journal rows for one job.
type HistoryResponse struct {
	JobID  string         `json:"job_id"`
	Events []HistoryEvent `json:"events"`
}

// PreviewResponse describes a finished result file.
type PreviewResponse struct {
	JobID       string  `json:"job_id"`
	ResultURL   string  `json:"result_url"`
	SizeBytes   int64   `json:"size_bytes"`
	DurationSec float64 `json:"duration_sec"`
	Codec       string  `json:"codec,omitempty"`
	SampleRate  int     `json:"sample_rate,omitempty"`
	Channels    int     `json:"channels,omitempty"`
	BitRate     int64   `json:"bit_rate,omitempty"`
}

// LogEvent is one structured log entry from the daemon's stream hub.
type LogEvent struct {
	Sequence      uint64            `json:"seq"`
	Timestamp     time.Time         `json:"ts"`
	Level         string            `json:"level"`
	Message       string            `json:"msg"`
	Component     string            `json:"component,omitempty"`
	JobID         string            `json:"job_id,omitempty"`
	Stage         string            `json:"stage,omitempty"`
	Worker        int               `json:"worker,omitempty"`
	EventType     string            `json:"event_type,omitempty"`
	CorrelationID string            `json:"correlation_id,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// LogStreamResponse is returned by GET /api/logs.
type LogStreamResponse struct {
	Events []LogEvent `json:"events"`
	Next   uint64     `json:"next"`

	// Dropped is set when events after since were evicted before this read.
	Dropped bool `json:"dropped,omitempty"`
}

// UpdateMessage is pushed over GET /ws. Type is "initial_jobs" for the
// snapshot sent on connect and "job_update" for each committed change.
type UpdateMessage struct {
	Type      string    `json:"type"`
	Jobs      []JobView `json:"jobs,omitempty"`
	Job       *JobView  `json:"job,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// NotificationTestResponse reports the outcome of a test notification.
type NotificationTestResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx API reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
