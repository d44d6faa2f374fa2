package jobs

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusUploaded        Status = "uploaded"
	StatusExtractingAudio Status = "extracting_audio"
	StatusSeparating      Status = "separating"
	StatusPostProcessing  Status = "post_processing"
	StatusCompleted       Status = "completed"
	StatusError           Status = "error"
)

// Progress checkpoints recorded as the pipeline advances.
const (
	ProgressQueued    = 0
	ProgressStarted   = 10
	ProgressExtracted = 30
	ProgressSeparated = 80
	ProgressCompleted = 100
)

var allStatuses = []Status{
	StatusUploaded,
	StatusExtractingAudio,
	StatusSeparating,
	StatusPostProcessing,
	StatusCompleted,
	StatusError,
}

// transitions lists the forward edges. Every non-terminal status may also move
// to StatusError.
var transitions = map[Status][]Status{
	StatusUploaded:        {StatusExtractingAudio, StatusSeparating},
	StatusExtractingAudio: {StatusSeparating},
	StatusSeparating:      {StatusPostProcessing},
	StatusPostProcessing:  {StatusCompleted},
}

var labelCaser = cases.Title(language.English)

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, s := range allStatuses {
		if s == normalized {
			return s, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError
}

// IsProcessing reports whether a stage is running for the status.
func (s Status) IsProcessing() bool {
	switch s {
	case StatusExtractingAudio, StatusSeparating, StatusPostProcessing:
		return true
	}
	return false
}

// Label renders the status for humans ("post_processing" -> "Post Processing").
func (s Status) Label() string {
	return labelCaser.String(strings.ReplaceAll(string(s), "_", " "))
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	if to == StatusError {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MediaKind distinguishes inputs that need audio extraction from those that
// do not.
type MediaKind string

const (
	MediaAudio MediaKind = "audio"
	MediaVideo MediaKind = "video"
)

// ParseMediaKind converts a string into a known MediaKind.
func ParseMediaKind(value string) (MediaKind, bool) {
	switch MediaKind(strings.ToLower(strings.TrimSpace(value))) {
	case MediaAudio:
		return MediaAudio, true
	case MediaVideo:
		return MediaVideo, true
	}
	return "", false
}

// FirstStage returns the status a job enters when its pipeline starts.
func (k MediaKind) FirstStage() Status {
	if k == MediaVideo {
		return StatusExtractingAudio
	}
	return StatusSeparating
}
