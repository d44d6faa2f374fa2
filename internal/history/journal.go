package history

import (
	"context"
	"log/slog"
	"time"

	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
)

const appendTimeout = 5 * time.Second

// Journal records registry commits into a Store.
type Journal struct {
	store  *Store
	logger *slog.Logger
}

// NewJournal returns an observer writing to store.
func NewJournal(store *Store, logger *slog.Logger) *Journal {
	return &Journal{store: store, logger: logging.NewComponentLogger(logger, "history")}
}

// JobChanged implements jobs.Observer. Write failures are logged and never
// reach the pipeline.
func (j *Journal) JobChanged(prev, next jobs.Job) {
	if prev.Status == next.Status && prev.ID != "" {
		return
	}
	ctx, cancel := context.WithTimeout(services.WithJobID(context.Background(), next.ID), appendTimeout)
	defer cancel()
	if _, err := j.store.Append(ctx, EventFromJobs(prev, next)); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, j.logger), "history append failed", "history_write_failed",
			logging.Error(err),
			logging.String("status", string(next.Status)),
			logging.String(logging.FieldErrorHint, "check free space and permissions in log_dir"),
			logging.String(logging.FieldImpact, "transition missing from the history journal"),
		)
	}
}
