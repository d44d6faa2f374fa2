package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"vocalsplit/internal/config"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
)

// Observer sends a notification when a job reaches a terminal state.
type Observer struct {
	svc         Service
	onCompleted bool
	onFailed    bool
	timeout     time.Duration
	logger      *slog.Logger
	wg          sync.WaitGroup
}

// NewObserver wires svc to the outcome toggles in cfg.
func NewObserver(cfg *config.Config, svc Service, logger *slog.Logger) *Observer {
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Observer{
		svc:         svc,
		onCompleted: cfg.Notifications.OnCompleted,
		onFailed:    cfg.Notifications.OnFailed,
		timeout:     timeout,
		logger:      logging.NewComponentLogger(logger, "notifications"),
	}
}

// JobChanged implements jobs.Observer.
func (o *Observer) JobChanged(prev, next jobs.Job) {
	if prev.Status == next.Status || !next.IsTerminal() {
		return
	}
	switch {
	case next.Status == jobs.StatusCompleted && o.onCompleted:
		elapsed := next.Elapsed(next.FinishedAt)
		o.dispatch(next.ID, "completed", func(ctx context.Context) error {
			return o.svc.NotifyJobCompleted(ctx, next.OriginalFilename, next.ResultPath, elapsed)
		})
	case next.Status == jobs.StatusError && o.onFailed:
		o.dispatch(next.ID, "failed", func(ctx context.Context) error {
			return o.svc.NotifyJobFailed(ctx, next.OriginalFilename, next.ErrorMessage)
		})
	}
}

// Close waits for in-flight notifications.
func (o *Observer) Close() {
	o.wg.Wait()
}

func (o *Observer) dispatch(jobID, outcome string, send func(context.Context) error) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(services.WithJobID(context.Background(), jobID), o.timeout)
		defer cancel()
		if err := send(ctx); err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, o.logger), "notification failed", "notification_failed",
				logging.String("outcome", outcome),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ntfy_topic and network reachability"),
				logging.String(logging.FieldImpact, "job outcome was not pushed"),
			)
		}
	}()
}
