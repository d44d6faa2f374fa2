package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vocalsplit/internal/config"
	"vocalsplit/internal/daemon"
	"vocalsplit/internal/history"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/notifications"
	"vocalsplit/internal/preflight"
	"vocalsplit/internal/stageexec"
	"vocalsplit/internal/workflow"
)

const (
	logHubCapacity  = 4096
	historyPruneCap = 30 * time.Second
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the vocalsplit daemon and blocks until SIGINT, SIGTERM, or
// cmdCtx cancellation. Running pipelines finish before Run returns.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("vocalsplit-%s.log", runID))
	logHub := logging.NewStreamHub(logHubCapacity)

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
		Stream:      logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pruned := logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "vocalsplit-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "tool"), Pattern: "*.log"},
	)
	if pruned > 0 {
		logger.Info("old logs pruned",
			logging.EventType("log_retention"),
			logging.Int("removed", pruned),
			logging.Int("retention_days", cfg.Logging.RetentionDays),
		)
	}
	logPreflight(signalCtx, logger, cfg)

	registry := jobs.NewRegistry()

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg)
		if err != nil {
			logger.Error("open history journal", logging.Error(err))
			return err
		}
		defer store.Close()
		pruneHistory(signalCtx, logger, store, cfg.Logging.RetentionDays)
		registry.AddObserver(history.NewJournal(store, logger))
	}

	notifier := notifications.NewService(cfg)
	notifyObserver := notifications.NewObserver(cfg, notifier, logger)
	registry.AddObserver(notifyObserver)
	defer notifyObserver.Close()

	runner := stageexec.NewRunner(nil, cfg.Paths.LogDir, logger)
	pipeline := workflow.NewPipeline(cfg, registry, workflow.NewStageSet(cfg, runner, logger), logger)
	scheduler := workflow.NewScheduler(pipeline, cfg.Workers.Count, logger)

	d, err := daemon.New(cfg, registry, pipeline, scheduler, logger, daemon.Options{
		History:  store,
		Notifier: notifier,
		LogHub:   logHub,
		LogPath:  logPath,
		PIDPath:  filepath.Join(cfg.Paths.LogDir, "vocalsplit.pid"),
		LogLink:  filepath.Join(cfg.Paths.LogDir, "vocalsplit.log"),
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}

	if err := d.Serve(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon stopped with error", "daemon_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api_bind and that no other daemon holds the lock"),
			logging.String(logging.FieldImpact, "uploads are not being processed"),
		)
		return err
	}
	logger.Info("vocalsplit daemon shut down", logging.EventType("daemon_shutdown"))
	return nil
}

func pruneHistory(ctx context.Context, logger *slog.Logger, store *history.Store, retentionDays int) {
	if retentionDays <= 0 {
		return
	}
	pruneCtx, cancel := context.WithTimeout(ctx, historyPruneCap)
	defer cancel()
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed, err := store.Prune(pruneCtx, cutoff)
	if err != nil {
		logger.Warn("history prune failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "old history rows are kept"),
		)
		return
	}
	if removed > 0 {
		logger.Info("history pruned",
			logging.EventType("history_pruned"),
			logging.Int64("removed", removed),
			logging.Int("retention_days", retentionDays),
		)
	}
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	results := preflight.RunAll(ctx, cfg)
	for _, failed := range preflight.Failed(results) {
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", failed.Name),
			logging.String("detail", failed.Detail),
			logging.String(logging.FieldErrorHint, "run vocalsplit deps for details"),
			logging.String(logging.FieldImpact, "jobs needing this check will fail"),
		)
	}
	logger.Info("preflight snapshot",
		logging.EventType("preflight_snapshot"),
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
		logging.Int("workers", cfg.Workers.Count),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("history_enabled", cfg.History.Enabled),
		logging.Bool("notifications_enabled", cfg.Notifications.NtfyTopic != ""),
	)
}
