package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"vocalsplit/internal/api"
	"vocalsplit/internal/config"
	"vocalsplit/internal/deps"
	"vocalsplit/internal/history"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/media/ffprobe"
	"vocalsplit/internal/notifications"
	"vocalsplit/internal/preflight"
	"vocalsplit/internal/workflow"
)

const shutdownTimeout = 5 * time.Second

// Options carries the optional collaborators of a Daemon.
type Options struct {
	// History is nil when the journal is disabled.
	History  *history.Store
	Notifier notifications.Service
	LogHub   *logging.StreamHub
	LogPath  string
	Prober   *ffprobe.Prober

	// PIDPath and LogLink are written only once the lock is held, so a
	// second instance cannot clobber the running daemon's files.
	PIDPath string
	LogLink string
}

// Daemon owns the worker pool and the HTTP API and enforces single-instance
// execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *jobs.Registry
	pipeline  *workflow.Pipeline
	scheduler *workflow.Scheduler
	jobs      *api.JobService
	updates   *updateHub
	history   *history.Store
	notifier  notifications.Service
	logHub    *logging.StreamHub
	logPath   string
	prober    *ffprobe.Prober

	pidPath  string
	logLink  string
	lockPath string
	lock     *flock.Flock

	mu        sync.Mutex
	running   atomic.Bool
	startedAt time.Time
	addr      string
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	LockFilePath string
	HistoryPath  string
	LogPath      string
	Scheduler    workflow.Stats
	JobCounts    map[jobs.Status]int
	Workflow     workflow.StatusSummary
	Dependencies []deps.Status
	Checks       []preflight.Result
	WSClients    int

	// HistoryOutcomes is nil when the journal is disabled.
	HistoryOutcomes map[jobs.Status]int
}

// New constructs a daemon and registers its websocket hub as a registry
// observer.
func New(cfg *config.Config, registry *jobs.Registry, pipeline *workflow.Pipeline, scheduler *workflow.Scheduler, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || registry == nil || pipeline == nil || scheduler == nil {
		return nil, errors.New("daemon requires config, registry, pipeline, and scheduler")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	prober := opts.Prober
	if prober == nil {
		prober = ffprobe.NewProber(cfg.Tools.FFprobeBinary, nil)
	}

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		registry:  registry,
		pipeline:  pipeline,
		scheduler: scheduler,
		jobs:      api.NewJobService(registry, scheduler),
		updates:   newUpdateHub(registry, logger),
		history:   opts.History,
		notifier:  notifier,
		logHub:    opts.LogHub,
		logPath:   opts.LogPath,
		pidPath:   opts.PIDPath,
		logLink:   opts.LogLink,
		prober:    prober,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	registry.AddObserver(d.updates)
	return d, nil
}

// Start acquires the daemon lock and launches the worker pool.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := d.cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another vocalsplit daemon instance is already running")
	}

	if err := writePIDFile(d.pidPath); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("write pid file: %w", err)
	}
	if err := linkCurrentLog(d.logLink, d.logPath); err != nil {
		d.logger.Warn("unable to update current log link",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the log file fallback may read an older run"),
		)
	}

	if err := d.scheduler.Start(ctx); err != nil {
		d.removePIDFile()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("vocalsplit daemon started",
		logging.EventType("daemon_start"),
		logging.String("lock", d.lockPath),
		logging.Int("workers", d.scheduler.Stats().Workers),
	)
	return nil
}

// Stop drains the worker pool and releases the daemon lock. Running jobs
// finish; jobs still queued are failed.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.updates.Close()
	d.scheduler.Stop()
	d.removePIDFile()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("vocalsplit daemon stopped", logging.EventType("daemon_stop"))
}

// Serve starts the daemon, listens on paths.api_bind, and blocks until ctx is
// cancelled or the listener fails. The daemon is stopped on return.
func (d *Daemon) Serve(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	bind := strings.TrimSpace(d.cfg.Paths.APIBind)
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	d.mu.Lock()
	d.addr = listener.Addr().String()
	d.mu.Unlock()

	server := &http.Server{
		Handler:           d.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		d.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		d.updates.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("api server shutdown incomplete", logging.Error(err))
		}
		return nil
	})
	return group.Wait()
}

// Addr returns the address the API is listening on once Serve is running.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr
}

// Handler returns the HTTP API, wrapped in bearer auth when a token is
// configured.
func (d *Daemon) Handler() http.Handler {
	return newAPIServer(d).handler()
}

// Jobs exposes the job service used by the HTTP layer.
func (d *Daemon) Jobs() *api.JobService {
	return d.jobs
}

// LogPath returns the path to the current daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// LogStream returns the in-memory log hub, or nil.
func (d *Daemon) LogStream() *logging.StreamHub {
	return d.logHub
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status, including dependency and
// directory checks.
func (d *Daemon) Status(ctx context.Context) Status {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()

	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Scheduler:    d.scheduler.Stats(),
		JobCounts:    d.registry.Counts(),
		Workflow:     d.pipeline.Status(ctx),
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
		Checks:       preflight.RunAll(ctx, d.cfg),
		WSClients:    d.updates.ClientCount(),
	}
	if status.Running {
		status.StartedAt = startedAt
	}
	if d.history != nil {
		status.HistoryPath = d.history.Path()
		outcomes, err := d.history.Outcomes(ctx)
		if err != nil {
			d.logger.Warn("history outcomes unavailable", logging.Error(err))
		} else {
			status.HistoryOutcomes = outcomes
		}
	}
	return status
}
