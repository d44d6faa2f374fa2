package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vocalsplit/internal/config"
	"vocalsplit/internal/fileutil"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
	"vocalsplit/internal/stage"
)

// ErrNotRunnable is returned by Run for jobs that have already left the
// uploaded state.
var ErrNotRunnable = errors.New("job is not runnable")

// Pipeline runs a single job through its stages.
type Pipeline struct {
	cfg      *config.Config
	registry *jobs.Registry
	stages   StageSet
	logger   *slog.Logger

	mu      sync.RWMutex
	lastErr error
	lastJob string
}

// NewPipeline constructs a pipeline over registry.
func NewPipeline(cfg *config.Config, registry *jobs.Registry, stages StageSet, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		registry: registry,
		stages:   stages,
		logger:   logging.NewComponentLogger(logger, "workflow"),
	}
}

// Run processes the job end to end. Stage failures are recorded on the job
// and are not returned; a non-nil error means the job could not be started
// or the registry rejected a write.
func (p *Pipeline) Run(ctx context.Context, id string) error {
	job, err := p.registry.Get(id)
	if err != nil {
		return err
	}
	if job.Status != jobs.StatusUploaded {
		return fmt.Errorf("%w: %s is %s", ErrNotRunnable, id, job.Status)
	}

	ctx = services.WithJobID(ctx, id)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, p.logger)

	ws := stage.NewWorkspace(job, p.cfg.Paths.ProcessedDir)
	defer p.removeIntermediates(ctx, ws)

	if _, err := p.registry.Update(id, func(j *jobs.Job) error {
		j.Start()
		return nil
	}); err != nil {
		p.setLastError(err)
		return fmt.Errorf("start job: %w", err)
	}
	p.setLastJob(id)

	started := time.Now()
	logger.Info(
		"job started",
		logging.EventType("job_start"),
		logging.String("media_kind", string(job.MediaKind)),
		logging.String("filename", job.OriginalFilename),
	)

	plan := p.stages.plan(job.MediaKind)
	for i, stg := range plan {
		stageCtx := services.WithStage(ctx, stg.name)
		if err := p.executeStage(stageCtx, stg, ws); err != nil {
			return p.handleStageFailure(stageCtx, stg.name, id, err)
		}

		var mutate func(*jobs.Job)
		if i == len(plan)-1 {
			result := ws.ResultPath
			mutate = func(j *jobs.Job) { j.Complete(result) }
		} else {
			next, progress := plan[i+1].status, checkpoint(stg.status)
			mutate = func(j *jobs.Job) { j.Advance(next, progress) }
		}
		if _, err := p.registry.Update(id, func(j *jobs.Job) error {
			mutate(j)
			return nil
		}); err != nil {
			return p.handleStageFailure(stageCtx, stg.name, id, fmt.Errorf("record checkpoint: %w", err))
		}
	}

	p.removeStems(ctx, ws)
	logger.Info(
		"job completed",
		logging.EventType("job_complete"),
		logging.String("result", ws.ResultPath),
		logging.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (p *Pipeline) executeStage(ctx context.Context, stg pipelineStage, ws *stage.Workspace) error {
	logger := logging.WithContext(ctx, p.logger)
	if stg.handler == nil {
		return services.Wrap(services.ErrConfiguration, stg.name, "resolve handler", "no handler configured", nil)
	}

	stageStart := time.Now()
	logger.Info("stage started", logging.EventType("stage_start"))

	if err := stg.handler.Prepare(ctx, ws); err != nil {
		return err
	}
	if err := stg.handler.Execute(ctx, ws); err != nil {
		return err
	}

	logger.Info(
		"stage completed",
		logging.EventType("stage_complete"),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

// Abort fails a job that never reached or could not finish its pipeline, such
// as one whose worker panicked or one still queued at shutdown. Terminal jobs
// are left alone.
func (p *Pipeline) Abort(id, reason string) {
	logger := logging.WithContext(services.WithJobID(context.Background(), id), p.logger)
	_, err := p.registry.Update(id, func(j *jobs.Job) error {
		j.Fail(reason)
		return nil
	})
	switch {
	case err == nil:
		logging.ErrorWithContext(logger, "job aborted", "job_aborted",
			logging.String("reason", reason),
			logging.String(logging.FieldImpact, "job marked as error without a result"),
		)
	case errors.Is(err, jobs.ErrInvalidTransition):
		logger.Debug("abort skipped for finished job", logging.Error(err))
	default:
		logger.Warn("abort could not update job", logging.Error(err))
	}
}

// removeIntermediates deletes the extracted WAV of a video job. It runs on
// every exit path, including panics unwinding through Run.
func (p *Pipeline) removeIntermediates(ctx context.Context, ws *stage.Workspace) {
	path := strings.TrimSpace(ws.ExtractedAudio)
	if path == "" {
		return
	}
	if err := fileutil.RemoveIfExists(path); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to remove extracted audio", "cleanup_failed",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the file manually"),
			logging.String(logging.FieldImpact, "intermediate audio left on disk"),
		)
	}
}

func (p *Pipeline) removeStems(ctx context.Context, ws *stage.Workspace) {
	if !p.cfg.Cleanup.RemoveStems || strings.TrimSpace(ws.StemDir) == "" {
		return
	}
	if err := os.RemoveAll(ws.StemDir); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, p.logger), "failed to remove stems", "cleanup_failed",
			logging.String("path", ws.StemDir),
			logging.Error(err),
			logging.String(logging.FieldImpact, "separated stems left on disk"),
		)
	}
}

// StageHealth reports readiness for every configured stage.
func (p *Pipeline) StageHealth(ctx context.Context) []stage.Health {
	results := make([]stage.Health, 0, 3)
	for _, stg := range p.stages.plan(jobs.MediaVideo) {
		if stg.handler == nil {
			results = append(results, stage.Unhealthy(stg.name, "no handler configured"))
			continue
		}
		results = append(results, stg.handler.HealthCheck(ctx))
	}
	return results
}

func (p *Pipeline) setLastError(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Pipeline) setLastJob(id string) {
	p.mu.Lock()
	p.lastJob = id
	p.mu.Unlock()
}
