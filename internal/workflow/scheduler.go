package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
)

var (
	// ErrSchedulerStopped is returned by Submit once Stop has been called.
	ErrSchedulerStopped = errors.New("scheduler stopped")
	// ErrAlreadyScheduled is returned when a job is submitted while it is
	// still queued or running.
	ErrAlreadyScheduled = errors.New("job already scheduled")
)

// ShutdownReason is recorded on jobs still queued when the scheduler stops.
const ShutdownReason = "daemon stopped before processing began"

// JobRunner is what the scheduler hands job identifiers to.
type JobRunner interface {
	Run(ctx context.Context, id string) error
	Abort(id, reason string)
}

// Stats is a point-in-time view of the scheduler.
type Stats struct {
	Workers   int    `json:"workers"`
	Busy      int    `json:"busy"`
	Queued    int    `json:"queued"`
	Submitted uint64 `json:"submitted"`
	Finished  uint64 `json:"finished"`
	Running   bool   `json:"running"`
}

// Scheduler runs jobs on a fixed number of workers in submission order.
type Scheduler struct {
	runner  JobRunner
	workers int
	logger  *slog.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	queue     []string
	pending   map[string]struct{}
	running   bool
	stopped   bool
	busy      int
	submitted uint64
	finished  uint64
	wg        sync.WaitGroup
}

// NewScheduler constructs a scheduler with workers slots. Values below one
// are treated as one.
func NewScheduler(runner JobRunner, workers int, logger *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	s := &Scheduler{
		runner:  runner,
		workers: workers,
		logger:  logging.NewComponentLogger(logger, "scheduler"),
		pending: make(map[string]struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the workers. Context values flow into every job; its
// cancellation does not interrupt running pipelines.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if s.running {
		return errors.New("scheduler already running")
	}
	s.running = true

	base := context.WithoutCancel(ctx)
	for i := 1; i <= s.workers; i++ {
		s.wg.Add(1)
		go s.work(base, i)
	}
	s.logger.Info("scheduler started",
		logging.EventType("scheduler_start"),
		logging.Int("workers", s.workers),
		logging.Int("queued", len(s.queue)),
	)
	return nil
}

// Submit enqueues id and returns immediately. Jobs submitted before Start
// wait in the queue.
func (s *Scheduler) Submit(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrSchedulerStopped
	}
	if _, ok := s.pending[id]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyScheduled, id)
	}
	s.pending[id] = struct{}{}
	s.queue = append(s.queue, id)
	s.submitted++
	s.cond.Signal()
	s.logger.Debug("job queued", logging.JobID(id), logging.Int("queued", len(s.queue)))
	return nil
}

// Stop stops dispatching, waits for running pipelines, and aborts every job
// still waiting in the queue. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	leftover := s.queue
	s.queue = nil
	for _, id := range leftover {
		delete(s.pending, id)
	}
	s.running = false
	s.mu.Unlock()

	for _, id := range leftover {
		s.runner.Abort(id, ShutdownReason)
	}
	s.logger.Info("scheduler stopped",
		logging.EventType("scheduler_stop"),
		logging.Int("aborted", len(leftover)),
	)
}

// Stats reports queue depth and worker usage.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Workers:   s.workers,
		Busy:      s.busy,
		Queued:    len(s.queue),
		Submitted: s.submitted,
		Finished:  s.finished,
		Running:   s.running && !s.stopped,
	}
}

func (s *Scheduler) work(ctx context.Context, worker int) {
	defer s.wg.Done()
	ctx = services.WithWorker(ctx, worker)
	for {
		id, ok := s.next()
		if !ok {
			return
		}
		s.runOne(ctx, worker, id)
		s.done(id)
	}
}

func (s *Scheduler) next() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.queue) == 0 && !s.stopped {
		s.cond.Wait()
	}
	if s.stopped {
		return "", false
	}
	id := s.queue[0]
	s.queue[0] = ""
	s.queue = s.queue[1:]
	s.busy++
	return id, true
}

func (s *Scheduler) done(id string) {
	s.mu.Lock()
	s.busy--
	s.finished++
	delete(s.pending, id)
	s.mu.Unlock()
}

func (s *Scheduler) runOne(ctx context.Context, worker int, id string) {
	logger := s.logger.With(logging.JobID(id), logging.Int(logging.FieldWorker, worker))
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(logger, "pipeline panicked", "pipeline_panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
				logging.Alert("pipeline_panic"),
			)
			s.runner.Abort(id, fmt.Sprintf("internal error: %v", r))
		}
	}()
	if err := s.runner.Run(ctx, id); err != nil {
		logging.ErrorWithContext(logger, "pipeline did not finish", "pipeline_error",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job left without a result"),
		)
		s.runner.Abort(id, services.Message(err))
	}
}
