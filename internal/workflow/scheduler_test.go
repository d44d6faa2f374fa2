package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
	"vocalsplit/internal/stage"
	"vocalsplit/internal/stageexec"
	"vocalsplit/internal/testsupport"
	"vocalsplit/internal/workflow"
)

type fakeRunner struct {
	mu        sync.Mutex
	delay     time.Duration
	panicOn   string
	failOn    string
	active    int
	maxActive int
	runs      map[string]int
	order     []string
	aborted   map[string]string
	workers   map[int]bool
}

func newFakeRunner(delay time.Duration) *fakeRunner {
	return &fakeRunner{
		delay:   delay,
		runs:    map[string]int{},
		aborted: map[string]string{},
		workers: map[int]bool{},
	}
}

func (f *fakeRunner) Run(ctx context.Context, id string) error {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.runs[id]++
	f.order = append(f.order, id)
	if worker, ok := services.WorkerFromContext(ctx); ok {
		f.workers[worker] = true
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	time.Sleep(f.delay)
	if id == f.panicOn {
		panic("stage exploded")
	}
	if id == f.failOn {
		return errors.New("registry unavailable")
	}
	return nil
}

func (f *fakeRunner) Abort(id, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted[id] = reason
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSchedulerRunsEveryJobOnceWithinWorkerLimit(t *testing.T) {
	runner := newFakeRunner(10 * time.Millisecond)
	sched := workflow.NewScheduler(runner, 3, logging.NewNop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	const total = 25
	for i := 0; i < total; i++ {
		if err := sched.Submit(fmt.Sprintf("job-%02d", i)); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	waitFor(t, "all jobs", func() bool { return sched.Stats().Finished == total })

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.runs) != total {
		t.Fatalf("ran %d distinct jobs, want %d", len(runner.runs), total)
	}
	for id, n := range runner.runs {
		if n != 1 {
			t.Fatalf("job %s ran %d times", id, n)
		}
	}
	if runner.maxActive > 3 {
		t.Fatalf("max concurrency %d exceeds worker count", runner.maxActive)
	}
	for worker := range runner.workers {
		if worker < 1 || worker > 3 {
			t.Fatalf("unexpected worker slot %d", worker)
		}
	}

	stats := sched.Stats()
	if stats.Submitted != total || stats.Queued != 0 || stats.Busy != 0 || stats.Workers != 3 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestSchedulerSingleWorkerKeepsSubmissionOrder(t *testing.T) {
	runner := newFakeRunner(0)
	sched := workflow.NewScheduler(runner, 0, logging.NewNop())
	want := []string{"a", "b", "c", "d"}
	for _, id := range want {
		if err := sched.Submit(id); err != nil {
			t.Fatalf("Submit %s: %v", id, err)
		}
	}
	if got := sched.Stats().Queued; got != len(want) {
		t.Fatalf("queued before start = %d", got)
	}
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()
	waitFor(t, "ordered jobs", func() bool { return sched.Stats().Finished == uint64(len(want)) })

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if strings.Join(runner.order, ",") != strings.Join(want, ",") {
		t.Fatalf("order = %v, want %v", runner.order, want)
	}
}

func TestSchedulerRejectsDuplicatesAndLateSubmits(t *testing.T) {
	runner := newFakeRunner(0)
	sched := workflow.NewScheduler(runner, 1, logging.NewNop())

	if err := sched.Submit("dup"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := sched.Submit("dup"); !errors.Is(err, workflow.ErrAlreadyScheduled) {
		t.Fatalf("duplicate submit err = %v", err)
	}

	sched.Stop()
	if err := sched.Submit("late"); !errors.Is(err, workflow.ErrSchedulerStopped) {
		t.Fatalf("submit after stop err = %v", err)
	}
	if err := sched.Start(context.Background()); !errors.Is(err, workflow.ErrSchedulerStopped) {
		t.Fatalf("start after stop err = %v", err)
	}
	sched.Stop()
}

func TestSchedulerStopAbortsQueuedJobs(t *testing.T) {
	runner := newFakeRunner(0)
	sched := workflow.NewScheduler(runner, 2, logging.NewNop())
	for _, id := range []string{"q1", "q2", "q3"} {
		if err := sched.Submit(id); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	sched.Stop()

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.runs) != 0 {
		t.Fatalf("no job should run after stop, got %v", runner.runs)
	}
	for _, id := range []string{"q1", "q2", "q3"} {
		if runner.aborted[id] != workflow.ShutdownReason {
			t.Fatalf("job %s abort reason = %q", id, runner.aborted[id])
		}
	}
}

func TestSchedulerStopWaitsForRunningJobs(t *testing.T) {
	runner := newFakeRunner(100 * time.Millisecond)
	sched := workflow.NewScheduler(runner, 1, logging.NewNop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sched.Submit("slow"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, "job start", func() bool { return sched.Stats().Busy == 1 })

	sched.Stop()
	stats := sched.Stats()
	if stats.Finished != 1 || stats.Busy != 0 || stats.Running {
		t.Fatalf("stop returned before running job finished: %+v", stats)
	}
}

func TestSchedulerRecoversFromPanics(t *testing.T) {
	runner := newFakeRunner(0)
	runner.panicOn = "boom"
	runner.failOn = "broken"
	sched := workflow.NewScheduler(runner, 1, logging.NewNop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	for _, id := range []string{"boom", "broken", "after"} {
		if err := sched.Submit(id); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	waitFor(t, "jobs after panic", func() bool { return sched.Stats().Finished == 3 })

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if !strings.Contains(runner.aborted["boom"], "stage exploded") {
		t.Fatalf("panic abort reason = %q", runner.aborted["boom"])
	}
	if runner.aborted["broken"] != "registry unavailable" {
		t.Fatalf("error abort reason = %q", runner.aborted["broken"])
	}
	if _, ok := runner.aborted["after"]; ok || runner.runs["after"] != 1 {
		t.Fatal("worker should keep serving jobs after a panic")
	}
}

type panickingHandler struct{}

func (panickingHandler) Prepare(context.Context, *stage.Workspace) error { return nil }
func (panickingHandler) Execute(context.Context, *stage.Workspace) error {
	panic("separator crashed")
}
func (panickingHandler) HealthCheck(context.Context) stage.Health { return stage.Healthy("panicking") }

func TestSchedulerWithPipelineEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools(), testsupport.WithWorkers(2))
	pipeline, registry := newPipeline(t, cfg)
	sched := workflow.NewScheduler(pipeline, cfg.Workers.Count, logging.NewNop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("e2e-%d", i)
		kind, name := jobs.MediaAudio, "song.mp3"
		if i%2 == 1 {
			kind, name = jobs.MediaVideo, "clip.mp4"
		}
		createJob(t, cfg, registry, id, name, kind)
		if err := sched.Submit(id); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		ids = append(ids, id)
	}
	waitFor(t, "pipelines", func() bool { return sched.Stats().Finished == uint64(len(ids)) })

	for _, id := range ids {
		job, err := registry.Get(id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if job.Status != jobs.StatusCompleted {
			t.Fatalf("job %s = %s (%s)", id, job.Status, job.ErrorMessage)
		}
	}
	if counts := registry.Counts(); counts[jobs.StatusCompleted] != len(ids) {
		t.Fatalf("counts = %v", counts)
	}
}

func TestSchedulerPanicInPipelineFailsJobAndCleansUp(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	registry := jobs.NewRegistry()
	runner := stageexec.NewRunner(nil, cfg.Paths.LogDir, logging.NewNop())
	stages := workflow.NewStageSet(cfg, runner, logging.NewNop())
	stages.Separator = panickingHandler{}
	pipeline := workflow.NewPipeline(cfg, registry, stages, logging.NewNop())

	sched := workflow.NewScheduler(pipeline, 1, logging.NewNop())
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sched.Stop()

	createJob(t, cfg, registry, "crash", "clip.mov", jobs.MediaVideo)
	if err := sched.Submit("crash"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitFor(t, "crashed job", func() bool {
		job, err := registry.Get("crash")
		return err == nil && job.IsTerminal()
	})

	job, _ := registry.Get("crash")
	if job.Status != jobs.StatusError || job.Progress != 30 {
		t.Fatalf("job = %s at %d%%, want error at 30%%", job.Status, job.Progress)
	}
	if !strings.Contains(job.ErrorMessage, "separator crashed") {
		t.Fatalf("error message = %q", job.ErrorMessage)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.ProcessedDir, "crash_clip.wav")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("extracted audio should be removed after panic, stat err = %v", err)
	}
}
