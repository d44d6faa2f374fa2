package daemon_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vocalsplit/internal/config"
	"vocalsplit/internal/daemon"
	"vocalsplit/internal/history"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/media/ffprobe"
	"vocalsplit/internal/stageexec"
	"vocalsplit/internal/testsupport"
	"vocalsplit/internal/workflow"
)

type harness struct {
	cfg      *config.Config
	registry *jobs.Registry
	daemon   *daemon.Daemon
	hub      *logging.StreamHub
	server   *httptest.Server
}

type harnessOption func(*daemon.Options)

func withProber(p *ffprobe.Prober) harnessOption {
	return func(o *daemon.Options) { o.Prober = p }
}

func newHarness(t *testing.T, cfg *config.Config, opts ...harnessOption) *harness {
	t.Helper()
	registry := jobs.NewRegistry()
	runner := stageexec.NewRunner(nil, cfg.Paths.LogDir, logging.NewNop())
	stages := workflow.NewStageSet(cfg, runner, logging.NewNop())
	pipeline := workflow.NewPipeline(cfg, registry, stages, logging.NewNop())
	scheduler := workflow.NewScheduler(pipeline, cfg.Workers.Count, logging.NewNop())

	hub := logging.NewStreamHub(64)
	options := daemon.Options{LogHub: hub, LogPath: filepath.Join(cfg.Paths.LogDir, "vocalsplit.log")}
	if cfg.History.Enabled {
		store := testsupport.MustOpenHistory(t, cfg)
		registry.AddObserver(history.NewJournal(store, logging.NewNop()))
		options.History = store
	}
	for _, opt := range opts {
		opt(&options)
	}

	d, err := daemon.New(cfg, registry, pipeline, scheduler, logging.NewNop(), options)
	require.NoError(t, err)
	t.Cleanup(d.Stop)

	server := httptest.NewServer(d.Handler())
	t.Cleanup(server.Close)
	return &harness{cfg: cfg, registry: registry, daemon: d, hub: hub, server: server}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.daemon.Start(context.Background()))
}

func (h *harness) get(t *testing.T, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.server.URL+path, nil)
	require.NoError(t, err)
	if h.cfg.Paths.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.cfg.Paths.APIToken)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (h *harness) upload(t *testing.T, field, filename string, payload []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond, "timed out waiting for %s", what)
}

func uploadedFiles(t *testing.T, cfg *config.Config) []string {
	t.Helper()
	entries, err := os.ReadDir(cfg.Paths.UploadDir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	h := newHarness(t, cfg)
	ctx := context.Background()

	h.start(t)
	status := h.daemon.Status(ctx)
	assert.True(t, status.Running)
	assert.Equal(t, os.Getpid(), status.PID)
	assert.Equal(t, cfg.LockPath(), status.LockFilePath)
	assert.False(t, status.StartedAt.IsZero())
	assert.True(t, status.Scheduler.Running)

	assert.Error(t, h.daemon.Start(ctx), "second start should fail")

	other := newHarness(t, cfg)
	err := other.daemon.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")

	h.daemon.Stop()
	status = h.daemon.Status(ctx)
	assert.False(t, status.Running)
	assert.True(t, status.StartedAt.IsZero())
}

func TestDaemonProcessFilesFollowTheLock(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	pidPath := filepath.Join(cfg.Paths.LogDir, "vocalsplit.pid")
	runLog := filepath.Join(cfg.Paths.LogDir, "vocalsplit-run.log")
	link := filepath.Join(cfg.Paths.LogDir, "vocalsplit.log")
	require.NoError(t, os.WriteFile(runLog, []byte("current run"), 0o644))
	processFiles := func(o *daemon.Options) {
		o.PIDPath = pidPath
		o.LogPath = runLog
		o.LogLink = link
	}

	h := newHarness(t, cfg, processFiles)
	h.start(t)
	pid, err := os.ReadFile(pidPath)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(pid))
	linked, err := os.ReadFile(link)
	require.NoError(t, err)
	assert.Equal(t, "current run", string(linked))

	// A second instance must not touch the files of the one holding the lock.
	require.NoError(t, os.WriteFile(pidPath, []byte("owner\n"), 0o644))
	other := newHarness(t, cfg, func(o *daemon.Options) {
		processFiles(o)
		o.LogPath = filepath.Join(cfg.Paths.LogDir, "vocalsplit-other.log")
	})
	require.Error(t, other.daemon.Start(context.Background()))
	pid, err = os.ReadFile(pidPath)
	require.NoError(t, err)
	assert.Equal(t, "owner\n", string(pid))
	linked, err = os.ReadFile(link)
	require.NoError(t, err)
	assert.Equal(t, "current run", string(linked))

	h.daemon.Stop()
	_, err = os.Stat(pidPath)
	assert.True(t, os.IsNotExist(err), "pid file should be removed on stop, stat err = %v", err)
}

func TestDaemonServeListensUntilCancelled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	h := newHarness(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.daemon.Serve(ctx) }()
	eventually(t, "listener", func() bool { return h.daemon.Addr() != "" })

	resp, err := http.Get("http://" + h.daemon.Addr() + "/api/jobs")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.False(t, h.daemon.Status(context.Background()).Running)
}

func TestDaemonStopAbortsQueuedJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	h := newHarness(t, cfg)

	// Queued before the workers exist, so Stop either aborts it or waits
	// for the worker that won the race.
	resp := h.upload(t, "file", "song.mp3", []byte("audio bytes"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := decode[struct {
		JobID string `json:"job_id"`
	}](t, resp).JobID

	h.start(t)
	h.daemon.Stop()

	eventually(t, "terminal job", func() bool {
		job, err := h.registry.Get(id)
		return err == nil && job.IsTerminal()
	})
	job, err := h.registry.Get(id)
	require.NoError(t, err)
	if job.Status == jobs.StatusError {
		assert.Equal(t, workflow.ShutdownReason, job.ErrorMessage)
	} else {
		assert.Equal(t, jobs.StatusCompleted, job.Status)
	}
}
