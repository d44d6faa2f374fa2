package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vocalsplit/internal/config"
	"vocalsplit/internal/daemon"
	"vocalsplit/internal/history"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/stageexec"
	"vocalsplit/internal/testsupport"
	"vocalsplit/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	registry   *jobs.Registry
	daemon     *daemon.Daemon
	configPath string
	baseDir    string
}

// setupCLITestEnv serves a real daemon backed by stub tools on a loopback
// port and writes a config file pointing the CLI at it.
func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, append([]testsupport.ConfigOption{testsupport.WithStubbedTools()}, opts...)...)
	hub := logging.NewStreamHub(256)
	logger, err := logging.New(logging.Options{
		Level:       "info",
		OutputPaths: []string{filepath.Join(cfg.Paths.LogDir, "cli-test.log")},
		Stream:      hub,
	})
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}
	registry := jobs.NewRegistry()
	runner := stageexec.NewRunner(nil, cfg.Paths.LogDir, logger)
	pipeline := workflow.NewPipeline(cfg, registry, workflow.NewStageSet(cfg, runner, logger), logger)
	scheduler := workflow.NewScheduler(pipeline, cfg.Workers.Count, logger)

	options := daemon.Options{LogHub: hub}
	if cfg.History.Enabled {
		store := testsupport.MustOpenHistory(t, cfg)
		registry.AddObserver(history.NewJournal(store, logger))
		options.History = store
	}
	d, err := daemon.New(cfg, registry, pipeline, scheduler, logger, options)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("daemon did not stop")
		}
	})
	waitFor(t, 5*time.Second, func() bool { return d.Addr() != "" })

	clientCfg := *cfg
	clientCfg.Paths.APIBind = d.Addr()
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, &clientCfg)

	return &cliTestEnv{
		cfg:        cfg,
		registry:   registry,
		daemon:     d,
		configPath: configPath,
		baseDir:    base,
	}
}

// offlineConfig writes a config whose api_bind points at a closed port.
func offlineConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedTools())
	cfg.Paths.APIBind = "127.0.0.1:1"
	path := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, path, cfg)
	return cfg, path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeInput(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

// submittedID pulls the job id out of "Submitted X as job ID".
func submittedID(t *testing.T, output string) string {
	t.Helper()
	for _, line := range strings.Split(output, "\n") {
		if strings.HasPrefix(line, "Submitted ") {
			fields := strings.Fields(line)
			return fields[len(fields)-1]
		}
	}
	t.Fatalf("no submission line in %q", output)
	return ""
}

func waitFor(t *testing.T, duration time.Duration, fn func() bool) {
	t.Helper()
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", duration)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
