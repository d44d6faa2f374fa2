package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"vocalsplit/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("VOCALSPLIT_API_TOKEN", "")
	t.Setenv("VOCALSPLIT_NTFY_TOPIC", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantUploads := filepath.Join(tempHome, ".local", "share", "vocalsplit", "uploads")
	if cfg.Paths.UploadDir != wantUploads {
		t.Fatalf("unexpected upload dir: got %q want %q", cfg.Paths.UploadDir, wantUploads)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7491" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Workers.Count != 2 {
		t.Fatalf("expected 2 workers by default, got %d", cfg.Workers.Count)
	}
	if cfg.Tools.SpleeterModel != "spleeter:5stems" {
		t.Fatalf("unexpected spleeter model %q", cfg.Tools.SpleeterModel)
	}
	if cfg.Tools.SampleRate != 44100 || cfg.Tools.Channels != 2 {
		t.Fatalf("unexpected extraction params: %d Hz, %d ch", cfg.Tools.SampleRate, cfg.Tools.Channels)
	}
	if cfg.Upload.MaxBytes != 500*1024*1024 {
		t.Fatalf("unexpected upload limit %d", cfg.Upload.MaxBytes)
	}
	if len(cfg.Tools.Equalizer) != 2 {
		t.Fatalf("expected two default equalizer bands, got %d", len(cfg.Tools.Equalizer))
	}
	if cfg.Cleanup.RemoveStems {
		t.Fatal("expected stems to be kept by default")
	}
	if !cfg.History.Enabled {
		t.Fatal("expected history journal enabled by default")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.UploadDir, cfg.Paths.ProcessedDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "vocalsplit.toml")

	type payload struct {
		Paths struct {
			UploadDir string `toml:"upload_dir"`
		} `toml:"paths"`
		Workers struct {
			Count int `toml:"count"`
		} `toml:"workers"`
		Upload struct {
			AudioExtensions []string `toml:"audio_extensions"`
		} `toml:"upload"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}
	custom := payload{}
	custom.Paths.UploadDir = filepath.Join(tempDir, "in")
	custom.Workers.Count = 4
	custom.Upload.AudioExtensions = []string{".WAV", "mp3", "wav"}
	custom.Logging.Format = "JSON"

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected custom config to be used, got %q exists=%v", resolved, exists)
	}
	if cfg.Paths.UploadDir != filepath.Join(tempDir, "in") {
		t.Fatalf("unexpected upload dir %q", cfg.Paths.UploadDir)
	}
	if cfg.Workers.Count != 4 {
		t.Fatalf("expected 4 workers, got %d", cfg.Workers.Count)
	}
	if got := strings.Join(cfg.Upload.AudioExtensions, ","); got != "wav,mp3" {
		t.Fatalf("expected normalized extensions, got %q", got)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected json log format, got %q", cfg.Logging.Format)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "vocalsplit.toml")
	if err := os.WriteFile(configPath, []byte("[workers]\ncont = 3\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(configPath); err == nil {
		t.Fatal("expected unknown key to fail parsing")
	}
}

func TestEnvironmentFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("VOCALSPLIT_API_TOKEN", " secret ")
	t.Setenv("VOCALSPLIT_NTFY_TOPIC", "https://ntfy.example/vocals")
	t.Setenv("VOCALSPLIT_WORKERS", "3")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "secret" {
		t.Fatalf("expected token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/vocals" {
		t.Fatalf("expected topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
	if cfg.Workers.Count != 3 {
		t.Fatalf("expected workers from env, got %d", cfg.Workers.Count)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative workers", func(c *config.Config) { c.Workers.Count = -1 }, "workers.count"},
		{"mp3 quality", func(c *config.Config) { c.Tools.MP3Quality = 12 }, "tools.mp3_quality"},
		{"eq frequency", func(c *config.Config) {
			c.Tools.Equalizer = []config.EqualizerBand{{FrequencyHz: 0, WidthOctave: 1}}
		}, "frequency_hz"},
		{"suffix separator", func(c *config.Config) { c.Tools.ResultSuffix = "a/b" }, "result_suffix"},
		{"overlapping extensions", func(c *config.Config) { c.Upload.VideoExtensions = []string{"wav"} }, "both audio and video"},
		{"log level", func(c *config.Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			if err := cfg.Normalize(); err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q in %q", tt.want, err.Error())
			}
		})
	}
}

func TestMediaKindForExtension(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	cases := map[string]string{
		"wav":  "audio",
		".MP3": "audio",
		"mkv":  "video",
		".mp4": "video",
	}
	for ext, want := range cases {
		got, ok := cfg.MediaKindForExtension(ext)
		if !ok || got != want {
			t.Fatalf("MediaKindForExtension(%q) = %q, %v; want %q", ext, got, ok, want)
		}
	}
	if _, ok := cfg.MediaKindForExtension("exe"); ok {
		t.Fatal("expected exe to be rejected")
	}
	if _, ok := cfg.MediaKindForExtension(""); ok {
		t.Fatal("expected empty extension to be rejected")
	}
}

func TestAPIBaseURL(t *testing.T) {
	cfg := config.Default()
	if got := cfg.APIBaseURL(); got != "http://127.0.0.1:7491" {
		t.Fatalf("unexpected base url %q", got)
	}
	cfg.Paths.APIBind = ":8080"
	if got := cfg.APIBaseURL(); got != "http://127.0.0.1:8080" {
		t.Fatalf("unexpected base url %q", got)
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	target := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("sample config failed to load: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if len(cfg.Tools.Equalizer) != 2 {
		t.Fatalf("expected sample equalizer bands, got %d", len(cfg.Tools.Equalizer))
	}
	encoded, err := cfg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !strings.Contains(encoded, "spleeter:5stems") {
		t.Fatalf("encoded config missing model: %s", encoded)
	}
}
