package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"vocalsplit/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a normalized config seeded with unique temp directories
// per test. The directories exist on return.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.UploadDir = filepath.Join(base, "uploads")
	cfgVal.Paths.ProcessedDir = filepath.Join(base, "processed")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.History.Enabled = false
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.Normalize(); err != nil {
		t.Fatalf("normalize test config: %v", err)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return builder.cfg
}

// WithWorkers overrides the worker pool size.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workers.Count = n
	}
}

// WithHistory enables the sqlite history journal.
func WithHistory() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.History.Enabled = true
	}
}

// WithAPIToken sets the bearer token the API requires.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// ffmpegStub writes a payload to its final argument, which is always the
// output path in the pipeline's ffmpeg invocations. An encoder listing
// reports libmp3lame so dependency checks pass.
const ffmpegStub = `#!/bin/sh
for last; do :; done
if [ "$last" = "-encoders" ]; then
  echo " A....D libmp3lame           libmp3lame MP3 (MPEG audio layer 3)"
  exit 0
fi
printf 'stub audio' > "$last"
`

// spleeterStub mimics spleeter's <out>/<base>/<stem>.wav layout.
const spleeterStub = `#!/bin/sh
out=""
prev=""
for arg; do
  if [ "$prev" = "-o" ]; then out="$arg"; fi
  prev="$arg"
  last="$arg"
done
base=$(basename "$last")
base="${base%.*}"
mkdir -p "$out/$base"
for stem in vocals drums bass piano other; do
  printf 'stub stem' > "$out/$base/$stem.wav"
done
`

// WithStubbedTools writes working ffmpeg, ffprobe, and spleeter stand-ins and
// points the config at them.
func WithStubbedTools() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Tools.FFmpegBinary = b.writeStub("ffmpeg", ffmpegStub)
		b.cfg.Tools.FFprobeBinary = b.writeStub("ffprobe", "#!/bin/sh\necho '{\"format\":{},\"streams\":[]}'\n")
		b.cfg.Tools.SpleeterBinary = b.writeStub("spleeter", spleeterStub)
	}
}

// WithFailingTool replaces one tool ("ffmpeg", "spleeter", "ffprobe") with a
// stub that prints message to stderr and exits with code.
func WithFailingTool(name string, code int, message string) ConfigOption {
	return func(b *configBuilder) {
		script := fmt.Sprintf("#!/bin/sh\necho %q >&2\nexit %d\n", message, code)
		path := b.writeStub(name+"-failing", script)
		switch name {
		case "ffmpeg":
			b.cfg.Tools.FFmpegBinary = path
		case "spleeter":
			b.cfg.Tools.SpleeterBinary = path
		case "ffprobe":
			b.cfg.Tools.FFprobeBinary = path
		default:
			b.t.Fatalf("unknown tool %q", name)
		}
	}
}

func (b *configBuilder) writeStub(name, script string) string {
	b.t.Helper()
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
		b.t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.UploadDir)
}
