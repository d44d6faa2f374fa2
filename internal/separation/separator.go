package separation

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vocalsplit/internal/config"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
	"vocalsplit/internal/stage"
	"vocalsplit/internal/stageexec"
)

const (
	stageName = string(jobs.StatusSeparating)
	// VocalsStem is the file Spleeter writes for the vocal track.
	VocalsStem = "vocals.wav"
)

// Separator splits audio into stems with Spleeter.
type Separator struct {
	cfg    *config.Config
	runner *stageexec.Runner
	logger *slog.Logger
}

// NewSeparator constructs the separation stage handler.
func NewSeparator(cfg *config.Config, runner *stageexec.Runner, logger *slog.Logger) *Separator {
	return &Separator{cfg: cfg, runner: runner, logger: logging.NewComponentLogger(logger, "separation")}
}

// BuildArgs returns the spleeter argument vector. Spleeter writes its stems to
// <outputDir>/<audio base name>/.
func BuildArgs(model, outputDir, audio string) []string {
	return []string{"separate", "-p", model, "-o", outputDir, audio}
}

// StemDir returns the directory Spleeter creates for audio under outputDir.
func StemDir(outputDir, audio string) string {
	base := filepath.Base(audio)
	return filepath.Join(outputDir, strings.TrimSuffix(base, filepath.Ext(base)))
}

// Prepare resolves where the stems will land.
func (s *Separator) Prepare(ctx context.Context, ws *stage.Workspace) error {
	if strings.TrimSpace(ws.AudioPath) == "" {
		return services.Wrap(services.ErrValidation, stageName, "validate inputs",
			"no audio available for separation", nil)
	}
	if _, err := os.Stat(ws.AudioPath); err != nil {
		return services.Wrap(services.ErrValidation, stageName, "validate inputs",
			"audio input is missing", err)
	}
	if err := os.MkdirAll(ws.OutputDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "ensure output dir",
			"processed directory is not writable", err)
	}
	ws.StemDir = StemDir(ws.OutputDir, ws.AudioPath)
	ws.VocalsPath = filepath.Join(ws.StemDir, VocalsStem)
	return nil
}

// Execute runs spleeter and requires the vocals stem to exist afterwards.
func (s *Separator) Execute(ctx context.Context, ws *stage.Workspace) error {
	logger := logging.WithContext(ctx, s.logger)
	if ws.VocalsPath == "" {
		ws.StemDir = StemDir(ws.OutputDir, ws.AudioPath)
		ws.VocalsPath = filepath.Join(ws.StemDir, VocalsStem)
	}
	tools := s.cfg.Tools
	result, err := s.runner.Run(ctx, stageexec.Invocation{
		Stage:   stageName,
		Binary:  tools.SpleeterBinary,
		Args:    BuildArgs(tools.SpleeterModel, ws.OutputDir, ws.AudioPath),
		Outputs: []string{ws.VocalsPath},
	})
	if err != nil {
		return err
	}
	logger.Info("stems separated",
		logging.String(logging.FieldEventType, "stems_separated"),
		logging.String("model", tools.SpleeterModel),
		logging.String("vocals_path", ws.VocalsPath),
		logging.Duration("elapsed", result.Duration),
	)
	return nil
}

// HealthCheck verifies the spleeter binary resolves.
func (s *Separator) HealthCheck(context.Context) stage.Health {
	const name = "separation"
	if s.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if _, err := exec.LookPath(s.cfg.Tools.SpleeterBinary); err != nil {
		return stage.Unhealthy(name, "spleeter not found: "+s.cfg.Tools.SpleeterBinary)
	}
	return stage.Healthy(name)
}
