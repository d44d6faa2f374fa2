package extraction

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"

	"vocalsplit/internal/config"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
	"vocalsplit/internal/stage"
	"vocalsplit/internal/stageexec"
)

const stageName = string(jobs.StatusExtractingAudio)

// Extractor pulls the audio track out of a video upload.
type Extractor struct {
	cfg    *config.Config
	runner *stageexec.Runner
	logger *slog.Logger
}

// NewExtractor constructs the extraction stage handler.
func NewExtractor(cfg *config.Config, runner *stageexec.Runner, logger *slog.Logger) *Extractor {
	return &Extractor{cfg: cfg, runner: runner, logger: logging.NewComponentLogger(logger, "extraction")}
}

// BuildArgs returns the ffmpeg argument vector that converts input into PCM
// WAV at output.
func BuildArgs(input, output string, sampleRate, channels int) []string {
	return []string{
		"-y",
		"-i", input,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		output,
	}
}

// Prepare checks the input and reserves the intermediate WAV path. The path is
// recorded before the tool runs so a partial file is cleaned up on failure.
func (e *Extractor) Prepare(ctx context.Context, ws *stage.Workspace) error {
	if ws.MediaKind != jobs.MediaVideo {
		return services.Wrap(services.ErrValidation, stageName, "validate inputs",
			"audio extraction only applies to video uploads", nil)
	}
	if _, err := os.Stat(ws.InputPath); err != nil {
		return services.Wrap(services.ErrValidation, stageName, "validate inputs",
			"uploaded file is missing", err)
	}
	if err := os.MkdirAll(ws.OutputDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, stageName, "ensure output dir",
			"processed directory is not writable", err)
	}
	ws.ExtractedAudio = ws.ArtifactPath(ws.BaseName + ".wav")
	return nil
}

// Execute runs ffmpeg and points the workspace's audio at the extracted WAV.
func (e *Extractor) Execute(ctx context.Context, ws *stage.Workspace) error {
	logger := logging.WithContext(ctx, e.logger)
	out := ws.ExtractedAudio
	if out == "" {
		out = ws.ArtifactPath(ws.BaseName + ".wav")
		ws.ExtractedAudio = out
	}
	tools := e.cfg.Tools
	result, err := e.runner.Run(ctx, stageexec.Invocation{
		Stage:   stageName,
		Binary:  tools.FFmpegBinary,
		Args:    BuildArgs(ws.InputPath, out, tools.SampleRate, tools.Channels),
		Outputs: []string{out},
	})
	if err != nil {
		return err
	}
	ws.AudioPath = out
	logger.Info("audio extracted",
		logging.String(logging.FieldEventType, "audio_extracted"),
		logging.String("audio_path", out),
		logging.Duration("elapsed", result.Duration),
	)
	return nil
}

// HealthCheck verifies the ffmpeg binary resolves.
func (e *Extractor) HealthCheck(context.Context) stage.Health {
	const name = "extraction"
	if e.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if _, err := exec.LookPath(e.cfg.Tools.FFmpegBinary); err != nil {
		return stage.Unhealthy(name, "ffmpeg not found: "+e.cfg.Tools.FFmpegBinary)
	}
	return stage.Healthy(name)
}
