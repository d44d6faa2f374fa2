package postprocess

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"vocalsplit/internal/config"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
	"vocalsplit/internal/stage"
	"vocalsplit/internal/stageexec"
)

const stageName = string(jobs.StatusPostProcessing)

// Processor encodes the vocals stem into the final MP3.
type Processor struct {
	cfg    *config.Config
	runner *stageexec.Runner
	logger *slog.Logger
}

// NewProcessor constructs the post-processing stage handler.
func NewProcessor(cfg *config.Config, runner *stageexec.Runner, logger *slog.Logger) *Processor {
	return &Processor{cfg: cfg, runner: runner, logger: logging.NewComponentLogger(logger, "postprocess")}
}

// FilterChain renders the ffmpeg -af value for the configured bands.
func FilterChain(bands []config.EqualizerBand, loudnorm bool) string {
	filters := make([]string, 0, len(bands)+1)
	for _, band := range bands {
		filters = append(filters, "equalizer=f="+strconv.Itoa(band.FrequencyHz)+
			":width_type=o:width="+formatNumber(band.WidthOctave)+
			":g="+formatNumber(band.GainDB))
	}
	if loudnorm {
		filters = append(filters, "loudnorm")
	}
	return strings.Join(filters, ",")
}

// BuildArgs returns the ffmpeg argument vector for post-processing.
func BuildArgs(tools config.Tools, vocals, output string) []string {
	args := []string{"-y", "-i", vocals}
	if chain := FilterChain(tools.Equalizer, tools.Loudnorm); chain != "" {
		args = append(args, "-af", chain)
	}
	return append(args,
		"-codec:a", "libmp3lame",
		"-q:a", strconv.Itoa(tools.MP3Quality),
		output,
	)
}

// ResultName returns the file name of the deliverable for a base name.
func ResultName(base, suffix string) string {
	return base + suffix + ".mp3"
}

// Prepare checks the vocals stem and reserves the result path.
func (p *Processor) Prepare(ctx context.Context, ws *stage.Workspace) error {
	if strings.TrimSpace(ws.VocalsPath) == "" {
		return services.Wrap(services.ErrValidation, stageName, "validate inputs",
			"no vocals stem available", nil)
	}
	if _, err := os.Stat(ws.VocalsPath); err != nil {
		return services.Wrap(services.ErrValidation, stageName, "validate inputs",
			"vocals stem is missing", err)
	}
	return nil
}

// Execute runs ffmpeg and records the result path on success.
func (p *Processor) Execute(ctx context.Context, ws *stage.Workspace) error {
	logger := logging.WithContext(ctx, p.logger)
	tools := p.cfg.Tools
	out := ws.ArtifactPath(ResultName(ws.BaseName, tools.ResultSuffix))
	result, err := p.runner.Run(ctx, stageexec.Invocation{
		Stage:   stageName,
		Binary:  tools.FFmpegBinary,
		Args:    BuildArgs(tools, ws.VocalsPath, out),
		Outputs: []string{out},
	})
	if err != nil {
		return err
	}
	ws.ResultPath = out
	logger.Info("vocals encoded",
		logging.String(logging.FieldEventType, "vocals_encoded"),
		logging.String("result_path", out),
		logging.Bool("loudnorm", tools.Loudnorm),
		logging.Duration("elapsed", result.Duration),
	)
	return nil
}

// HealthCheck verifies the ffmpeg binary resolves.
func (p *Processor) HealthCheck(context.Context) stage.Health {
	const name = "postprocess"
	if p.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if _, err := exec.LookPath(p.cfg.Tools.FFmpegBinary); err != nil {
		return stage.Unhealthy(name, "ffmpeg not found: "+p.cfg.Tools.FFmpegBinary)
	}
	return stage.Healthy(name)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
