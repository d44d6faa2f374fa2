package workflow

import (
	"log/slog"

	"vocalsplit/internal/config"
	"vocalsplit/internal/extraction"
	"vocalsplit/internal/jobs"
	"vocalsplit/internal/postprocess"
	"vocalsplit/internal/separation"
	"vocalsplit/internal/stage"
	"vocalsplit/internal/stageexec"
)

// StageSet groups the handlers a Pipeline runs. Extractor is only used for
// video uploads.
type StageSet struct {
	Extractor     stage.Handler
	Separator     stage.Handler
	PostProcessor stage.Handler
}

// NewStageSet wires the standard ffmpeg and spleeter handlers around runner.
func NewStageSet(cfg *config.Config, runner *stageexec.Runner, logger *slog.Logger) StageSet {
	return StageSet{
		Extractor:     extraction.NewExtractor(cfg, runner, logger),
		Separator:     separation.NewSeparator(cfg, runner, logger),
		PostProcessor: postprocess.NewProcessor(cfg, runner, logger),
	}
}

type pipelineStage struct {
	name    string
	handler stage.Handler
	// status is the job status while the stage runs.
	status jobs.Status
}

func (s StageSet) plan(kind jobs.MediaKind) []pipelineStage {
	stages := make([]pipelineStage, 0, 3)
	if kind == jobs.MediaVideo {
		stages = append(stages, pipelineStage{
			name:    string(jobs.StatusExtractingAudio),
			handler: s.Extractor,
			status:  jobs.StatusExtractingAudio,
		})
	}
	return append(stages,
		pipelineStage{
			name:    string(jobs.StatusSeparating),
			handler: s.Separator,
			status:  jobs.StatusSeparating,
		},
		pipelineStage{
			name:    string(jobs.StatusPostProcessing),
			handler: s.PostProcessor,
			status:  jobs.StatusPostProcessing,
		},
	)
}

// checkpoint returns the progress recorded once the stage running in status
// has finished.
func checkpoint(status jobs.Status) int {
	switch status {
	case jobs.StatusExtractingAudio:
		return jobs.ProgressExtracted
	case jobs.StatusSeparating:
		return jobs.ProgressSeparated
	default:
		return jobs.ProgressCompleted
	}
}
