package workflow

import (
	"context"
	"errors"
	"fmt"

	"vocalsplit/internal/jobs"
	"vocalsplit/internal/logging"
	"vocalsplit/internal/services"
)

// handleStageFailure records stageErr on the job. It returns an error only
// when the registry refuses the failure itself.
func (p *Pipeline) handleStageFailure(ctx context.Context, stageName, id string, stageErr error) error {
	logger := logging.WithContext(ctx, p.logger)

	message := classifyStageFailure(stageName, stageErr)
	p.setLastError(stageErr)

	logging.ErrorWithContext(logger, "stage failed", "stage_failure",
		logging.String("resolved_status", string(jobs.StatusError)),
		logging.String("error_message", message),
		logging.String("error_kind", services.Kind(stageErr)),
		logging.Alert("stage_failure"),
		logging.Error(stageErr),
		logging.String(logging.FieldErrorHint, failureHint(stageErr)),
		logging.String(logging.FieldImpact, "job marked as error without a result"),
	)

	if _, err := p.registry.Update(id, func(j *jobs.Job) error {
		j.Fail(message)
		return nil
	}); err != nil {
		logger.Error("failed to record stage failure", logging.Error(err))
		p.setLastError(err)
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

func classifyStageFailure(stageName string, stageErr error) string {
	if stageErr == nil {
		return stageName + " failed without error detail"
	}
	message := services.Message(stageErr)
	if message == "" || message == "unknown failure" {
		return stageName + " failed"
	}
	return message
}

func failureHint(err error) string {
	switch {
	case errors.Is(err, services.ErrExternalTool):
		return "check the tool log under log_dir/tool for the failing command"
	case errors.Is(err, services.ErrValidation):
		return "re-upload a supported, non-empty media file"
	case errors.Is(err, services.ErrConfiguration):
		return "verify tool paths and directories with vocalsplit deps"
	default:
		return "inspect the daemon log for the preceding entries"
	}
}
