package workflow

import (
	"context"

	"vocalsplit/internal/stage"
)

// StatusSummary exposes pipeline state for the API and CLI.
type StatusSummary struct {
	LastError   string         `json:"last_error,omitempty"`
	LastJobID   string         `json:"last_job_id,omitempty"`
	StageHealth []stage.Health `json:"stage_health"`
}

// Status returns a snapshot of recent pipeline activity and stage readiness.
func (p *Pipeline) Status(ctx context.Context) StatusSummary {
	p.mu.RLock()
	summary := StatusSummary{LastJobID: p.lastJob}
	if p.lastErr != nil {
		summary.LastError = p.lastErr.Error()
	}
	p.mu.RUnlock()
	summary.StageHealth = p.StageHealth(ctx)
	return summary
}
