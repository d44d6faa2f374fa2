package stage

import "context"

// Handler describes the contract the pipeline needs from each stage.
// Prepare resolves paths and checks inputs; Execute runs the tool and records
// its outputs on the workspace.
type Handler interface {
	Prepare(context.Context, *Workspace) error
	Execute(context.Context, *Workspace) error
	HealthCheck(context.Context) Health
}
