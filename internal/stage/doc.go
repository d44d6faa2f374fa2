// Package stage defines the contract shared by the pipeline's stage handlers
// and the Workspace that carries artifact paths between them.
package stage
