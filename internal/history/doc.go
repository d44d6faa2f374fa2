// Package history keeps an append-only sqlite journal of job status changes.
//
// The journal is an audit trail, not a source of truth: the in-memory job
// registry is authoritative and nothing is restored from history on restart.
// Journal attaches to the registry as an observer.
package history
