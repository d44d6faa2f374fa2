// Package services defines shared utilities consumed by the pipeline stage
// handlers and the HTTP layer.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, worker slots, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (validation vs external tool vs not found) and rendered into
//     the message stored on a job record.
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
