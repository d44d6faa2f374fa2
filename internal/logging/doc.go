// Package logging assembles the structured slog loggers used by vocalsplit.
//
// It owns the console and JSON handlers, the in-memory stream hub that backs
// the log API, and helpers that tag log lines with the job, stage, and worker
// carried on a context. Tests and wiring code that cannot fail should use
// NewNop instead of building slog handlers by hand.
package logging
