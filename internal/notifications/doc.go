// Package notifications pushes job outcomes to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check. Observer adapts a Service to the job registry
// and sends completion and failure messages off the pipeline goroutine.
package notifications
