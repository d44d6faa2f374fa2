// Package daemon coordinates the long-running vocalsplit process.
//
// It wires the job registry, pipeline, and worker pool into a single
// lifecycle with flock-based locking to prevent multiple instances, and
// serves the HTTP API: uploads, status polling, result downloads and
// previews, daemon diagnostics, the log stream, the history journal, and a
// websocket feed of job updates.
//
// Keep orchestration logic here: pipeline steps live in workflow and the
// stage packages while the daemon focuses on startup, shutdown, and the
// outer surface.
package daemon
