// Package stageexec runs the external tools behind each pipeline stage.
//
// A Runner takes an Invocation (binary, argument vector, expected outputs),
// blocks until the process exits, and returns either a Result or a *Failure.
// Failures carry the trimmed tail of the tool's combined output and match
// services.ErrExternalTool under errors.Is.
package stageexec
