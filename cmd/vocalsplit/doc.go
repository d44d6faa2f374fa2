// Command vocalsplit is the command-line entry point for the vocal isolation
// daemon.
//
// `vocalsplit serve` runs the daemon in the foreground. The remaining
// commands (submit, status, jobs, history, logs, test-notify) are thin HTTP
// clients of a running daemon at paths.api_bind; deps and config work
// locally without one.
package main
