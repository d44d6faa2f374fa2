// Package logs reads the daemon's on-disk log when the HTTP log stream is
// unreachable.
//
// `vocalsplit logs` prefers GET /api/logs; once the daemon has exited the
// current vocalsplit.log pointer is still readable, and Tail gives the CLI
// the same "last N lines, then follow" behavior against the file.
package logs
