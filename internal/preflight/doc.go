// Package preflight provides readiness checks for the directories and tools
// vocalsplit depends on.
//
// The daemon runs RunAll at startup and logs every failed check; the CLI
// "deps" command prints the same results as a table.
package preflight
