// Package jobs holds the in-memory job records and the registry that guards
// them.
//
// A Job moves through a fixed state machine (see Status). Every mutation goes
// through Registry.Update, which works on a copy, checks the transition table
// and field invariants, and only then commits the new record. Readers always
// receive value snapshots, so a poller can never observe a completed job
// without a result path or a failed job without a message.
//
// The registry is process-local and never persisted. Records are kept for the
// lifetime of the process.
package jobs
