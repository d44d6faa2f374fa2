// Package workflow drives jobs from upload to finished vocal track.
//
// Pipeline runs one job through its stage handlers (audio extraction for
// video uploads, separation, post-processing) and records every status and
// progress change in the job registry. Stage failures end up on the job
// record; Run only returns an error when the registry itself refuses a
// write.
//
// Scheduler owns a fixed set of workers fed by an unbounded FIFO queue.
// Submit never blocks the caller, panics inside a pipeline are converted
// into job failures, and Stop waits for running pipelines before returning.
package workflow
