// Package worker claims jobs from the queue and runs them through a
// Processor.
//
// The Loop claims up to worker.batch_size jobs per poll, runs each one in
// claim order with worker.job_timeout, and finalizes it as succeeded with
// the transcript or failed with the processor error. When no job is
// eligible it waits worker.poll_interval, or less when a wake-up arrives
// from the events subscriber. Claim errors back off for
// worker.error_retry_interval.
//
// On shutdown the loop requeues every claimed job it has not finished, so
// a restart does not wait for the lease sweeper to recover them.
//
// CommandProcessor runs an external transcription command per job with the
// source URL substituted for "{url}" and takes its stdout as the
// transcript. The transcription engine itself lives outside this module.
package worker
