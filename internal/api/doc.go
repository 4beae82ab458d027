// Package api is the job lifecycle layer between transports and the queue
// store. QueueService validates requests, delegates to queue.Store, logs
// each transition, and publishes lifecycle events after the store commits.
//
// # Key Types
//
// QueueService: Enqueue, Get, Claim, Finalize, Requeue, List, Stats, Health.
//
// EnqueueRequest/FinalizeRequest: caller input, validated before any write.
//
// Job: transport representation of a queue.Job with RFC3339 timestamps.
//
// HealthReport: database diagnostics plus per-status counts.
//
// # Converters
//
// FromJob/FromJobs: queue.Job -> Job.
//
// MergeQueueStats: queue.Status keyed counts -> string keyed counts with
// every known status present.
//
// # Design Notes
//
// Validation failures are returned as *queue.Error with KindInvalidArgument
// so every transport maps them the same way as store errors.
//
// Event publishing is best effort. A failed publish is logged and never
// turns a committed transition into an error.
//
// DTOs use snake_case JSON tags to match the HTTP request bodies.
package api
