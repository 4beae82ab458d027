// Package lease ends the lease of jobs whose worker stopped reporting.
//
// A claimed job holds a lease from started_at until lease.timeout elapses.
// The Sweeper runs ReclaimExpired every lease.sweep_interval: jobs with
// attempts left return to enqueued, the rest fail with "lease expired".
// A zero lease.timeout disables sweeping.
package lease
