// Package daemon coordinates the long-running scribeqd process.
//
// It wires configuration, the queue store, lifecycle events, the lease
// sweeper, and an optional embedded worker into a single lifecycle with
// flock-based locking to prevent multiple instances on one data directory.
//
// The HTTP API is served by gin under /api/v1. Authentication is an optional
// static bearer token or an HS256 JWT whose sub claim identifies the
// submitter. Queue error kinds map to HTTP statuses: not_found 404,
// invalid_argument 400, store_unavailable 503, store_corruption 500.
package daemon
