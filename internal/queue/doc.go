// Package queue persists transcription jobs and implements the claim
// protocol workers use to take them.
//
// The Store runs over database/sql against SQLite (default), PostgreSQL, or
// MySQL. Every write happens inside one transaction; a claim either moves
// its whole batch to processing or moves nothing. Concurrent claimers never
// receive the same job: PostgreSQL and MySQL skip rows locked by another
// claimer, SQLite serializes writers with BEGIN IMMEDIATE.
//
// Errors returned by the Store are *Error values carrying a Kind. Callers
// branch on KindOf rather than matching driver messages. The Store never
// retries on its own; store_unavailable errors are safe to re-issue.
//
// Schema changes bump the version in schema.go; operators recreate or
// migrate the database to adopt the new schema.
package queue
