// Package logging assembles structured slog loggers and formatting helpers used
// across scribeq services.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so request and worker code can
// tag log lines with job ids, worker ids, and correlation ids. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
//
// The job store itself never logs; the service, sweeper, worker, and daemon
// layers do, through loggers built here.
package logging
