// Package config loads, normalizes, and validates scribeq configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SCRIBEQ_DATABASE_DSN. The Config type centralizes every knob the daemon,
// worker, and CLI need so the job store, HTTP surface, and event publishers
// are configured in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical driver names, and clear validation errors.
package config
