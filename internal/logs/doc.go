// Package logs reads the daemon's session log files for the CLI.
//
// Tail returns the last N lines of a file or the lines appended after a
// known offset, optionally waiting for new output. Latest locates the
// newest session log in the log directory so `scribeq logs` can follow the
// running daemon without knowing its start time.
package logs
