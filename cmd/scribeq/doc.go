// Command scribeq is the command-line client for the transcription job
// queue. Commands open the configured job database directly, so they work
// whether or not scribeqd is running.
//
// Run `scribeq --help` for the command list and `scribeq config init` to
// write a sample configuration.
package main
