// Package preflight provides readiness checks for the directories and
// external services scribeq depends on.
//
// `scribeq health` prints every result, and scribeqd logs failed checks at
// startup so a misconfigured transcriber or broker shows up before the first
// job is claimed.
package preflight
