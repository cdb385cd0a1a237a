// Package logs tails the daemon log file for `memecat logs`.
//
// Negative offsets return the last N lines; non-negative offsets resume from
// a byte position and can block until new lines arrive. A match string keeps
// only lines that mention it, which is how the CLI narrows output to a single
// filename or sync run.
package logs
