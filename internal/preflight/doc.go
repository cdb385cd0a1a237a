// Package preflight provides readiness checks for the local directories,
// remote store, and external tools memecat depends on.
//
// The daemon runs RunAll once at startup and logs failures; the CLI
// "memecat doctor" command prints the same results as a table. Checks for
// disabled features are skipped.
package preflight
