// Package logging assembles structured slog loggers and formatting helpers used
// across memecat.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so sync and dedup code can tag
// log lines with run IDs, filenames, and request correlation IDs. The package
// also provides a no-op logger for tests and wiring code that cannot fail.
package logging
