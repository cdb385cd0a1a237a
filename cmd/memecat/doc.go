// Package main hosts the memecat CLI entrypoint and command graph.
//
// Commands either talk to a running daemon over the IPC socket (items,
// duplicates, merges, sync control) or work offline against the config and
// catalog files (config, doctor, status fallback). Output defaults to tables;
// --output json|yaml switches to machine-readable forms.
package main
