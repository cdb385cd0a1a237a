// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket and
// ships the matching client used by the CLI.
//
// The server wraps anything that satisfies Facade, which *daemon.Daemon does.
// Request and response types live in types.go; keep them stable when adding
// methods so older CLI builds keep working against a newer daemon.
package ipc
