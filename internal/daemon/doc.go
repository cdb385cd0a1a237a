// Package daemon coordinates the long-running memecat process.
//
// It wires the catalog store, the duplicate engine, the merge coordinator,
// and the sync manager into a single lifecycle with flock-based locking to
// prevent multiple instances. The daemon exposes the catalog operations used
// by the IPC and HTTP transports and owns the HTTP API server.
//
// Keep orchestration logic here: sync, clustering, and merge rules live in
// their own packages while the daemon focuses on startup, shutdown, and
// translating transport requests into those calls.
package daemon
