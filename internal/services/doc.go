// Package services defines shared utilities consumed by the sync engine and
// its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp sync run IDs, filenames, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures carry a
//     stable classification (transient, decode, consistency, ...) from the
//     point they occur up to the transport layer.
//
// Sub-packages hold the collaborator clients: webdav (remote store), llm
// (description providers), and ffmpeg (video frame extraction).
package services
