// Package webdav talks to the mirrored remote store.
//
// Client wraps studio-b12/gowebdav with the operations the sync workflow and
// merge coordinator need: listing the media root, fetching file bytes,
// deleting merged duplicates, and uploading the listing export. Transport
// failures are tagged with services.ErrTransientIO so callers can retry them,
// while authentication failures surface as configuration errors.
package webdav
