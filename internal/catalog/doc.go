// Package catalog persists memecat's media catalog in SQLite.
//
// The Store owns every persisted row: items, duplicate groups and their
// membership, pair exceptions recorded by "not a duplicate" decisions, and
// sync run history. Multi-step changes run through Store.WithTx so callers
// such as the clustering engine and merge coordinator observe either the
// whole change or none of it. Items carry a version column that is bumped on
// every write; CompareAndSwap uses it to detect writers that raced.
//
// Schema changes bump schemaVersion in schema.go. Older databases are
// rejected with ErrSchemaMismatch rather than migrated in place.
package catalog
