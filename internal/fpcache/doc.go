// Package fpcache memoizes fingerprints by content hash.
//
// Remote files that are re-uploaded under a new name, or touched without a
// content change, hash to the same sha256 digest and skip decoding entirely.
// Entries live in a bbolt database next to the catalog.
//
// # Usage
//
// The memo is enabled by default and can be turned off in config.toml:
//
//	[fpcache]
//	enabled = false
//
// A Cache opened with an empty path is a no-op: lookups miss and stores are
// discarded.
package fpcache
