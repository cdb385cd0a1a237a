// Package dedup clusters catalog items into near-duplicate groups.
//
// The Engine keeps an in-memory Index of fingerprints for every item that
// participates in clustering and links items incrementally: each call to
// Evaluate compares one item against the index and joins, creates, or merges
// groups for every neighbour within the Hamming threshold. Grouping is
// transitive, so chains A~B~C share a group even when A and C are far apart.
//
// Structural changes are written to the catalog in one transaction and the
// index is only touched after that transaction commits. Pairs recorded as
// "not duplicates" are never placed in the same group again.
package dedup
