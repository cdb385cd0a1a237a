// Package workflow mirrors the remote store into the catalog.
//
// Orchestrator.RunOnce performs one reconciliation pass: it lists the remote,
// diffs the listing against the catalog snapshot, applies removals, then runs
// a bounded set of per-file units that fetch bytes, compute fingerprints,
// request AI descriptions, and persist the result with a compare-and-swap.
// Items whose fingerprint changed are handed to the duplicate engine once all
// units finish. Failures are recorded per item and never abort the run.
//
// The Manager drives RunOnce on the configured interval, accepts manual
// triggers, exports listing.json back to the remote, and reports status for
// the daemon. Only one run executes at a time; overlapping requests are
// rejected with ErrRunInProgress.
package workflow
