// Package diff compares a remote listing with the catalog snapshot and plans
// the reconciliation work. It performs no I/O.
package diff

import (
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"memecat/internal/catalog"
)

// RemoteEntry is a single file reported by the remote lister.
type RemoteEntry struct {
	Filename   string    `json:"filename"`
	RemotePath string    `json:"remote_path"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Meta converts the entry into catalog remote metadata.
func (e RemoteEntry) Meta() catalog.RemoteMeta {
	return catalog.RemoteMeta{
		Filename:   e.Filename,
		RemotePath: e.RemotePath,
		Size:       e.Size,
		ModifiedAt: e.ModifiedAt,
	}
}

// Conflict records a listing entry dropped because an earlier entry already
// claimed its basename.
type Conflict struct {
	Filename string `json:"filename"`
	Kept     string `json:"kept"`
	Dropped  string `json:"dropped"`
}

// Options tunes retry selection.
type Options struct {
	// MaxAttempts excludes items that failed this many times. Zero is unlimited.
	MaxAttempts int
}

// Plan is the reconciliation work for one run. Every slice is sorted by filename.
type Plan struct {
	ToAdd    []RemoteEntry
	ToUpdate []RemoteEntry
	// ToRemove holds items missing for the second consecutive run.
	ToRemove []string
	// ToMarkMissing holds items missing for the first time.
	ToMarkMissing []string
	// ToRestore holds items flagged missing last run that are listed again.
	ToRestore []string
	// ToRetry holds unchanged items whose processing is incomplete.
	ToRetry   []RemoteEntry
	Conflicts []Conflict
	// Skipped counts unchanged items needing no work.
	Skipped int
}

// Empty reports whether the plan mutates nothing.
func (p Plan) Empty() bool {
	return len(p.ToAdd) == 0 && len(p.ToUpdate) == 0 && len(p.ToRemove) == 0 &&
		len(p.ToMarkMissing) == 0 && len(p.ToRestore) == 0 && len(p.ToRetry) == 0
}

// NormalizeName returns the catalog key for a remote path: its basename in
// Unicode NFC form.
func NormalizeName(remotePath string) string {
	name := path.Base(strings.ReplaceAll(remotePath, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return norm.NFC.String(name)
}

// Diff plans the work needed to bring snapshot in line with listing.
func Diff(listing []RemoteEntry, snapshot []catalog.SnapshotEntry, opts Options) Plan {
	var plan Plan

	remote := make(map[string]RemoteEntry, len(listing))
	for _, entry := range listing {
		name := entry.Filename
		if name == "" {
			name = NormalizeName(entry.RemotePath)
		} else {
			name = norm.NFC.String(name)
		}
		if name == "" {
			continue
		}
		entry.Filename = name
		if kept, dup := remote[name]; dup {
			plan.Conflicts = append(plan.Conflicts, Conflict{Filename: name, Kept: kept.RemotePath, Dropped: entry.RemotePath})
			continue
		}
		remote[name] = entry
	}

	local := make(map[string]catalog.SnapshotEntry, len(snapshot))
	for _, item := range snapshot {
		local[item.Filename] = item
		entry, listed := remote[item.Filename]
		if !listed {
			if item.MissingCount > 0 {
				plan.ToRemove = append(plan.ToRemove, item.Filename)
			} else {
				plan.ToMarkMissing = append(plan.ToMarkMissing, item.Filename)
			}
			continue
		}
		if item.MissingCount > 0 {
			plan.ToRestore = append(plan.ToRestore, item.Filename)
		}
		switch {
		case changed(entry, item):
			plan.ToUpdate = append(plan.ToUpdate, entry)
		case needsRetry(item, opts):
			plan.ToRetry = append(plan.ToRetry, entry)
		default:
			plan.Skipped++
		}
	}

	for name, entry := range remote {
		if _, known := local[name]; !known {
			plan.ToAdd = append(plan.ToAdd, entry)
		}
	}

	sortEntries(plan.ToAdd)
	sortEntries(plan.ToUpdate)
	sortEntries(plan.ToRetry)
	sort.Strings(plan.ToRemove)
	sort.Strings(plan.ToMarkMissing)
	sort.Strings(plan.ToRestore)
	sort.SliceStable(plan.Conflicts, func(i, j int) bool { return plan.Conflicts[i].Filename < plan.Conflicts[j].Filename })
	return plan
}

func changed(entry RemoteEntry, item catalog.SnapshotEntry) bool {
	if entry.Size != item.Size {
		return true
	}
	return !truncate(entry.ModifiedAt).Equal(truncate(item.RemoteModifiedAt))
}

func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// needsRetry selects items with a missing fingerprint, a missing description,
// or a failure recorded since they were last complete.
func needsRetry(item catalog.SnapshotEntry, opts Options) bool {
	if item.Processed && item.HasFingerprint && item.Attempts == 0 {
		return false
	}
	if item.Status == catalog.StatusUnsupported {
		return false
	}
	return opts.MaxAttempts <= 0 || item.Attempts < opts.MaxAttempts
}

func sortEntries(entries []RemoteEntry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Filename < entries[j].Filename })
}
