package catalog

import (
	"strings"
	"time"
)

// Status tracks how far processing has progressed for an item.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDescribed   Status = "described"
	StatusUnsupported Status = "unsupported"
)

// ParseStatus normalizes a user-provided status string.
func ParseStatus(value string) (Status, bool) {
	switch Status(strings.ToLower(strings.TrimSpace(value))) {
	case StatusPending:
		return StatusPending, true
	case StatusDescribed:
		return StatusDescribed, true
	case StatusUnsupported:
		return StatusUnsupported, true
	}
	return "", false
}

// Item is a single catalog entry keyed by its remote basename.
type Item struct {
	Filename         string     `json:"filename"`
	RemotePath       string     `json:"remote_path"`
	Size             int64      `json:"size"`
	RemoteModifiedAt time.Time  `json:"remote_modified_at"`
	Fingerprint      *uint64    `json:"-"`
	Description      string     `json:"description"`
	Category         string     `json:"category"`
	Keywords         []string   `json:"keywords"`
	TextInImage      string     `json:"text_in_image"`
	Processed        bool       `json:"processed"`
	GroupID          string     `json:"duplicate_group_id,omitempty"`
	IsFalsePositive  bool       `json:"is_false_positive"`
	Status           Status     `json:"status"`
	Attempts         int        `json:"attempts"`
	LastError        string     `json:"last_error,omitempty"`
	LastAttemptAt    *time.Time `json:"last_attempt_at,omitempty"`
	MissingCount     int        `json:"missing_count"`
	ContentHash      string     `json:"content_hash,omitempty"`
	Version          int64      `json:"version"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// HasFingerprint reports whether a fingerprint has been computed.
func (i *Item) HasFingerprint() bool {
	return i != nil && i.Fingerprint != nil
}

// PendingRemoval reports whether the last reconciliation pass missed the item.
func (i *Item) PendingRemoval() bool {
	return i != nil && i.MissingCount > 0
}

// SetFingerprint stores a copy of value.
func (i *Item) SetFingerprint(value uint64) {
	v := value
	i.Fingerprint = &v
}

// RemoteMeta is what the remote listing knows about a file.
type RemoteMeta struct {
	Filename   string
	RemotePath string
	Size       int64
	ModifiedAt time.Time
}

// SnapshotEntry is the subset of item state the diff engine compares against
// a remote listing.
type SnapshotEntry struct {
	Filename         string
	RemotePath       string
	Size             int64
	RemoteModifiedAt time.Time
	Processed        bool
	HasFingerprint   bool
	Status           Status
	Attempts         int
	MissingCount     int
}

// IndexEntry pairs a filename with its fingerprint for the clustering index.
type IndexEntry struct {
	Filename    string
	Fingerprint uint64
}

// ItemFilter narrows ListItems results.
type ItemFilter struct {
	Category    string
	Unprocessed bool
	GroupedOnly bool
	Limit       int
	Offset      int
}

// ItemPatch carries user edits to descriptive metadata. Nil fields are left
// unchanged.
type ItemPatch struct {
	Description *string   `json:"description,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Keywords    *[]string `json:"keywords,omitempty"`
	TextInImage *string   `json:"text_in_image,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.Description == nil && p.Category == nil && p.Keywords == nil && p.TextInImage == nil
}

// Group is a duplicate cluster with at least two members.
type Group struct {
	GroupID   string    `json:"group_id"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Count returns the number of members.
func (g Group) Count() int { return len(g.Members) }

// PairException records that two items must never share a group.
type PairException struct {
	FilenameA string    `json:"filename_a"`
	FilenameB string    `json:"filename_b"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderedPair returns a and b sorted so the first is lexicographically smaller.
func OrderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// RunStatus is the outcome of a sync run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
)

// SyncRun records the counts and outcome of one reconciliation pass.
type SyncRun struct {
	ID             string     `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Status         RunStatus  `json:"status"`
	Added          int        `json:"added"`
	Updated        int        `json:"updated"`
	Removed        int        `json:"removed"`
	PendingRemoval int        `json:"pending_removal"`
	Failed         int        `json:"failed"`
	Skipped        int        `json:"skipped"`
	Error          string     `json:"error,omitempty"`
}
