package ipc

import (
	"memecat/internal/catalog"
	"memecat/internal/daemon"
	"memecat/internal/dedup"
	"memecat/internal/merge"
)

// StatusRequest asks for daemon status.
type StatusRequest struct{}

// StatusResponse wraps daemon status.
type StatusResponse struct {
	Status daemon.Status `json:"status"`
}

// StopRequest asks the daemon process to shut down.
type StopRequest struct{}

// StopResponse acknowledges a stop request.
type StopResponse struct {
	Stopping bool `json:"stopping"`
}

// ItemListRequest filters the catalog listing.
type ItemListRequest struct {
	Category    string `json:"category"`
	Unprocessed bool   `json:"unprocessed"`
	GroupedOnly bool   `json:"grouped_only"`
	Limit       int    `json:"limit"`
	Offset      int    `json:"offset"`
}

// ItemListResponse holds matching items.
type ItemListResponse struct {
	Items []*catalog.Item `json:"items"`
}

// ItemRequest names a single item.
type ItemRequest struct {
	Filename string `json:"filename"`
}

// ItemResponse holds a single item.
type ItemResponse struct {
	Item *catalog.Item `json:"item"`
}

// ItemUpdateRequest edits descriptive metadata.
type ItemUpdateRequest struct {
	Filename string            `json:"filename"`
	Patch    catalog.ItemPatch `json:"patch"`
}

// ItemDeleteResponse lists groups dissolved by the deletion.
type ItemDeleteResponse struct {
	Dissolved []string `json:"dissolved"`
}

// DuplicatesResponse holds an item and its group co-members.
type DuplicatesResponse struct {
	Neighborhood *dedup.Neighborhood `json:"neighborhood"`
}

// GroupsRequest lists every duplicate group.
type GroupsRequest struct{}

// GroupsResponse holds all groups.
type GroupsResponse struct {
	Groups []dedup.GroupSummary `json:"groups"`
}

// MergeRequest is merge.Request on the wire.
type MergeRequest = merge.Request

// MergeResponse holds the merge outcome.
type MergeResponse struct {
	Result *merge.Result `json:"result"`
}

// PairRequest names two items.
type PairRequest struct {
	FilenameA string `json:"filename_a"`
	FilenameB string `json:"filename_b"`
}

// PairResponse reports whether an exception was added or removed.
type PairResponse struct {
	Changed bool `json:"changed"`
}

// PairListRequest lists pair exceptions.
type PairListRequest struct{}

// PairListResponse holds every pair exception.
type PairListResponse struct {
	Pairs []catalog.PairException `json:"pairs"`
}

// RecomputeResponse holds the fresh fingerprint in hex.
type RecomputeResponse struct {
	Fingerprint string `json:"fingerprint"`
}

// SyncRequest queues an immediate sync.
type SyncRequest struct{}

// SyncResponse acknowledges a queued sync.
type SyncResponse struct {
	Queued bool `json:"queued"`
}

// RunsRequest limits the run history.
type RunsRequest struct {
	Limit int `json:"limit"`
}

// RunsResponse holds recent sync runs, newest first.
type RunsResponse struct {
	Runs []*catalog.SyncRun `json:"runs"`
}

// ExportRequest uploads the listing document.
type ExportRequest struct{}

// ExportResponse reports how many entries were exported.
type ExportResponse struct {
	Entries int `json:"entries"`
}

// LogTailRequest fetches log lines based on offset and follow semantics.
type LogTailRequest struct {
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Match      string `json:"match"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}
