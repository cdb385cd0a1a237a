package workflow

import (
	"context"
	"errors"

	"memecat/internal/catalog"
	"memecat/internal/dedup"
	"memecat/internal/diff"
	"memecat/internal/fpcache"
	"memecat/internal/services/llm"
)

// ErrRunInProgress is returned when a sync is requested while one is running.
var ErrRunInProgress = errors.New("sync run already in progress")

// Lister enumerates and downloads remote files.
type Lister interface {
	List(ctx context.Context) ([]diff.RemoteEntry, error)
	Fetch(ctx context.Context, remotePath string) ([]byte, error)
}

// Describer produces AI metadata for one media file.
type Describer interface {
	Describe(ctx context.Context, media llm.Media) (llm.Description, error)
}

// ListingUploader publishes the listing export.
type ListingUploader interface {
	Upload(ctx context.Context, name string, data []byte) error
}

// Dependencies bundles the collaborators an Orchestrator needs. Describer,
// Cache, and Uploader are optional.
type Dependencies struct {
	Store         *catalog.Store
	Engine        *dedup.Engine
	Lister        Lister
	Fingerprinter fpcache.Computer
	Cache         *fpcache.Cache
	Describer     Describer
	Uploader      ListingUploader
}

type unitKind string

const (
	unitAdd    unitKind = "add"
	unitUpdate unitKind = "update"
	unitRetry  unitKind = "retry"
)

type unitResult struct {
	filename  string
	kind      unitKind
	created   bool
	failed    bool
	fpChanged bool
}
