package daemon

import (
	"context"
	"strings"

	"memecat/internal/catalog"
	"memecat/internal/dedup"
	"memecat/internal/fingerprint"
	"memecat/internal/logging"
	"memecat/internal/merge"
	"memecat/internal/services"
)

// ValidateFilename rejects names that cannot be catalog keys.
func ValidateFilename(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	switch {
	case name == "":
		return "", services.Wrap(services.ErrValidation, "daemon", "filename", "filename is required", nil)
	case strings.ContainsAny(name, "/\\"), name == "." || name == "..":
		return "", services.Wrap(services.ErrValidation, "daemon", "filename", "filename must be a bare basename: "+name, nil)
	}
	return name, nil
}

// ListItems returns catalog items matching filter.
func (d *Daemon) ListItems(ctx context.Context, filter catalog.ItemFilter) ([]*catalog.Item, error) {
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, services.Wrap(services.ErrValidation, "daemon", "list_items", "limit and offset must not be negative", nil)
	}
	items, err := d.store.ListItems(ctx, filter)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*catalog.Item{}
	}
	return items, nil
}

// GetItem returns one item.
func (d *Daemon) GetItem(ctx context.Context, filename string) (*catalog.Item, error) {
	name, err := ValidateFilename(filename)
	if err != nil {
		return nil, err
	}
	item, err := d.store.GetItem(ctx, name)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.MissingItem("daemon", "get_item", name)
	}
	return item, nil
}

// UpdateItem applies user edits to descriptive metadata.
func (d *Daemon) UpdateItem(ctx context.Context, filename string, patch catalog.ItemPatch) (*catalog.Item, error) {
	name, err := ValidateFilename(filename)
	if err != nil {
		return nil, err
	}
	return d.store.ApplyPatch(ctx, name, patch)
}

// DeleteItem removes an item from the remote store and then from the
// catalog. A remote failure leaves the catalog untouched.
func (d *Daemon) DeleteItem(ctx context.Context, filename string) ([]string, error) {
	item, err := d.GetItem(ctx, filename)
	if err != nil {
		return nil, err
	}
	if d.remote != nil {
		if err := d.remote.Delete(ctx, item.RemotePath); err != nil {
			return nil, err
		}
	}
	dissolved, err := d.engine.Remove(ctx, []string{item.Filename})
	if err != nil {
		return nil, err
	}
	d.logger.Info("item deleted",
		logging.String(logging.FieldFilename, item.Filename),
		logging.Bool("remote", d.remote != nil),
		logging.Int("dissolved_groups", len(dissolved)),
		logging.String(logging.FieldEventType, "item_deleted"))
	return dissolved, nil
}

// DuplicatesOf returns the group co-members of filename.
func (d *Daemon) DuplicatesOf(ctx context.Context, filename string) (*dedup.Neighborhood, error) {
	name, err := ValidateFilename(filename)
	if err != nil {
		return nil, err
	}
	return d.engine.DuplicatesOf(ctx, name)
}

// ListGroups returns every duplicate group.
func (d *Daemon) ListGroups(ctx context.Context) ([]dedup.GroupSummary, error) {
	return d.engine.AllGroups(ctx)
}

// MarkNotDuplicate pulls filename out of its group for good.
func (d *Daemon) MarkNotDuplicate(ctx context.Context, filename string) (*catalog.Item, error) {
	name, err := ValidateFilename(filename)
	if err != nil {
		return nil, err
	}
	return d.merger.MarkNotDuplicate(ctx, name)
}

// Merge folds duplicates into a primary item.
func (d *Daemon) Merge(ctx context.Context, req merge.Request) (*merge.Result, error) {
	return d.merger.Merge(ctx, req)
}

// MarkFalsePositive records that a and b must never share a group.
func (d *Daemon) MarkFalsePositive(ctx context.Context, a, b string) error {
	return d.engine.MarkFalsePositive(ctx, a, b)
}

// ListPairExceptions returns every recorded pair exception.
func (d *Daemon) ListPairExceptions(ctx context.Context) ([]catalog.PairException, error) {
	exceptions, err := d.engine.ListPairExceptions(ctx)
	if err != nil {
		return nil, err
	}
	if exceptions == nil {
		exceptions = []catalog.PairException{}
	}
	return exceptions, nil
}

// RemovePairException deletes the exception for a and b.
func (d *Daemon) RemovePairException(ctx context.Context, a, b string) (bool, error) {
	return d.engine.RemovePairException(ctx, a, b)
}

// RecomputeFingerprint refetches filename and re-clusters it.
func (d *Daemon) RecomputeFingerprint(ctx context.Context, filename string) (fingerprint.Fingerprint, error) {
	name, err := ValidateFilename(filename)
	if err != nil {
		return 0, err
	}
	return d.manager.Orchestrator().RecomputeFingerprint(ctx, name)
}

// TriggerSync requests an immediate sync run.
func (d *Daemon) TriggerSync(context.Context) error {
	return d.manager.TriggerNow()
}

// SyncRuns returns recent sync runs, newest first.
func (d *Daemon) SyncRuns(ctx context.Context, limit int) ([]*catalog.SyncRun, error) {
	runs, err := d.store.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	if runs == nil {
		runs = []*catalog.SyncRun{}
	}
	return runs, nil
}

// ExportListing uploads listing.json now.
func (d *Daemon) ExportListing(ctx context.Context) (int, error) {
	return d.manager.Orchestrator().ExportListing(ctx)
}
