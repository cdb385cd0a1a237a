package workflow

import (
	"context"
	"fmt"

	"memecat/internal/catalog"
	"memecat/internal/fingerprint"
	"memecat/internal/logging"
	"memecat/internal/services"
)

// RecomputeFingerprint refetches filename, recomputes its fingerprint without
// consulting the memo, persists it, and re-runs clustering for the item.
func (o *Orchestrator) RecomputeFingerprint(ctx context.Context, filename string) (fingerprint.Fingerprint, error) {
	ctx = services.WithFilename(ctx, filename)
	logger := logging.WithContext(ctx, o.logger)

	item, err := o.store.GetItem(ctx, filename)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, services.MissingItem("workflow", "recompute", filename)
	}
	data, err := o.fetch(ctx, item.RemotePath)
	if err != nil {
		return 0, err
	}
	fp, hash, err := o.cache.Compute(ctx, o.fingerprinter, data, fingerprint.KindForFilename(filename), true)
	if err != nil {
		return 0, err
	}

	item.SetFingerprint(uint64(fp))
	item.ContentHash = hash
	item.Processed = item.Processed || o.describer == nil || item.Status == catalog.StatusDescribed
	if err := o.store.CompareAndSwap(ctx, item); err != nil {
		return 0, fmt.Errorf("save recomputed fingerprint: %w", err)
	}
	outcome, err := o.engine.Evaluate(ctx, filename)
	if err != nil {
		return fp, err
	}
	logger.Info("fingerprint recomputed",
		logging.String("fingerprint", fp.String()),
		logging.String(logging.FieldGroupID, outcome.GroupID),
		logging.String(logging.FieldEventType, "fingerprint_recomputed"))
	return fp, nil
}
