package workflow

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"memecat/internal/catalog"
	"memecat/internal/diff"
	"memecat/internal/fingerprint"
	"memecat/internal/fpcache"
	"memecat/internal/logging"
	"memecat/internal/services"
	"memecat/internal/services/llm"
)

// runUnit processes one listed file end to end. Failures are recorded on the
// item and reported through the result; they never propagate.
func (o *Orchestrator) runUnit(ctx context.Context, entry diff.RemoteEntry, kind unitKind) unitResult {
	res := unitResult{filename: entry.Filename, kind: kind}
	ctx = services.WithFilename(ctx, entry.Filename)
	logger := logging.WithContext(ctx, o.logger)

	item, created, err := o.prepare(ctx, entry, kind)
	res.created = created
	if err != nil {
		res.failed = true
		o.recordFailure(ctx, logger, entry.Filename, err)
		return res
	}

	changed, partial, err := o.process(ctx, logger, item, kind)
	if err != nil {
		res.failed = true
		o.recordFailure(ctx, logger, entry.Filename, err)
		return res
	}
	res.fpChanged = changed
	if partial {
		res.failed = true
		return res
	}
	logger.Debug("item processed",
		logging.String("unit", string(kind)),
		logging.Bool("processed", item.Processed),
		logging.String("status", string(item.Status)),
		logging.String(logging.FieldEventType, "item_processed"))
	return res
}

// prepare loads or creates the row a unit works on. Retries reuse the stored
// row so their attempt counter survives.
func (o *Orchestrator) prepare(ctx context.Context, entry diff.RemoteEntry, kind unitKind) (*catalog.Item, bool, error) {
	if kind == unitRetry {
		item, err := o.store.GetItem(ctx, entry.Filename)
		if err != nil {
			return nil, false, err
		}
		if item == nil {
			return nil, false, services.MissingItem("workflow", "retry", entry.Filename)
		}
		return item, false, nil
	}
	return o.store.UpsertRemote(ctx, entry.Meta())
}

// process fetches, fingerprints, and describes item, then persists the merged
// state with a version check. It reports whether the stored fingerprint
// changed and whether a step failed after the fetch; those failures are
// already saved on the item. A returned error means nothing was persisted.
// Updated remote files are always re-described, even when the bytes match.
// Processed only tracks description; a missing fingerprint is retried by diff.
func (o *Orchestrator) process(ctx context.Context, logger *slog.Logger, item *catalog.Item, unit unitKind) (changed bool, partial bool, err error) {
	data, err := o.fetch(ctx, item.RemotePath)
	if err != nil {
		return false, false, err
	}

	hash := fpcache.HashContent(data)
	contentChanged := item.ContentHash == "" || item.ContentHash != hash
	kind := fingerprint.KindForFilename(item.Filename)
	before := item.Fingerprint

	var errs []error
	if !item.HasFingerprint() || contentChanged {
		fp, _, ferr := o.cache.Compute(ctx, o.fingerprinter, data, kind, false)
		if ferr != nil {
			errs = append(errs, ferr)
			if contentChanged {
				item.Fingerprint = nil
			}
			logging.WarnWithContext(logger, "fingerprint computation failed", "fingerprint_failed",
				logging.Error(ferr),
				logging.Int("size", len(data)),
				logging.String(logging.FieldErrorHint, "check that the file is a valid image or video"),
				logging.String(logging.FieldImpact, "item is excluded from duplicate detection"))
		} else {
			item.SetFingerprint(uint64(fp))
		}
	}

	unsupported := false
	if o.describer != nil && (unit == unitUpdate || contentChanged || item.Status != catalog.StatusDescribed) {
		desc, derr := o.describe(ctx, item, data, kind)
		switch {
		case derr == nil:
			item.Description = desc.Description
			item.Category = desc.Category
			item.Keywords = desc.Keywords
			item.TextInImage = desc.TextInImage
			item.Status = catalog.StatusDescribed
		case errors.Is(derr, services.ErrUnsupportedMedia):
			unsupported = true
			item.Status = catalog.StatusUnsupported
			errs = append(errs, derr)
		default:
			item.Status = catalog.StatusPending
			errs = append(errs, derr)
		}
		if derr != nil {
			logging.WarnWithContext(logger, "description failed", "describe_failed",
				logging.Error(derr),
				logging.Bool("unsupported", unsupported),
				logging.String(logging.FieldErrorHint, "check the description provider settings and quota"),
				logging.String(logging.FieldImpact, "item metadata stays empty until a later run succeeds"))
		}
	}

	now := o.now().UTC()
	item.ContentHash = hash
	item.LastAttemptAt = &now
	item.Processed = item.Processed || o.describer == nil || item.Status == catalog.StatusDescribed
	joined := errors.Join(errs...)
	if joined != nil {
		item.Attempts++
		item.LastError = failureMessage(joined)
	} else {
		item.Attempts = 0
		item.LastError = ""
	}

	if err := o.store.CompareAndSwap(ctx, item); err != nil {
		return false, false, err
	}
	return !sameFingerprint(before, item.Fingerprint), joined != nil, nil
}

func (o *Orchestrator) fetch(ctx context.Context, remotePath string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= o.fetchRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, jitter(o.fetchBackoff, attempt)); err != nil {
				return nil, err
			}
		}
		data, err := o.fetchOnce(ctx, remotePath)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil || !services.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (o *Orchestrator) fetchOnce(ctx context.Context, remotePath string) ([]byte, error) {
	if o.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.fetchTimeout)
		defer cancel()
	}
	data, err := o.lister.Fetch(ctx, remotePath)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, services.ErrTransientIO) {
		err = services.Wrap(services.ErrTransientIO, "workflow", "fetch", "fetch timed out", err)
	}
	return data, err
}

func (o *Orchestrator) describe(ctx context.Context, item *catalog.Item, data []byte, kind fingerprint.MediaKind) (llm.Description, error) {
	if o.describeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.describeTimeout)
		defer cancel()
	}
	return o.describer.Describe(ctx, llm.Media{
		Filename: item.Filename,
		MIMEType: fingerprint.MIMEType(item.Filename),
		Data:     data,
		Video:    kind == fingerprint.KindVideo,
	})
}

func sameFingerprint(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// jitter returns base scaled by attempt with up to 50% random spread.
func jitter(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base * time.Duration(attempt)
	return d/2 + rand.N(d/2+1)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
