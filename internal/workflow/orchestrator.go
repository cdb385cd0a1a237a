package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"memecat/internal/catalog"
	"memecat/internal/config"
	"memecat/internal/dedup"
	"memecat/internal/diff"
	"memecat/internal/fingerprint"
	"memecat/internal/fpcache"
	"memecat/internal/logging"
	"memecat/internal/services"
)

const defaultFetchBackoff = 500 * time.Millisecond

// Orchestrator performs reconciliation passes.
type Orchestrator struct {
	store         *catalog.Store
	engine        *dedup.Engine
	lister        Lister
	fingerprinter fpcache.Computer
	cache         *fpcache.Cache
	describer     Describer
	uploader      ListingUploader
	logger        *slog.Logger

	listingName     string
	maxInFlight     int
	maxAttempts     int
	fetchTimeout    time.Duration
	fetchRetries    int
	fetchBackoff    time.Duration
	describeTimeout time.Duration

	now   func() time.Time
	newID func() string

	runMu sync.Mutex
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRunIDGenerator overrides how sync run identifiers are minted.
func WithRunIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithFetchBackoff overrides the base delay between in-run fetch retries.
func WithFetchBackoff(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.fetchBackoff = d
	}
}

// NewOrchestrator wires an Orchestrator from configuration and collaborators.
func NewOrchestrator(cfg *config.Config, deps Dependencies, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if deps.Store == nil || deps.Engine == nil || deps.Lister == nil || deps.Fingerprinter == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "init", "store, engine, lister, and fingerprinter are required", nil)
	}
	cache := deps.Cache
	if cache == nil {
		var err error
		if cache, err = fpcache.Open("", logger); err != nil {
			return nil, err
		}
	}
	o := &Orchestrator{
		store:           deps.Store,
		engine:          deps.Engine,
		lister:          deps.Lister,
		fingerprinter:   deps.Fingerprinter,
		cache:           cache,
		describer:       deps.Describer,
		uploader:        deps.Uploader,
		logger:          logging.NewComponentLogger(logger, "workflow"),
		listingName:     cfg.Remote.ListingName,
		maxInFlight:     cfg.Sync.MaxInFlight,
		maxAttempts:     cfg.Sync.MaxAttempts,
		fetchTimeout:    time.Duration(cfg.Sync.FetchTimeoutSeconds) * time.Second,
		fetchRetries:    cfg.Sync.FetchRetries,
		fetchBackoff:    defaultFetchBackoff,
		describeTimeout: time.Duration(cfg.Description.TimeoutSeconds) * time.Second,
		now:             time.Now,
		newID:           uuid.NewString,
	}
	if o.maxInFlight <= 0 {
		o.maxInFlight = 1
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Store returns the catalog the orchestrator writes to.
func (o *Orchestrator) Store() *catalog.Store { return o.store }

// Engine returns the duplicate engine fed by the orchestrator.
func (o *Orchestrator) Engine() *dedup.Engine { return o.engine }

// RunOnce performs a single reconciliation pass. It returns ErrRunInProgress
// without side effects when another pass holds the run lock.
func (o *Orchestrator) RunOnce(ctx context.Context) (*catalog.SyncRun, error) {
	if !o.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer o.runMu.Unlock()

	run := &catalog.SyncRun{
		ID:        o.newID(),
		StartedAt: o.now().UTC(),
		Status:    catalog.RunRunning,
	}
	ctx = services.WithRunID(ctx, run.ID)
	logger := logging.WithContext(ctx, o.logger)
	if err := o.store.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}
	logger.Info("sync run started", logging.String(logging.FieldEventType, "sync_started"))

	err := o.reconcile(ctx, logger, run)
	ended := o.now().UTC()
	run.EndedAt = &ended
	switch {
	case err != nil:
		run.Status = catalog.RunFailed
		run.Error = err.Error()
	case run.Failed > 0:
		run.Status = catalog.RunPartial
	default:
		run.Status = catalog.RunSucceeded
	}
	// The run row is written even when ctx was cancelled mid-run.
	if saveErr := o.store.SaveRun(context.WithoutCancel(ctx), run); saveErr != nil {
		logger.Error("failed to record sync run", logging.Error(saveErr),
			logging.String(logging.FieldEventType, "sync_record_failed"),
			logging.String(logging.FieldErrorHint, "check catalog database access"))
		if err == nil {
			err = saveErr
		}
	}

	attrs := []logging.Attr{
		logging.String("status", string(run.Status)),
		logging.Int("added", run.Added),
		logging.Int("updated", run.Updated),
		logging.Int("removed", run.Removed),
		logging.Int("pending_removal", run.PendingRemoval),
		logging.Int("failed", run.Failed),
		logging.Int("skipped", run.Skipped),
		logging.Duration("duration", ended.Sub(run.StartedAt)),
	}
	if err != nil {
		logging.ErrorWithContext(logger, "sync run failed", "sync_failed", append(attrs,
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check WebDAV connectivity and the catalog database"))...)
		return run, err
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "sync_finished"))
	logger.Info("sync run finished", logging.Args(attrs...)...)
	return run, nil
}

func (o *Orchestrator) reconcile(ctx context.Context, logger *slog.Logger, run *catalog.SyncRun) error {
	listing, err := o.lister.List(ctx)
	if err != nil {
		if !errors.Is(err, services.ErrTransientIO) && !errors.Is(err, context.Canceled) {
			err = services.Wrap(services.ErrTransientIO, "workflow", "list", "remote listing failed", err)
		}
		return err
	}
	listing = o.filterListing(listing)

	snapshot, err := o.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot catalog: %w", err)
	}
	plan := diff.Diff(listing, snapshot, diff.Options{MaxAttempts: o.maxAttempts})
	run.Skipped = plan.Skipped
	for _, conflict := range plan.Conflicts {
		logging.WarnWithContext(logger, "duplicate remote basename ignored", "sync_name_conflict",
			logging.String(logging.FieldFilename, conflict.Filename),
			logging.String("kept", conflict.Kept),
			logging.String("dropped", conflict.Dropped),
			logging.String(logging.FieldErrorHint, "rename one of the files so basenames are unique"),
			logging.String(logging.FieldImpact, "the dropped file is not catalogued"))
	}
	logger.Debug("sync plan computed",
		logging.Int("listed", len(listing)),
		logging.Int("add", len(plan.ToAdd)),
		logging.Int("update", len(plan.ToUpdate)),
		logging.Int("retry", len(plan.ToRetry)),
		logging.Int("mark_missing", len(plan.ToMarkMissing)),
		logging.Int("restore", len(plan.ToRestore)),
		logging.Int("remove", len(plan.ToRemove)))

	if err := o.applyRemovals(ctx, logger, plan, run); err != nil {
		return err
	}

	results := o.runUnits(ctx, plan)
	var changed []string
	for _, res := range results {
		if res.created {
			run.Added++
		}
		if res.failed {
			run.Failed++
		} else if !res.created {
			run.Updated++
		}
		if res.fpChanged {
			changed = append(changed, res.filename)
		}
	}

	stale, err := o.unindexed(ctx, changed)
	if err != nil {
		return err
	}
	if len(stale) > 0 {
		logger.Info("re-evaluating unindexed fingerprints",
			logging.Int("items", len(stale)),
			logging.String(logging.FieldEventType, "dedup_reevaluate"))
	}
	changed = append(changed, stale...)

	sort.Strings(changed)
	for _, name := range changed {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := o.engine.Evaluate(ctx, name); err != nil {
			run.Failed++
			logging.WarnWithContext(logger, "duplicate clustering failed", "dedup_evaluate_failed",
				logging.String(logging.FieldFilename, name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "recompute the fingerprint or rerun the sync"),
				logging.String(logging.FieldImpact, "duplicate groups may be stale for this item"))
		}
	}
	return ctx.Err()
}

// unindexed lists fingerprinted items whose stored fingerprint the index does
// not hold, skipping names already in pending. These are items whose
// clustering failed after the fingerprint was saved.
func (o *Orchestrator) unindexed(ctx context.Context, pending []string) ([]string, error) {
	entries, err := o.store.IndexEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list indexed fingerprints: %w", err)
	}
	skip := make(map[string]struct{}, len(pending))
	for _, name := range pending {
		skip[name] = struct{}{}
	}
	index := o.engine.Index()
	var out []string
	for _, entry := range entries {
		if _, ok := skip[entry.Filename]; ok {
			continue
		}
		if fp, ok := index.Get(entry.Filename); ok && uint64(fp) == entry.Fingerprint {
			continue
		}
		out = append(out, entry.Filename)
	}
	return out, nil
}

func (o *Orchestrator) filterListing(listing []diff.RemoteEntry) []diff.RemoteEntry {
	out := listing[:0:0]
	for _, entry := range listing {
		if strings.EqualFold(entry.Filename, o.listingName) {
			continue
		}
		if !fingerprint.Supported(entry.Filename) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func (o *Orchestrator) applyRemovals(ctx context.Context, logger *slog.Logger, plan diff.Plan, run *catalog.SyncRun) error {
	if len(plan.ToMarkMissing) > 0 {
		n, err := o.store.SetMissingCount(ctx, plan.ToMarkMissing, 1)
		if err != nil {
			return fmt.Errorf("mark missing: %w", err)
		}
		run.PendingRemoval = int(n)
	}
	if len(plan.ToRestore) > 0 {
		if _, err := o.store.SetMissingCount(ctx, plan.ToRestore, 0); err != nil {
			return fmt.Errorf("restore items: %w", err)
		}
	}
	if len(plan.ToRemove) == 0 {
		return nil
	}
	var dissolved []string
	err := o.store.WithTx(ctx, func(tx *catalog.Tx) error {
		var err error
		dissolved, err = o.engine.RemoveItems(ctx, tx, plan.ToRemove)
		return err
	})
	if err != nil {
		return fmt.Errorf("remove items: %w", err)
	}
	run.Removed = len(plan.ToRemove)
	logger.Info("removed items missing from remote",
		logging.Int("removed", len(plan.ToRemove)),
		logging.Int("dissolved_groups", len(dissolved)),
		logging.String(logging.FieldEventType, "sync_items_removed"))
	return nil
}

func (o *Orchestrator) runUnits(ctx context.Context, plan diff.Plan) []unitResult {
	type job struct {
		entry diff.RemoteEntry
		kind  unitKind
	}
	jobs := make([]job, 0, len(plan.ToAdd)+len(plan.ToUpdate)+len(plan.ToRetry))
	for _, e := range plan.ToAdd {
		jobs = append(jobs, job{e, unitAdd})
	}
	for _, e := range plan.ToUpdate {
		jobs = append(jobs, job{e, unitUpdate})
	}
	for _, e := range plan.ToRetry {
		jobs = append(jobs, job{e, unitRetry})
	}

	results := make([]unitResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxInFlight)
	for i, j := range jobs {
		g.Go(func() error {
			// Units record their own failures; returning nil keeps siblings running.
			results[i] = o.runUnit(gctx, j.entry, j.kind)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
