package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memecat/internal/catalog"
	"memecat/internal/config"
	"memecat/internal/dedup"
	"memecat/internal/merge"
	"memecat/internal/services"
	"memecat/internal/testsupport"
	"memecat/internal/workflow"
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	ctx    context.Context
	cfg    *config.Config
	store  *catalog.Store
	engine *dedup.Engine
	remote *testsupport.FakeRemote
	fps    *testsupport.FakeFingerprinter
	desc   *testsupport.FakeDescriber
	orch   *workflow.Orchestrator
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	groups := 0
	engine := dedup.NewEngine(store, cfg.Dedup.Threshold, nil, dedup.WithIDGenerator(func() string {
		groups++
		return fmt.Sprintf("g-%d", groups)
	}))
	h := &harness{
		ctx:    context.Background(),
		cfg:    cfg,
		store:  store,
		engine: engine,
		remote: testsupport.NewFakeRemote(),
		fps:    &testsupport.FakeFingerprinter{},
		desc:   testsupport.NewFakeDescriber(),
	}
	runs := 0
	orch, err := workflow.NewOrchestrator(cfg, workflow.Dependencies{
		Store:         store,
		Engine:        engine,
		Lister:        h.remote,
		Fingerprinter: h.fps,
		Describer:     h.desc,
		Uploader:      h.remote,
	}, nil,
		workflow.WithClock(func() time.Time { return baseTime }),
		workflow.WithRunIDGenerator(func() string {
			runs++
			return fmt.Sprintf("run-%d", runs)
		}),
		workflow.WithFetchBackoff(0),
	)
	require.NoError(t, err)
	h.orch = orch
	return h
}

func (h *harness) put(name string, fp uint64) {
	h.remote.Put("/"+name, testsupport.FPPayload(fp, name), baseTime)
}

func (h *harness) run(t *testing.T) *catalog.SyncRun {
	t.Helper()
	run, err := h.orch.RunOnce(h.ctx)
	require.NoError(t, err)
	require.NotNil(t, run)
	return run
}

func (h *harness) item(t *testing.T, name string) *catalog.Item {
	t.Helper()
	item, err := h.store.GetItem(h.ctx, name)
	require.NoError(t, err)
	require.NotNil(t, item, name)
	return item
}

func TestRunGroupsNearDuplicates(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.put("b.png", 0x7)
	h.put("c.png", 0xffff0000)

	run := h.run(t)
	assert.Equal(t, catalog.RunSucceeded, run.Status)
	assert.Equal(t, 3, run.Added)
	assert.Zero(t, run.Failed)
	assert.Equal(t, "run-1", run.ID)

	a, b, c := h.item(t, "a.png"), h.item(t, "b.png"), h.item(t, "c.png")
	require.NotEmpty(t, a.GroupID)
	assert.Equal(t, a.GroupID, b.GroupID)
	assert.Empty(t, c.GroupID)
	for _, item := range []*catalog.Item{a, b, c} {
		assert.True(t, item.Processed, item.Filename)
		assert.Equal(t, catalog.StatusDescribed, item.Status, item.Filename)
		assert.NotEmpty(t, item.ContentHash, item.Filename)
		assert.Zero(t, item.Attempts, item.Filename)
	}
	assert.EqualValues(t, 0x7, *b.Fingerprint)

	again := h.run(t)
	assert.Equal(t, 3, again.Skipped)
	assert.Zero(t, again.Added+again.Updated)
	assert.Equal(t, 1, h.remote.Fetches("/a.png"))
}

func TestRemovalTakesTwoRunsAndDissolvesGroup(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.put("b.png", 0x3)
	h.run(t)
	require.NotEmpty(t, h.item(t, "a.png").GroupID)

	h.remote.Remove("/b.png")
	first := h.run(t)
	assert.Equal(t, 1, first.PendingRemoval)
	assert.Zero(t, first.Removed)
	b := h.item(t, "b.png")
	assert.Equal(t, 1, b.MissingCount)
	assert.Equal(t, h.item(t, "a.png").GroupID, b.GroupID)

	second := h.run(t)
	assert.Equal(t, 1, second.Removed)
	gone, err := h.store.GetItem(h.ctx, "b.png")
	require.NoError(t, err)
	assert.Nil(t, gone)
	assert.Empty(t, h.item(t, "a.png").GroupID)

	groups, err := h.engine.AllGroups(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
	_, indexed := h.engine.Index().Get("b.png")
	assert.False(t, indexed)
}

func TestReappearingItemIsRestored(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.run(t)

	h.remote.Remove("/a.png")
	h.run(t)
	require.Equal(t, 1, h.item(t, "a.png").MissingCount)

	h.put("a.png", 0x0)
	h.run(t)
	a := h.item(t, "a.png")
	assert.Zero(t, a.MissingCount)
	assert.True(t, a.Processed)
}

func TestMarkNotDuplicateSurvivesRecompute(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.put("b.png", 0x7)
	h.run(t)
	require.NotEmpty(t, h.item(t, "b.png").GroupID)

	coordinator := merge.NewCoordinator(h.engine, nil, false, nil)
	_, err := coordinator.MarkNotDuplicate(h.ctx, "b.png")
	require.NoError(t, err)

	fp, err := h.orch.RecomputeFingerprint(h.ctx, "b.png")
	require.NoError(t, err)
	assert.EqualValues(t, 0x7, fp)
	assert.Empty(t, h.item(t, "a.png").GroupID)
	assert.Empty(t, h.item(t, "b.png").GroupID)

	h.run(t)
	assert.Empty(t, h.item(t, "b.png").GroupID)
	groups, err := h.engine.AllGroups(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestRecomputeBypassesMemoAndRelinks(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.put("b.png", 0xffff0000ffff)
	h.run(t)
	require.Empty(t, h.item(t, "b.png").GroupID)
	calls := h.fps.Calls()

	// Same size and modtime, different bytes: only a recompute notices.
	h.remote.Put("/b.png", testsupport.FPPayload(0x1, "b.png"), baseTime)
	fp, err := h.orch.RecomputeFingerprint(h.ctx, "b.png")
	require.NoError(t, err)
	assert.EqualValues(t, 0x1, fp)
	assert.Equal(t, calls+1, h.fps.Calls())
	assert.Equal(t, h.item(t, "a.png").GroupID, h.item(t, "b.png").GroupID)
	assert.NotEmpty(t, h.item(t, "b.png").GroupID)

	_, err = h.orch.RecomputeFingerprint(h.ctx, "missing.png")
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestUnitFailuresAreIsolated(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.remote.Put("/b.png", []byte("definitely not an image"), baseTime)
	h.put("c.png", 0x10)
	h.put("d.png", 0x20)
	h.put("e.png", 0x30)
	h.remote.FailFetch("/a.png", services.Wrap(services.ErrTransientIO, "test", "fetch", "connection reset", nil))
	h.desc.Fail("c.png", services.Wrap(services.ErrDescriptionService, "test", "describe", "quota", nil))
	h.desc.Fail("e.png", testsupport.UnsupportedError("e.png"))

	run := h.run(t)
	assert.Equal(t, catalog.RunPartial, run.Status)
	assert.Equal(t, 5, run.Added)
	assert.Equal(t, 4, run.Failed)

	a := h.item(t, "a.png")
	assert.Equal(t, 1, a.Attempts)
	assert.Contains(t, a.LastError, "connection reset")
	assert.False(t, a.HasFingerprint())

	b := h.item(t, "b.png")
	assert.False(t, b.HasFingerprint())
	assert.True(t, b.Processed, "processed tracks the description only")
	assert.Equal(t, catalog.StatusDescribed, b.Status, "decode failure must not block the description")
	assert.Contains(t, b.LastError, "decode")

	c := h.item(t, "c.png")
	assert.True(t, c.HasFingerprint(), "description failure must not block the fingerprint")
	assert.False(t, c.Processed)
	assert.Equal(t, catalog.StatusPending, c.Status)

	d := h.item(t, "d.png")
	assert.True(t, d.Processed)

	e := h.item(t, "e.png")
	assert.Equal(t, catalog.StatusUnsupported, e.Status)
	assert.False(t, e.Processed)

	second := h.run(t)
	assert.Equal(t, 3, second.Failed)
	assert.Equal(t, 2, h.item(t, "a.png").Attempts)
	assert.Equal(t, 1, h.desc.Calls("e.png"), "unsupported items are not retried")
	assert.Equal(t, 1, h.desc.Calls("d.png"))
	assert.Equal(t, 1, h.desc.Calls("b.png"), "a described item is not re-described while its fingerprint is retried")
	assert.Equal(t, 2, h.item(t, "b.png").Attempts)
}

func TestRetriesStopAtMaxAttempts(t *testing.T) {
	h := newHarness(t, testsupport.WithMaxAttempts(2))
	h.put("a.png", 0x0)
	h.remote.FailFetch("/a.png", errors.New("server exploded"))

	h.run(t)
	h.run(t)
	third := h.run(t)
	assert.Equal(t, 2, h.remote.Fetches("/a.png"))
	assert.Equal(t, 1, third.Skipped)
	assert.Equal(t, catalog.RunSucceeded, third.Status)

	// A content change resets the budget.
	h.remote.FailFetch("/a.png", nil)
	h.remote.Put("/a.png", testsupport.FPPayload(0x0, "a2"), baseTime.Add(time.Hour))
	fourth := h.run(t)
	assert.Equal(t, 1, fourth.Updated)
	a := h.item(t, "a.png")
	assert.True(t, a.Processed)
	assert.Zero(t, a.Attempts)
	assert.Empty(t, a.LastError)
}

func TestFetchRetriesOnlyTransientErrors(t *testing.T) {
	h := newHarness(t, testsupport.WithFetchRetries(2))
	h.put("a.png", 0x0)
	h.put("b.png", 0x0)
	h.remote.FailFetch("/a.png", services.Wrap(services.ErrTransientIO, "test", "fetch", "timeout", nil))
	h.remote.FailFetch("/b.png", services.Wrap(services.ErrNotFound, "test", "fetch", "gone", nil))

	h.run(t)
	assert.Equal(t, 3, h.remote.Fetches("/a.png"))
	assert.Equal(t, 1, h.remote.Fetches("/b.png"))
}

func TestContentChangeDetachesFromGroup(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.put("b.png", 0x1)
	h.run(t)
	require.NotEmpty(t, h.item(t, "b.png").GroupID)

	h.remote.Put("/b.png", testsupport.FPPayload(0xffffffffffffffff, "b2"), baseTime.Add(time.Minute))
	run := h.run(t)
	assert.Equal(t, 1, run.Updated)
	assert.Empty(t, h.item(t, "a.png").GroupID)
	assert.Empty(t, h.item(t, "b.png").GroupID)
	assert.Equal(t, 2, h.desc.Calls("b.png"))
	assert.Equal(t, 1, h.desc.Calls("a.png"))
}

func TestTouchedFileIsRedescribed(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.run(t)
	require.Equal(t, 1, h.desc.Calls("a.png"))

	// Identical bytes under a new modtime still count as an update.
	h.remote.Put("/a.png", testsupport.FPPayload(0x0, "a.png"), baseTime.Add(time.Hour))
	run := h.run(t)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 2, h.desc.Calls("a.png"))
	assert.True(t, h.item(t, "a.png").Processed)
}

func TestFailedRedescriptionIsRetried(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.run(t)

	h.desc.Fail("a.png", services.Wrap(services.ErrDescriptionService, "test", "describe", "quota", nil))
	h.remote.Put("/a.png", testsupport.FPPayload(0x0, "a.png"), baseTime.Add(time.Hour))
	h.run(t)
	a := h.item(t, "a.png")
	assert.True(t, a.Processed, "a previous description keeps the item processed")
	assert.Equal(t, catalog.StatusPending, a.Status)
	assert.Equal(t, 1, a.Attempts)
	assert.NotEmpty(t, a.Description)

	h.desc.Fail("a.png", nil)
	retry := h.run(t)
	assert.Zero(t, retry.Failed)
	assert.Equal(t, 3, h.desc.Calls("a.png"))
	a = h.item(t, "a.png")
	assert.Equal(t, catalog.StatusDescribed, a.Status)
	assert.Zero(t, a.Attempts)
}

func TestUnindexedFingerprintIsReevaluated(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.put("b.png", 0xffffffffffffffff)
	h.run(t)
	require.Empty(t, h.item(t, "b.png").GroupID)

	// A saved fingerprint whose clustering never completed.
	b := h.item(t, "b.png")
	b.SetFingerprint(0x1)
	require.NoError(t, h.store.CompareAndSwap(h.ctx, b))
	h.engine.Index().Forget("b.png")

	run := h.run(t)
	assert.Zero(t, run.Failed)
	assert.Equal(t, 1, h.desc.Calls("b.png"), "re-evaluation does not reprocess the item")
	fp, ok := h.engine.Index().Get("b.png")
	require.True(t, ok)
	assert.EqualValues(t, 0x1, fp)
	assert.NotEmpty(t, h.item(t, "b.png").GroupID)
	assert.Equal(t, h.item(t, "a.png").GroupID, h.item(t, "b.png").GroupID)
}

func TestListingFilterSkipsExportAndUnsupportedFiles(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.remote.Put("/listing.json", []byte("[]"), baseTime)
	h.remote.Put("/notes.txt", []byte("hello"), baseTime)

	run := h.run(t)
	assert.Equal(t, 1, run.Added)
	items, err := h.store.ListItems(h.ctx, catalog.ItemFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "a.png", items[0].Filename)
}

func TestListingFailureRecordsFailedRun(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.remote.FailList(errors.New("dial tcp: connection refused"))

	run, err := h.orch.RunOnce(h.ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrTransientIO)
	require.NotNil(t, run)
	assert.Equal(t, catalog.RunFailed, run.Status)
	assert.Contains(t, run.Error, "connection refused")

	stored, err := h.store.GetRun(h.ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.RunFailed, stored.Status)
	items, err := h.store.ListItems(h.ctx, catalog.ItemFilter{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRunOnceSkipsWhenInProgress(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.remote.FetchHook = func(context.Context, string) {
		once.Do(func() { close(entered) })
		<-release
	}

	type result struct {
		run *catalog.SyncRun
		err error
	}
	done := make(chan result, 1)
	go func() {
		run, err := h.orch.RunOnce(h.ctx)
		done <- result{run, err}
	}()

	<-entered
	run, err := h.orch.RunOnce(h.ctx)
	assert.ErrorIs(t, err, workflow.ErrRunInProgress)
	assert.Nil(t, run)

	close(release)
	first := <-done
	require.NoError(t, first.err)
	assert.Equal(t, catalog.RunSucceeded, first.run.Status)

	runs, err := h.store.ListRuns(h.ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestCancelledRunIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	ctx, cancel := context.WithCancel(h.ctx)
	h.remote.FetchHook = func(context.Context, string) { cancel() }

	run, err := h.orch.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, run)
	assert.Equal(t, catalog.RunFailed, run.Status)

	stored, err := h.store.GetRun(h.ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, catalog.RunFailed, stored.Status)
}

func TestExportListing(t *testing.T) {
	h := newHarness(t)
	h.put("a.png", 0x0)
	h.put("b.png", 0x7)
	h.run(t)

	count, err := h.orch.ExportListing(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	raw, ok := h.remote.Uploaded("listing.json")
	require.True(t, ok)
	var entries []workflow.ListingEntry
	require.NoError(t, json.Unmarshal(raw, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "a.png", entries[0].Filename)
	assert.Equal(t, "0000000000000007", entries[1].Fingerprint)
	assert.Equal(t, entries[0].GroupID, entries[1].GroupID)
	assert.Equal(t, "test", entries[1].Category)
	assert.Contains(t, entries[1].Keywords, "meme")
}

func TestNewOrchestratorRequiresCollaborators(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	_, err := workflow.NewOrchestrator(cfg, workflow.Dependencies{}, nil)
	assert.ErrorIs(t, err, services.ErrConfiguration)
}
