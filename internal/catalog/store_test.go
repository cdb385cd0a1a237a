package catalog_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"memecat/internal/catalog"
	"memecat/internal/services"
	"memecat/internal/testsupport"
)

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.SeedItem(t, store, "a.png", testsupport.FP(0xff))
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := testsupport.MustOpenStore(t, cfg)
	item, err := reopened.GetItem(context.Background(), "a.png")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if item == nil || item.Fingerprint == nil || *item.Fingerprint != 0xff {
		t.Fatalf("unexpected item after reopen: %#v", item)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	_ = store.Close()

	db, err := sql.Open("sqlite", cfg.CatalogPath())
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := catalog.Open(cfg); !errors.Is(err, catalog.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestGetItemMissingReturnsNil(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	item, err := store.GetItem(context.Background(), "nope.gif")
	if err != nil || item != nil {
		t.Fatalf("expected nil, nil; got %#v, %v", item, err)
	}
}

func TestUpsertRemoteCreatesThenRefreshes(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	mod := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	item, created, err := store.UpsertRemote(ctx, catalog.RemoteMeta{Filename: "cat.gif", RemotePath: "/memes/cat.gif", Size: 500, ModifiedAt: mod})
	if err != nil {
		t.Fatalf("UpsertRemote: %v", err)
	}
	if !created || item.Status != catalog.StatusPending || item.Version != 1 || len(item.Keywords) != 0 {
		t.Fatalf("unexpected new item: created=%v %#v", created, item)
	}
	if !item.RemoteModifiedAt.Equal(mod) {
		t.Fatalf("modtime = %v, want %v", item.RemoteModifiedAt, mod)
	}

	if err := store.RecordFailure(ctx, "cat.gif", "provider rejected", true); err != nil {
		t.Fatalf("RecordFailure: %v", err)
	}
	failed, _ := store.GetItem(ctx, "cat.gif")
	if failed.Attempts != 1 || failed.Status != catalog.StatusUnsupported || failed.LastError != "provider rejected" || failed.LastAttemptAt == nil {
		t.Fatalf("failure not recorded: %#v", failed)
	}

	refreshed, created, err := store.UpsertRemote(ctx, catalog.RemoteMeta{Filename: "cat.gif", RemotePath: "/memes/cat.gif", Size: 600, ModifiedAt: mod.Add(time.Hour)})
	if err != nil {
		t.Fatalf("UpsertRemote refresh: %v", err)
	}
	if created {
		t.Fatal("expected refresh, not create")
	}
	if refreshed.Size != 600 || refreshed.Attempts != 0 || refreshed.LastError != "" || refreshed.Status != catalog.StatusPending {
		t.Fatalf("refresh did not reset bookkeeping: %#v", refreshed)
	}
	if refreshed.Version <= failed.Version {
		t.Fatalf("version did not advance: %d -> %d", failed.Version, refreshed.Version)
	}
}

func TestCompareAndSwapDetectsLostRace(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedItem(t, store, "x.jpg", nil)

	first, _ := store.GetItem(ctx, "x.jpg")
	second, _ := store.GetItem(ctx, "x.jpg")

	first.Description = "a cat"
	first.Keywords = []string{"cat", "funny"}
	if err := store.CompareAndSwap(ctx, first); err != nil {
		t.Fatalf("first CompareAndSwap: %v", err)
	}

	second.Description = "a dog"
	err := store.CompareAndSwap(ctx, second)
	if !errors.Is(err, services.ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if !services.IsRetryable(err) {
		t.Fatal("expected lost race to be retryable")
	}

	stored, _ := store.GetItem(ctx, "x.jpg")
	if stored.Description != "a cat" || len(stored.Keywords) != 2 || stored.Keywords[1] != "funny" {
		t.Fatalf("unexpected stored item: %#v", stored)
	}
}

func TestCompareAndSwapOnDeletedItem(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	item := testsupport.SeedItem(t, store, "gone.png", nil)

	if err := store.WithTx(ctx, func(tx *catalog.Tx) error {
		_, err := tx.DeleteItems(ctx, []string{"gone.png"})
		return err
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	err := store.CompareAndSwap(ctx, item)
	if !errors.Is(err, services.ErrConsistencyViolation) || !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected missing item violation, got %v", err)
	}
}

func TestApplyPatch(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedItem(t, store, "p.png", nil)

	desc := "  updated  "
	keywords := []string{"one", "two"}
	item, err := store.ApplyPatch(ctx, "p.png", catalog.ItemPatch{Description: &desc, Keywords: &keywords})
	if err != nil {
		t.Fatalf("ApplyPatch: %v", err)
	}
	if item.Description != "updated" || len(item.Keywords) != 2 {
		t.Fatalf("patch not applied: %#v", item)
	}

	if _, err := store.ApplyPatch(ctx, "missing.png", catalog.ItemPatch{Description: &desc}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListItemsFilters(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedItem(t, store, "b.png", testsupport.FP(1))
	testsupport.SeedItem(t, store, "a.png", testsupport.FP(2))
	testsupport.SeedItem(t, store, "c.png", nil)

	all, err := store.ListItems(ctx, catalog.ItemFilter{})
	if err != nil {
		t.Fatalf("ListItems: %v", err)
	}
	if len(all) != 3 || all[0].Filename != "a.png" || all[2].Filename != "c.png" {
		t.Fatalf("unexpected order: %v", filenames(all))
	}

	unprocessed, _ := store.ListItems(ctx, catalog.ItemFilter{Unprocessed: true})
	if len(unprocessed) != 1 || unprocessed[0].Filename != "c.png" {
		t.Fatalf("unexpected unprocessed: %v", filenames(unprocessed))
	}

	page, _ := store.ListItems(ctx, catalog.ItemFilter{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].Filename != "b.png" {
		t.Fatalf("unexpected page: %v", filenames(page))
	}

	entries, err := store.IndexEntries(ctx)
	if err != nil || len(entries) != 2 {
		t.Fatalf("IndexEntries = %v, %v", entries, err)
	}
}

func TestGroupMembershipCascadesAndDissolves(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		testsupport.SeedItem(t, store, name, testsupport.FP(0))
	}

	err := store.WithTx(ctx, func(tx *catalog.Tx) error {
		if err := tx.CreateGroup(ctx, "g1", "a.png", "b.png"); err != nil {
			return err
		}
		return tx.AddPairException(ctx, "c.png", "a.png")
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	item, _ := store.GetItem(ctx, "b.png")
	if item.GroupID != "g1" {
		t.Fatalf("expected b.png in g1, got %q", item.GroupID)
	}
	exceptions, _ := store.ListPairExceptions(ctx)
	if len(exceptions) != 1 || exceptions[0].FilenameA != "a.png" || exceptions[0].FilenameB != "c.png" {
		t.Fatalf("unexpected exceptions: %#v", exceptions)
	}

	var dissolved []string
	err = store.WithTx(ctx, func(tx *catalog.Tx) error {
		if _, err := tx.DeleteItems(ctx, []string{"a.png"}); err != nil {
			return err
		}
		var err error
		dissolved, err = tx.DissolveUndersized(ctx)
		return err
	})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(dissolved) != 1 || dissolved[0] != "g1" {
		t.Fatalf("expected g1 dissolved, got %v", dissolved)
	}
	groups, _ := store.ListGroups(ctx)
	if len(groups) != 0 {
		t.Fatalf("expected no groups, got %#v", groups)
	}
	item, _ = store.GetItem(ctx, "b.png")
	if item.GroupID != "" {
		t.Fatalf("expected b.png ungrouped, got %q", item.GroupID)
	}
	exceptions, _ = store.ListPairExceptions(ctx)
	if len(exceptions) != 0 {
		t.Fatalf("expected exceptions to cascade, got %#v", exceptions)
	}
}

func TestWithTxRollsBackOnError(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedItem(t, store, "keep.png", nil)

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx *catalog.Tx) error {
		if _, err := tx.DeleteItems(ctx, []string{"keep.png"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if item, _ := store.GetItem(ctx, "keep.png"); item == nil {
		t.Fatal("expected delete to roll back")
	}
}

func TestSaveAndListRuns(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	older := &catalog.SyncRun{ID: "run-1", StartedAt: start, Status: catalog.RunSucceeded}
	newer := &catalog.SyncRun{ID: "run-2", StartedAt: start.Add(time.Hour), Status: catalog.RunRunning}
	for _, run := range []*catalog.SyncRun{older, newer} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	ended := start.Add(2 * time.Hour)
	newer.EndedAt = &ended
	newer.Status = catalog.RunPartial
	newer.Failed = 2
	if err := store.SaveRun(ctx, newer); err != nil {
		t.Fatalf("SaveRun update: %v", err)
	}

	runs, err := store.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-2" || runs[0].Status != catalog.RunPartial || runs[0].Failed != 2 || runs[0].EndedAt == nil {
		t.Fatalf("unexpected runs: %#v", runs)
	}
}

func TestStats(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	testsupport.SeedItem(t, store, "a.png", testsupport.FP(1))
	testsupport.SeedItem(t, store, "b.png", testsupport.FP(1))
	if _, err := store.SetMissingCount(ctx, []string{"b.png"}, 1); err != nil {
		t.Fatalf("SetMissingCount: %v", err)
	}
	if err := store.WithTx(ctx, func(tx *catalog.Tx) error {
		return tx.CreateGroup(ctx, "g", "a.png", "b.png")
	}); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Items != 2 || stats.Fingerprinted != 2 || stats.PendingRemoval != 1 || stats.Groups != 1 || stats.Grouped != 2 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func filenames(items []*catalog.Item) []string {
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = item.Filename
	}
	return out
}

func TestHasExceptionBetweenIgnoresSameSidePairs(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		testsupport.SeedItem(t, store, name, testsupport.FP(0))
	}

	err := store.WithTx(ctx, func(tx *catalog.Tx) error {
		if err := tx.AddPairException(ctx, "b.png", "a.png"); err != nil {
			return err
		}
		within, err := tx.HasExceptionBetween(ctx, []string{"a.png", "b.png"}, []string{"d.png"})
		if err != nil {
			return err
		}
		if within {
			t.Errorf("exception inside the left side must not block")
		}
		for _, sides := range [][2][]string{
			{{"a.png", "c.png"}, {"b.png", "d.png"}},
			{{"d.png", "b.png"}, {"a.png"}},
		} {
			crossing, err := tx.HasExceptionBetween(ctx, sides[0], sides[1])
			if err != nil {
				return err
			}
			if !crossing {
				t.Errorf("expected exception between %v and %v", sides[0], sides[1])
			}
		}
		empty, err := tx.HasExceptionBetween(ctx, nil, []string{"a.png"})
		if err != nil {
			return err
		}
		if empty {
			t.Errorf("empty side must not block")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}
