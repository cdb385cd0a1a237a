package testsupport

import (
	"context"
	"testing"
	"time"

	"memecat/internal/catalog"
	"memecat/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedItem inserts an item with the given fingerprint and marks it processed.
// A nil fingerprint leaves the column empty.
func SeedItem(t testing.TB, store *catalog.Store, filename string, fingerprint *uint64) *catalog.Item {
	t.Helper()

	ctx := context.Background()
	item, _, err := store.UpsertRemote(ctx, catalog.RemoteMeta{
		Filename:   filename,
		RemotePath: "/" + filename,
		Size:       1024,
		ModifiedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", filename, err)
	}
	item.Fingerprint = fingerprint
	item.Processed = true
	item.Status = catalog.StatusDescribed
	if err := store.CompareAndSwap(ctx, item); err != nil {
		t.Fatalf("seed %s save: %v", filename, err)
	}
	return item
}

// FP returns a pointer to fp for seeding fingerprints inline.
func FP(fp uint64) *uint64 {
	return &fp
}
