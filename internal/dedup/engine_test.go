package dedup_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memecat/internal/catalog"
	"memecat/internal/dedup"
	"memecat/internal/services"
	"memecat/internal/testsupport"
)

type fixture struct {
	ctx    context.Context
	store  *catalog.Store
	engine *dedup.Engine
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	n := 0
	engine := dedup.NewEngine(store, threshold, nil, dedup.WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("g-%d", n)
	}))
	return &fixture{ctx: context.Background(), store: store, engine: engine}
}

func (f *fixture) seed(t *testing.T, items map[string]uint64) {
	t.Helper()
	for name, fp := range items {
		testsupport.SeedItem(t, f.store, name, testsupport.FP(fp))
	}
}

func (f *fixture) evaluate(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		_, err := f.engine.Evaluate(f.ctx, name)
		require.NoError(t, err, "evaluate %s", name)
	}
}

func (f *fixture) groupOf(t *testing.T, name string) string {
	t.Helper()
	item, err := f.store.GetItem(f.ctx, name)
	require.NoError(t, err)
	require.NotNil(t, item, name)
	return item.GroupID
}

func TestIdenticalFingerprintsShareGroup(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0xabc, "b.png": 0xabc})
	f.evaluate(t, "a.png", "b.png")

	groups, err := f.engine.AllGroups(f.ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a.png", "b.png"}, groups[0].Members)
	assert.Equal(t, 2, groups[0].Count)
}

func TestChainingJoinsDistantEnds(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0x0, "b.png": 0xff, "c.png": 0xffff})
	f.evaluate(t, "a.png", "b.png", "c.png")

	group := f.groupOf(t, "a.png")
	require.NotEmpty(t, group)
	assert.Equal(t, group, f.groupOf(t, "b.png"))
	assert.Equal(t, group, f.groupOf(t, "c.png"))
}

func TestBridgeMergesSmallerGroupIntoLarger(t *testing.T) {
	f := newFixture(t, 4)
	f.seed(t, map[string]uint64{"a.png": 0x0, "b.png": 0x1, "c.png": 0xff, "d.png": 0x1ff, "e.png": 0x0f})
	f.evaluate(t, "a.png", "b.png", "c.png", "d.png")
	require.Equal(t, "g-1", f.groupOf(t, "a.png"))
	require.Equal(t, "g-2", f.groupOf(t, "c.png"))

	outcome, err := f.engine.Evaluate(f.ctx, "e.png")
	require.NoError(t, err)
	assert.Equal(t, "g-1", outcome.GroupID)
	assert.Equal(t, []string{"b.png", "a.png", "c.png"}, outcome.Linked)

	groups, err := f.engine.AllGroups(f.ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "g-1", groups[0].GroupID)
	assert.Equal(t, []string{"a.png", "b.png", "c.png", "d.png", "e.png"}, groups[0].Members)
}

func TestMergeTieKeepsSmallerGroupID(t *testing.T) {
	f := newFixture(t, 4)
	f.seed(t, map[string]uint64{
		"c.png": 0xff, "d.png": 0x1ff, "f.png": 0x3ff,
		"a.png": 0x0, "b.png": 0x1,
		"e.png": 0x0f,
	})
	f.evaluate(t, "c.png", "d.png", "f.png", "a.png", "b.png")
	require.Equal(t, "g-1", f.groupOf(t, "c.png"))
	require.Equal(t, "g-2", f.groupOf(t, "a.png"))

	f.evaluate(t, "e.png")
	for _, name := range []string{"a.png", "b.png", "c.png", "d.png", "e.png", "f.png"} {
		assert.Equal(t, "g-1", f.groupOf(t, name), name)
	}
}

func TestExceptedPairNeverCoGrouped(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0x0, "b.png": 0x0, "c.png": 0x1})
	require.NoError(t, f.engine.MarkFalsePositive(f.ctx, "b.png", "a.png"))

	f.evaluate(t, "a.png", "b.png")
	assert.Empty(t, f.groupOf(t, "a.png"))
	assert.Empty(t, f.groupOf(t, "b.png"))

	outcome, err := f.engine.Evaluate(f.ctx, "c.png")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png"}, outcome.Linked)
	assert.Equal(t, []string{"b.png"}, outcome.Refused)
	assert.NotEqual(t, f.groupOf(t, "a.png"), f.groupOf(t, "b.png"))

	// Re-evaluating the excepted item must not pull it in either.
	f.evaluate(t, "b.png", "a.png")
	assert.Empty(t, f.groupOf(t, "b.png"))
}

func TestExceptionInsideGroupStillAdmitsNewMembers(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0x0, "b.png": 0x0, "c.png": 0x0})
	f.evaluate(t, "a.png", "b.png", "c.png")
	require.Equal(t, "g-1", f.groupOf(t, "a.png"))
	require.NoError(t, f.engine.MarkFalsePositive(f.ctx, "a.png", "b.png"))
	assert.Equal(t, "g-1", f.groupOf(t, "b.png"))

	f.seed(t, map[string]uint64{"d.png": 0x0})
	outcome, err := f.engine.Evaluate(f.ctx, "d.png")
	require.NoError(t, err)
	assert.Equal(t, "g-1", outcome.GroupID)
	assert.Empty(t, outcome.Refused)
	assert.ElementsMatch(t, []string{"a.png", "b.png", "c.png"}, outcome.Linked)

	groups, err := f.engine.AllGroups(f.ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a.png", "b.png", "c.png", "d.png"}, groups[0].Members)
}

func TestExceptionAcrossGroupsBlocksBridge(t *testing.T) {
	f := newFixture(t, 4)
	f.seed(t, map[string]uint64{"a.png": 0x0, "b.png": 0x1, "c.png": 0xff, "d.png": 0x1ff, "e.png": 0x0f})
	f.evaluate(t, "a.png", "b.png", "c.png", "d.png")
	require.NoError(t, f.engine.MarkFalsePositive(f.ctx, "a.png", "d.png"))

	outcome, err := f.engine.Evaluate(f.ctx, "e.png")
	require.NoError(t, err)
	assert.Equal(t, "g-1", outcome.GroupID)
	assert.Equal(t, []string{"c.png"}, outcome.Refused)
	assert.NotEqual(t, f.groupOf(t, "a.png"), f.groupOf(t, "d.png"))
}

func TestFalsePositiveItemsAreSkipped(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0x0, "b.png": 0x0})
	require.NoError(t, f.store.WithTx(f.ctx, func(tx *catalog.Tx) error {
		return tx.SetFalsePositive(f.ctx, "b.png", true)
	}))
	require.NoError(t, f.engine.Load(f.ctx))
	assert.Equal(t, 1, f.engine.Index().Len())

	f.evaluate(t, "a.png", "b.png")
	assert.Empty(t, f.groupOf(t, "a.png"))

	hood, err := f.engine.DuplicatesOf(f.ctx, "b.png")
	require.NoError(t, err)
	assert.Empty(t, hood.Neighbors)
}

func TestRemoveDissolvesUndersizedGroup(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0x0, "b.png": 0x1})
	f.evaluate(t, "a.png", "b.png")
	require.NotEmpty(t, f.groupOf(t, "b.png"))

	dissolved, err := f.engine.Remove(f.ctx, []string{"a.png"})
	require.NoError(t, err)
	assert.Len(t, dissolved, 1)
	assert.Empty(t, f.groupOf(t, "b.png"))
	_, indexed := f.engine.Index().Get("a.png")
	assert.False(t, indexed)

	groups, err := f.engine.AllGroups(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestFingerprintChangeDetaches(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0x0, "b.png": 0x1})
	f.evaluate(t, "a.png", "b.png")
	group := f.groupOf(t, "b.png")
	require.NotEmpty(t, group)

	item, err := f.store.GetItem(f.ctx, "b.png")
	require.NoError(t, err)
	item.SetFingerprint(0xffffffffffffffff)
	require.NoError(t, f.store.CompareAndSwap(f.ctx, item))

	outcome, err := f.engine.Evaluate(f.ctx, "b.png")
	require.NoError(t, err)
	assert.Equal(t, group, outcome.Detached)
	assert.Empty(t, outcome.GroupID)
	assert.Empty(t, f.groupOf(t, "a.png"))

	fp, ok := f.engine.Index().Get("b.png")
	require.True(t, ok)
	assert.EqualValues(t, uint64(0xffffffffffffffff), fp)
}

func TestClearedFingerprintLeavesGroup(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0x0, "b.png": 0x1})
	f.evaluate(t, "a.png", "b.png")
	group := f.groupOf(t, "b.png")
	require.NotEmpty(t, group)

	item, err := f.store.GetItem(f.ctx, "b.png")
	require.NoError(t, err)
	item.Fingerprint = nil
	require.NoError(t, f.store.CompareAndSwap(f.ctx, item))

	outcome, err := f.engine.Evaluate(f.ctx, "b.png")
	require.NoError(t, err)
	assert.Equal(t, group, outcome.Detached)
	assert.Empty(t, f.groupOf(t, "a.png"))
	assert.Empty(t, f.groupOf(t, "b.png"))
	_, ok := f.engine.Index().Get("b.png")
	assert.False(t, ok)
}

func TestEvaluateMissingItemForgetsIndexEntry(t *testing.T) {
	f := newFixture(t, 10)
	f.engine.Index().Put("ghost.png", 0x1)

	outcome, err := f.engine.Evaluate(f.ctx, "ghost.png")
	require.NoError(t, err)
	assert.Empty(t, outcome.GroupID)
	_, ok := f.engine.Index().Get("ghost.png")
	assert.False(t, ok)
}

func TestDuplicatesOfOrdersByDistance(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0x0, "z.png": 0x1, "m.png": 0x1, "far.png": 0x7})
	f.evaluate(t, "a.png", "z.png", "m.png", "far.png")

	hood, err := f.engine.DuplicatesOf(f.ctx, "a.png")
	require.NoError(t, err)
	require.Len(t, hood.Neighbors, 3)
	assert.Equal(t, "m.png", hood.Neighbors[0].Item.Filename)
	assert.Equal(t, "z.png", hood.Neighbors[1].Item.Filename)
	assert.Equal(t, "far.png", hood.Neighbors[2].Item.Filename)
	assert.Equal(t, 3, hood.Neighbors[2].Distance)

	_, err = f.engine.DuplicatesOf(f.ctx, "nope.png")
	assert.ErrorIs(t, err, services.ErrConsistencyViolation)
}

func TestMarkFalsePositiveValidation(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0x0})

	assert.ErrorIs(t, f.engine.MarkFalsePositive(f.ctx, "a.png", "a.png"), services.ErrConsistencyViolation)
	err := f.engine.MarkFalsePositive(f.ctx, "a.png", "missing.png")
	assert.ErrorIs(t, err, services.ErrConsistencyViolation)
	assert.ErrorIs(t, err, services.ErrNotFound)

	exceptions, err := f.engine.ListPairExceptions(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, exceptions)
}

func TestRemovePairExceptionAllowsRelink(t *testing.T) {
	f := newFixture(t, 10)
	f.seed(t, map[string]uint64{"a.png": 0x0, "b.png": 0x0})
	require.NoError(t, f.engine.MarkFalsePositive(f.ctx, "a.png", "b.png"))
	f.evaluate(t, "a.png", "b.png")
	require.Empty(t, f.groupOf(t, "a.png"))

	removed, err := f.engine.RemovePairException(f.ctx, "b.png", "a.png")
	require.NoError(t, err)
	assert.True(t, removed)

	f.evaluate(t, "b.png")
	assert.NotEmpty(t, f.groupOf(t, "a.png"))
	assert.Equal(t, f.groupOf(t, "a.png"), f.groupOf(t, "b.png"))
}

func TestIndexCandidatesSorted(t *testing.T) {
	ix := dedup.NewIndex()
	ix.Put("self", 0)
	ix.Put("b", 0x3)
	ix.Put("a", 0x3)
	ix.Put("c", 0x1)
	ix.Put("far", 0xffff)

	got := ix.Candidates("self", 0, 4)
	require.Len(t, got, 3)
	assert.Equal(t, []dedup.Candidate{{Filename: "c", Distance: 1}, {Filename: "a", Distance: 2}, {Filename: "b", Distance: 2}}, got)
}
