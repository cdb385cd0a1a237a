package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"

	"memecat/internal/catalog"
	"memecat/internal/fingerprint"
	"memecat/internal/logging"
	"memecat/internal/services"
)

// DefaultThreshold is the Hamming distance at or below which two items are
// treated as near-duplicates.
const DefaultThreshold = 10

// Engine links catalog items into duplicate groups.
type Engine struct {
	store     *catalog.Store
	index     *Index
	threshold int
	logger    *slog.Logger
	newID     func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithIDGenerator overrides group ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEngine builds an engine over store. A threshold outside [0, 64] falls
// back to DefaultThreshold.
func NewEngine(store *catalog.Store, threshold int, logger *slog.Logger, opts ...Option) *Engine {
	if threshold < 0 || threshold > fingerprint.Bits {
		threshold = DefaultThreshold
	}
	e := &Engine{
		store:     store,
		index:     NewIndex(),
		threshold: threshold,
		logger:    logging.NewComponentLogger(logger, "dedup"),
		newID:     func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Threshold returns the configured distance threshold.
func (e *Engine) Threshold() int { return e.threshold }

// Index exposes the in-memory fingerprint index.
func (e *Engine) Index() *Index { return e.index }

// Store returns the catalog the engine writes to.
func (e *Engine) Store() *catalog.Store { return e.store }

// Load rebuilds the index from the catalog.
func (e *Engine) Load(ctx context.Context) error {
	entries, err := e.store.IndexEntries(ctx)
	if err != nil {
		return fmt.Errorf("load dedup index: %w", err)
	}
	e.index.Replace(entries)
	e.logger.Info("dedup index loaded",
		logging.Int("items", len(entries)),
		logging.Int("threshold", e.threshold),
		logging.String(logging.FieldEventType, "dedup_index_loaded"))
	return nil
}

// Outcome summarizes what Evaluate changed for one item.
type Outcome struct {
	Filename string
	// GroupID is the item's group after evaluation, "" when ungrouped.
	GroupID string
	// Detached is the group the item left because its fingerprint changed.
	Detached string
	Linked   []string
	// Refused lists neighbours not linked because of a pair exception.
	Refused []string
}

// Evaluate re-clusters filename against the index. It is a no-op for items
// that are missing, unfingerprinted, or marked false-positive. The index is
// updated inside the transaction so it follows commit order.
func (e *Engine) Evaluate(ctx context.Context, filename string) (*Outcome, error) {
	outcome := &Outcome{Filename: filename}
	var (
		forget   bool
		lookupFP fingerprint.Fingerprint
	)

	err := e.store.WithTx(ctx, func(tx *catalog.Tx) error {
		item, err := tx.GetItem(ctx, filename)
		if err != nil {
			return err
		}
		if item == nil || !item.HasFingerprint() || item.IsFalsePositive {
			forget = true
			e.index.Forget(filename)
			if item != nil && item.GroupID != "" {
				// A cleared fingerprint leaves no basis for the membership.
				if _, err := tx.RemoveMember(ctx, filename); err != nil {
					return err
				}
				if _, err := tx.DissolveIfUndersized(ctx, item.GroupID); err != nil {
					return err
				}
				outcome.Detached = item.GroupID
			}
			return nil
		}
		fp := fingerprint.Fingerprint(*item.Fingerprint)
		lookupFP = fp
		group := item.GroupID

		if indexed, ok := e.index.Get(filename); ok && indexed != fp && group != "" {
			if _, err := tx.RemoveMember(ctx, filename); err != nil {
				return err
			}
			if _, err := tx.DissolveIfUndersized(ctx, group); err != nil {
				return err
			}
			outcome.Detached = group
			group = ""
		}

		partners, err := tx.ExceptionPartners(ctx, filename)
		if err != nil {
			return err
		}

		for _, cand := range e.index.Candidates(filename, fp, e.threshold) {
			if _, excepted := partners[cand.Filename]; excepted {
				continue
			}
			other, err := tx.GetItem(ctx, cand.Filename)
			if err != nil {
				return err
			}
			if other == nil || !other.HasFingerprint() || other.IsFalsePositive {
				continue
			}
			if fingerprint.Distance(fp, fingerprint.Fingerprint(*other.Fingerprint)) > e.threshold {
				continue
			}
			next, linked, err := e.link(ctx, tx, filename, group, other.Filename)
			if err != nil {
				return err
			}
			if !linked {
				outcome.Refused = append(outcome.Refused, other.Filename)
				continue
			}
			group = next
			outcome.Linked = append(outcome.Linked, other.Filename)
		}
		outcome.GroupID = group
		e.index.Put(filename, fp)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if forget {
		return outcome, nil
	}
	if len(outcome.Linked) > 0 || outcome.Detached != "" || len(outcome.Refused) > 0 {
		e.logger.Info("duplicate clustering updated",
			logging.String(logging.FieldFilename, filename),
			logging.String(logging.FieldGroupID, outcome.GroupID),
			logging.String("fingerprint", lookupFP.String()),
			logging.Int("linked", len(outcome.Linked)),
			logging.Int("refused", len(outcome.Refused)),
			logging.String("detached_from", outcome.Detached),
			logging.String(logging.FieldEventType, "dedup_evaluated"))
	}
	return outcome, nil
}

// link places filename (currently in group, possibly "") and other in the
// same group. It refuses when the link would newly co-group an excepted pair.
// Exceptions already inside one side are left alone. It returns the group
// filename ends up in.
func (e *Engine) link(ctx context.Context, tx *catalog.Tx, filename, group, other string) (string, bool, error) {
	otherGroup, err := tx.GroupOf(ctx, other)
	if err != nil {
		return group, false, err
	}
	if group != "" && group == otherGroup {
		return group, true, nil
	}

	side := func(name, id string) ([]string, error) {
		if id == "" {
			return []string{name}, nil
		}
		ids, err := tx.GroupMembers(ctx, id)
		if err != nil {
			return nil, err
		}
		return append(ids, name), nil
	}
	left, err := side(filename, group)
	if err != nil {
		return group, false, err
	}
	right, err := side(other, otherGroup)
	if err != nil {
		return group, false, err
	}
	blocked, err := tx.HasExceptionBetween(ctx, left, right)
	if err != nil {
		return group, false, err
	}
	if blocked {
		return group, false, nil
	}

	switch {
	case group == "" && otherGroup == "":
		id := e.newID()
		if err := tx.CreateGroup(ctx, id, filename, other); err != nil {
			return group, false, err
		}
		return id, true, nil
	case group == "":
		if err := tx.AddMember(ctx, otherGroup, filename); err != nil {
			return group, false, err
		}
		return otherGroup, true, nil
	case otherGroup == "":
		if err := tx.AddMember(ctx, group, other); err != nil {
			return group, false, err
		}
		return group, true, nil
	default:
		sizes, err := tx.GroupSizes(ctx, group, otherGroup)
		if err != nil {
			return group, false, err
		}
		survivor, absorbed := mergeOrder(group, sizes[group], otherGroup, sizes[otherGroup])
		if err := tx.MoveMembers(ctx, absorbed, survivor); err != nil {
			return group, false, err
		}
		return survivor, true, nil
	}
}

// mergeOrder picks the surviving group: the larger one, or on a tie the
// lexicographically smaller ID.
func mergeOrder(a string, sizeA int, b string, sizeB int) (survivor, absorbed string) {
	switch {
	case sizeA > sizeB:
		return a, b
	case sizeB > sizeA:
		return b, a
	case a < b:
		return a, b
	default:
		return b, a
	}
}

// RemoveItems deletes filenames inside tx, dissolves groups left with fewer
// than two members, and drops the names from the index.
func (e *Engine) RemoveItems(ctx context.Context, tx *catalog.Tx, filenames []string) ([]string, error) {
	if _, err := tx.DeleteItems(ctx, filenames); err != nil {
		return nil, err
	}
	dissolved, err := tx.DissolveUndersized(ctx)
	if err != nil {
		return nil, err
	}
	e.index.Forget(filenames...)
	return dissolved, nil
}

// Remove deletes filenames in its own transaction and updates the index.
func (e *Engine) Remove(ctx context.Context, filenames []string) ([]string, error) {
	var dissolved []string
	err := e.store.WithTx(ctx, func(tx *catalog.Tx) error {
		var err error
		dissolved, err = e.RemoveItems(ctx, tx, filenames)
		return err
	})
	if err != nil {
		return nil, err
	}
	return dissolved, nil
}

// Forget drops filenames from the index. Call it inside the transaction that
// excludes them so index updates follow commit order. Names dropped by a
// rolled-back transaction are re-evaluated by the next sync.
func (e *Engine) Forget(filenames ...string) {
	e.index.Forget(filenames...)
}

// MarkFalsePositive records that a and b are not duplicates. Existing groups
// are left as they are; the exception only blocks future links.
func (e *Engine) MarkFalsePositive(ctx context.Context, a, b string) error {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return services.Wrap(services.ErrConsistencyViolation, "dedup", "mark_false_positive",
			fmt.Sprintf("cannot except %q from itself", a), nil)
	}
	err := e.store.WithTx(ctx, func(tx *catalog.Tx) error {
		for _, name := range []string{a, b} {
			if _, err := tx.MustGetItem(ctx, "mark_false_positive", name); err != nil {
				return err
			}
		}
		return tx.AddPairException(ctx, a, b)
	})
	if err != nil {
		return err
	}
	e.logger.Info("pair marked as not duplicate",
		logging.String("filename_a", a),
		logging.String("filename_b", b),
		logging.String(logging.FieldEventType, "pair_exception_added"))
	return nil
}

// RemovePairException deletes the exception between a and b. It reports
// whether an exception existed. Existing groups are not re-evaluated.
func (e *Engine) RemovePairException(ctx context.Context, a, b string) (bool, error) {
	var removed bool
	err := e.store.WithTx(ctx, func(tx *catalog.Tx) error {
		var err error
		removed, err = tx.RemovePairException(ctx, a, b)
		return err
	})
	return removed, err
}

// ListPairExceptions returns every recorded exception.
func (e *Engine) ListPairExceptions(ctx context.Context) ([]catalog.PairException, error) {
	return e.store.ListPairExceptions(ctx)
}

// Neighbor is a co-member of an item's group.
type Neighbor struct {
	Item     *catalog.Item `json:"item"`
	Distance int           `json:"distance"`
}

// Neighborhood is an item and its group co-members.
type Neighborhood struct {
	Primary   *catalog.Item `json:"primary"`
	Neighbors []Neighbor    `json:"neighbors"`
}

// DuplicatesOf returns the group co-members of filename ordered by distance,
// then filename.
func (e *Engine) DuplicatesOf(ctx context.Context, filename string) (*Neighborhood, error) {
	item, err := e.store.GetItem(ctx, filename)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.MissingItem("dedup", "duplicates_of", filename)
	}
	result := &Neighborhood{Primary: item, Neighbors: []Neighbor{}}
	if item.IsFalsePositive || !item.HasFingerprint() || item.GroupID == "" {
		return result, nil
	}
	fp := fingerprint.Fingerprint(*item.Fingerprint)

	members, err := e.store.GroupMembers(ctx, item.GroupID)
	if err != nil {
		return nil, err
	}
	for _, name := range members {
		if name == filename {
			continue
		}
		other, err := e.store.GetItem(ctx, name)
		if err != nil {
			return nil, err
		}
		if other == nil || !other.HasFingerprint() {
			continue
		}
		result.Neighbors = append(result.Neighbors, Neighbor{
			Item:     other,
			Distance: fingerprint.Distance(fp, fingerprint.Fingerprint(*other.Fingerprint)),
		})
	}
	sort.Slice(result.Neighbors, func(i, j int) bool {
		a, b := result.Neighbors[i], result.Neighbors[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Item.Filename < b.Item.Filename
	})
	return result, nil
}

// GroupSummary is a group with its member count.
type GroupSummary struct {
	GroupID string   `json:"group_id"`
	Members []string `json:"members"`
	Count   int      `json:"count"`
}

// AllGroups lists every group ordered by ID.
func (e *Engine) AllGroups(ctx context.Context) ([]GroupSummary, error) {
	groups, err := e.store.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		out = append(out, GroupSummary{GroupID: g.GroupID, Members: g.Members, Count: g.Count()})
	}
	return out, nil
}
