package catalog

import (
	"context"
	"fmt"
)

// AddPairException records that a and b must not share a group. Recording an
// existing pair is a no-op.
func (t *Tx) AddPairException(ctx context.Context, a, b string) error {
	first, second := OrderedPair(a, b)
	if _, err := t.exec(ctx, `INSERT INTO pair_exceptions (filename_a, filename_b, created_at) VALUES (?, ?, ?)
        ON CONFLICT(filename_a, filename_b) DO NOTHING`, first, second, t.timestamp()); err != nil {
		return fmt.Errorf("add pair exception %s/%s: %w", first, second, err)
	}
	return nil
}

// HasPairException reports whether a and b were marked as not duplicates.
func (t *Tx) HasPairException(ctx context.Context, a, b string) (bool, error) {
	first, second := OrderedPair(a, b)
	var count int
	if err := t.q.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1) FROM pair_exceptions WHERE filename_a = ? AND filename_b = ?", first, second).Scan(&count); err != nil {
		return false, fmt.Errorf("check pair exception: %w", err)
	}
	return count > 0, nil
}

// ExceptionPartners returns every filename excepted against filename.
func (t *Tx) ExceptionPartners(ctx context.Context, filename string) (map[string]struct{}, error) {
	rows, err := t.q.QueryContext(ensureContext(ctx), `SELECT filename_b FROM pair_exceptions WHERE filename_a = ?
        UNION SELECT filename_a FROM pair_exceptions WHERE filename_b = ?`, filename, filename)
	if err != nil {
		return nil, fmt.Errorf("exception partners of %s: %w", filename, err)
	}
	defer rows.Close()
	partners := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		partners[name] = struct{}{}
	}
	return partners, rows.Err()
}

// RemovePairException deletes the exception between a and b and reports
// whether one existed.
func (t *Tx) RemovePairException(ctx context.Context, a, b string) (bool, error) {
	first, second := OrderedPair(a, b)
	res, err := t.exec(ctx, "DELETE FROM pair_exceptions WHERE filename_a = ? AND filename_b = ?", first, second)
	if err != nil {
		return false, fmt.Errorf("remove pair exception: %w", err)
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

// ListPairExceptions returns all exceptions ordered by pair.
func (t *Tx) ListPairExceptions(ctx context.Context) ([]PairException, error) {
	rows, err := t.q.QueryContext(ensureContext(ctx),
		"SELECT filename_a, filename_b, created_at FROM pair_exceptions ORDER BY filename_a, filename_b")
	if err != nil {
		return nil, fmt.Errorf("list pair exceptions: %w", err)
	}
	defer rows.Close()
	var out []PairException
	for rows.Next() {
		var pe PairException
		var createdRaw string
		if err := rows.Scan(&pe.FilenameA, &pe.FilenameB, &createdRaw); err != nil {
			return nil, err
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			pe.CreatedAt = created
		}
		out = append(out, pe)
	}
	return out, rows.Err()
}

// ListPairExceptions returns all exceptions ordered by pair.
func (s *Store) ListPairExceptions(ctx context.Context) ([]PairException, error) {
	return s.reader().ListPairExceptions(ctx)
}

// HasExceptionBetween reports whether any name in left carries a pair
// exception with any name in right. Exceptions inside one side are ignored.
func (t *Tx) HasExceptionBetween(ctx context.Context, left, right []string) (bool, error) {
	left, right = sortedUnique(left), sortedUnique(right)
	if len(left) == 0 || len(right) == 0 {
		return false, nil
	}
	lp, rp := makePlaceholders(len(left)), makePlaceholders(len(right))
	args := append(stringArgs(left), stringArgs(right)...)
	args = append(args, stringArgs(right)...)
	args = append(args, stringArgs(left)...)
	var count int
	if err := t.q.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1) FROM pair_exceptions WHERE (filename_a IN ("+lp+") AND filename_b IN ("+rp+"))"+
			" OR (filename_a IN ("+rp+") AND filename_b IN ("+lp+"))",
		args...).Scan(&count); err != nil {
		return false, fmt.Errorf("check exceptions between sets: %w", err)
	}
	return count > 0, nil
}
