package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const runColumns = "id, started_at, ended_at, status, added, updated, removed, pending_removal, failed, skipped, error"

func scanRun(scanner interface{ Scan(dest ...any) error }) (*SyncRun, error) {
	var (
		run        SyncRun
		startedRaw string
		endedRaw   sql.NullString
		status     string
		errMsg     sql.NullString
	)
	if err := scanner.Scan(&run.ID, &startedRaw, &endedRaw, &status, &run.Added, &run.Updated,
		&run.Removed, &run.PendingRemoval, &run.Failed, &run.Skipped, &errMsg); err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)
	run.Error = errMsg.String
	if started, err := parseTimeString(startedRaw); err == nil {
		run.StartedAt = started
	}
	if endedRaw.Valid {
		if ended, err := parseTimeString(endedRaw.String); err == nil {
			run.EndedAt = &ended
		}
	}
	return &run, nil
}

// SaveRun inserts or replaces a sync run record.
func (s *Store) SaveRun(ctx context.Context, run *SyncRun) error {
	if run == nil || run.ID == "" {
		return errors.New("save run: id is required")
	}
	return s.WithTx(ctx, func(tx *Tx) error {
		_, err := tx.exec(ctx, `INSERT INTO sync_runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET ended_at = excluded.ended_at, status = excluded.status,
                added = excluded.added, updated = excluded.updated, removed = excluded.removed,
                pending_removal = excluded.pending_removal, failed = excluded.failed,
                skipped = excluded.skipped, error = excluded.error`,
			run.ID,
			formatTime(run.StartedAt),
			nullableTime(run.EndedAt),
			string(run.Status),
			run.Added,
			run.Updated,
			run.Removed,
			run.PendingRemoval,
			run.Failed,
			run.Skipped,
			nullableString(run.Error),
		)
		if err != nil {
			return fmt.Errorf("save run %s: %w", run.ID, err)
		}
		return nil
	})
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		"SELECT "+runColumns+" FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var runs []*SyncRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun returns a run by ID, or nil when unknown.
func (s *Store) GetRun(ctx context.Context, id string) (*SyncRun, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), "SELECT "+runColumns+" FROM sync_runs WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return run, err
}

// Stats summarizes catalog contents for status displays.
type Stats struct {
	Items          int `json:"items"`
	Processed      int `json:"processed"`
	Fingerprinted  int `json:"fingerprinted"`
	Unsupported    int `json:"unsupported"`
	PendingRemoval int `json:"pending_removal"`
	Groups         int `json:"groups"`
	Grouped        int `json:"grouped"`
	PairExceptions int `json:"pair_exceptions"`
}

// Stats counts items, groups and exceptions.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	ctx = ensureContext(ctx)
	err := s.db.QueryRowContext(ctx, `SELECT
            COUNT(1),
            COALESCE(SUM(processed), 0),
            COALESCE(SUM(fingerprint IS NOT NULL), 0),
            COALESCE(SUM(status = 'unsupported'), 0),
            COALESCE(SUM(missing_count > 0), 0)
        FROM items`).Scan(&st.Items, &st.Processed, &st.Fingerprinted, &st.Unsupported, &st.PendingRemoval)
	if err != nil {
		return st, fmt.Errorf("item stats: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `SELECT
            (SELECT COUNT(1) FROM duplicate_groups),
            (SELECT COUNT(1) FROM group_members),
            (SELECT COUNT(1) FROM pair_exceptions)`).Scan(&st.Groups, &st.Grouped, &st.PairExceptions)
	if err != nil {
		return st, fmt.Errorf("group stats: %w", err)
	}
	return st, nil
}
