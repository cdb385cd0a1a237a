package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"memecat/internal/services"
)

// GetItem returns the item for filename, or nil when it does not exist.
func (t *Tx) GetItem(ctx context.Context, filename string) (*Item, error) {
	row := t.q.QueryRowContext(ensureContext(ctx),
		"SELECT "+itemColumns+" FROM "+itemFrom+" WHERE i.filename = ?", filename)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", filename, err)
	}
	return item, nil
}

// MustGetItem returns the item or a consistency violation naming the missing filename.
func (t *Tx) MustGetItem(ctx context.Context, op, filename string) (*Item, error) {
	item, err := t.GetItem(ctx, filename)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.MissingItem("catalog", op, filename)
	}
	return item, nil
}

// ListItems returns items ordered by filename.
func (t *Tx) ListItems(ctx context.Context, filter ItemFilter) ([]*Item, error) {
	var (
		where []string
		args  []any
	)
	if category := strings.TrimSpace(filter.Category); category != "" {
		where = append(where, "i.category = ?")
		args = append(args, category)
	}
	if filter.Unprocessed {
		where = append(where, "(i.processed = 0 OR i.fingerprint IS NULL)")
	}
	if filter.GroupedOnly {
		where = append(where, "gm.group_id IS NOT NULL")
	}

	query := "SELECT " + itemColumns + " FROM " + itemFrom
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.filename"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := t.q.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Snapshot returns the reconciliation view of every item, ordered by filename.
func (t *Tx) Snapshot(ctx context.Context) ([]SnapshotEntry, error) {
	rows, err := t.q.QueryContext(ensureContext(ctx), `SELECT filename, remote_path, size, remote_modified_at,
        processed, fingerprint IS NOT NULL, status, attempts, missing_count
        FROM items ORDER BY filename`)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer rows.Close()

	var entries []SnapshotEntry
	for rows.Next() {
		var (
			entry       SnapshotEntry
			modifiedRaw sql.NullString
			processed   int
			hasFP       int
			status      string
		)
		if err := rows.Scan(&entry.Filename, &entry.RemotePath, &entry.Size, &modifiedRaw,
			&processed, &hasFP, &status, &entry.Attempts, &entry.MissingCount); err != nil {
			return nil, err
		}
		if modified, err := parseTimeString(modifiedRaw.String); err == nil {
			entry.RemoteModifiedAt = modified
		}
		entry.Processed = processed != 0
		entry.HasFingerprint = hasFP != 0
		entry.Status = Status(status)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// IndexEntries returns every fingerprinted item that participates in clustering.
func (t *Tx) IndexEntries(ctx context.Context) ([]IndexEntry, error) {
	rows, err := t.q.QueryContext(ensureContext(ctx),
		"SELECT filename, fingerprint FROM items WHERE fingerprint IS NOT NULL AND is_false_positive = 0 ORDER BY filename")
	if err != nil {
		return nil, fmt.Errorf("index entries: %w", err)
	}
	defer rows.Close()

	var entries []IndexEntry
	for rows.Next() {
		var (
			name string
			fp   int64
		)
		if err := rows.Scan(&name, &fp); err != nil {
			return nil, err
		}
		entries = append(entries, IndexEntry{Filename: name, Fingerprint: uint64(fp)})
	}
	return entries, rows.Err()
}

// UpsertRemote inserts a new pending item or refreshes the remote metadata of
// an existing one. A metadata change clears failure bookkeeping so the item is
// processed again. The boolean result reports whether a row was created.
func (t *Tx) UpsertRemote(ctx context.Context, meta RemoteMeta) (*Item, bool, error) {
	if strings.TrimSpace(meta.Filename) == "" {
		return nil, false, services.Wrap(services.ErrValidation, "catalog", "upsert", "filename is required", nil)
	}
	existing, err := t.GetItem(ctx, meta.Filename)
	if err != nil {
		return nil, false, err
	}
	now := t.timestamp()
	modified := formatTime(meta.ModifiedAt)

	if existing == nil {
		if _, err := t.exec(ctx, `INSERT INTO items (filename, remote_path, size, remote_modified_at, status, created_at, updated_at)
            VALUES (?, ?, ?, ?, ?, ?, ?)`,
			meta.Filename, meta.RemotePath, meta.Size, modified, StatusPending, now, now); err != nil {
			return nil, false, fmt.Errorf("insert item %s: %w", meta.Filename, err)
		}
		item, err := t.GetItem(ctx, meta.Filename)
		return item, true, err
	}

	if _, err := t.exec(ctx, `UPDATE items SET remote_path = ?, size = ?, remote_modified_at = ?,
            status = CASE WHEN status = ? THEN ? ELSE status END,
            attempts = 0, last_error = NULL, missing_count = 0,
            version = version + 1, updated_at = ?
        WHERE filename = ?`,
		meta.RemotePath, meta.Size, modified, StatusUnsupported, StatusPending, now, meta.Filename); err != nil {
		return nil, false, fmt.Errorf("refresh item %s: %w", meta.Filename, err)
	}
	item, err := t.GetItem(ctx, meta.Filename)
	return item, false, err
}

// CompareAndSwap persists processing results for item when its stored version
// still equals item.Version. On success item.Version is advanced. A changed
// version yields services.ErrConcurrentModification; a deleted row yields a
// consistency violation. Missing count and the false-positive flag are owned by
// reconciliation and user overrides and are left untouched.
func (t *Tx) CompareAndSwap(ctx context.Context, item *Item) error {
	if item == nil {
		return services.Wrap(services.ErrValidation, "catalog", "cas", "item is nil", nil)
	}
	keywords, err := encodeKeywords(item.Keywords)
	if err != nil {
		return fmt.Errorf("encode keywords: %w", err)
	}
	now := t.now()
	res, err := t.exec(ctx, `UPDATE items SET remote_path = ?, size = ?, remote_modified_at = ?, fingerprint = ?,
            description = ?, category = ?, keywords_json = ?, text_in_image = ?, processed = ?,
            status = ?, attempts = ?, last_error = ?, last_attempt_at = ?, content_hash = ?,
            version = version + 1, updated_at = ?
        WHERE filename = ? AND version = ?`,
		item.RemotePath,
		item.Size,
		formatTime(item.RemoteModifiedAt),
		nullableFingerprint(item.Fingerprint),
		item.Description,
		item.Category,
		keywords,
		item.TextInImage,
		boolToInt(item.Processed),
		string(item.Status),
		item.Attempts,
		nullableString(item.LastError),
		nullableTime(item.LastAttemptAt),
		nullableString(item.ContentHash),
		formatTime(now),
		item.Filename,
		item.Version,
	)
	if err != nil {
		return fmt.Errorf("save item %s: %w", item.Filename, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save item %s rows affected: %w", item.Filename, err)
	}
	if affected == 0 {
		current, getErr := t.GetItem(ctx, item.Filename)
		if getErr != nil {
			return getErr
		}
		if current == nil {
			return services.MissingItem("catalog", "cas", item.Filename)
		}
		return services.Wrap(services.ErrConcurrentModification, "catalog", "cas",
			fmt.Sprintf("%s changed (version %d, expected %d)", item.Filename, current.Version, item.Version), nil)
	}
	item.Version++
	item.UpdatedAt = now
	return nil
}

// RecordFailure increments the attempt counter and stores the error message.
// When unsupported is set the item is parked and no longer retried.
func (t *Tx) RecordFailure(ctx context.Context, filename, message string, unsupported bool) error {
	status := ""
	if unsupported {
		status = string(StatusUnsupported)
	}
	now := t.timestamp()
	res, err := t.exec(ctx, `UPDATE items SET attempts = attempts + 1, last_error = ?, last_attempt_at = ?,
            status = COALESCE(NULLIF(?, ''), status), version = version + 1, updated_at = ?
        WHERE filename = ?`,
		nullableString(message), now, status, now, filename)
	if err != nil {
		return fmt.Errorf("record failure for %s: %w", filename, err)
	}
	return requireAffected(res, "record_failure", filename)
}

// ApplyPatch updates user-editable metadata and returns the new item state.
func (t *Tx) ApplyPatch(ctx context.Context, filename string, patch ItemPatch) (*Item, error) {
	item, err := t.MustGetItem(ctx, "update", filename)
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return item, nil
	}
	var (
		sets []string
		args []any
	)
	if patch.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, strings.TrimSpace(*patch.Description))
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, strings.TrimSpace(*patch.Category))
	}
	if patch.Keywords != nil {
		encoded, err := encodeKeywords(*patch.Keywords)
		if err != nil {
			return nil, fmt.Errorf("encode keywords: %w", err)
		}
		sets = append(sets, "keywords_json = ?")
		args = append(args, encoded)
	}
	if patch.TextInImage != nil {
		sets = append(sets, "text_in_image = ?")
		args = append(args, strings.TrimSpace(*patch.TextInImage))
	}
	sets = append(sets, "version = version + 1", "updated_at = ?")
	args = append(args, t.timestamp(), filename)

	if _, err := t.exec(ctx, "UPDATE items SET "+strings.Join(sets, ", ")+" WHERE filename = ?", args...); err != nil {
		return nil, fmt.Errorf("update item %s: %w", filename, err)
	}
	return t.GetItem(ctx, filename)
}

// SetMissingCount sets the consecutive-miss counter for filenames.
func (t *Tx) SetMissingCount(ctx context.Context, filenames []string, count int) (int64, error) {
	filenames = sortedUnique(filenames)
	if len(filenames) == 0 {
		return 0, nil
	}
	args := append([]any{count, t.timestamp()}, stringArgs(filenames)...)
	res, err := t.exec(ctx, "UPDATE items SET missing_count = ?, version = version + 1, updated_at = ? WHERE filename IN ("+
		makePlaceholders(len(filenames))+")", args...)
	if err != nil {
		return 0, fmt.Errorf("set missing count: %w", err)
	}
	return res.RowsAffected()
}

// SetFalsePositive sets or clears the user override that excludes an item from clustering.
func (t *Tx) SetFalsePositive(ctx context.Context, filename string, value bool) error {
	res, err := t.exec(ctx, "UPDATE items SET is_false_positive = ?, version = version + 1, updated_at = ? WHERE filename = ?",
		boolToInt(value), t.timestamp(), filename)
	if err != nil {
		return fmt.Errorf("set false positive for %s: %w", filename, err)
	}
	return requireAffected(res, "false_positive", filename)
}

// DeleteItems removes items by filename. Group membership and pair
// exceptions cascade; callers must dissolve undersized groups afterwards.
func (t *Tx) DeleteItems(ctx context.Context, filenames []string) (int64, error) {
	filenames = sortedUnique(filenames)
	if len(filenames) == 0 {
		return 0, nil
	}
	res, err := t.exec(ctx, "DELETE FROM items WHERE filename IN ("+makePlaceholders(len(filenames))+")",
		stringArgs(filenames)...)
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	return res.RowsAffected()
}

func requireAffected(res sql.Result, op, filename string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return services.MissingItem("catalog", op, filename)
	}
	return nil
}

// GetItem returns the item for filename, or nil when it does not exist.
func (s *Store) GetItem(ctx context.Context, filename string) (*Item, error) {
	return s.reader().GetItem(ctx, filename)
}

// ListItems returns items ordered by filename.
func (s *Store) ListItems(ctx context.Context, filter ItemFilter) ([]*Item, error) {
	return s.reader().ListItems(ctx, filter)
}

// Snapshot returns the reconciliation view of every item.
func (s *Store) Snapshot(ctx context.Context) ([]SnapshotEntry, error) {
	return s.reader().Snapshot(ctx)
}

// IndexEntries returns every fingerprinted, non-excluded item.
func (s *Store) IndexEntries(ctx context.Context) ([]IndexEntry, error) {
	return s.reader().IndexEntries(ctx)
}

// UpsertRemote inserts or refreshes an item from remote metadata.
func (s *Store) UpsertRemote(ctx context.Context, meta RemoteMeta) (*Item, bool, error) {
	var (
		item    *Item
		created bool
	)
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		item, created, err = tx.UpsertRemote(ctx, meta)
		return err
	})
	return item, created, err
}

// CompareAndSwap persists item if nobody else wrote it since it was read.
func (s *Store) CompareAndSwap(ctx context.Context, item *Item) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.CompareAndSwap(ctx, item)
	})
}

// RecordFailure increments attempts and stores the error for filename.
func (s *Store) RecordFailure(ctx context.Context, filename, message string, unsupported bool) error {
	return s.WithTx(ctx, func(tx *Tx) error {
		return tx.RecordFailure(ctx, filename, message, unsupported)
	})
}

// ApplyPatch updates user-editable metadata.
func (s *Store) ApplyPatch(ctx context.Context, filename string, patch ItemPatch) (*Item, error) {
	var item *Item
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		item, err = tx.ApplyPatch(ctx, filename, patch)
		return err
	})
	return item, err
}

// SetMissingCount sets the consecutive-miss counter for filenames.
func (s *Store) SetMissingCount(ctx context.Context, filenames []string, count int) (int64, error) {
	var affected int64
	err := s.WithTx(ctx, func(tx *Tx) error {
		var err error
		affected, err = tx.SetMissingCount(ctx, filenames, count)
		return err
	})
	return affected, err
}
