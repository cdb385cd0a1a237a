package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const itemColumns = "i.filename, i.remote_path, i.size, i.remote_modified_at, i.fingerprint, i.description, i.category, i.keywords_json, i.text_in_image, i.processed, i.is_false_positive, i.status, i.attempts, i.last_error, i.last_attempt_at, i.missing_count, i.content_hash, i.version, i.created_at, i.updated_at, gm.group_id"

const itemFrom = "items i LEFT JOIN group_members gm ON gm.filename = i.filename"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		filename      string
		remotePath    string
		size          int64
		modifiedRaw   sql.NullString
		fingerprint   sql.NullInt64
		description   string
		category      string
		keywordsRaw   string
		textInImage   string
		processed     int
		falsePositive int
		statusStr     string
		attempts      int
		lastError     sql.NullString
		lastAttempt   sql.NullString
		missingCount  int
		contentHash   sql.NullString
		version       int64
		createdRaw    string
		updatedRaw    string
		groupID       sql.NullString
	)
	if err := scanner.Scan(
		&filename,
		&remotePath,
		&size,
		&modifiedRaw,
		&fingerprint,
		&description,
		&category,
		&keywordsRaw,
		&textInImage,
		&processed,
		&falsePositive,
		&statusStr,
		&attempts,
		&lastError,
		&lastAttempt,
		&missingCount,
		&contentHash,
		&version,
		&createdRaw,
		&updatedRaw,
		&groupID,
	); err != nil {
		return nil, err
	}

	item := &Item{
		Filename:        filename,
		RemotePath:      remotePath,
		Size:            size,
		Description:     description,
		Category:        category,
		TextInImage:     textInImage,
		Processed:       processed != 0,
		IsFalsePositive: falsePositive != 0,
		Status:          Status(statusStr),
		Attempts:        attempts,
		LastError:       lastError.String,
		MissingCount:    missingCount,
		ContentHash:     contentHash.String,
		Version:         version,
		GroupID:         groupID.String,
	}
	if fingerprint.Valid {
		item.SetFingerprint(uint64(fingerprint.Int64))
	}
	keywords, err := decodeKeywords(keywordsRaw)
	if err != nil {
		return nil, fmt.Errorf("decode keywords for %s: %w", filename, err)
	}
	item.Keywords = keywords
	if modified, err := parseTimeString(modifiedRaw.String); err == nil {
		item.RemoteModifiedAt = modified
	}
	if lastAttempt.Valid {
		if at, err := parseTimeString(lastAttempt.String); err == nil {
			item.LastAttemptAt = &at
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func encodeKeywords(keywords []string) (string, error) {
	if len(keywords) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeKeywords(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return []string{}, nil
	}
	var keywords []string
	if err := json.Unmarshal([]byte(raw), &keywords); err != nil {
		return nil, err
	}
	if keywords == nil {
		keywords = []string{}
	}
	return keywords, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return formatTime(*value)
}

func nullableFingerprint(value *uint64) any {
	if value == nil {
		return nil
	}
	return int64(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
