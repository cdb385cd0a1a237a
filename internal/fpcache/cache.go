package fpcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"memecat/internal/fingerprint"
	"memecat/internal/logging"
)

var bucketName = []byte("fingerprints")

const openTimeout = 5 * time.Second

// Entry is a persisted memo record.
type Entry struct {
	Fingerprint string    `json:"fingerprint"`
	CachedAt    time.Time `json:"cached_at"`
}

// Computer is the fallback used on a memo miss.
type Computer interface {
	Compute(ctx context.Context, data []byte, kind fingerprint.MediaKind) (fingerprint.Fingerprint, error)
}

// Cache maps content hashes to fingerprints.
type Cache struct {
	path   string
	logger *slog.Logger
	db     *bbolt.DB
}

// Open opens or creates the memo at path. An empty path yields a disabled cache.
func Open(path string, logger *slog.Logger) (*Cache, error) {
	logger = logging.NewComponentLogger(logger, "fpcache")
	c := &Cache{path: path, logger: logger}
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("open fingerprint cache: %w", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache bucket: %w", err)
	}
	c.db = db
	return c, nil
}

// Enabled reports whether the cache persists anything.
func (c *Cache) Enabled() bool {
	return c != nil && c.db != nil
}

// Close releases the database file.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.db.Close()
}

// HashContent returns the hex sha256 digest used as the memo key.
func HashContent(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Lookup returns the fingerprint memoized for contentHash.
func (c *Cache) Lookup(contentHash string) (fingerprint.Fingerprint, bool) {
	if !c.Enabled() || contentHash == "" {
		return 0, false
	}
	var entry Entry
	found := false
	err := c.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketName).Get([]byte(contentHash))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &entry)
	})
	if err != nil || !found {
		if err != nil {
			c.logger.Debug("fingerprint cache entry unreadable", logging.String("content_hash", contentHash), logging.Error(err))
		}
		return 0, false
	}
	fp, err := fingerprint.Parse(entry.Fingerprint)
	if err != nil {
		return 0, false
	}
	return fp, true
}

// Store memoizes fp for contentHash.
func (c *Cache) Store(contentHash string, fp fingerprint.Fingerprint) error {
	if contentHash == "" {
		return errors.New("content hash cannot be empty")
	}
	if !c.Enabled() {
		return nil
	}
	data, err := json.Marshal(Entry{Fingerprint: fp.String(), CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(contentHash), data)
	})
}

// Count returns the number of memoized fingerprints.
func (c *Cache) Count() int {
	if !c.Enabled() {
		return 0
	}
	count := 0
	_ = c.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(bucketName).Stats().KeyN
		return nil
	})
	return count
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	if !c.Enabled() {
		return nil
	}
	return c.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
}

// Compute returns the fingerprint for data together with its content hash,
// consulting the memo first unless bypass is set. Fresh results are stored;
// a failed store is logged and does not fail the computation.
func (c *Cache) Compute(ctx context.Context, computer Computer, data []byte, kind fingerprint.MediaKind, bypass bool) (fingerprint.Fingerprint, string, error) {
	contentHash := HashContent(data)
	if !bypass {
		if fp, ok := c.Lookup(contentHash); ok {
			c.logger.Debug("fingerprint cache hit", logging.String("content_hash", contentHash))
			return fp, contentHash, nil
		}
	}
	fp, err := computer.Compute(ctx, data, kind)
	if err != nil {
		return 0, contentHash, err
	}
	if err := c.Store(contentHash, fp); err != nil {
		logging.WarnWithContext(c.logger, "fingerprint cache store failed", "fpcache_store_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the data directory"),
			logging.String(logging.FieldImpact, "fingerprint will be recomputed next time"))
	}
	return fp, contentHash, nil
}
