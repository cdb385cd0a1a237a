// Package merge folds near-duplicate items into a chosen primary and records
// "not a duplicate" decisions.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"memecat/internal/catalog"
	"memecat/internal/dedup"
	"memecat/internal/logging"
	"memecat/internal/services"
)

// RemoteDeleter removes files from the remote store.
type RemoteDeleter interface {
	Delete(ctx context.Context, remotePath string) error
}

// Request names the primary to keep, the duplicates to delete, and the items
// whose metadata should be folded into the primary. When MetadataSources is
// empty the duplicates are used.
type Request struct {
	Primary         string   `json:"primary"`
	Duplicates      []string `json:"duplicates"`
	MetadataSources []string `json:"metadata_sources,omitempty"`
}

// RemoteError reports a remote deletion that failed after the catalog commit.
type RemoteError struct {
	Filename   string `json:"filename"`
	RemotePath string `json:"remote_path"`
	Error      string `json:"error"`
}

// Result describes a completed merge.
type Result struct {
	Primary       *catalog.Item `json:"primary"`
	Deleted       []string      `json:"deleted"`
	Dissolved     []string      `json:"dissolved_groups,omitempty"`
	RemoteDeleted []string      `json:"remote_deleted,omitempty"`
	RemoteErrors  []RemoteError `json:"remote_errors,omitempty"`
}

// Coordinator runs merges and not-duplicate decisions against the catalog.
type Coordinator struct {
	engine       *dedup.Engine
	remote       RemoteDeleter
	deleteRemote bool
	logger       *slog.Logger
}

// NewCoordinator builds a coordinator. remote may be nil, in which case merges
// only touch the catalog.
func NewCoordinator(engine *dedup.Engine, remote RemoteDeleter, deleteRemote bool, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		engine:       engine,
		remote:       remote,
		deleteRemote: deleteRemote && remote != nil,
		logger:       logging.NewComponentLogger(logger, "merge"),
	}
}

// Merge applies req atomically: the primary absorbs keywords and backfills
// empty fields from the metadata sources, and every duplicate is deleted.
// Any missing filename aborts the merge with the catalog unchanged.
func (c *Coordinator) Merge(ctx context.Context, req Request) (*Result, error) {
	primaryName := strings.TrimSpace(req.Primary)
	duplicates := uniqueNames(req.Duplicates)
	sources := uniqueNames(req.MetadataSources)
	if len(sources) == 0 {
		sources = duplicates
	}
	if primaryName == "" {
		return nil, services.Wrap(services.ErrConsistencyViolation, "merge", "validate", "primary is required", nil)
	}
	if len(duplicates) == 0 {
		return nil, services.Wrap(services.ErrConsistencyViolation, "merge", "validate", "at least one duplicate is required", nil)
	}
	for _, name := range duplicates {
		if name == primaryName {
			return nil, services.Wrap(services.ErrConsistencyViolation, "merge", "validate",
				fmt.Sprintf("primary %q is listed as a duplicate", primaryName), nil)
		}
	}

	result := &Result{}
	remotePaths := make(map[string]string, len(duplicates))
	err := c.engine.Store().WithTx(ctx, func(tx *catalog.Tx) error {
		primary, err := tx.MustGetItem(ctx, "merge", primaryName)
		if err != nil {
			return err
		}
		for _, name := range duplicates {
			dup, err := tx.MustGetItem(ctx, "merge", name)
			if err != nil {
				return err
			}
			remotePaths[name] = dup.RemotePath
		}
		donors := make([]*catalog.Item, 0, len(sources))
		for _, name := range sources {
			if name == primaryName {
				continue
			}
			donor, err := tx.MustGetItem(ctx, "merge", name)
			if err != nil {
				return err
			}
			donors = append(donors, donor)
		}

		merged := absorb(primary, donors)
		patch := catalog.ItemPatch{
			Description: &merged.Description,
			Category:    &merged.Category,
			Keywords:    &merged.Keywords,
			TextInImage: &merged.TextInImage,
		}
		updated, err := tx.ApplyPatch(ctx, primaryName, patch)
		if err != nil {
			return err
		}
		dissolved, err := c.engine.RemoveItems(ctx, tx, duplicates)
		if err != nil {
			return err
		}
		// Re-read so the primary reflects any dissolved group.
		if updated, err = tx.GetItem(ctx, primaryName); err != nil {
			return err
		}
		result.Primary = updated
		result.Dissolved = dissolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.Deleted = duplicates

	c.logger.Info("duplicates merged",
		logging.String(logging.FieldFilename, primaryName),
		logging.Int("deleted", len(duplicates)),
		logging.Int("keywords", len(result.Primary.Keywords)),
		logging.Int("dissolved_groups", len(result.Dissolved)),
		logging.String(logging.FieldEventType, "merge_completed"))

	if c.deleteRemote {
		c.deleteRemoteFiles(ctx, duplicates, remotePaths, result)
	}
	return result, nil
}

func (c *Coordinator) deleteRemoteFiles(ctx context.Context, names []string, paths map[string]string, result *Result) {
	for _, name := range names {
		remotePath := paths[name]
		if err := c.remote.Delete(ctx, remotePath); err != nil {
			result.RemoteErrors = append(result.RemoteErrors, RemoteError{Filename: name, RemotePath: remotePath, Error: err.Error()})
			logging.WarnWithContext(c.logger, "remote delete after merge failed", "merge_remote_delete_failed",
				logging.String(logging.FieldFilename, name),
				logging.String("remote_path", remotePath),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "delete the file manually or it will be re-added on the next sync"),
				logging.String(logging.FieldImpact, "catalog merge kept; remote file remains"))
			continue
		}
		result.RemoteDeleted = append(result.RemoteDeleted, name)
	}
}

// absorb returns the primary's metadata after folding donors in. Keywords are
// the exact-string union in order of first appearance, primary first, so every
// donor keyword survives as stored. Empty
// description, category, and text fields are backfilled from the first donor
// that has one.
func absorb(primary *catalog.Item, donors []*catalog.Item) catalog.Item {
	merged := *primary
	seen := make(map[string]struct{})
	keywords := make([]string, 0, len(primary.Keywords))
	add := func(values []string) {
		for _, kw := range values {
			if strings.TrimSpace(kw) == "" {
				continue
			}
			if _, dup := seen[kw]; dup {
				continue
			}
			seen[kw] = struct{}{}
			keywords = append(keywords, kw)
		}
	}
	add(primary.Keywords)
	for _, donor := range donors {
		add(donor.Keywords)
		if strings.TrimSpace(merged.Description) == "" {
			merged.Description = donor.Description
		}
		if strings.TrimSpace(merged.Category) == "" {
			merged.Category = donor.Category
		}
		if strings.TrimSpace(merged.TextInImage) == "" {
			merged.TextInImage = donor.TextInImage
		}
	}
	merged.Keywords = keywords
	return merged
}

// MarkNotDuplicate excepts filename against its current co-members, removes
// it from its group, and excludes it from future clustering.
func (c *Coordinator) MarkNotDuplicate(ctx context.Context, filename string) (*catalog.Item, error) {
	filename = strings.TrimSpace(filename)
	var (
		item      *catalog.Item
		group     string
		dissolved bool
		excepted  int
	)
	err := c.engine.Store().WithTx(ctx, func(tx *catalog.Tx) error {
		current, err := tx.MustGetItem(ctx, "mark_not_duplicate", filename)
		if err != nil {
			return err
		}
		group = current.GroupID
		if group != "" {
			members, err := tx.GroupMembers(ctx, group)
			if err != nil {
				return err
			}
			for _, member := range members {
				if member == filename {
					continue
				}
				if err := tx.AddPairException(ctx, filename, member); err != nil {
					return err
				}
				excepted++
			}
			if _, err := tx.RemoveMember(ctx, filename); err != nil {
				return err
			}
			if dissolved, err = tx.DissolveIfUndersized(ctx, group); err != nil {
				return err
			}
		}
		if err := tx.SetFalsePositive(ctx, filename, true); err != nil {
			return err
		}
		c.engine.Forget(filename)
		item, err = tx.GetItem(ctx, filename)
		return err
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info("item marked as not duplicate",
		logging.String(logging.FieldFilename, filename),
		logging.String(logging.FieldGroupID, group),
		logging.Int("exceptions", excepted),
		logging.Bool("group_dissolved", dissolved),
		logging.String(logging.FieldEventType, "mark_not_duplicate"))
	return item, nil
}

func uniqueNames(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
