package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"memecat/internal/catalog"
	"memecat/internal/fingerprint"
	"memecat/internal/logging"
	"memecat/internal/services"
)

// ListingEntry is one record of the exported listing.
type ListingEntry struct {
	Filename    string   `json:"filename"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Text        string   `json:"text"`
	Fingerprint string   `json:"fingerprint,omitempty"`
	GroupID     string   `json:"duplicate_group_id,omitempty"`
}

// BuildListing renders every catalog item as the listing export document.
func (o *Orchestrator) BuildListing(ctx context.Context) ([]byte, int, error) {
	items, err := o.store.ListItems(ctx, catalog.ItemFilter{})
	if err != nil {
		return nil, 0, err
	}
	entries := make([]ListingEntry, 0, len(items))
	for _, item := range items {
		entry := ListingEntry{
			Filename:    item.Filename,
			Category:    item.Category,
			Description: item.Description,
			Keywords:    item.Keywords,
			Text:        item.TextInImage,
			GroupID:     item.GroupID,
		}
		if entry.Keywords == nil {
			entry.Keywords = []string{}
		}
		if item.HasFingerprint() {
			entry.Fingerprint = fingerprint.Fingerprint(*item.Fingerprint).String()
		}
		entries = append(entries, entry)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, 0, fmt.Errorf("encode listing: %w", err)
	}
	return data, len(entries), nil
}

// ExportListing uploads the listing document to the remote root and returns
// the number of entries written.
func (o *Orchestrator) ExportListing(ctx context.Context) (int, error) {
	if o.uploader == nil {
		return 0, services.Wrap(services.ErrConfiguration, "workflow", "export", "no listing uploader configured", nil)
	}
	data, count, err := o.BuildListing(ctx)
	if err != nil {
		return 0, err
	}
	if err := o.uploader.Upload(ctx, o.listingName, data); err != nil {
		return 0, fmt.Errorf("upload %s: %w", o.listingName, err)
	}
	o.logger.Info("listing exported",
		logging.String("name", o.listingName),
		logging.Int("entries", count),
		logging.Int("bytes", len(data)),
		logging.String(logging.FieldEventType, "listing_exported"))
	return count, nil
}
