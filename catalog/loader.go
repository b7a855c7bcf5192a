/*
loader.go - JSON catalog definitions

PURPOSE:
  Converts JSON catalog definitions into CosmeticItem values. This
  enables catalog changes without code changes - teachers and admins can
  define cosmetics in JSON, and the loader validates and imports them.

WHY JSON?
  - Non-developers can author the catalog
  - Easy integration with admin UI
  - Version control for catalog definitions

JSON SCHEMA:
  [
    {
      "id": "frame-gold",
      "name": "Gold Frame",
      "category": "frame",
      "cost": 80,
      "active": true,
      "image_url": "/assets/frames/gold.png"
    }
  ]

KEY VALIDATIONS:
  - Non-empty id and name
  - Category must be one of the known categories
  - Cost must be non-negative
  - Duplicate ids are rejected

USAGE:
  items, err := catalog.ParseItems(jsonBytes)
  // or directly into a store:
  err := catalog.LoadFile(ctx, path, store)

SEE ALSO:
  - types.go: CosmeticItem and Category definitions
  - cmd/server/main.go: -catalog flag
*/
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ItemJSON is the JSON representation of a catalog item.
type ItemJSON struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Cost     int64  `json:"cost"`
	Active   *bool  `json:"active,omitempty"` // default true
	ImageURL string `json:"image_url,omitempty"`
}

// Writer is the catalog write seam the loader imports into.
type Writer interface {
	SaveItem(ctx context.Context, item CosmeticItem) error
}

// =============================================================================
// PARSING
// =============================================================================

// ParseItems parses and validates a JSON array of catalog items.
func ParseItems(data []byte) ([]CosmeticItem, error) {
	var raw []ItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid catalog JSON: %w", err)
	}

	seen := make(map[ItemID]bool, len(raw))
	items := make([]CosmeticItem, 0, len(raw))
	for i, r := range raw {
		item, err := itemFromJSON(r)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if seen[item.ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %q", i, item.ID)
		}
		seen[item.ID] = true
		items = append(items, item)
	}
	return items, nil
}

func itemFromJSON(r ItemJSON) (CosmeticItem, error) {
	if r.ID == "" {
		return CosmeticItem{}, fmt.Errorf("missing id")
	}
	if r.Name == "" {
		return CosmeticItem{}, fmt.Errorf("missing name for %q", r.ID)
	}
	category := Category(r.Category)
	switch category {
	case CategoryFrame, CategoryBackground, CategoryBadge, CategoryAvatar:
	default:
		return CosmeticItem{}, fmt.Errorf("unknown category %q for %q", r.Category, r.ID)
	}
	if r.Cost < 0 {
		return CosmeticItem{}, fmt.Errorf("negative cost for %q", r.ID)
	}

	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return CosmeticItem{
		ID:       ItemID(r.ID),
		Name:     r.Name,
		Category: category,
		Cost:     r.Cost,
		Active:   active,
		ImageURL: r.ImageURL,
	}, nil
}

// LoadFile parses a catalog file and upserts every item into the writer.
// Items already in the store keep their id; fields are overwritten, so
// deactivating an item is a matter of flipping "active" and reloading.
func LoadFile(ctx context.Context, path string, w Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read catalog file: %w", err)
	}
	items, err := ParseItems(data)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := w.SaveItem(ctx, item); err != nil {
			return fmt.Errorf("failed to save item %q: %w", item.ID, err)
		}
	}
	return nil
}
