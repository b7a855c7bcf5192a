/*
Package catalog provides the cosmetic item catalog consumed by the
redemption engine.

PURPOSE:
  Holds the set of purchasable cosmetic items. The catalog is authored
  externally (admin tooling); from the engine's perspective it is a
  read-only collection of priced, categorized items.

KEY CONCEPTS:
  - CosmeticItem: A purchasable cosmetic with a point cost and a category
  - Category: The partition within which equip exclusivity is enforced
    (e.g., at most one equipped frame, at most one equipped background)
  - Active flag: Only active items are offered; deactivation takes effect
    immediately, including for purchases already selected in a client

DESIGN PRINCIPLES:
  1. Immutability: Items never change from the engine's point of view
  2. Type Safety: ItemID and Category are distinct string types
  3. Read-only: The engine exposes no write operations on the catalog

SEE ALSO:
  - store/sqlite: Production catalog backed by the cosmetics table
  - store/memory: In-memory catalog for tests
*/
package catalog

import (
	"context"
	"errors"
)

// ErrItemNotFound is returned by Item for unknown IDs.
var ErrItemNotFound = errors.New("item not found")

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ItemID string
type Category string

// Common categories. The set is open: catalog authoring may introduce new
// categories without engine changes; exclusivity is enforced per category
// string, whatever it is.
const (
	CategoryFrame      Category = "frame"
	CategoryBackground Category = "background"
	CategoryBadge      Category = "badge"
	CategoryAvatar     Category = "avatar"
)

// =============================================================================
// COSMETIC ITEM
// =============================================================================

// CosmeticItem is a purchasable cosmetic. Cost is a non-negative whole
// number of points. Only active items are offered or purchasable.
type CosmeticItem struct {
	ID       ItemID
	Name     string
	Category Category
	Cost     int64
	Active   bool
	ImageURL string
}

// =============================================================================
// CATALOG - Read contract consumed by the engine
// =============================================================================

// Catalog is the read-only view of the cosmetics collection.
// Order of ListActive results is irrelevant to correctness.
type Catalog interface {
	// ListActive returns all active items.
	ListActive(ctx context.Context) ([]CosmeticItem, error)

	// Item returns an item by ID regardless of active state, or
	// ErrItemNotFound. Callers that require purchasability must check
	// Active themselves; the engine re-checks it inside the purchase
	// transaction.
	Item(ctx context.Context, id ItemID) (CosmeticItem, error)
}
