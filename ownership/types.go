/*
Package ownership provides per-student cosmetic ownership records.

PURPOSE:
  Tracks which cosmetics a student has redeemed and which one is currently
  equipped per category. Two invariants live here:

  1. UNIQUENESS: (student_id, item_id) is unique - a student cannot own
     the same item twice. Enforced by InsertIfAbsent.
  2. EQUIP EXCLUSIVITY: per student and category, at most one record has
     Equipped=true AFTER EVERY equip operation, not just eventually.
     Enforced by SetEquippedExclusive as a single atomic operation.

WHY CATEGORY ON THE RECORD?
  Category is copied from the catalog item at purchase time so that equip
  exclusivity can be enforced by the store in one operation, without a
  join back to the catalog inside the write path. The catalog item is
  immutable, so the copy cannot drift.

LIFECYCLE:
  Records are born at purchase, mutated only by equip/unequip, and never
  deleted in normal operation (no refunds modeled).

SEE ALSO:
  - store/sqlite: Production implementation (student_cosmetics table)
  - store/memory: In-memory implementation for tests
  - redemption/engine.go: The only writer
*/
package ownership

import (
	"context"
	"errors"
	"time"

	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/ledger"
)

// =============================================================================
// OWNERSHIP RECORD
// =============================================================================

// Record is one redeemed cosmetic for one student.
type Record struct {
	StudentID  ledger.StudentID
	ItemID     catalog.ItemID
	Category   catalog.Category
	Equipped   bool
	AcquiredAt time.Time
}

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrAlreadyOwned is returned by InsertIfAbsent when the student
	// already owns the item. Idempotent rejection: no state changes.
	ErrAlreadyOwned = errors.New("item already owned")

	// ErrNotOwned is returned by equip operations on items the student
	// does not own.
	ErrNotOwned = errors.New("item not owned")
)

// =============================================================================
// STORE - Persistence contract
// =============================================================================

// Store persists ownership records.
type Store interface {
	// InsertIfAbsent creates the record, failing with ErrAlreadyOwned if
	// (StudentID, ItemID) already exists. No other action is taken on
	// failure.
	InsertIfAbsent(ctx context.Context, rec Record) error

	// Get returns the record for (studentID, itemID), or ErrNotOwned.
	Get(ctx context.Context, studentID ledger.StudentID, itemID catalog.ItemID) (Record, error)

	// ListByStudent returns all records for a student.
	ListByStudent(ctx context.Context, studentID ledger.StudentID) ([]Record, error)

	// List returns every record. Used by the consistency audit.
	List(ctx context.Context) ([]Record, error)

	// SetEquippedExclusive atomically clears Equipped on every record of
	// the student in the given category and sets it on itemID. The
	// exclusivity invariant holds when this returns, under arbitrary
	// interleaving with other sessions of the same student.
	SetEquippedExclusive(ctx context.Context, studentID ledger.StudentID, category catalog.Category, itemID catalog.ItemID) error

	// SetUnequipped clears the Equipped flag on a single record.
	SetUnequipped(ctx context.Context, studentID ledger.StudentID, itemID catalog.ItemID) error
}
