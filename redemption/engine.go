/*
engine.go - Redemption engine: purchase and equip transactions

PURPOSE:
  Orchestrates the two multi-step state transitions of the points economy:

  PURCHASE (eligibility -> ownership grant -> ledger deduction):
    1. Item must exist and be active (re-checked inside the transaction;
       an item deactivated between listing and purchase is rejected)
    2. Ownership record inserted; ErrAlreadyOwned stops everything
    3. Ledger deduction re-validated against the authoritative balance
       at execution time - the client-side affordability check is
       advisory only

  EQUIP (exclusivity within one category):
    Unequips only records whose category equals the target item's
    category, then equips the target, in one atomic store operation.
    Items in other categories are untouched.

ATOMICITY:
  Purchase runs ownership insert and ledger deduct inside ONE storage
  transaction (TxStore.WithTx). Either both commit or neither does; the
  "owns it but never paid" partial-failure state cannot be produced by
  this engine. Audit exists to detect it anyway, because the stores are
  shared and a fault must surface, never be swallowed.

CONCURRENCY:
  A single-flight guard keyed by student+item serializes duplicate
  requests from rapid repeated input. Two concurrent purchases of the
  same item resolve to one success and one ErrAlreadyOwned - never two
  records, never two deductions. Client-side cancellation is advisory:
  an in-flight purchase completes server-side and is reconciled on the
  next read.

SEE ALSO:
  - ledger/service.go: Balance floor enforcement
  - ownership/types.go: Uniqueness and exclusivity contracts
  - client/view.go: Optimistic projection reconciled against results
*/
package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/ledger"
	"github.com/warp/rewards-engine/ownership"
)

// =============================================================================
// TRANSACTIONAL STORE - Atomic access to both mutable stores
// =============================================================================

// Stores bundles the stores visible inside one storage transaction.
// Catalog reads made through it see the same consistent state the
// writes commit against.
type Stores struct {
	Catalog   catalog.Catalog
	Ownership ownership.Store
	Ledger    ledger.Store
}

// TxStore executes fn within a single atomic transaction spanning the
// ownership table and the points ledger. If fn returns an error, every
// write made through the Stores handle is rolled back.
type TxStore interface {
	WithTx(ctx context.Context, fn func(Stores) error) error
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates purchase and equip transactions.
type Engine struct {
	Tx TxStore

	guard *Guard
}

func NewEngine(tx TxStore) *Engine {
	return &Engine{
		Tx:    tx,
		guard: NewGuard(),
	}
}

// PurchaseResult is returned on a successful purchase.
type PurchaseResult struct {
	Record     ownership.Record
	CostPaid   ledger.Amount
	NewBalance ledger.Amount
}

// =============================================================================
// PURCHASE
// =============================================================================

// Purchase redeems itemID for studentID.
//
// On success the ownership set gains exactly one unequipped entry and the
// balance decreases by the item's cost; no equip state changes. On any
// failure, neither store is mutated.
func (e *Engine) Purchase(ctx context.Context, studentID ledger.StudentID, itemID catalog.ItemID) (PurchaseResult, error) {
	release := e.guard.Acquire(flightKey(studentID, itemID))
	defer release()

	var result PurchaseResult
	err := e.Tx.WithTx(ctx, func(s Stores) error {
		// Re-fetch the item inside the transaction. Listing happened
		// earlier on the client; active state must hold now.
		item, err := s.Catalog.Item(ctx, itemID)
		if err != nil {
			return err
		}
		if !item.Active {
			return fmt.Errorf("%w: %s", ErrItemInactive, item.ID)
		}

		rec := ownership.Record{
			StudentID:  studentID,
			ItemID:     item.ID,
			Category:   item.Category,
			Equipped:   false,
			AcquiredAt: time.Now().UTC(),
		}
		if err := s.Ownership.InsertIfAbsent(ctx, rec); err != nil {
			return err
		}

		// Deduct after the insert so a duplicate purchase fails before
		// touching the ledger. The shared transaction makes the order
		// irrelevant for atomicity, but it keeps the cheap rejection
		// path write-free.
		svc := ledger.NewService(s.Ledger)
		newBalance, err := svc.Deduct(ctx, studentID, ledger.Points(item.Cost),
			"redeem_"+item.Name, string(item.ID), purchaseIdempotencyKey(studentID, itemID))
		if err != nil {
			return err
		}

		result = PurchaseResult{Record: rec, CostPaid: ledger.Points(item.Cost), NewBalance: newBalance}
		return nil
	})
	if err != nil {
		return PurchaseResult{}, err
	}
	return result, nil
}

// purchaseIdempotencyKey is derived from the action, not generated per
// attempt: a retried purchase of the same item maps to the same ledger
// write and cannot double-charge. Ownership is permanent, so the key
// never needs to be reusable.
func purchaseIdempotencyKey(studentID ledger.StudentID, itemID catalog.ItemID) string {
	return fmt.Sprintf("purchase:%s:%s", studentID, itemID)
}

func flightKey(studentID ledger.StudentID, itemID catalog.ItemID) string {
	return string(studentID) + ":" + string(itemID)
}

// =============================================================================
// EQUIP / UNEQUIP
// =============================================================================

// Equip makes itemID the equipped cosmetic of its category for studentID.
//
// Exclusivity is scoped to the item's category: the previously equipped
// item of the SAME category (if any) is unequipped; items in other
// categories keep their state. At most two records change.
func (e *Engine) Equip(ctx context.Context, studentID ledger.StudentID, itemID catalog.ItemID) error {
	release := e.guard.Acquire(flightKey(studentID, itemID))
	defer release()

	return e.Tx.WithTx(ctx, func(s Stores) error {
		rec, err := s.Ownership.Get(ctx, studentID, itemID)
		if err != nil {
			return err
		}
		return s.Ownership.SetEquippedExclusive(ctx, studentID, rec.Category, itemID)
	})
}

// Unequip clears the equipped flag on an owned item. Unequipping an item
// that is not equipped is a no-op, not an error.
func (e *Engine) Unequip(ctx context.Context, studentID ledger.StudentID, itemID catalog.ItemID) error {
	release := e.guard.Acquire(flightKey(studentID, itemID))
	defer release()

	return e.Tx.WithTx(ctx, func(s Stores) error {
		if _, err := s.Ownership.Get(ctx, studentID, itemID); err != nil {
			return err
		}
		return s.Ownership.SetUnequipped(ctx, studentID, itemID)
	})
}

// =============================================================================
// CONSISTENCY AUDIT
// =============================================================================

// Audit scans for partial-failure states: ownership records with no
// matching redemption entry in the ledger. With both mutations inside one
// storage transaction this returns empty; a non-empty result means the
// stores were mutated outside the engine and requires repair.
func (e *Engine) Audit(ctx context.Context) ([]Fault, error) {
	var faults []Fault
	err := e.Tx.WithTx(ctx, func(s Stores) error {
		records, err := s.Ownership.List(ctx)
		if err != nil {
			return err
		}

		paid := make(map[string]bool)
		byStudent := make(map[ledger.StudentID]bool)
		for _, rec := range records {
			if byStudent[rec.StudentID] {
				continue
			}
			byStudent[rec.StudentID] = true

			txs, err := s.Ledger.Load(ctx, rec.StudentID)
			if err != nil {
				return err
			}
			for _, tx := range txs {
				if tx.Type == ledger.TxRedemption {
					paid[string(rec.StudentID)+":"+tx.ReferenceID] = true
				}
			}
		}

		for _, rec := range records {
			if !paid[string(rec.StudentID)+":"+string(rec.ItemID)] {
				faults = append(faults, Fault{StudentID: rec.StudentID, ItemID: rec.ItemID})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return faults, nil
}
