/*
Package client provides the optimistic view-state projection held for
responsiveness while a purchase or equip round-trip is in flight.

PURPOSE:
  The view is a locally cached, NON-AUTHORITATIVE projection of balance
  and ownership. It is adjusted optimistically before the server
  responds, and reconciled - replaced, not merged - with the server's
  authoritative state when the response arrives.

RULES:
  1. Every authoritative response supersedes local predictions, no matter
     what was predicted.
  2. A failed round-trip rolls the optimistic delta back EXACTLY. A failed
     purchase never leaves a ghost ownership entry or a ghost deduction;
     a failed equip restores the previously equipped item of the category.
  3. The view is a cache. When in doubt, throw it away and re-read.

USAGE:
  view := client.NewView(snapshot)
  rollback := view.ApplyPurchase(item)
  result, err := engine.Purchase(ctx, studentID, item.ID)
  if err != nil {
      rollback()                     // restore the pre-action state
  } else {
      view.ReconcileBalance(result.NewBalance.Int64())
  }

SEE ALSO:
  - cache.go: Per-student session cache of views
  - redemption/engine.go: The authoritative side
*/
package client

import (
	"sync"

	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/ownership"
)

// =============================================================================
// SNAPSHOT - The projected state
// =============================================================================

// Snapshot is a point-in-time copy of the projection.
type Snapshot struct {
	Balance            int64
	Owned              map[catalog.ItemID]bool
	EquippedByCategory map[catalog.Category]catalog.ItemID
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Owned:              make(map[catalog.ItemID]bool),
		EquippedByCategory: make(map[catalog.Category]catalog.ItemID),
	}
}

func (s Snapshot) clone() Snapshot {
	c := Snapshot{
		Balance:            s.Balance,
		Owned:              make(map[catalog.ItemID]bool, len(s.Owned)),
		EquippedByCategory: make(map[catalog.Category]catalog.ItemID, len(s.EquippedByCategory)),
	}
	for k, v := range s.Owned {
		c.Owned[k] = v
	}
	for k, v := range s.EquippedByCategory {
		c.EquippedByCategory[k] = v
	}
	return c
}

// SnapshotFromRecords builds an authoritative snapshot from server state.
func SnapshotFromRecords(balance int64, records []ownership.Record) Snapshot {
	s := emptySnapshot()
	s.Balance = balance
	for _, rec := range records {
		s.Owned[rec.ItemID] = true
		if rec.Equipped {
			s.EquippedByCategory[rec.Category] = rec.ItemID
		}
	}
	return s
}

// =============================================================================
// VIEW - Mutable projection with exact rollback
// =============================================================================

// View holds the projection for one student. Safe for concurrent use.
type View struct {
	mu    sync.Mutex
	state Snapshot
}

func NewView(initial Snapshot) *View {
	v := &View{state: initial.clone()}
	if v.state.Owned == nil {
		v.state = emptySnapshot()
	}
	return v
}

// Snapshot returns a copy of the current projection.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state.clone()
}

// ApplyPurchase optimistically records the purchase: the item joins the
// owned set (unequipped) and the cost leaves the balance. The returned
// rollback restores exactly the pre-action state for this delta.
func (v *View) ApplyPurchase(item catalog.CosmeticItem) (rollback func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.state.Owned[item.ID] = true
	v.state.Balance -= item.Cost

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.state.Owned, item.ID)
		v.state.Balance += item.Cost
	}
}

// ApplyEquip optimistically equips the item within its category. The
// rollback restores whichever item of that category was equipped before.
func (v *View) ApplyEquip(itemID catalog.ItemID, category catalog.Category) (rollback func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	prev, hadPrev := v.state.EquippedByCategory[category]
	v.state.EquippedByCategory[category] = itemID

	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if hadPrev {
			v.state.EquippedByCategory[category] = prev
		} else {
			delete(v.state.EquippedByCategory, category)
		}
	}
}

// Reconcile replaces the projection with authoritative server state,
// discarding every prediction.
func (v *View) Reconcile(server Snapshot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = server.clone()
}

// ReconcileBalance replaces only the balance, for responses that return
// the new balance without the full ownership set.
func (v *View) ReconcileBalance(balance int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state.Balance = balance
}
