// Package memory provides an in-memory implementation of every store
// contract (catalog, ownership, ledger) plus the transactional wrapper.
// Used for tests and development; production uses store/sqlite.
//
// Transactions are simulated with snapshot + rollback under one mutex,
// which also gives the serialization the ledger's check-then-append
// relies on.
package memory

import (
	"context"
	"sync"

	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/ledger"
	"github.com/warp/rewards-engine/ownership"
	"github.com/warp/rewards-engine/redemption"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type ownKey struct {
	StudentID ledger.StudentID
	ItemID    catalog.ItemID
}

// Compile-time checks that Store satisfies every consumed contract.
var (
	_ catalog.Catalog    = (*Store)(nil)
	_ ownership.Store    = (*Store)(nil)
	_ ledger.Store       = (*Store)(nil)
	_ redemption.TxStore = (*Store)(nil)
)

type Store struct {
	mu          sync.RWMutex
	items       map[catalog.ItemID]catalog.CosmeticItem
	owned       map[ownKey]ownership.Record
	ownedOrder  []ownKey // insertion order, for stable List results
	txs         map[ledger.StudentID][]ledger.Transaction
	idempotency map[string]bool
}

func New() *Store {
	return &Store{
		items:       make(map[catalog.ItemID]catalog.CosmeticItem),
		owned:       make(map[ownKey]ownership.Record),
		txs:         make(map[ledger.StudentID][]ledger.Transaction),
		idempotency: make(map[string]bool),
	}
}

// SeedItem adds a catalog item. Catalog authoring is external to the
// engine; this stands in for it.
func (m *Store) SeedItem(item catalog.CosmeticItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.ID] = item
}

// SaveItem upserts a catalog item. Mirrors the sqlite store's seam so
// demo/scenario loaders work against either backend.
func (m *Store) SaveItem(_ context.Context, item catalog.CosmeticItem) error {
	m.SeedItem(item)
	return nil
}

// Reset clears all data (for testing/demo).
func (m *Store) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[catalog.ItemID]catalog.CosmeticItem)
	m.owned = make(map[ownKey]ownership.Record)
	m.ownedOrder = nil
	m.txs = make(map[ledger.StudentID][]ledger.Transaction)
	m.idempotency = make(map[string]bool)
	return nil
}

// =============================================================================
// CATALOG (catalog.Catalog)
// =============================================================================

func (m *Store) ListActive(_ context.Context) ([]catalog.CosmeticItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveLocked()
}

func (m *Store) Item(_ context.Context, id catalog.ItemID) (catalog.CosmeticItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.itemLocked(id)
}

func (m *Store) listActiveLocked() ([]catalog.CosmeticItem, error) {
	var items []catalog.CosmeticItem
	for _, item := range m.items {
		if item.Active {
			items = append(items, item)
		}
	}
	return items, nil
}

func (m *Store) itemLocked(id catalog.ItemID) (catalog.CosmeticItem, error) {
	item, ok := m.items[id]
	if !ok {
		return catalog.CosmeticItem{}, catalog.ErrItemNotFound
	}
	return item, nil
}

// =============================================================================
// OWNERSHIP (ownership.Store)
// =============================================================================

func (m *Store) InsertIfAbsent(_ context.Context, rec ownership.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertIfAbsentLocked(rec)
}

func (m *Store) Get(_ context.Context, studentID ledger.StudentID, itemID catalog.ItemID) (ownership.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(studentID, itemID)
}

func (m *Store) ListByStudent(_ context.Context, studentID ledger.StudentID) ([]ownership.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listByStudentLocked(studentID)
}

func (m *Store) List(_ context.Context) ([]ownership.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked()
}

func (m *Store) SetEquippedExclusive(_ context.Context, studentID ledger.StudentID, category catalog.Category, itemID catalog.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setEquippedExclusiveLocked(studentID, category, itemID)
}

func (m *Store) SetUnequipped(_ context.Context, studentID ledger.StudentID, itemID catalog.ItemID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setUnequippedLocked(studentID, itemID)
}

func (m *Store) insertIfAbsentLocked(rec ownership.Record) error {
	k := ownKey{StudentID: rec.StudentID, ItemID: rec.ItemID}
	if _, exists := m.owned[k]; exists {
		return ownership.ErrAlreadyOwned
	}
	m.owned[k] = rec
	m.ownedOrder = append(m.ownedOrder, k)
	return nil
}

func (m *Store) getLocked(studentID ledger.StudentID, itemID catalog.ItemID) (ownership.Record, error) {
	rec, ok := m.owned[ownKey{StudentID: studentID, ItemID: itemID}]
	if !ok {
		return ownership.Record{}, ownership.ErrNotOwned
	}
	return rec, nil
}

func (m *Store) listByStudentLocked(studentID ledger.StudentID) ([]ownership.Record, error) {
	var records []ownership.Record
	for _, k := range m.ownedOrder {
		if k.StudentID == studentID {
			records = append(records, m.owned[k])
		}
	}
	return records, nil
}

func (m *Store) listLocked() ([]ownership.Record, error) {
	records := make([]ownership.Record, 0, len(m.ownedOrder))
	for _, k := range m.ownedOrder {
		records = append(records, m.owned[k])
	}
	return records, nil
}

func (m *Store) setEquippedExclusiveLocked(studentID ledger.StudentID, category catalog.Category, itemID catalog.ItemID) error {
	target := ownKey{StudentID: studentID, ItemID: itemID}
	if _, ok := m.owned[target]; !ok {
		return ownership.ErrNotOwned
	}

	// Scoped to the category: records in other categories keep their state.
	for k, rec := range m.owned {
		if k.StudentID != studentID || rec.Category != category {
			continue
		}
		rec.Equipped = k == target
		m.owned[k] = rec
	}
	return nil
}

func (m *Store) setUnequippedLocked(studentID ledger.StudentID, itemID catalog.ItemID) error {
	k := ownKey{StudentID: studentID, ItemID: itemID}
	rec, ok := m.owned[k]
	if !ok {
		return ownership.ErrNotOwned
	}
	rec.Equipped = false
	m.owned[k] = rec
	return nil
}

// =============================================================================
// LEDGER (ledger.Store)
// =============================================================================

func (m *Store) Append(_ context.Context, tx ledger.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLocked(tx)
}

func (m *Store) Load(_ context.Context, studentID ledger.StudentID) ([]ledger.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadLocked(studentID)
}

func (m *Store) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.idempotency[idempotencyKey], nil
}

func (m *Store) appendLocked(tx ledger.Transaction) error {
	if tx.IdempotencyKey != "" {
		if m.idempotency[tx.IdempotencyKey] {
			return ledger.ErrDuplicateIdempotencyKey
		}
		m.idempotency[tx.IdempotencyKey] = true
	}
	m.txs[tx.StudentID] = append(m.txs[tx.StudentID], tx)
	return nil
}

func (m *Store) loadLocked(studentID ledger.StudentID) ([]ledger.Transaction, error) {
	result := make([]ledger.Transaction, len(m.txs[studentID]))
	copy(result, m.txs[studentID])
	return result, nil
}

// =============================================================================
// TRANSACTIONS (redemption.TxStore)
// =============================================================================

// WithTx executes fn under the store lock against a transactional view.
// On error the pre-transaction state is restored wholesale.
func (m *Store) WithTx(_ context.Context, fn func(redemption.Stores) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	view := &txView{parent: m}
	stores := redemption.Stores{Catalog: view, Ownership: view, Ledger: view}

	if err := fn(stores); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	owned       map[ownKey]ownership.Record
	ownedOrder  []ownKey
	txs         map[ledger.StudentID][]ledger.Transaction
	idempotency map[string]bool
}

func (m *Store) snapshot() memorySnapshot {
	ownedCopy := make(map[ownKey]ownership.Record, len(m.owned))
	for k, v := range m.owned {
		ownedCopy[k] = v
	}
	orderCopy := append([]ownKey{}, m.ownedOrder...)
	txsCopy := make(map[ledger.StudentID][]ledger.Transaction, len(m.txs))
	for k, v := range m.txs {
		txsCopy[k] = append([]ledger.Transaction{}, v...)
	}
	idemCopy := make(map[string]bool, len(m.idempotency))
	for k, v := range m.idempotency {
		idemCopy[k] = v
	}
	return memorySnapshot{owned: ownedCopy, ownedOrder: orderCopy, txs: txsCopy, idempotency: idemCopy}
}

func (m *Store) restore(s memorySnapshot) {
	m.owned = s.owned
	m.ownedOrder = s.ownedOrder
	m.txs = s.txs
	m.idempotency = s.idempotency
}

// txView routes store calls to the parent's locked methods. It exists so
// code running inside WithTx does not re-acquire the store lock.
type txView struct {
	parent *Store
}

func (tv *txView) ListActive(context.Context) ([]catalog.CosmeticItem, error) {
	return tv.parent.listActiveLocked()
}

func (tv *txView) Item(_ context.Context, id catalog.ItemID) (catalog.CosmeticItem, error) {
	return tv.parent.itemLocked(id)
}

func (tv *txView) InsertIfAbsent(_ context.Context, rec ownership.Record) error {
	return tv.parent.insertIfAbsentLocked(rec)
}

func (tv *txView) Get(_ context.Context, studentID ledger.StudentID, itemID catalog.ItemID) (ownership.Record, error) {
	return tv.parent.getLocked(studentID, itemID)
}

func (tv *txView) ListByStudent(_ context.Context, studentID ledger.StudentID) ([]ownership.Record, error) {
	return tv.parent.listByStudentLocked(studentID)
}

func (tv *txView) List(context.Context) ([]ownership.Record, error) {
	return tv.parent.listLocked()
}

func (tv *txView) SetEquippedExclusive(_ context.Context, studentID ledger.StudentID, category catalog.Category, itemID catalog.ItemID) error {
	return tv.parent.setEquippedExclusiveLocked(studentID, category, itemID)
}

func (tv *txView) SetUnequipped(_ context.Context, studentID ledger.StudentID, itemID catalog.ItemID) error {
	return tv.parent.setUnequippedLocked(studentID, itemID)
}

func (tv *txView) Append(_ context.Context, tx ledger.Transaction) error {
	return tv.parent.appendLocked(tx)
}

func (tv *txView) Load(_ context.Context, studentID ledger.StudentID) ([]ledger.Transaction, error) {
	return tv.parent.loadLocked(studentID)
}

func (tv *txView) Exists(_ context.Context, idempotencyKey string) (bool, error) {
	return tv.parent.idempotency[idempotencyKey], nil
}
