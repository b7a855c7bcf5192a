/*
Package sqlite provides the SQLite-backed implementation of the storage
contracts.

PURPOSE:
  Implements catalog.Catalog, ownership.Store, ledger.Store, and
  redemption.TxStore on one database. Because all three collections share
  a transactional substrate, the purchase flow commits the ownership
  insert and the ledger deduction in ONE atomic transaction - the
  partial-failure state ("owns it, never paid") cannot be produced.
  No compensating saga is needed.

KEY TABLES:
  cosmetics:          The purchasable catalog (authored externally)
  student_cosmetics:  Per-student ownership + equipped flag
  point_transactions: Append-only points ledger

CONSTRAINT ENFORCEMENT:
  - PRIMARY KEY (student_id, cosmetic_id): a student cannot own an item
    twice, even under concurrent inserts that race past application checks
  - Partial unique index on (student_id, category) WHERE equipped: equip
    exclusivity holds at the storage layer under arbitrary interleaving
  - UNIQUE(idempotency_key): retried ledger writes cannot double-apply

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE is ever issued against point_transactions.
  Corrections are reversal entries.

CONCURRENCY:
  Uses sync.RWMutex to serialize writers; WAL mode keeps readers
  unblocked. WithTx holds the write lock for the whole transaction, so a
  balance replay and the deduction appended from it cannot interleave
  with another writer.

USAGE:
  store, err := sqlite.New("./data/rewards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := redemption.NewEngine(store)

SEE ALSO:
  - redemption/engine.go: The transaction orchestration
  - store/memory: In-memory equivalent for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/ledger"
	"github.com/warp/rewards-engine/ownership"
	"github.com/warp/rewards-engine/redemption"
)

// Compile-time checks that Store satisfies every consumed contract.
var (
	_ catalog.Catalog    = (*Store)(nil)
	_ ownership.Store    = (*Store)(nil)
	_ ledger.Store       = (*Store)(nil)
	_ redemption.TxStore = (*Store)(nil)
)

// Store implements all storage contracts using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Catalog (read-only from the engine's perspective)
	CREATE TABLE IF NOT EXISTS cosmetics (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		cost INTEGER NOT NULL CHECK (cost >= 0),
		active BOOLEAN NOT NULL DEFAULT TRUE,
		image_url TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cosmetics_active
		ON cosmetics(active);

	-- Ownership
	CREATE TABLE IF NOT EXISTS student_cosmetics (
		student_id TEXT NOT NULL,
		cosmetic_id TEXT NOT NULL,
		category TEXT NOT NULL,
		equipped BOOLEAN NOT NULL DEFAULT FALSE,
		acquired_at TEXT NOT NULL,
		PRIMARY KEY (student_id, cosmetic_id)
	);

	CREATE INDEX IF NOT EXISTS idx_student_cosmetics_student
		ON student_cosmetics(student_id);

	-- At most one equipped row per (student, category), whatever the
	-- interleaving. Exclusivity holds even if application code regresses.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_equipped_exclusive
		ON student_cosmetics(student_id, category)
		WHERE equipped;

	-- Points ledger (append-only)
	CREATE TABLE IF NOT EXISTS point_transactions (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL,
		delta TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		reference_id TEXT,
		reason TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_point_transactions_student
		ON point_transactions(student_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx, so every query helper
// can run standalone or inside WithTx against the open transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// CATALOG (catalog.Catalog)
// =============================================================================

func (s *Store) ListActive(ctx context.Context) ([]catalog.CosmeticItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActive(ctx, s.db)
}

func (s *Store) Item(ctx context.Context, id catalog.ItemID) (catalog.CosmeticItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getItem(ctx, s.db, id)
}

// SaveItem upserts a catalog item. Catalog authoring happens in admin
// tooling outside the engine; this is the seam it writes through.
func (s *Store) SaveItem(ctx context.Context, item catalog.CosmeticItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cosmetics (id, name, category, cost, active, image_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			cost = excluded.cost,
			active = excluded.active,
			image_url = excluded.image_url
	`, item.ID, item.Name, item.Category, item.Cost, item.Active,
		nullString(item.ImageURL), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save item: %w", err)
	}
	return nil
}

func listActive(ctx context.Context, db dbtx) ([]catalog.CosmeticItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, category, cost, active, image_url
		FROM cosmetics
		WHERE active
		ORDER BY category, name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog: %w", err)
	}
	defer rows.Close()

	var items []catalog.CosmeticItem
	for rows.Next() {
		var (
			item     catalog.CosmeticItem
			imageURL sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Name, &item.Category, &item.Cost, &item.Active, &imageURL); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		item.ImageURL = imageURL.String
		items = append(items, item)
	}
	return items, rows.Err()
}

func getItem(ctx context.Context, db dbtx, id catalog.ItemID) (catalog.CosmeticItem, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, name, category, cost, active, image_url
		FROM cosmetics WHERE id = ?
	`, id)

	var (
		item     catalog.CosmeticItem
		imageURL sql.NullString
	)
	err := row.Scan(&item.ID, &item.Name, &item.Category, &item.Cost, &item.Active, &imageURL)
	if err == sql.ErrNoRows {
		return catalog.CosmeticItem{}, catalog.ErrItemNotFound
	}
	if err != nil {
		return catalog.CosmeticItem{}, fmt.Errorf("failed to get item: %w", err)
	}
	item.ImageURL = imageURL.String
	return item, nil
}

// =============================================================================
// OWNERSHIP (ownership.Store)
// =============================================================================

func (s *Store) InsertIfAbsent(ctx context.Context, rec ownership.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertIfAbsent(ctx, s.db, rec)
}

func (s *Store) Get(ctx context.Context, studentID ledger.StudentID, itemID catalog.ItemID) (ownership.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRecord(ctx, s.db, studentID, itemID)
}

func (s *Store) ListByStudent(ctx context.Context, studentID ledger.StudentID) ([]ownership.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRecords(ctx, s.db, `
		SELECT student_id, cosmetic_id, category, equipped, acquired_at
		FROM student_cosmetics
		WHERE student_id = ?
		ORDER BY acquired_at ASC
	`, studentID)
}

func (s *Store) List(ctx context.Context) ([]ownership.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRecords(ctx, s.db, `
		SELECT student_id, cosmetic_id, category, equipped, acquired_at
		FROM student_cosmetics
		ORDER BY student_id, acquired_at ASC
	`)
}

func (s *Store) SetEquippedExclusive(ctx context.Context, studentID ledger.StudentID, category catalog.Category, itemID catalog.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Two statements (clear category, set target); they must commit
	// together or the partial unique index sees a half-applied state.
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := setEquippedExclusive(ctx, sqlTx, studentID, category, itemID); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) SetUnequipped(ctx context.Context, studentID ledger.StudentID, itemID catalog.ItemID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setUnequipped(ctx, s.db, studentID, itemID)
}

func insertIfAbsent(ctx context.Context, db dbtx, rec ownership.Record) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO student_cosmetics (student_id, cosmetic_id, category, equipped, acquired_at)
		VALUES (?, ?, ?, ?, ?)
	`, rec.StudentID, rec.ItemID, rec.Category, rec.Equipped,
		rec.AcquiredAt.UTC().Format(time.RFC3339Nano))

	if err != nil {
		if isUniqueConstraintError(err) {
			return ownership.ErrAlreadyOwned
		}
		return fmt.Errorf("failed to insert ownership record: %w", err)
	}
	return nil
}

func getRecord(ctx context.Context, db dbtx, studentID ledger.StudentID, itemID catalog.ItemID) (ownership.Record, error) {
	row := db.QueryRowContext(ctx, `
		SELECT student_id, cosmetic_id, category, equipped, acquired_at
		FROM student_cosmetics
		WHERE student_id = ? AND cosmetic_id = ?
	`, studentID, itemID)

	var (
		rec        ownership.Record
		acquiredAt string
	)
	err := row.Scan(&rec.StudentID, &rec.ItemID, &rec.Category, &rec.Equipped, &acquiredAt)
	if err == sql.ErrNoRows {
		return ownership.Record{}, ownership.ErrNotOwned
	}
	if err != nil {
		return ownership.Record{}, fmt.Errorf("failed to get ownership record: %w", err)
	}
	rec.AcquiredAt, _ = time.Parse(time.RFC3339Nano, acquiredAt)
	return rec, nil
}

func queryRecords(ctx context.Context, db dbtx, query string, args ...any) ([]ownership.Record, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ownership records: %w", err)
	}
	defer rows.Close()

	var records []ownership.Record
	for rows.Next() {
		var (
			rec        ownership.Record
			acquiredAt string
		)
		if err := rows.Scan(&rec.StudentID, &rec.ItemID, &rec.Category, &rec.Equipped, &acquiredAt); err != nil {
			return nil, fmt.Errorf("failed to scan ownership record: %w", err)
		}
		rec.AcquiredAt, _ = time.Parse(time.RFC3339Nano, acquiredAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// setEquippedExclusive clears equipped within the category before setting
// the target, in that order, so the partial unique index never observes
// two equipped rows.
func setEquippedExclusive(ctx context.Context, db dbtx, studentID ledger.StudentID, category catalog.Category, itemID catalog.ItemID) error {
	_, err := db.ExecContext(ctx, `
		UPDATE student_cosmetics SET equipped = FALSE
		WHERE student_id = ? AND category = ? AND equipped
	`, studentID, category)
	if err != nil {
		return fmt.Errorf("failed to unequip category: %w", err)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE student_cosmetics SET equipped = TRUE
		WHERE student_id = ? AND cosmetic_id = ?
	`, studentID, itemID)
	if err != nil {
		return fmt.Errorf("failed to equip item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ownership.ErrNotOwned
	}
	return nil
}

func setUnequipped(ctx context.Context, db dbtx, studentID ledger.StudentID, itemID catalog.ItemID) error {
	res, err := db.ExecContext(ctx, `
		UPDATE student_cosmetics SET equipped = FALSE
		WHERE student_id = ? AND cosmetic_id = ?
	`, studentID, itemID)
	if err != nil {
		return fmt.Errorf("failed to unequip item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ownership.ErrNotOwned
	}
	return nil
}

// =============================================================================
// LEDGER (ledger.Store)
// =============================================================================

func (s *Store) Append(ctx context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTx(ctx, s.db, tx)
}

func (s *Store) Load(ctx context.Context, studentID ledger.StudentID) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return loadTxs(ctx, s.db, studentID)
}

func (s *Store) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return idempotencyKeyExists(ctx, s.db, idempotencyKey)
}

func appendTx(ctx context.Context, db dbtx, tx ledger.Transaction) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO point_transactions
		(id, student_id, delta, tx_type, reference_id, reason, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.StudentID,
		tx.Delta.Value.String(),
		tx.Type,
		nullString(tx.ReferenceID),
		nullString(tx.Reason),
		nullString(tx.IdempotencyKey),
		tx.CreatedAt.UTC().Format(time.RFC3339Nano),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func loadTxs(ctx context.Context, db dbtx, studentID ledger.StudentID) ([]ledger.Transaction, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, student_id, delta, tx_type, reference_id, reason, idempotency_key, created_at
		FROM point_transactions
		WHERE student_id = ?
		ORDER BY created_at ASC, id ASC
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []ledger.Transaction
	for rows.Next() {
		var (
			tx             ledger.Transaction
			delta          string
			referenceID    sql.NullString
			reason         sql.NullString
			idempotencyKey sql.NullString
			createdAt      string
		)
		if err := rows.Scan(&tx.ID, &tx.StudentID, &delta, &tx.Type,
			&referenceID, &reason, &idempotencyKey, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		tx.Delta = ledger.MustParseAmount(delta)
		tx.ReferenceID = referenceID.String
		tx.Reason = reason.String
		tx.IdempotencyKey = idempotencyKey.String
		tx.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func idempotencyKeyExists(ctx context.Context, db dbtx, idempotencyKey string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM point_transactions WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// TRANSACTIONS (redemption.TxStore)
// =============================================================================

// WithTx executes fn within a single database transaction. Every store
// access through the provided handle - catalog read, ownership insert,
// ledger replay and append - sees and mutates the same transaction, so a
// failed deduction rolls back the ownership insert with it.
func (s *Store) WithTx(ctx context.Context, fn func(redemption.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	view := &txView{tx: sqlTx}
	if err := fn(redemption.Stores{Catalog: view, Ownership: view, Ledger: view}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txView implements the store contracts against an open transaction.
type txView struct {
	tx *sql.Tx
}

func (tv *txView) ListActive(ctx context.Context) ([]catalog.CosmeticItem, error) {
	return listActive(ctx, tv.tx)
}

func (tv *txView) Item(ctx context.Context, id catalog.ItemID) (catalog.CosmeticItem, error) {
	return getItem(ctx, tv.tx, id)
}

func (tv *txView) InsertIfAbsent(ctx context.Context, rec ownership.Record) error {
	return insertIfAbsent(ctx, tv.tx, rec)
}

func (tv *txView) Get(ctx context.Context, studentID ledger.StudentID, itemID catalog.ItemID) (ownership.Record, error) {
	return getRecord(ctx, tv.tx, studentID, itemID)
}

func (tv *txView) ListByStudent(ctx context.Context, studentID ledger.StudentID) ([]ownership.Record, error) {
	return queryRecords(ctx, tv.tx, `
		SELECT student_id, cosmetic_id, category, equipped, acquired_at
		FROM student_cosmetics
		WHERE student_id = ?
		ORDER BY acquired_at ASC
	`, studentID)
}

func (tv *txView) List(ctx context.Context) ([]ownership.Record, error) {
	return queryRecords(ctx, tv.tx, `
		SELECT student_id, cosmetic_id, category, equipped, acquired_at
		FROM student_cosmetics
		ORDER BY student_id, acquired_at ASC
	`)
}

func (tv *txView) SetEquippedExclusive(ctx context.Context, studentID ledger.StudentID, category catalog.Category, itemID catalog.ItemID) error {
	return setEquippedExclusive(ctx, tv.tx, studentID, category, itemID)
}

func (tv *txView) SetUnequipped(ctx context.Context, studentID ledger.StudentID, itemID catalog.ItemID) error {
	return setUnequipped(ctx, tv.tx, studentID, itemID)
}

func (tv *txView) Append(ctx context.Context, tx ledger.Transaction) error {
	return appendTx(ctx, tv.tx, tx)
}

func (tv *txView) Load(ctx context.Context, studentID ledger.StudentID) ([]ledger.Transaction, error) {
	return loadTxs(ctx, tv.tx, studentID)
}

func (tv *txView) Exists(ctx context.Context, idempotencyKey string) (bool, error) {
	return idempotencyKeyExists(ctx, tv.tx, idempotencyKey)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"point_transactions", "student_cosmetics", "cosmetics"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
