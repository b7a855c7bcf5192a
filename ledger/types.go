/*
Package ledger provides the points ledger consumed by the redemption engine.

PURPOSE:
  Holds the authoritative per-student point balance as an append-only log
  of transactions. Balance is always computed by replaying transactions -
  there is no separate "balance" column that can drift out of sync.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount: A point quantity backed by decimal.Decimal
  - Transaction: An immutable ledger entry recording a balance change
  - StudentID/TransactionID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Auditability: Every transaction carries reason, reference, and
     idempotency key
  4. Balance floor: Deductions are validated against the replayed balance
     inside the same storage transaction that appends them

USAGE:
  amount := ledger.Points(80)
  tx := ledger.Transaction{
      StudentID: "stu-123",
      Delta:     amount.Neg(),
      Type:      ledger.TxRedemption,
  }

SEE ALSO:
  - service.go: Deduct/Grant operations and balance replay
  - errors.go: Sentinel and structured error types
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Point quantity
// =============================================================================

type Amount struct {
	Value decimal.Decimal
}

// Points constructs an Amount from a whole number of points. Costs and
// grants in this system are whole-valued; decimal is kept for replay
// precision and for parity with stored string values.
func Points(n int64) Amount {
	return Amount{Value: decimal.NewFromInt(n)}
}

func MustParseAmount(s string) Amount {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{Value: decimal.Zero}
	}
	return Amount{Value: d}
}

func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value)} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value)} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg()} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }

// Int64 returns the amount as whole points, truncating any fractional part.
func (a Amount) Int64() int64 { return a.Value.IntPart() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type TransactionID string

// =============================================================================
// TRANSACTION - Atomic change to a student's point balance
// =============================================================================

type TransactionType string

const (
	TxGrant      TransactionType = "grant"      // Points earned (mood check-ins, achievements - external flow)
	TxRedemption TransactionType = "redemption" // Points spent on a cosmetic
	TxAdjustment TransactionType = "adjustment" // Manual admin correction
	TxReversal   TransactionType = "reversal"   // Undo a previous transaction
)

type Transaction struct {
	ID             TransactionID
	StudentID      StudentID
	Delta          Amount
	Type           TransactionType
	ReferenceID    string // e.g. the cosmetic item ID for redemptions
	Reason         string
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// STORE - Persistence contract (append-only)
// =============================================================================

// Store handles persistence of ledger transactions.
// IMPORTANT: Store is APPEND-ONLY. No Update, No Delete. Ever.
// Corrections are made via reversal transactions.
type Store interface {
	// Append persists a transaction. Returns ErrDuplicateIdempotencyKey
	// if the idempotency key already exists.
	Append(ctx context.Context, tx Transaction) error

	// Load returns all transactions for a student, oldest first.
	Load(ctx context.Context, studentID StudentID) ([]Transaction, error)

	// Exists checks whether an idempotency key has been used.
	Exists(ctx context.Context, idempotencyKey string) (bool, error)
}
