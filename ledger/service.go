/*
service.go - Ledger service: atomic deduct, grants, balance replay

PURPOSE:
  The Service is the only way point balances change. It wraps a Store with
  the two invariants the rest of the system relies on:

  1. BALANCE FLOOR: Deduct re-validates the replayed balance immediately
     before appending the deduction. A deduction that would take the
     balance negative fails with InsufficientFundsError and writes nothing.
  2. IDEMPOTENCY: Every write carries an idempotency key; a retried write
     is rejected with ErrDuplicateIdempotencyKey instead of double-spending.

ATOMICITY:
  Deduct's check-then-append is only race-free when the underlying Store
  serializes it against concurrent writers. Both provided stores do:
  store/sqlite runs callers inside a single database transaction under a
  write lock, store/memory under its mutex. The redemption engine always
  invokes Deduct inside the same storage transaction as the ownership
  insert, so a failed deduction rolls the whole purchase back.

WHY REPLAY INSTEAD OF A BALANCE COLUMN?
  - Audit trail: every balance is explainable from its history
  - Debugging: "why is the balance X?" has an answer
  - Correctness: no partially-applied update can corrupt state

SEE ALSO:
  - types.go: Transaction and Store contracts
  - redemption/engine.go: The purchase flow that composes with this
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SERVICE - The consumed ledger contract
// =============================================================================

// Service is the authoritative points authority for students.
type Service interface {
	// Balance replays the student's transactions and returns the current
	// balance. Never negative for a ledger mutated only through this
	// interface.
	Balance(ctx context.Context, studentID StudentID) (Amount, error)

	// Deduct atomically removes amount from the student's balance.
	// Fails with InsufficientFundsError, leaving the balance untouched,
	// if the balance is insufficient at execution time.
	Deduct(ctx context.Context, studentID StudentID, amount Amount, reason, referenceID, idempotencyKey string) (Amount, error)

	// Grant credits points. This is how the external earning flow
	// (mood check-ins, achievements) feeds the ledger.
	Grant(ctx context.Context, studentID StudentID, amount Amount, reason, idempotencyKey string) (Amount, error)

	// Transactions returns the student's full history, oldest first.
	Transactions(ctx context.Context, studentID StudentID) ([]Transaction, error)
}

// =============================================================================
// DEFAULT SERVICE - Implementation over a Store
// =============================================================================

type DefaultService struct {
	Store Store
}

func NewService(store Store) *DefaultService {
	return &DefaultService{Store: store}
}

func (s *DefaultService) Balance(ctx context.Context, studentID StudentID) (Amount, error) {
	txs, err := s.Store.Load(ctx, studentID)
	if err != nil {
		return Amount{}, err
	}
	balance := Points(0)
	for _, tx := range txs {
		balance = balance.Add(tx.Delta)
	}
	return balance, nil
}

func (s *DefaultService) Deduct(ctx context.Context, studentID StudentID, amount Amount, reason, referenceID, idempotencyKey string) (Amount, error) {
	if amount.IsNegative() {
		return Amount{}, ErrInvalidAmount
	}

	if idempotencyKey != "" {
		exists, err := s.Store.Exists(ctx, idempotencyKey)
		if err != nil {
			return Amount{}, err
		}
		if exists {
			return Amount{}, ErrDuplicateIdempotencyKey
		}
	}

	// Re-validate against the authoritative balance at execution time.
	// Client-observed balances are advisory only.
	balance, err := s.Balance(ctx, studentID)
	if err != nil {
		return Amount{}, err
	}
	if balance.LessThan(amount) {
		return Amount{}, &InsufficientFundsError{
			StudentID: studentID,
			Available: balance,
			Requested: amount,
		}
	}

	tx := Transaction{
		ID:             TransactionID(uuid.NewString()),
		StudentID:      studentID,
		Delta:          amount.Neg(),
		Type:           TxRedemption,
		ReferenceID:    referenceID,
		Reason:         reason,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Store.Append(ctx, tx); err != nil {
		return Amount{}, err
	}
	return balance.Sub(amount), nil
}

func (s *DefaultService) Grant(ctx context.Context, studentID StudentID, amount Amount, reason, idempotencyKey string) (Amount, error) {
	if amount.IsNegative() || amount.IsZero() {
		return Amount{}, ErrInvalidAmount
	}

	if idempotencyKey != "" {
		exists, err := s.Store.Exists(ctx, idempotencyKey)
		if err != nil {
			return Amount{}, err
		}
		if exists {
			return Amount{}, ErrDuplicateIdempotencyKey
		}
	}

	tx := Transaction{
		ID:             TransactionID(uuid.NewString()),
		StudentID:      studentID,
		Delta:          amount,
		Type:           TxGrant,
		Reason:         reason,
		IdempotencyKey: idempotencyKey,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.Store.Append(ctx, tx); err != nil {
		return Amount{}, err
	}

	return s.Balance(ctx, studentID)
}

func (s *DefaultService) Transactions(ctx context.Context, studentID StudentID) ([]Transaction, error) {
	return s.Store.Load(ctx, studentID)
}
