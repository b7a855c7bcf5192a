/*
errors.go - Centralized error types for the ledger

PURPOSE:
  All ledger error types in one place for consistency and discoverability.
  Consumers (the redemption engine, the API layer) match on these with
  errors.Is / errors.As.

ERROR CATEGORIES:
  1. Funds errors - Deduction exceeds available balance
  2. Idempotency errors - Duplicate write detection (expected under retry)
  3. Store errors - Persistence failures

SEE ALSO:
  - service.go: Uses these errors
  - redemption/errors.go: Engine-level taxonomy built on top of these
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientFunds is returned when a deduction exceeds the
	// student's replayed balance at execution time. The balance is left
	// untouched.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateIdempotencyKey is returned when a transaction with the
	// same idempotency key already exists. This is expected behavior for
	// retries: the original write stands, the retry is a no-op.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidAmount is returned for negative or non-whole deduct/grant
	// amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrTransactionFailed is returned when a transaction cannot be
	// persisted for reasons other than the above.
	ErrTransactionFailed = errors.New("transaction failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientFundsError provides details about a balance shortage.
type InsufficientFundsError struct {
	StudentID StudentID
	Available Amount
	Requested Amount
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: available %v, requested %v",
		e.Available.Value, e.Requested.Value)
}

func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

func (e *InsufficientFundsError) Shortfall() Amount {
	return e.Requested.Sub(e.Available)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input
// rather than a storage fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrDuplicateIdempotencyKey) ||
		errors.Is(err, ErrInvalidAmount)
}
