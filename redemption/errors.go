/*
errors.go - Error taxonomy for the redemption engine

PURPOSE:
  One place to classify everything a purchase or equip can return, so the
  API layer maps errors to responses without string matching.

TAXONOMY (matching the failure modes callers must distinguish):
  Validation   - inactive item, unknown item, already owned, not owned.
                 Locally recoverable; the action was rejected, nothing
                 was mutated.
  Funds        - ledger.ErrInsufficientFunds. Recoverable; surfaced as an
                 affordability message, nothing was mutated.
  In-flight    - ErrRequestInFlight. The same (student, item) operation is
                 already running; retry after it resolves.
  Consistency  - Fault records from Audit. Must never occur while both
                 mutations share one storage transaction; if one ever
                 appears it is a fatal fault requiring repair, never a
                 silently swallowed condition.

SEE ALSO:
  - engine.go: Returns these
  - api/handlers.go: Maps them to HTTP responses
*/
package redemption

import (
	"errors"
	"fmt"

	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/ledger"
	"github.com/warp/rewards-engine/ownership"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrItemInactive is returned when the item exists but is no longer
	// offered. An item deactivated between listing and purchase fails
	// with this rather than being sold.
	ErrItemInactive = errors.New("item inactive")

	// ErrRequestInFlight is returned when the single-flight guard is
	// asked not to wait and an identical operation is already running.
	ErrRequestInFlight = errors.New("identical request already in flight")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// Fault is one detected partial-failure state: an ownership record with
// no matching redemption entry in the ledger. See Engine.Audit.
type Fault struct {
	StudentID ledger.StudentID
	ItemID    catalog.ItemID
}

func (f Fault) String() string {
	return fmt.Sprintf("ownership without payment: student %s, item %s", f.StudentID, f.ItemID)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidationError returns true for rejections of the action itself -
// the caller sent something that can never succeed as-is. No mutation
// occurred.
func IsValidationError(err error) bool {
	return errors.Is(err, catalog.ErrItemNotFound) ||
		errors.Is(err, ErrItemInactive) ||
		errors.Is(err, ownership.ErrAlreadyOwned) ||
		errors.Is(err, ownership.ErrNotOwned)
}

// IsRetryable returns true if the same call might succeed later without
// the caller changing anything.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRequestInFlight)
}
