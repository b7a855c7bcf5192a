/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

AMOUNTS:
  Point amounts cross the wire as int64 - the economy deals in whole
  points. The ledger keeps decimal internally for replay precision.

VALIDATION:
  Request types carry validate struct tags; handlers run them through a
  shared validator instance before touching domain logic.

SEE ALSO:
  - handlers.go: Uses these types
  - client/view.go: Snapshot mirrored by StudentStateDTO
*/
package api

import (
	"time"

	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/ledger"
	"github.com/warp/rewards-engine/ownership"
)

// =============================================================================
// CATALOG
// =============================================================================

// CosmeticDTO represents a catalog item in API responses.
type CosmeticDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Cost     int64  `json:"cost"`
	ImageURL string `json:"image_url,omitempty"`
}

func toCosmeticDTO(item catalog.CosmeticItem) CosmeticDTO {
	return CosmeticDTO{
		ID:       string(item.ID),
		Name:     item.Name,
		Category: string(item.Category),
		Cost:     item.Cost,
		ImageURL: item.ImageURL,
	}
}

// =============================================================================
// OWNERSHIP / STUDENT STATE
// =============================================================================

// OwnedCosmeticDTO represents one redeemed cosmetic.
type OwnedCosmeticDTO struct {
	ItemID     string `json:"item_id"`
	Category   string `json:"category"`
	Equipped   bool   `json:"equipped"`
	AcquiredAt string `json:"acquired_at"`
}

func toOwnedCosmeticDTO(rec ownership.Record) OwnedCosmeticDTO {
	return OwnedCosmeticDTO{
		ItemID:     string(rec.ItemID),
		Category:   string(rec.Category),
		Equipped:   rec.Equipped,
		AcquiredAt: rec.AcquiredAt.Format(time.RFC3339),
	}
}

// StudentStateDTO is the authoritative snapshot clients reconcile their
// optimistic view against: balance plus the full ownership set.
type StudentStateDTO struct {
	StudentID string             `json:"student_id"`
	Balance   int64              `json:"balance"`
	Cosmetics []OwnedCosmeticDTO `json:"cosmetics"`
}

// BalanceDTO represents a student's point balance.
type BalanceDTO struct {
	StudentID string `json:"student_id"`
	Balance   int64  `json:"balance"`
	AsOf      string `json:"as_of"`
}

// =============================================================================
// PURCHASE / EQUIP
// =============================================================================

// PurchaseRequest is the request body to redeem a cosmetic.
type PurchaseRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

// PurchaseResponseDTO is returned on a successful purchase.
type PurchaseResponseDTO struct {
	Cosmetic   OwnedCosmeticDTO `json:"cosmetic"`
	NewBalance int64            `json:"new_balance"`
}

// EquipRequest is the request body to equip or unequip a cosmetic.
type EquipRequest struct {
	ItemID string `json:"item_id" validate:"required"`
}

// =============================================================================
// LEDGER
// =============================================================================

// TransactionDTO represents a ledger transaction.
type TransactionDTO struct {
	ID          string `json:"id"`
	StudentID   string `json:"student_id"`
	Delta       int64  `json:"delta"`
	Type        string `json:"type"`
	ReferenceID string `json:"reference_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		StudentID:   string(tx.StudentID),
		Delta:       tx.Delta.Int64(),
		Type:        string(tx.Type),
		ReferenceID: tx.ReferenceID,
		Reason:      tx.Reason,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

// GrantRequest is the admin request to credit points.
type GrantRequest struct {
	StudentID      string `json:"student_id" validate:"required"`
	Amount         int64  `json:"amount" validate:"required,gt=0"`
	Reason         string `json:"reason" validate:"required"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// GrantResponseDTO is returned after a grant is applied.
type GrantResponseDTO struct {
	StudentID  string `json:"student_id"`
	NewBalance int64  `json:"new_balance"`
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditFaultDTO is one detected ownership-without-payment state.
type AuditFaultDTO struct {
	StudentID string `json:"student_id"`
	ItemID    string `json:"item_id"`
}

// AuditResponseDTO is the result of a consistency audit.
type AuditResponseDTO struct {
	Consistent bool            `json:"consistent"`
	Faults     []AuditFaultDTO `json:"faults"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the standard error response. Code is a stable machine
// string clients branch on; Error is for humans.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}
