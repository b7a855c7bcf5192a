/*
handlers.go - HTTP API handlers for the rewards engine

PURPOSE:
  Exposes the points economy via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Catalog:
    GET    /api/catalog                          List active cosmetics

  Students:
    GET    /api/students/{id}/state              Balance + ownership snapshot
    GET    /api/students/{id}/balance            Point balance
    GET    /api/students/{id}/cosmetics          Owned cosmetics
    GET    /api/students/{id}/transactions       Ledger history
    POST   /api/students/{id}/purchases          Redeem a cosmetic
    POST   /api/students/{id}/equip              Equip a cosmetic
    POST   /api/students/{id}/unequip            Unequip a cosmetic

  Admin:
    POST   /api/admin/grants                     Credit points
    GET    /api/admin/audit                      Ownership/ledger consistency

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (go-playground/validator)
  3. Call domain logic (engine, ledger service)
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Item or record not found
  - 409: Already owned, insufficient funds, inactive item, duplicate write
  - 500: Internal errors
  The body carries a stable "code" string so clients branch on it rather
  than on the message text.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  Deployment sits behind the dashboard's authenticating proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - redemption/engine.go: The domain logic behind purchases
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/client"
	"github.com/warp/rewards-engine/ledger"
	"github.com/warp/rewards-engine/ownership"
	"github.com/warp/rewards-engine/redemption"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Catalog   catalog.Catalog
	Ownership ownership.Store
	Ledger    ledger.Service
	Engine    *redemption.Engine
	Sessions  *client.Sessions

	// Demo enables the scenario endpoints when set. Leave nil in
	// deployments that must never wipe data.
	Demo DemoStore

	validate *validator.Validate

	currentScenario string
}

// NewHandler wires the handler from its collaborators. Sessions may be
// nil; server-side view caching is then disabled.
func NewHandler(cat catalog.Catalog, own ownership.Store, svc ledger.Service, engine *redemption.Engine, sessions *client.Sessions) *Handler {
	return &Handler{
		Catalog:   cat,
		Ownership: own,
		Ledger:    svc,
		Engine:    engine,
		Sessions:  sessions,
		validate:  validator.New(),
	}
}

func (h *Handler) decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListCatalog returns all active cosmetics.
// GET /api/catalog
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := h.Catalog.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list catalog", err)
		return
	}

	dtos := make([]CosmeticDTO, len(items))
	for i, item := range items {
		dtos[i] = toCosmeticDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// GetState returns the authoritative snapshot: balance plus ownership.
// Clients reconcile (replace, not merge) their optimistic view with this.
// GET /api/students/{id}/state
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "id"))

	balance, err := h.Ledger.Balance(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get balance", err)
		return
	}
	records, err := h.Ownership.ListByStudent(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cosmetics", err)
		return
	}

	if h.Sessions != nil {
		h.Sessions.Put(studentID, client.SnapshotFromRecords(balance.Int64(), records))
	}

	dtos := make([]OwnedCosmeticDTO, len(records))
	for i, rec := range records {
		dtos[i] = toOwnedCosmeticDTO(rec)
	}
	writeJSON(w, http.StatusOK, StudentStateDTO{
		StudentID: string(studentID),
		Balance:   balance.Int64(),
		Cosmetics: dtos,
	})
}

// GetBalance returns a student's point balance.
// GET /api/students/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "id"))

	balance, err := h.Ledger.Balance(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get balance", err)
		return
	}

	writeJSON(w, http.StatusOK, BalanceDTO{
		StudentID: string(studentID),
		Balance:   balance.Int64(),
		AsOf:      time.Now().UTC().Format(time.RFC3339),
	})
}

// ListCosmetics returns a student's redeemed cosmetics.
// GET /api/students/{id}/cosmetics
func (h *Handler) ListCosmetics(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "id"))

	records, err := h.Ownership.ListByStudent(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cosmetics", err)
		return
	}

	dtos := make([]OwnedCosmeticDTO, len(records))
	for i, rec := range records {
		dtos[i] = toOwnedCosmeticDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTransactions returns a student's ledger history, oldest first.
// GET /api/students/{id}/transactions
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "id"))

	txs, err := h.Ledger.Transactions(r.Context(), studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// Purchase redeems a cosmetic for a student.
// POST /api/students/{id}/purchases
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "id"))

	var req PurchaseRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Engine.Purchase(r.Context(), studentID, catalog.ItemID(req.ItemID))
	if err != nil {
		purchasesTotal.WithLabelValues(purchaseOutcome(err)).Inc()
		writeDomainError(w, err)
		return
	}
	purchasesTotal.WithLabelValues(outcomeOK).Inc()
	pointsRedeemedTotal.Add(float64(result.CostPaid.Int64()))

	// Keep the cached view authoritative without a full re-read.
	if h.Sessions != nil {
		if view, ok := h.Sessions.Get(studentID); ok {
			view.ReconcileBalance(result.NewBalance.Int64())
		}
	}

	writeJSON(w, http.StatusCreated, PurchaseResponseDTO{
		Cosmetic:   toOwnedCosmeticDTO(result.Record),
		NewBalance: result.NewBalance.Int64(),
	})
}

// Equip equips a cosmetic within its category.
// POST /api/students/{id}/equip
func (h *Handler) Equip(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "id"))

	var req EquipRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.Equip(r.Context(), studentID, catalog.ItemID(req.ItemID)); err != nil {
		equipsTotal.WithLabelValues("equip", outcomeError).Inc()
		writeDomainError(w, err)
		return
	}
	equipsTotal.WithLabelValues("equip", outcomeOK).Inc()

	if h.Sessions != nil {
		h.Sessions.Invalidate(studentID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unequip clears the equipped flag on an owned cosmetic.
// POST /api/students/{id}/unequip
func (h *Handler) Unequip(w http.ResponseWriter, r *http.Request) {
	studentID := ledger.StudentID(chi.URLParam(r, "id"))

	var req EquipRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.Unequip(r.Context(), studentID, catalog.ItemID(req.ItemID)); err != nil {
		equipsTotal.WithLabelValues("unequip", outcomeError).Inc()
		writeDomainError(w, err)
		return
	}
	equipsTotal.WithLabelValues("unequip", outcomeOK).Inc()

	if h.Sessions != nil {
		h.Sessions.Invalidate(studentID)
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Grant credits points to a student.
// POST /api/admin/grants
func (h *Handler) Grant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	key := req.IdempotencyKey
	if key == "" {
		key = "grant:" + uuid.NewString()
	}

	balance, err := h.Ledger.Grant(r.Context(), ledger.StudentID(req.StudentID),
		ledger.Points(req.Amount), req.Reason, key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	grantsTotal.Inc()

	if h.Sessions != nil {
		h.Sessions.Invalidate(ledger.StudentID(req.StudentID))
	}

	writeJSON(w, http.StatusCreated, GrantResponseDTO{
		StudentID:  req.StudentID,
		NewBalance: balance.Int64(),
	})
}

// Audit scans for ownership records with no matching ledger entry.
// GET /api/admin/audit
func (h *Handler) Audit(w http.ResponseWriter, r *http.Request) {
	faults, err := h.Engine.Audit(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Audit failed", err)
		return
	}

	dtos := make([]AuditFaultDTO, len(faults))
	for i, f := range faults {
		dtos[i] = AuditFaultDTO{StudentID: string(f.StudentID), ItemID: string(f.ItemID)}
	}
	writeJSON(w, http.StatusOK, AuditResponseDTO{
		Consistent: len(faults) == 0,
		Faults:     dtos,
	})
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError maps domain errors to HTTP responses with stable codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var insufficientFunds *ledger.InsufficientFundsError

	switch {
	case errors.Is(err, catalog.ErrItemNotFound):
		writeErrorCode(w, http.StatusNotFound, "Item not found", "item_not_found", err)
	case errors.Is(err, ownership.ErrNotOwned):
		writeErrorCode(w, http.StatusNotFound, "Item not owned", "not_owned", err)
	case errors.Is(err, redemption.ErrItemInactive):
		writeErrorCode(w, http.StatusConflict, "Item is no longer available", "item_inactive", err)
	case errors.Is(err, ownership.ErrAlreadyOwned):
		writeErrorCode(w, http.StatusConflict, "Item already owned", "already_owned", err)
	case errors.As(err, &insufficientFunds):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: "Insufficient points",
			Code:  "insufficient_funds",
			Details: map[string]int64{
				"available": insufficientFunds.Available.Int64(),
				"requested": insufficientFunds.Requested.Int64(),
				"shortfall": insufficientFunds.Shortfall().Int64(),
			},
		})
	case errors.Is(err, ledger.ErrDuplicateIdempotencyKey):
		writeErrorCode(w, http.StatusConflict, "Duplicate request", "duplicate_request", err)
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeErrorCode(w, http.StatusBadRequest, "Invalid amount", "invalid_amount", err)
	case errors.Is(err, redemption.ErrRequestInFlight):
		writeErrorCode(w, http.StatusConflict, "Identical request in flight", "request_in_flight", err)
	default:
		writeErrorCode(w, http.StatusInternalServerError, "Internal error", "internal", err)
	}
}

func purchaseOutcome(err error) string {
	var insufficientFunds *ledger.InsufficientFundsError
	switch {
	case errors.Is(err, ownership.ErrAlreadyOwned):
		return outcomeAlreadyOwned
	case errors.As(err, &insufficientFunds):
		return outcomeInsufficientFunds
	case errors.Is(err, redemption.ErrItemInactive):
		return outcomeItemInactive
	case errors.Is(err, catalog.ErrItemNotFound):
		return outcomeNotFound
	default:
		return outcomeError
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeErrorCode(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
