/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario seeds the cosmetic catalog,
	grants points to demo students, and optionally performs purchases and
	equips through the real engine, so the resulting data respects every
	invariant.

AVAILABLE SCENARIOS:

	fresh-classroom:  Full catalog, three students with starter balances
	collector:        A student who has redeemed most of the catalog
	saving-up:        A student who cannot yet afford anything

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Save catalog items
 3. Grant points via the ledger service
 4. Optionally purchase and equip via the engine

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "collector"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - server.go: Scenario routes
  - redemption/engine.go: Used so demo data stays invariant-clean
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/ledger"
)

// DemoStore is the extra store surface scenario loading needs beyond the
// read contracts: catalog writes and a full wipe. Both provided stores
// implement it.
type DemoStore interface {
	SaveItem(ctx context.Context, item catalog.CosmeticItem) error
	Reset(ctx context.Context) error
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "fresh-classroom",
		Name:        "Fresh Classroom",
		Description: "Full catalog, three students with starter balances, nothing redeemed yet",
	},
	{
		ID:          "collector",
		Name:        "Collector",
		Description: "A student who has redeemed and equipped most of the catalog",
	},
	{
		ID:          "saving-up",
		Name:        "Saving Up",
		Description: "A student whose balance is below every item's cost",
	},
}

var demoCatalog = []catalog.CosmeticItem{
	{ID: "frame-gold", Name: "Gold Frame", Category: catalog.CategoryFrame, Cost: 80, Active: true},
	{ID: "frame-silver", Name: "Silver Frame", Category: catalog.CategoryFrame, Cost: 50, Active: true},
	{ID: "bg-ocean", Name: "Ocean Background", Category: catalog.CategoryBackground, Cost: 60, Active: true},
	{ID: "bg-forest", Name: "Forest Background", Category: catalog.CategoryBackground, Cost: 40, Active: true},
	{ID: "badge-star", Name: "Star Badge", Category: catalog.CategoryBadge, Cost: 30, Active: true},
	{ID: "avatar-fox", Name: "Fox Avatar", Category: catalog.CategoryAvatar, Cost: 100, Active: true},
	{ID: "frame-legacy", Name: "Legacy Frame", Category: catalog.CategoryFrame, Cost: 20, Active: false},
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: h.currentScenario, Name: h.currentScenario})
}

// LoadScenario resets the database and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Demo == nil {
		writeError(w, http.StatusNotImplemented, "Scenario loading not enabled", nil)
		return
	}

	var req LoadScenarioRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	if err := h.Demo.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "fresh-classroom":
		err = h.loadFreshClassroom(ctx)
	case "collector":
		err = h.loadCollector(ctx)
	case "saving-up":
		err = h.loadSavingUp(ctx)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// ResetDatabase clears all data without loading a scenario.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Demo == nil {
		writeError(w, http.StatusNotImplemented, "Reset not enabled", nil)
		return
	}
	if err := h.Demo.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) seedCatalog(ctx context.Context) error {
	for _, item := range demoCatalog {
		if err := h.Demo.SaveItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) grant(ctx context.Context, studentID string, amount int64, reason string) error {
	_, err := h.Ledger.Grant(ctx, ledger.StudentID(studentID), ledger.Points(amount),
		reason, fmt.Sprintf("scenario:%s:%s", studentID, reason))
	return err
}

func (h *Handler) loadFreshClassroom(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	for student, pts := range map[string]int64{
		"stu-ana":   120,
		"stu-bruno": 75,
		"stu-carla": 45,
	} {
		if err := h.grant(ctx, student, pts, "starter_balance"); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadCollector(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	if err := h.grant(ctx, "stu-ana", 400, "accumulated"); err != nil {
		return err
	}

	// Purchases and equips go through the engine so the demo data obeys
	// the same invariants as real data.
	for _, id := range []catalog.ItemID{"frame-gold", "frame-silver", "bg-ocean", "badge-star"} {
		if _, err := h.Engine.Purchase(ctx, "stu-ana", id); err != nil {
			return err
		}
	}
	for _, id := range []catalog.ItemID{"frame-gold", "bg-ocean", "badge-star"} {
		if err := h.Engine.Equip(ctx, "stu-ana", id); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadSavingUp(ctx context.Context) error {
	if err := h.seedCatalog(ctx); err != nil {
		return err
	}
	return h.grant(ctx, "stu-bruno", 15, "starter_balance")
}
