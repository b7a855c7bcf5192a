/*
handlers_test.go - Unit tests for API handlers

Tests the HTTP surface end to end against the in-memory store: routing,
request validation, status codes, and the stable error codes clients
branch on.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/rewards-engine/api"
	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/client"
	"github.com/warp/rewards-engine/ledger"
	"github.com/warp/rewards-engine/redemption"
	"github.com/warp/rewards-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	engine := redemption.NewEngine(store)
	svc := ledger.NewService(store)
	sessions := client.NewSessions(64, time.Minute)

	handler := api.NewHandler(store, store, svc, engine, sessions)
	handler.Demo = store
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv, store
}

func seedCatalog(store *memory.Store) {
	store.SeedItem(catalog.CosmeticItem{
		ID: "frame-gold", Name: "Gold Frame", Category: catalog.CategoryFrame, Cost: 80, Active: true,
	})
	store.SeedItem(catalog.CosmeticItem{
		ID: "frame-retired", Name: "Retired Frame", Category: catalog.CategoryFrame, Cost: 80, Active: false,
	})
	store.SeedItem(catalog.CosmeticItem{
		ID: "bg-ocean", Name: "Ocean Background", Category: catalog.CategoryBackground, Cost: 40, Active: true,
	})
}

func grantPoints(t *testing.T, store *memory.Store, studentID string, amount int64) {
	t.Helper()
	_, err := ledger.NewService(store).Grant(context.Background(),
		ledger.StudentID(studentID), ledger.Points(amount), "seed", "seed:"+studentID)
	require.NoError(t, err)
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// =============================================================================
// CATALOG
// =============================================================================

func TestAPI_ListCatalog_OnlyActive(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)

	resp, err := http.Get(srv.URL + "/api/catalog")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	items := decode[[]api.CosmeticDTO](t, resp)
	ids := make(map[string]bool)
	for _, item := range items {
		ids[item.ID] = true
	}
	assert.True(t, ids["frame-gold"])
	assert.True(t, ids["bg-ocean"])
	assert.False(t, ids["frame-retired"], "inactive items are not listed")
}

// =============================================================================
// PURCHASE
// =============================================================================

func TestAPI_Purchase_Success(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)
	grantPoints(t, store, "stu-1", 100)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/purchases", api.PurchaseRequest{ItemID: "frame-gold"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decode[api.PurchaseResponseDTO](t, resp)
	assert.Equal(t, int64(20), body.NewBalance)
	assert.Equal(t, "frame-gold", body.Cosmetic.ItemID)
	assert.False(t, body.Cosmetic.Equipped)
}

func TestAPI_Purchase_InsufficientFunds(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)
	grantPoints(t, store, "stu-1", 50)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/purchases", api.PurchaseRequest{ItemID: "frame-gold"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "insufficient_funds", body.Code)
}

func TestAPI_Purchase_AlreadyOwned(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)
	grantPoints(t, store, "stu-1", 200)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/purchases", api.PurchaseRequest{ItemID: "frame-gold"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/students/stu-1/purchases", api.PurchaseRequest{ItemID: "frame-gold"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "already_owned", body.Code)
}

func TestAPI_Purchase_InactiveItem(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)
	grantPoints(t, store, "stu-1", 200)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/purchases", api.PurchaseRequest{ItemID: "frame-retired"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "item_inactive", body.Code)
}

func TestAPI_Purchase_UnknownItem(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)
	grantPoints(t, store, "stu-1", 200)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/purchases", api.PurchaseRequest{ItemID: "no-such-item"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "item_not_found", body.Code)
}

func TestAPI_Purchase_MissingItemID(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/purchases", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// EQUIP / UNEQUIP
// =============================================================================

func TestAPI_EquipFlow(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)
	grantPoints(t, store, "stu-1", 200)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/purchases", api.PurchaseRequest{ItemID: "frame-gold"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/students/stu-1/equip", api.EquipRequest{ItemID: "frame-gold"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/students/stu-1/cosmetics")
	require.NoError(t, err)
	cosmetics := decode[[]api.OwnedCosmeticDTO](t, resp)
	require.Len(t, cosmetics, 1)
	assert.True(t, cosmetics[0].Equipped)

	resp = postJSON(t, srv.URL+"/api/students/stu-1/unequip", api.EquipRequest{ItemID: "frame-gold"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_Equip_NotOwned(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/equip", api.EquipRequest{ItemID: "frame-gold"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "not_owned", body.Code)
}

// =============================================================================
// STUDENT STATE / BALANCE
// =============================================================================

func TestAPI_StateReflectsPurchases(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)
	grantPoints(t, store, "stu-1", 200)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/purchases", api.PurchaseRequest{ItemID: "bg-ocean"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/students/stu-1/state")
	require.NoError(t, err)
	state := decode[api.StudentStateDTO](t, resp)
	assert.Equal(t, int64(160), state.Balance)
	require.Len(t, state.Cosmetics, 1)
	assert.Equal(t, "bg-ocean", state.Cosmetics[0].ItemID)
}

func TestAPI_TransactionsHistory(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)
	grantPoints(t, store, "stu-1", 100)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/purchases", api.PurchaseRequest{ItemID: "bg-ocean"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/students/stu-1/transactions")
	require.NoError(t, err)
	txs := decode[[]api.TransactionDTO](t, resp)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(100), txs[0].Delta)
	assert.Equal(t, int64(-40), txs[1].Delta)
	assert.Equal(t, "bg-ocean", txs[1].ReferenceID)
}

// =============================================================================
// ADMIN
// =============================================================================

func TestAPI_Grant(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/grants", api.GrantRequest{
		StudentID: "stu-1", Amount: 150, Reason: "mood_checkin",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decode[api.GrantResponseDTO](t, resp)
	assert.Equal(t, int64(150), body.NewBalance)
}

func TestAPI_Grant_RejectsNonPositiveAmount(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/admin/grants", api.GrantRequest{
		StudentID: "stu-1", Amount: -5, Reason: "oops",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_Grant_IdempotencyKeyHonored(t *testing.T) {
	srv, _ := newTestServer(t)

	req := api.GrantRequest{StudentID: "stu-1", Amount: 50, Reason: "quiz", IdempotencyKey: "quiz-42"}

	resp := postJSON(t, srv.URL+"/api/admin/grants", req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/admin/grants", req)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[api.ErrorResponse](t, resp)
	assert.Equal(t, "duplicate_request", body.Code)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestAPI_LoadScenario_Collector(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "collector"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Demo data is built through the engine, so it must pass the audit.
	resp, err := http.Get(srv.URL + "/api/admin/audit")
	require.NoError(t, err)
	audit := decode[api.AuditResponseDTO](t, resp)
	assert.True(t, audit.Consistent)

	resp, err = http.Get(srv.URL + "/api/students/stu-ana/cosmetics")
	require.NoError(t, err)
	cosmetics := decode[[]api.OwnedCosmeticDTO](t, resp)
	assert.Len(t, cosmetics, 4)

	resp, err = http.Get(srv.URL + "/api/scenarios/current")
	require.NoError(t, err)
	current := decode[api.ScenarioDTO](t, resp)
	assert.Equal(t, "collector", current.ID)
}

func TestAPI_LoadScenario_Unknown(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/scenarios/load", api.LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_Reset_ClearsData(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)
	grantPoints(t, store, "stu-1", 100)

	resp := postJSON(t, srv.URL+"/api/scenarios/reset", struct{}{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/students/stu-1/balance")
	require.NoError(t, err)
	balance := decode[api.BalanceDTO](t, resp)
	assert.Equal(t, int64(0), balance.Balance)
}

func TestAPI_Audit_Clean(t *testing.T) {
	srv, store := newTestServer(t)
	seedCatalog(store)
	grantPoints(t, store, "stu-1", 200)

	resp := postJSON(t, srv.URL+"/api/students/stu-1/purchases", api.PurchaseRequest{ItemID: "frame-gold"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/api/admin/audit")
	require.NoError(t, err)
	body := decode[api.AuditResponseDTO](t, resp)
	assert.True(t, body.Consistent)
	assert.Empty(t, body.Faults)
}
