package redemption_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/rewards-engine/catalog"
	"github.com/warp/rewards-engine/ledger"
	"github.com/warp/rewards-engine/ownership"
	"github.com/warp/rewards-engine/redemption"
	"github.com/warp/rewards-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*redemption.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	return redemption.NewEngine(store), store
}

func seedItem(store *memory.Store, id string, category catalog.Category, cost int64, active bool) catalog.CosmeticItem {
	item := catalog.CosmeticItem{
		ID:       catalog.ItemID(id),
		Name:     id,
		Category: category,
		Cost:     cost,
		Active:   active,
	}
	store.SeedItem(item)
	return item
}

func grantPoints(t *testing.T, store *memory.Store, studentID string, amount int64) {
	t.Helper()
	_, err := ledger.NewService(store).Grant(context.Background(),
		ledger.StudentID(studentID), ledger.Points(amount), "seed", "seed:"+studentID)
	require.NoError(t, err)
}

func balanceOf(t *testing.T, store *memory.Store, studentID string) int64 {
	t.Helper()
	bal, err := ledger.NewService(store).Balance(context.Background(), ledger.StudentID(studentID))
	require.NoError(t, err)
	return bal.Int64()
}

// =============================================================================
// PURCHASE TESTS
// =============================================================================

func TestPurchase_Success(t *testing.T) {
	// GIVEN: Student has 100 points, frame costs 80
	// WHEN: Purchasing the frame
	// THEN: Ownership gains one unequipped entry, balance drops to 20

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 80, true)
	grantPoints(t, store, "stu-1", 100)

	result, err := engine.Purchase(ctx, "stu-1", "frame-gold")
	require.NoError(t, err)

	assert.Equal(t, int64(20), result.NewBalance.Int64())
	assert.False(t, result.Record.Equipped, "a fresh purchase is never equipped")
	assert.Equal(t, catalog.CategoryFrame, result.Record.Category)

	rec, err := store.Get(ctx, "stu-1", "frame-gold")
	require.NoError(t, err)
	assert.False(t, rec.Equipped)
	assert.Equal(t, int64(20), balanceOf(t, store, "stu-1"))
}

func TestPurchase_RecordsRedemptionTransaction(t *testing.T) {
	// GIVEN: A successful purchase
	// THEN: The ledger holds a redemption entry referencing the item

	engine, store := newTestEngine(t)
	ctx := context.Background()

	item := seedItem(store, "badge-star", catalog.CategoryBadge, 30, true)
	grantPoints(t, store, "stu-1", 50)

	_, err := engine.Purchase(ctx, "stu-1", item.ID)
	require.NoError(t, err)

	txs, err := store.Load(ctx, "stu-1")
	require.NoError(t, err)
	require.Len(t, txs, 2) // seed grant + redemption

	redeem := txs[1]
	assert.Equal(t, ledger.TxRedemption, redeem.Type)
	assert.Equal(t, string(item.ID), redeem.ReferenceID)
	assert.Equal(t, int64(-30), redeem.Delta.Int64())
	assert.Equal(t, "redeem_badge-star", redeem.Reason)
}

func TestPurchase_InsufficientFunds_NothingMutated(t *testing.T) {
	// GIVEN: Student has 50 points, item costs 80
	// WHEN: Purchasing
	// THEN: InsufficientFundsError with the shortfall; no ownership record,
	//       balance untouched

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 80, true)
	grantPoints(t, store, "stu-1", 50)

	_, err := engine.Purchase(ctx, "stu-1", "frame-gold")
	require.Error(t, err)

	var fundsErr *ledger.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.Equal(t, int64(50), fundsErr.Available.Int64())
	assert.Equal(t, int64(80), fundsErr.Requested.Int64())
	assert.Equal(t, int64(30), fundsErr.Shortfall().Int64())

	_, err = store.Get(ctx, "stu-1", "frame-gold")
	assert.ErrorIs(t, err, ownership.ErrNotOwned, "failed purchase must not leave an ownership record")
	assert.Equal(t, int64(50), balanceOf(t, store, "stu-1"))
}

func TestPurchase_ExactBalance_Succeeds(t *testing.T) {
	// Balance exactly equal to cost is sufficient; the floor is zero,
	// not one.

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 80, true)
	grantPoints(t, store, "stu-1", 80)

	result, err := engine.Purchase(ctx, "stu-1", "frame-gold")
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.NewBalance.Int64())
}

func TestPurchase_AlreadyOwned_Rejected(t *testing.T) {
	// GIVEN: Student already owns the item
	// WHEN: Purchasing it again
	// THEN: ErrAlreadyOwned; balance charged exactly once

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 80, true)
	grantPoints(t, store, "stu-1", 200)

	_, err := engine.Purchase(ctx, "stu-1", "frame-gold")
	require.NoError(t, err)

	_, err = engine.Purchase(ctx, "stu-1", "frame-gold")
	assert.ErrorIs(t, err, ownership.ErrAlreadyOwned)
	assert.Equal(t, int64(120), balanceOf(t, store, "stu-1"), "second attempt must not deduct")
}

func TestPurchase_InactiveItem_Rejected(t *testing.T) {
	// An item deactivated between listing and purchase fails rather than
	// being sold.

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-retired", catalog.CategoryFrame, 80, false)
	grantPoints(t, store, "stu-1", 200)

	_, err := engine.Purchase(ctx, "stu-1", "frame-retired")
	assert.ErrorIs(t, err, redemption.ErrItemInactive)

	_, err = store.Get(ctx, "stu-1", "frame-retired")
	assert.ErrorIs(t, err, ownership.ErrNotOwned)
	assert.Equal(t, int64(200), balanceOf(t, store, "stu-1"))
}

func TestPurchase_UnknownItem_Rejected(t *testing.T) {
	engine, store := newTestEngine(t)
	grantPoints(t, store, "stu-1", 200)

	_, err := engine.Purchase(context.Background(), "stu-1", "no-such-item")
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
}

func TestPurchase_DoesNotChangeEquipState(t *testing.T) {
	// GIVEN: Student has an equipped frame
	// WHEN: Purchasing another frame
	// THEN: The equipped frame stays equipped; the new one arrives unequipped

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 10, true)
	seedItem(store, "frame-silver", catalog.CategoryFrame, 10, true)
	grantPoints(t, store, "stu-1", 100)

	_, err := engine.Purchase(ctx, "stu-1", "frame-gold")
	require.NoError(t, err)
	require.NoError(t, engine.Equip(ctx, "stu-1", "frame-gold"))

	_, err = engine.Purchase(ctx, "stu-1", "frame-silver")
	require.NoError(t, err)

	gold, _ := store.Get(ctx, "stu-1", "frame-gold")
	silver, _ := store.Get(ctx, "stu-1", "frame-silver")
	assert.True(t, gold.Equipped)
	assert.False(t, silver.Equipped)
}

// =============================================================================
// CONCURRENCY TESTS
// =============================================================================

func TestPurchase_ConcurrentDuplicates_SingleCharge(t *testing.T) {
	// GIVEN: Two concurrent purchases of the same (student, item)
	// THEN: Exactly one succeeds, the other gets ErrAlreadyOwned;
	//       one ownership record, one deduction

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 80, true)
	grantPoints(t, store, "stu-1", 500)

	const attempts = 8
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.Purchase(ctx, "stu-1", "frame-gold")
		}(i)
	}
	wg.Wait()

	var successes, alreadyOwned int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ownership.ErrAlreadyOwned):
			alreadyOwned++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, attempts-1, alreadyOwned)
	assert.Equal(t, int64(420), balanceOf(t, store, "stu-1"), "exactly one deduction")

	records, err := store.ListByStudent(ctx, "stu-1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestPurchase_ConcurrentDifferentItems_Independent(t *testing.T) {
	// Purchases of different items by the same student do not serialize
	// into failures; both succeed.

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 10, true)
	seedItem(store, "bg-ocean", catalog.CategoryBackground, 10, true)
	grantPoints(t, store, "stu-1", 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []catalog.ItemID{"frame-gold", "bg-ocean"} {
		wg.Add(1)
		go func(i int, id catalog.ItemID) {
			defer wg.Done()
			_, errs[i] = engine.Purchase(ctx, "stu-1", id)
		}(i, id)
	}
	wg.Wait()

	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.Equal(t, int64(80), balanceOf(t, store, "stu-1"))
}

// =============================================================================
// EQUIP EXCLUSIVITY TESTS
// =============================================================================

func TestEquip_ExclusiveWithinCategory(t *testing.T) {
	// GIVEN: Student owns two frames, frame-gold equipped
	// WHEN: Equipping frame-silver
	// THEN: frame-silver equipped, frame-gold unequipped

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 10, true)
	seedItem(store, "frame-silver", catalog.CategoryFrame, 10, true)
	grantPoints(t, store, "stu-1", 100)

	_, err := engine.Purchase(ctx, "stu-1", "frame-gold")
	require.NoError(t, err)
	_, err = engine.Purchase(ctx, "stu-1", "frame-silver")
	require.NoError(t, err)

	require.NoError(t, engine.Equip(ctx, "stu-1", "frame-gold"))
	require.NoError(t, engine.Equip(ctx, "stu-1", "frame-silver"))

	gold, _ := store.Get(ctx, "stu-1", "frame-gold")
	silver, _ := store.Get(ctx, "stu-1", "frame-silver")
	assert.False(t, gold.Equipped)
	assert.True(t, silver.Equipped)
}

func TestEquip_OtherCategoriesUntouched(t *testing.T) {
	// GIVEN: Student has an equipped frame AND an equipped background
	// WHEN: Equipping a different frame
	// THEN: The background stays equipped

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 10, true)
	seedItem(store, "frame-silver", catalog.CategoryFrame, 10, true)
	seedItem(store, "bg-ocean", catalog.CategoryBackground, 10, true)
	grantPoints(t, store, "stu-1", 100)

	for _, id := range []catalog.ItemID{"frame-gold", "frame-silver", "bg-ocean"} {
		_, err := engine.Purchase(ctx, "stu-1", id)
		require.NoError(t, err)
	}
	require.NoError(t, engine.Equip(ctx, "stu-1", "frame-gold"))
	require.NoError(t, engine.Equip(ctx, "stu-1", "bg-ocean"))

	require.NoError(t, engine.Equip(ctx, "stu-1", "frame-silver"))

	bg, _ := store.Get(ctx, "stu-1", "bg-ocean")
	assert.True(t, bg.Equipped, "equipping a frame must not unequip the background")

	silver, _ := store.Get(ctx, "stu-1", "frame-silver")
	gold, _ := store.Get(ctx, "stu-1", "frame-gold")
	assert.True(t, silver.Equipped)
	assert.False(t, gold.Equipped)
}

func TestEquip_SameItemTwice_Idempotent(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 10, true)
	grantPoints(t, store, "stu-1", 100)
	_, err := engine.Purchase(ctx, "stu-1", "frame-gold")
	require.NoError(t, err)

	require.NoError(t, engine.Equip(ctx, "stu-1", "frame-gold"))
	require.NoError(t, engine.Equip(ctx, "stu-1", "frame-gold"))

	rec, _ := store.Get(ctx, "stu-1", "frame-gold")
	assert.True(t, rec.Equipped)
}

func TestEquip_NotOwned_Rejected(t *testing.T) {
	engine, store := newTestEngine(t)
	seedItem(store, "frame-gold", catalog.CategoryFrame, 10, true)

	err := engine.Equip(context.Background(), "stu-1", "frame-gold")
	assert.ErrorIs(t, err, ownership.ErrNotOwned)
}

func TestEquip_IndependentPerStudent(t *testing.T) {
	// Exclusivity is per student: two students can both have an equipped
	// frame.

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 10, true)
	grantPoints(t, store, "stu-1", 100)
	grantPoints(t, store, "stu-2", 100)

	for _, stu := range []ledger.StudentID{"stu-1", "stu-2"} {
		_, err := engine.Purchase(ctx, stu, "frame-gold")
		require.NoError(t, err)
		require.NoError(t, engine.Equip(ctx, stu, "frame-gold"))
	}

	r1, _ := store.Get(ctx, "stu-1", "frame-gold")
	r2, _ := store.Get(ctx, "stu-2", "frame-gold")
	assert.True(t, r1.Equipped)
	assert.True(t, r2.Equipped)
}

func TestUnequip(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 10, true)
	grantPoints(t, store, "stu-1", 100)
	_, err := engine.Purchase(ctx, "stu-1", "frame-gold")
	require.NoError(t, err)
	require.NoError(t, engine.Equip(ctx, "stu-1", "frame-gold"))

	require.NoError(t, engine.Unequip(ctx, "stu-1", "frame-gold"))

	rec, _ := store.Get(ctx, "stu-1", "frame-gold")
	assert.False(t, rec.Equipped)

	// Unequipping an already-unequipped item is a no-op, not an error.
	require.NoError(t, engine.Unequip(ctx, "stu-1", "frame-gold"))
}

func TestUnequip_NotOwned_Rejected(t *testing.T) {
	engine, _ := newTestEngine(t)
	err := engine.Unequip(context.Background(), "stu-1", "frame-gold")
	assert.ErrorIs(t, err, ownership.ErrNotOwned)
}

// =============================================================================
// CONSISTENCY AUDIT TESTS
// =============================================================================

func TestAudit_CleanAfterPurchases(t *testing.T) {
	// Purchases made through the engine never produce partial states.

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 10, true)
	seedItem(store, "bg-ocean", catalog.CategoryBackground, 10, true)
	grantPoints(t, store, "stu-1", 100)

	for _, id := range []catalog.ItemID{"frame-gold", "bg-ocean"} {
		_, err := engine.Purchase(ctx, "stu-1", id)
		require.NoError(t, err)
	}

	faults, err := engine.Audit(ctx)
	require.NoError(t, err)
	assert.Empty(t, faults)
}

func TestAudit_DetectsOwnershipWithoutPayment(t *testing.T) {
	// GIVEN: An ownership record written directly to the store, bypassing
	//        the engine (simulating external mutation)
	// THEN: Audit reports it as a fault

	engine, store := newTestEngine(t)
	ctx := context.Background()

	seedItem(store, "frame-gold", catalog.CategoryFrame, 10, true)
	require.NoError(t, store.InsertIfAbsent(ctx, ownership.Record{
		StudentID: "stu-1",
		ItemID:    "frame-gold",
		Category:  catalog.CategoryFrame,
	}))

	faults, err := engine.Audit(ctx)
	require.NoError(t, err)
	require.Len(t, faults, 1)
	assert.Equal(t, ledger.StudentID("stu-1"), faults[0].StudentID)
	assert.Equal(t, catalog.ItemID("frame-gold"), faults[0].ItemID)
}
