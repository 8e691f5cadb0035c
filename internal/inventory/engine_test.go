package inventory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/storefront/internal/infrastructure/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	return NewEngine(st), st
}

func addProduct(t *testing.T, st *store.MemoryStore, id, sku string, stock int) {
	t.Helper()
	err := st.CreateProduct(context.Background(), &store.Product{
		ID:        id,
		SKU:       sku,
		Name:      "Product " + sku,
		Price:     1000,
		Stock:     stock,
		Active:    true,
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)
}

func activeQuantity(t *testing.T, st *store.MemoryStore, productID string) int {
	t.Helper()
	reserved, err := st.ActiveReservedQuantities(context.Background(), []string{productID})
	require.NoError(t, err)
	return reserved[productID]
}

// ============================================
// Single Reserve Tests
// ============================================

func TestEngine_Reserve_Success(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-1", 10)

	id, err := engine.Reserve(context.Background(), "p1", 3, "sess-1")

	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 3, activeQuantity(t, st, "p1"))

	reservations, err := st.ReservationsBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, store.StatusPending, reservations[0].Status)
}

func TestEngine_Reserve_InvalidQuantity(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-1", 10)

	_, err := engine.Reserve(context.Background(), "p1", 0, "sess-1")
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = engine.Reserve(context.Background(), "p1", -2, "sess-1")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestEngine_Reserve_UnknownProduct(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.Reserve(context.Background(), "missing", 1, "sess-1")

	assert.ErrorIs(t, err, store.ErrProductNotFound)
}

func TestEngine_Reserve_InactiveProduct(t *testing.T) {
	engine, st := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, st.CreateProduct(ctx, &store.Product{
		ID: "p1", SKU: "SKU-1", Name: "Retired", Price: 500, Stock: 10, Active: false,
	}))

	_, err := engine.Reserve(ctx, "p1", 1, "sess-1")

	assert.ErrorIs(t, err, ErrProductInactive)
	assert.Equal(t, 0, activeQuantity(t, st, "p1"))
}

func TestEngine_Reserve_Insufficient(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-1", 3)

	_, err := engine.Reserve(context.Background(), "p1", 5, "sess-1")

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 0, activeQuantity(t, st, "p1"))
}

func TestEngine_Reserve_InsufficientAfterEarlierHolds(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-1", 5)

	_, err := engine.Reserve(context.Background(), "p1", 4, "sess-1")
	require.NoError(t, err)

	_, err = engine.Reserve(context.Background(), "p1", 2, "sess-2")
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// The remaining unit is still reservable.
	_, err = engine.Reserve(context.Background(), "p1", 1, "sess-3")
	require.NoError(t, err)
	assert.Equal(t, 5, activeQuantity(t, st, "p1"))
}

// ============================================
// Concurrency Tests
// ============================================

func TestEngine_Reserve_NoOversellUnderConcurrency(t *testing.T) {
	engine, st := newTestEngine(t)
	const stock = 5
	addProduct(t, st, "p1", "SKU-1", stock)

	const attempts = 20
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := engine.Reserve(context.Background(), "p1", 1, "sess-concurrent")
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrInsufficientStock)
		}
	}

	// Exactly the subset that fits must succeed.
	assert.Equal(t, stock, succeeded)
	assert.Equal(t, stock, activeQuantity(t, st, "p1"))
}

func TestEngine_Reserve_TwoRacersLastUnit(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-1", 1)

	results := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Reserve(context.Background(), "p1", 1, "sess-race")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var oks, insufficient int
	for err := range results {
		switch {
		case err == nil:
			oks++
		default:
			assert.ErrorIs(t, err, ErrInsufficientStock)
			insufficient++
		}
	}
	assert.Equal(t, 1, oks)
	assert.Equal(t, 1, insufficient)
}

func TestEngine_Reserve_UnlimitedStockBypass(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-1", store.UnlimitedStock)

	const attempts = 20
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Reserve(context.Background(), "p1", 100, "sess-unlimited")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	// Availability stays reported as unlimited.
	avail, err := NewLedger(st).Available(context.Background(), "p1")
	require.NoError(t, err)
	assert.True(t, avail.Unlimited)
	assert.True(t, avail.InStock())
}

// ============================================
// Batch Reserve Tests
// ============================================

func TestEngine_ReserveBatch_Success(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 5)
	addProduct(t, st, "p2", "SKU-B", 3)

	ids, err := engine.ReserveBatch(context.Background(), []Item{
		{ProductID: "p1", SKU: "SKU-A", Quantity: 2},
		{ProductID: "p2", SKU: "SKU-B", Quantity: 3},
	}, "sess-batch")

	require.NoError(t, err)
	assert.Len(t, ids, 2)
	assert.Equal(t, 2, activeQuantity(t, st, "p1"))
	assert.Equal(t, 3, activeQuantity(t, st, "p2"))
}

func TestEngine_ReserveBatch_AllOrNothing(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 5)
	addProduct(t, st, "p2", "SKU-B", 1)

	_, err := engine.ReserveBatch(context.Background(), []Item{
		{ProductID: "p1", SKU: "SKU-A", Quantity: 2},
		{ProductID: "p2", SKU: "SKU-B", Quantity: 4},
	}, "sess-batch")

	require.Error(t, err)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "SKU-B", insufficient.SKU)
	assert.Equal(t, 4, insufficient.Requested)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// No stock remains held: every reservation for the batch session
	// is either absent or expired.
	reservations, lookupErr := st.ReservationsBySession(context.Background(), "sess-batch")
	require.NoError(t, lookupErr)
	for _, r := range reservations {
		assert.Equal(t, store.StatusExpired, r.Status)
	}
	assert.Equal(t, 0, activeQuantity(t, st, "p1"))
	assert.Equal(t, 0, activeQuantity(t, st, "p2"))
}

func TestEngine_ReserveBatch_SingleItemOverStock(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 3)

	_, err := engine.ReserveBatch(context.Background(), []Item{
		{ProductID: "p1", SKU: "SKU-A", Quantity: 5},
	}, "sess-over")

	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "SKU-A", insufficient.SKU)

	reservations, lookupErr := st.ReservationsBySession(context.Background(), "sess-over")
	require.NoError(t, lookupErr)
	for _, r := range reservations {
		assert.NotEqual(t, store.StatusPending, r.Status)
		assert.NotEqual(t, store.StatusConfirmed, r.Status)
	}
}

func TestEngine_ReserveBatch_InvalidQuantity(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 3)

	_, err := engine.ReserveBatch(context.Background(), []Item{
		{ProductID: "p1", SKU: "SKU-A", Quantity: 0},
	}, "sess-bad")

	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, 0, activeQuantity(t, st, "p1"))
}

func TestEngine_ReserveBatch_SweepsStaleInline(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 2)

	// An abandoned checkout holds the whole pool.
	engine.now = func() time.Time { return time.Now().Add(-31 * time.Minute) }
	_, err := engine.Reserve(context.Background(), "p1", 2, "sess-abandoned")
	require.NoError(t, err)
	engine.now = time.Now

	// A fresh batch reclaims the abandoned stock inside its own
	// transaction and succeeds.
	ids, err := engine.ReserveBatch(context.Background(), []Item{
		{ProductID: "p1", SKU: "SKU-A", Quantity: 2},
	}, "sess-fresh")

	require.NoError(t, err)
	assert.Len(t, ids, 1)

	stale, err := st.ReservationsBySession(context.Background(), "sess-abandoned")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, store.StatusExpired, stale[0].Status)
	assert.Equal(t, 2, activeQuantity(t, st, "p1"))
}

// ============================================
// Status Transition Tests
// ============================================

func TestEngine_Confirm_Idempotent(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 5)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, "p1", 2, "sess-1")
	require.NoError(t, err)

	count, err := engine.Confirm(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Replay affects zero rows and leaves the same end state.
	count, err = engine.Confirm(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	reservations, err := st.ReservationsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, store.StatusConfirmed, reservations[0].Status)
}

func TestEngine_Confirm_CountsAgainstStock(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 3)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, "p1", 3, "sess-1")
	require.NoError(t, err)
	_, err = engine.Confirm(ctx, "sess-1")
	require.NoError(t, err)

	// Confirmed reservations still hold the stock.
	_, err = engine.Reserve(ctx, "p1", 1, "sess-2")
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.Equal(t, 3, activeQuantity(t, st, "p1"))
}

func TestEngine_Expire_ReleasesStock(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 3)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, "p1", 3, "sess-1")
	require.NoError(t, err)

	count, err := engine.Expire(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Availability shows the stock fully restored.
	avail, err := NewLedger(st).Available(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, avail.Count)
}

func TestEngine_RestockFromRefund(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 3)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, "p1", 3, "sess-1")
	require.NoError(t, err)
	_, err = engine.Confirm(ctx, "sess-1")
	require.NoError(t, err)

	count, err := engine.RestockFromRefund(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, activeQuantity(t, st, "p1"))

	// Expired is terminal: a confirm replay after the refund matches
	// zero rows.
	count, err = engine.Confirm(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	reservations, err := st.ReservationsBySession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, store.StatusExpired, reservations[0].Status)
}

func TestEngine_RestockFromRefund_NoConfirmed(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 3)
	ctx := context.Background()

	// Pending only; refund restock must not touch it.
	_, err := engine.Reserve(ctx, "p1", 1, "sess-pending")
	require.NoError(t, err)

	count, err := engine.RestockFromRefund(ctx, "sess-pending")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	count, err = engine.RestockFromRefund(ctx, "sess-unknown")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	assert.Equal(t, 1, activeQuantity(t, st, "p1"))
}

func TestEngine_RestockFromRefund_OtherSessionsUntouched(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 5)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, "p1", 2, "sess-a")
	require.NoError(t, err)
	_, err = engine.Confirm(ctx, "sess-a")
	require.NoError(t, err)
	_, err = engine.Reserve(ctx, "p1", 3, "sess-b")
	require.NoError(t, err)
	_, err = engine.Confirm(ctx, "sess-b")
	require.NoError(t, err)

	_, err = engine.RestockFromRefund(ctx, "sess-a")
	require.NoError(t, err)

	assert.Equal(t, 3, activeQuantity(t, st, "p1"))
}

// ============================================
// Sweep Tests
// ============================================

func TestEngine_SweepStale_WindowBoundary(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 10)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	window := 30 * time.Minute

	engine.now = func() time.Time { return created }
	_, err := engine.Reserve(ctx, "p1", 1, "sess-old")
	require.NoError(t, err)

	// Not eligible before created+window.
	engine.now = func() time.Time { return created.Add(window - time.Second) }
	count, err := engine.SweepStale(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Eligible at exactly created+window.
	engine.now = func() time.Time { return created.Add(window) }
	count, err = engine.SweepStale(ctx, window)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	reservations, err := st.ReservationsBySession(ctx, "sess-old")
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, store.StatusExpired, reservations[0].Status)
}

func TestEngine_SweepStale_SkipsConfirmed(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 10)
	ctx := context.Background()

	engine.now = func() time.Time { return time.Now().Add(-time.Hour) }
	_, err := engine.Reserve(ctx, "p1", 1, "sess-paid")
	require.NoError(t, err)
	engine.now = time.Now

	_, err = engine.Confirm(ctx, "sess-paid")
	require.NoError(t, err)

	count, err := engine.SweepStale(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, activeQuantity(t, st, "p1"))
}

// ============================================
// Session Rebind Tests
// ============================================

func TestEngine_RebindSession(t *testing.T) {
	engine, st := newTestEngine(t)
	addProduct(t, st, "p1", "SKU-A", 5)
	ctx := context.Background()

	_, err := engine.Reserve(ctx, "p1", 2, "tmp_token")
	require.NoError(t, err)

	require.NoError(t, engine.RebindSession(ctx, "tmp_token", "cs_real_123"))

	old, err := st.ReservationsBySession(ctx, "tmp_token")
	require.NoError(t, err)
	assert.Empty(t, old)

	rebound, err := st.ReservationsBySession(ctx, "cs_real_123")
	require.NoError(t, err)
	require.Len(t, rebound, 1)
	assert.Equal(t, store.StatusPending, rebound[0].Status)

	// Transitions keyed by the provider session id now find the rows.
	count, err := engine.Confirm(ctx, "cs_real_123")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
