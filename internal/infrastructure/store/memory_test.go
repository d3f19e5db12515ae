package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/stock-ledger/internal/domain/stock"
)

func newTestRecord(productID, ownerID string, qty int) *stock.Record {
	return &stock.Record{
		ProductID:     productID,
		ProductName:   "Test Product",
		OwnerID:       ownerID,
		StockQuantity: qty,
		ReorderLevel:  5,
		MaxStockLevel: 100,
		UnitCost:      500,
		UnitPrice:     1200,
		IsActive:      true,
	}
}

func seedRecord(t *testing.T, s *MemoryStore, productID, ownerID string, qty int) {
	t.Helper()
	require.NoError(t, s.Create(context.Background(), newTestRecord(productID, ownerID, qty)))
}

// ============================================================================
// Create / Get
// ============================================================================

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	seedRecord(t, s, "prod-1", "vendor-1", 20)

	rec, err := s.Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, "prod-1", rec.ProductID)
	assert.Equal(t, 20, rec.StockQuantity)
	assert.Equal(t, 0, rec.ReservedQuantity)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestMemoryStore_CreateDuplicate(t *testing.T) {
	s := NewMemoryStore()
	seedRecord(t, s, "prod-1", "vendor-1", 20)

	err := s.Create(context.Background(), newTestRecord("prod-1", "vendor-1", 5))
	assert.ErrorIs(t, err, stock.ErrRecordConflict)
}

func TestMemoryStore_GetNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, stock.ErrRecordNotFound)
}

// ============================================================================
// Reservation primitives
// ============================================================================

func TestMemoryStore_Reserve(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 10)

	rec, err := s.Reserve(ctx, "prod-1", 4)
	require.NoError(t, err)

	// Reservation earmarks units without removing them from stock.
	assert.Equal(t, 10, rec.StockQuantity)
	assert.Equal(t, 4, rec.ReservedQuantity)
	assert.Equal(t, 6, rec.AvailableStock())
}

func TestMemoryStore_ReserveInsufficient(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 10)

	_, err := s.Reserve(ctx, "prod-1", 8)
	require.NoError(t, err)

	_, err = s.Reserve(ctx, "prod-1", 3)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)

	rec, err := s.Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 8, rec.ReservedQuantity, "failed reserve must not change state")
}

func TestMemoryStore_Release(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 10)

	_, err := s.Reserve(ctx, "prod-1", 6)
	require.NoError(t, err)

	rec, err := s.Release(ctx, "prod-1", 4)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.StockQuantity)
	assert.Equal(t, 2, rec.ReservedQuantity)

	_, err = s.Release(ctx, "prod-1", 5)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)
}

func TestMemoryStore_ConfirmSale(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 10)

	_, err := s.Reserve(ctx, "prod-1", 6)
	require.NoError(t, err)

	rec, err := s.ConfirmSale(ctx, "prod-1", 6)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.StockQuantity)
	assert.Equal(t, 0, rec.ReservedQuantity)
	assert.Equal(t, 6, rec.SoldQuantity)
	assert.False(t, rec.LastSoldAt.IsZero())
}

func TestMemoryStore_ConfirmSaleWithoutReservation(t *testing.T) {
	s := NewMemoryStore()
	seedRecord(t, s, "prod-1", "vendor-1", 10)

	_, err := s.ConfirmSale(context.Background(), "prod-1", 1)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)
}

func TestMemoryStore_DirectSale(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 10)

	_, err := s.Reserve(ctx, "prod-1", 7)
	require.NoError(t, err)

	// Only 3 units are unreserved, so a direct sale of 4 must fail even
	// though 10 units are physically in stock.
	_, err = s.DirectSale(ctx, "prod-1", 4)
	assert.ErrorIs(t, err, stock.ErrInsufficientStock)

	rec, err := s.DirectSale(ctx, "prod-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, rec.StockQuantity)
	assert.Equal(t, 7, rec.ReservedQuantity)
	assert.Equal(t, 3, rec.SoldQuantity)
}

func TestMemoryStore_ReserveReleaseRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 15)

	before, err := s.Get(ctx, "prod-1")
	require.NoError(t, err)

	_, err = s.Reserve(ctx, "prod-1", 5)
	require.NoError(t, err)
	after, err := s.Release(ctx, "prod-1", 5)
	require.NoError(t, err)

	assert.Equal(t, before.StockQuantity, after.StockQuantity)
	assert.Equal(t, before.ReservedQuantity, after.ReservedQuantity)
	assert.Equal(t, before.SoldQuantity, after.SoldQuantity)
}

// ============================================================================
// Restock / manual adjustment
// ============================================================================

func TestMemoryStore_Restock(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 3)

	rec, err := s.Restock(ctx, "prod-1", 47)
	require.NoError(t, err)
	assert.Equal(t, 50, rec.StockQuantity)
	assert.False(t, rec.LastRestockedAt.IsZero())
}

func TestMemoryStore_SetQuantity(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 30)

	rec, err := s.SetQuantity(ctx, "prod-1", 12, "audit: cycle count 2026-08")
	require.NoError(t, err)
	assert.Equal(t, 12, rec.StockQuantity)
	assert.Contains(t, rec.Notes, "audit: cycle count 2026-08")

	rec, err = s.SetQuantity(ctx, "prod-1", 9, "audit: damaged units removed")
	require.NoError(t, err)
	assert.Contains(t, rec.Notes, "audit: cycle count 2026-08")
	assert.Contains(t, rec.Notes, "audit: damaged units removed")
}

func TestMemoryStore_SetQuantityBelowReserved(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 20)

	_, err := s.Reserve(ctx, "prod-1", 8)
	require.NoError(t, err)

	_, err = s.SetQuantity(ctx, "prod-1", 5, "audit: shrinkage")
	assert.ErrorIs(t, err, stock.ErrRecordConflict)

	rec, err := s.Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 20, rec.StockQuantity)
}

// ============================================================================
// Delete guard
// ============================================================================

func TestMemoryStore_DeleteBlockedByReservation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 10)

	_, err := s.Reserve(ctx, "prod-1", 2)
	require.NoError(t, err)

	err = s.Delete(ctx, "prod-1")
	assert.ErrorIs(t, err, stock.ErrRecordConflict)

	_, err = s.Release(ctx, "prod-1", 2)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "prod-1"))

	_, err = s.Get(ctx, "prod-1")
	assert.ErrorIs(t, err, stock.ErrRecordNotFound)
}

func TestMemoryStore_ConcurrentReserveAndDelete(t *testing.T) {
	ctx := context.Background()

	// A reservation and a delete racing on the same record must never both
	// succeed: a won reservation blocks the delete, and a completed delete
	// leaves nothing to reserve against.
	for i := 0; i < 200; i++ {
		s := NewMemoryStore()
		seedRecord(t, s, "prod-1", "vendor-1", 5)

		var wg sync.WaitGroup
		var reserveErr, deleteErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, reserveErr = s.Reserve(ctx, "prod-1", 1)
		}()
		go func() {
			defer wg.Done()
			deleteErr = s.Delete(ctx, "prod-1")
		}()
		wg.Wait()

		require.False(t, reserveErr == nil && deleteErr == nil,
			"reservation and delete both succeeded on the same record")

		if deleteErr == nil {
			assert.ErrorIs(t, reserveErr, stock.ErrRecordNotFound)
			_, err := s.Get(ctx, "prod-1")
			assert.ErrorIs(t, err, stock.ErrRecordNotFound)
		} else {
			assert.ErrorIs(t, deleteErr, stock.ErrRecordConflict)
			require.NoError(t, reserveErr)
			rec, err := s.Get(ctx, "prod-1")
			require.NoError(t, err)
			assert.Equal(t, 1, rec.ReservedQuantity)
		}
	}
}

// ============================================================================
// Detail updates and listings
// ============================================================================

func TestMemoryStore_UpdateDetailsPartial(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 10)

	name := "Renamed Product"
	price := int64(1999)
	rec, err := s.UpdateDetails(ctx, "prod-1", Details{
		ProductName: &name,
		UnitPrice:   &price,
	})
	require.NoError(t, err)

	assert.Equal(t, "Renamed Product", rec.ProductName)
	assert.Equal(t, int64(1999), rec.UnitPrice)
	assert.Equal(t, int64(500), rec.UnitCost, "unset fields keep their values")
	assert.Equal(t, 5, rec.ReorderLevel)
}

func TestMemoryStore_Listings(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 10)
	seedRecord(t, s, "prod-2", "vendor-1", 10)
	seedRecord(t, s, "prod-3", "vendor-2", 10)

	_, err := s.SetActive(ctx, "prod-2", false)
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	owned, err := s.ListByOwner(ctx, "vendor-1")
	require.NoError(t, err)
	assert.Len(t, owned, 2)

	active, err := s.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

// ============================================================================
// Concurrency
// ============================================================================

func TestMemoryStore_ConcurrentReserves(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 5)

	const attempts = 20
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Reserve(ctx, "prod-1", 1)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, stock.ErrInsufficientStock)
		}
	}
	assert.Equal(t, 5, succeeded, "exactly the available units may be reserved")

	rec, err := s.Get(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.ReservedQuantity)
	assert.Equal(t, 0, rec.AvailableStock())
}

func TestMemoryStore_ConcurrentMixedOperations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, s, "prod-1", "vendor-1", 1000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Reserve(ctx, "prod-1", 2); err != nil {
				return
			}
			if _, err := s.ConfirmSale(ctx, "prod-1", 1); err != nil {
				return
			}
			_, _ = s.Release(ctx, "prod-1", 1)
		}()
	}
	wg.Wait()

	rec, err := s.Get(ctx, "prod-1")
	require.NoError(t, err)

	// Every unit must be accounted for across stock, sold and reserved.
	assert.Equal(t, 1000, rec.StockQuantity+rec.SoldQuantity)
	assert.GreaterOrEqual(t, rec.AvailableStock(), 0)
	assert.LessOrEqual(t, rec.ReservedQuantity, rec.StockQuantity)
}
