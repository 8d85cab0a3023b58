package inventory_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/testutil"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

func listing(t *testing.T, db txn.DB, stock int) {
	t.Helper()
	require.NoError(t, inventory.CreateListing(context.Background(), db, inventory.Listing{
		StoreID: "s1", BookID: "b1", Price: 50, Stock: stock,
		Info: json.RawMessage(`{"title":"Go in Action","price":50}`),
	}))
}

func stockOf(t *testing.T, db txn.DB) int {
	t.Helper()
	l, err := inventory.Get(context.Background(), db, "s1", "b1")
	require.NoError(t, err)
	return l.Stock
}

func TestReserve(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	listing(t, db, 3)

	price, err := inventory.Reserve(ctx, db, "s1", "b1", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 50, price)
	assert.Equal(t, 1, stockOf(t, db))

	_, err = inventory.Reserve(ctx, db, "s1", "b1", 2)
	assert.True(t, errs.Is(err, errs.InsufficientStock))
	assert.Equal(t, 1, stockOf(t, db))

	_, err = inventory.Reserve(ctx, db, "s1", "nope", 1)
	assert.True(t, errs.Is(err, errs.BookNotFound))

	price, err = inventory.Reserve(ctx, db, "s1", "b1", 1)
	require.NoError(t, err)
	assert.EqualValues(t, 50, price)
	assert.Zero(t, stockOf(t, db))
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	db := testutil.NewDB(t)
	listing(t, db, 5)

	var (
		mu     sync.Mutex
		wins   int
		losses int
	)
	var g errgroup.Group
	for i := 0; i < 12; i++ {
		g.Go(func() error {
			err := db.InTx(context.Background(), txn.ReadCommitted, func(q txn.Querier) error {
				_, err := inventory.Reserve(context.Background(), q, "s1", "b1", 1)
				return err
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errs.Is(err, errs.InsufficientStock):
				losses++
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, 5, wins)
	assert.Equal(t, 7, losses)
	assert.Zero(t, stockOf(t, db))
}

func TestRelease(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	listing(t, db, 0)

	require.NoError(t, inventory.Release(ctx, db, "s1", "b1", 4))
	assert.Equal(t, 4, stockOf(t, db))

	err := inventory.Release(ctx, db, "s1", "gone", 1)
	assert.ErrorIs(t, err, inventory.ErrIntegrity)
}

func TestAddStock(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	listing(t, db, 2)

	require.NoError(t, inventory.AddStock(ctx, db, "s1", "b1", 8))
	assert.Equal(t, 10, stockOf(t, db))

	require.NoError(t, inventory.AddStock(ctx, db, "s1", "b1", -10))
	assert.Zero(t, stockOf(t, db))

	err := inventory.AddStock(ctx, db, "s1", "b1", -1)
	assert.True(t, errs.Is(err, errs.InsufficientStock))

	err = inventory.AddStock(ctx, db, "s1", "missing", 1)
	assert.True(t, errs.Is(err, errs.BookNotFound))
}

func TestAddStockBounded(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	listing(t, db, 2)

	err := inventory.AddStock(ctx, db, "s1", "b1", orders.MaxQuantity-1)
	assert.True(t, errs.Is(err, errs.BadInput), "stock past the bound: %v", err)
	assert.Equal(t, 2, stockOf(t, db))

	require.NoError(t, inventory.AddStock(ctx, db, "s1", "b1", orders.MaxQuantity-2))
	assert.Equal(t, orders.MaxQuantity, stockOf(t, db))
}

func TestCreateListingDuplicate(t *testing.T) {
	db := testutil.NewDB(t)
	listing(t, db, 1)

	err := inventory.CreateListing(context.Background(), db, inventory.Listing{StoreID: "s1", BookID: "b1", Price: 1})
	assert.True(t, errs.Is(err, errs.BookExists))

	l, err := inventory.Get(context.Background(), db, "s1", "b1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Go in Action","price":50}`, string(l.Info))
}

func TestSetPrice(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	listing(t, db, 1)

	require.NoError(t, inventory.SetPrice(ctx, db, "s1", "b1", 75))
	l, err := inventory.Get(ctx, db, "s1", "b1")
	require.NoError(t, err)
	assert.EqualValues(t, 75, l.Price)

	err = inventory.SetPrice(ctx, db, "s1", "missing", 1)
	assert.True(t, errs.Is(err, errs.BookNotFound))
}
