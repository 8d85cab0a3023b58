package lifecycle

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ariefcatur/go-bookstore-orders/internal/accounts"
	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/identity"
	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

// Book is a catalog entry offered by a store.
type Book struct {
	ID    string          `json:"id"`
	Price int64           `json:"price"`
	Info  json.RawMessage `json:"info,omitempty"`
}

func (e *Engine) Register(ctx context.Context, userID, password string) error {
	return e.run(ctx, "Register", []attribute.KeyValue{userAttr(userID)}, func(ctx context.Context) error {
		if userID == "" || password == "" {
			return errs.Invalid("user id and password are required")
		}
		return accounts.Register(ctx, e.db, userID, password, e.pwCost)
	})
}

func (e *Engine) CreateStore(ctx context.Context, sellerID, storeID string) error {
	attrs := []attribute.KeyValue{userAttr(sellerID), storeAttr(storeID)}
	return e.run(ctx, "CreateStore", attrs, func(ctx context.Context) error {
		if storeID == "" {
			return errs.Invalid("store id is required")
		}
		if err := e.gate.RequireUser(ctx, sellerID); err != nil {
			return err
		}
		return identity.CreateStore(ctx, e.db, sellerID, storeID)
	})
}

// AddBook lists a new book in the seller's store with an initial stock.
func (e *Engine) AddBook(ctx context.Context, sellerID, storeID string, b Book, stock int) error {
	attrs := []attribute.KeyValue{userAttr(sellerID), storeAttr(storeID)}
	return e.run(ctx, "AddBook", attrs, func(ctx context.Context) error {
		switch {
		case b.ID == "":
			return errs.Invalid("book id is required")
		case b.Price < 0 || b.Price > orders.MaxPrice:
			return errs.Invalid("price %d out of range", b.Price)
		case stock < 0 || stock > orders.MaxQuantity:
			return errs.Invalid("stock %d out of range", stock)
		}
		if len(b.Info) > 0 && !json.Valid(b.Info) {
			return errs.Invalid("book info is not valid JSON")
		}
		if err := e.gate.RequireOwner(ctx, sellerID, storeID); err != nil {
			return err
		}
		return inventory.CreateListing(ctx, e.db, inventory.Listing{
			StoreID: storeID, BookID: b.ID, Price: b.Price, Stock: stock, Info: b.Info,
		})
	})
}

// AddStockLevel adjusts stock by delta. The result may not go negative.
func (e *Engine) AddStockLevel(ctx context.Context, sellerID, storeID, bookID string, delta int) error {
	attrs := []attribute.KeyValue{userAttr(sellerID), storeAttr(storeID)}
	return e.run(ctx, "AddStockLevel", attrs, func(ctx context.Context) error {
		if delta > orders.MaxQuantity || delta < -orders.MaxQuantity {
			return errs.Invalid("stock delta %d out of range", delta)
		}
		if err := e.gate.RequireOwner(ctx, sellerID, storeID); err != nil {
			return err
		}
		return inventory.AddStock(ctx, e.db, storeID, bookID, delta)
	})
}

// SetPrice changes the catalog price of a book. Existing orders keep the
// price they were placed at.
func (e *Engine) SetPrice(ctx context.Context, sellerID, storeID, bookID string, price int64) error {
	attrs := []attribute.KeyValue{userAttr(sellerID), storeAttr(storeID)}
	return e.run(ctx, "SetPrice", attrs, func(ctx context.Context) error {
		if price < 0 || price > orders.MaxPrice {
			return errs.Invalid("price %d out of range", price)
		}
		if err := e.gate.RequireOwner(ctx, sellerID, storeID); err != nil {
			return err
		}
		return inventory.SetPrice(ctx, e.db, storeID, bookID, price)
	})
}

// Balance is a read-only helper for tooling.
func (e *Engine) Balance(ctx context.Context, userID string) (int64, error) {
	var b int64
	err := e.run(ctx, "Balance", []attribute.KeyValue{userAttr(userID)}, func(ctx context.Context) error {
		var err error
		b, err = accounts.Balance(ctx, e.db, userID)
		return err
	})
	return b, err
}

// Stock is a read-only helper for tooling.
func (e *Engine) Stock(ctx context.Context, storeID, bookID string) (int, error) {
	var n int
	err := e.run(ctx, "Stock", []attribute.KeyValue{storeAttr(storeID)}, func(ctx context.Context) error {
		l, err := inventory.Get(ctx, e.db, storeID, bookID)
		n = l.Stock
		return err
	})
	return n, err
}

// CheckOwner reports Unauthorized unless sellerID owns storeID.
func (e *Engine) CheckOwner(ctx context.Context, sellerID, storeID string) error {
	attrs := []attribute.KeyValue{userAttr(sellerID), storeAttr(storeID)}
	return e.run(ctx, "CheckOwner", attrs, func(ctx context.Context) error {
		return e.gate.RequireOwner(ctx, sellerID, storeID)
	})
}
