// Package inventory is the per-(store, book) stock ledger. Stock only ever
// changes through the conditional statements below, so stock_level >= 0
// holds without any read-then-write in the caller.
package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

// ErrIntegrity means a row that an existing order points at has vanished.
var ErrIntegrity = errors.New("inventory: listing referenced by an order is missing")

type Listing struct {
	StoreID string          `json:"store_id"`
	BookID  string          `json:"book_id"`
	Price   int64           `json:"price"`
	Stock   int             `json:"stock_level"`
	Info    json.RawMessage `json:"book_info,omitempty"`
}

// Reserve takes quantity units in one conditional update and returns the
// unit price read by that same statement.
func Reserve(ctx context.Context, q txn.Querier, storeID, bookID string, quantity int) (int64, error) {
	var price int64
	err := q.QueryRow(ctx, `
		UPDATE store_books SET stock_level = stock_level - $3
		WHERE store_id = $1 AND book_id = $2 AND stock_level >= $3
		RETURNING price`, storeID, bookID, quantity).Scan(&price)
	if err == nil {
		return price, nil
	}
	if !errors.Is(err, txn.ErrNoRows) {
		return 0, fmt.Errorf("reserve %s: %w", bookID, err)
	}
	ok, err := exists(ctx, q, storeID, bookID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.NotFound(errs.BookNotFound, bookID)
	}
	return 0, errs.LowStock(bookID)
}

// Release gives quantity units back. It only fails if the listing is gone.
func Release(ctx context.Context, q txn.Querier, storeID, bookID string, quantity int) error {
	n, err := q.Exec(ctx, `
		UPDATE store_books SET stock_level = stock_level + $3
		WHERE store_id = $1 AND book_id = $2`, storeID, bookID, quantity)
	if err != nil {
		return fmt.Errorf("release %s: %w", bookID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrIntegrity, storeID, bookID)
	}
	return nil
}

// AddStock applies delta (which may be negative) as long as the result
// stays non-negative.
func AddStock(ctx context.Context, q txn.Querier, storeID, bookID string, delta int) error {
	n, err := q.Exec(ctx, `
		UPDATE store_books SET stock_level = stock_level + $3
		WHERE store_id = $1 AND book_id = $2
		  AND stock_level + $3 >= 0 AND stock_level + $3 <= $4`, storeID, bookID, delta, orders.MaxQuantity)
	if err != nil {
		return fmt.Errorf("add stock %s: %w", bookID, err)
	}
	if n == 1 {
		return nil
	}
	ok, err := exists(ctx, q, storeID, bookID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound(errs.BookNotFound, bookID)
	}
	if delta > 0 {
		return errs.Invalid("stock of %s would exceed %d", bookID, orders.MaxQuantity)
	}
	return errs.LowStock(bookID)
}

func CreateListing(ctx context.Context, q txn.Querier, l Listing) error {
	info := l.Info
	if len(info) == 0 {
		info = json.RawMessage(`{}`)
	}
	_, err := q.Exec(ctx, `
		INSERT INTO store_books (store_id, book_id, book_info, price, stock_level)
		VALUES ($1, $2, $3, $4, $5)`,
		l.StoreID, l.BookID, string(info), l.Price, l.Stock)
	if errors.Is(err, txn.ErrDuplicate) {
		return errs.Exists(errs.BookExists, l.BookID)
	}
	if err != nil {
		return fmt.Errorf("create listing %s: %w", l.BookID, err)
	}
	return nil
}

// SetPrice changes the catalog price. Placed orders keep their snapshot.
func SetPrice(ctx context.Context, q txn.Querier, storeID, bookID string, price int64) error {
	n, err := q.Exec(ctx, `UPDATE store_books SET price = $3 WHERE store_id = $1 AND book_id = $2`,
		storeID, bookID, price)
	if err != nil {
		return fmt.Errorf("set price %s: %w", bookID, err)
	}
	if n == 0 {
		return errs.NotFound(errs.BookNotFound, bookID)
	}
	return nil
}

func Get(ctx context.Context, q txn.Querier, storeID, bookID string) (Listing, error) {
	l := Listing{StoreID: storeID, BookID: bookID}
	var info string
	err := q.QueryRow(ctx, `
		SELECT price, stock_level, book_info FROM store_books
		WHERE store_id = $1 AND book_id = $2`, storeID, bookID).Scan(&l.Price, &l.Stock, &info)
	if errors.Is(err, txn.ErrNoRows) {
		return Listing{}, errs.NotFound(errs.BookNotFound, bookID)
	}
	if err != nil {
		return Listing{}, err
	}
	l.Info = json.RawMessage(info)
	return l, nil
}

func exists(ctx context.Context, q txn.Querier, storeID, bookID string) (bool, error) {
	var n int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM store_books WHERE store_id = $1 AND book_id = $2`,
		storeID, bookID).Scan(&n)
	return n > 0, err
}
