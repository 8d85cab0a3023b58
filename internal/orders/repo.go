package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

// Order Store primitives. They carry no business rules; the lifecycle
// engine calls them with the transaction it opened.

var ErrNotFound = errors.New("orders: order not found")

func CreateOrder(ctx context.Context, q txn.Querier, o Order) error {
	_, err := q.Exec(ctx, `
		INSERT INTO orders (order_id, buyer_id, store_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		o.ID, o.BuyerID, o.StoreID, o.Status.String(), o.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func CreateLines(ctx context.Context, q txn.Querier, orderID string, lines []Line) error {
	for _, l := range lines {
		_, err := q.Exec(ctx, `
			INSERT INTO order_lines (order_id, book_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4)`,
			orderID, l.BookID, l.Quantity, l.UnitPrice)
		if err != nil {
			return fmt.Errorf("insert order line %s: %w", l.BookID, err)
		}
	}
	return nil
}

func GetOrder(ctx context.Context, q txn.Querier, orderID string) (Order, error) {
	var (
		o      Order
		status string
	)
	err := q.QueryRow(ctx, `
		SELECT order_id, buyer_id, store_id, status, created_at
		FROM orders WHERE order_id = $1`, orderID).
		Scan(&o.ID, &o.BuyerID, &o.StoreID, &status, &o.CreatedAt)
	if errors.Is(err, txn.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	if err != nil {
		return Order{}, err
	}
	if o.Status, err = ParseStatus(status); err != nil {
		return Order{}, err
	}
	return o, nil
}

func GetLines(ctx context.Context, q txn.Querier, orderID string) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT order_id, book_id, quantity, unit_price
		FROM order_lines WHERE order_id = $1 ORDER BY book_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.OrderID, &l.BookID, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// SetStatus moves the order from one status to another. It reports false
// when the order no longer exists or is no longer in from.
func SetStatus(ctx context.Context, q txn.Querier, orderID string, from, to Status) (bool, error) {
	n, err := q.Exec(ctx, `UPDATE orders SET status = $3 WHERE order_id = $1 AND status = $2`,
		orderID, from.String(), to.String())
	if err != nil {
		return false, fmt.Errorf("update order status: %w", err)
	}
	return n == 1, nil
}

// DeleteOrder removes the order and its lines if it is still in expect.
func DeleteOrder(ctx context.Context, q txn.Querier, orderID string, expect Status) (bool, error) {
	n, err := q.Exec(ctx, `DELETE FROM orders WHERE order_id = $1 AND status = $2`, orderID, expect.String())
	if err != nil {
		return false, fmt.Errorf("delete order: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	if _, err := q.Exec(ctx, `DELETE FROM order_lines WHERE order_id = $1`, orderID); err != nil {
		return false, fmt.Errorf("delete order lines: %w", err)
	}
	return true, nil
}

func ListByBuyer(ctx context.Context, q txn.Querier, buyerID string) ([]Order, error) {
	return list(ctx, q, `
		SELECT order_id, buyer_id, store_id, status, created_at
		FROM orders WHERE buyer_id = $1 ORDER BY created_at, order_id`, buyerID)
}

func ListByStore(ctx context.Context, q txn.Querier, storeID string) ([]Order, error) {
	return list(ctx, q, `
		SELECT order_id, buyer_id, store_id, status, created_at
		FROM orders WHERE store_id = $1 ORDER BY created_at, order_id`, storeID)
}

func list(ctx context.Context, q txn.Querier, query string, args ...any) ([]Order, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var (
			o      Order
			status string
		)
		if err := rows.Scan(&o.ID, &o.BuyerID, &o.StoreID, &status, &o.CreatedAt); err != nil {
			return nil, err
		}
		if o.Status, err = ParseStatus(status); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
