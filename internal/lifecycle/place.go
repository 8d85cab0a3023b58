package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

// PlaceOrder reserves every requested line and records a new UNPAID order.
// Either all lines are reserved or none are.
func (e *Engine) PlaceOrder(ctx context.Context, buyerID, storeID string, items []orders.Item) (string, error) {
	var orderID string
	attrs := []attribute.KeyValue{userAttr(buyerID), storeAttr(storeID)}
	err := e.run(ctx, "PlaceOrder", attrs, func(ctx context.Context) error {
		items, err := mergeItems(items)
		if err != nil {
			return err
		}
		if err := e.gate.RequireUser(ctx, buyerID); err != nil {
			return err
		}
		ok, err := e.gate.StoreExists(ctx, storeID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NotFound(errs.StoreNotFound, storeID)
		}

		o := orders.Order{
			ID:        fmt.Sprintf("%s_%s_%s", buyerID, storeID, uuid.NewString()),
			BuyerID:   buyerID,
			StoreID:   storeID,
			Status:    orders.StatusUnpaid,
			CreatedAt: e.now().UTC(),
		}
		lines := make([]orders.Line, 0, len(items))
		err = e.db.InTx(ctx, txn.ReadCommitted, func(q txn.Querier) error {
			for _, it := range items {
				price, err := inventory.Reserve(ctx, q, storeID, it.BookID, it.Quantity)
				if err != nil {
					return err
				}
				lines = append(lines, orders.Line{OrderID: o.ID, BookID: it.BookID, Quantity: it.Quantity, UnitPrice: price})
			}
			if _, err := orderTotal(o.ID, lines); err != nil {
				return err
			}
			if err := orders.CreateOrder(ctx, q, o); err != nil {
				return err
			}
			return orders.CreateLines(ctx, q, o.ID, lines)
		})
		if errors.Is(err, txn.ErrDuplicate) {
			// uuid collision; nothing was committed
			return errs.Transient("create order", err)
		}
		if err != nil {
			return err
		}
		orderID = o.ID
		e.publish(ctx, orders.EventOrderPlaced, o, orders.StatusUnpaid, lines)
		return nil
	})
	return orderID, err
}

// mergeItems sums quantities of repeated books, keeping first-seen order.
func mergeItems(items []orders.Item) ([]orders.Item, error) {
	if len(items) == 0 {
		return nil, errs.Invalid("order has no books")
	}
	out := make([]orders.Item, 0, len(items))
	idx := make(map[string]int, len(items))
	for _, it := range items {
		if it.BookID == "" {
			return nil, errs.Invalid("empty book id")
		}
		if it.Quantity <= 0 || it.Quantity > orders.MaxQuantity {
			return nil, errs.Invalid("quantity %d for book %s", it.Quantity, it.BookID)
		}
		if i, ok := idx[it.BookID]; ok {
			if out[i].Quantity > orders.MaxQuantity-it.Quantity {
				return nil, errs.Invalid("quantity for book %s exceeds %d", it.BookID, orders.MaxQuantity)
			}
			out[i].Quantity += it.Quantity
			continue
		}
		idx[it.BookID] = len(out)
		out = append(out, it)
	}
	return out, nil
}
