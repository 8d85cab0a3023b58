package lifecycle

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

// Detail is a single order with its lines, as returned by GetOrder.
type Detail struct {
	orders.Order
	Lines []orders.SummaryLine `json:"detail"`
	Total int64                `json:"total"`
}

// ListOrders returns the buyer's orders, oldest first. Expired UNPAID
// orders found on the way are removed before the result is built.
func (e *Engine) ListOrders(ctx context.Context, userID string) ([]orders.Summary, error) {
	var out []orders.Summary
	err := e.run(ctx, "ListOrders", []attribute.KeyValue{userAttr(userID)}, func(ctx context.Context) error {
		if err := e.gate.RequireUser(ctx, userID); err != nil {
			return err
		}
		list, err := orders.ListByBuyer(ctx, e.db, userID)
		if err != nil {
			return err
		}
		if list, err = e.sweep(ctx, list); err != nil {
			return err
		}
		if len(list) == 0 {
			return errs.NoOrders(errs.UserHasNoOrders, userID)
		}
		out, err = e.summarize(ctx, list, func(o orders.Order) string { return o.StoreID })
		return err
	})
	return out, err
}

// ListStoreOrders is ListOrders from the store's side.
func (e *Engine) ListStoreOrders(ctx context.Context, storeID string) ([]orders.Summary, error) {
	var out []orders.Summary
	err := e.run(ctx, "ListStoreOrders", []attribute.KeyValue{storeAttr(storeID)}, func(ctx context.Context) error {
		ok, err := e.gate.StoreExists(ctx, storeID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NotFound(errs.StoreNotFound, storeID)
		}
		list, err := orders.ListByStore(ctx, e.db, storeID)
		if err != nil {
			return err
		}
		if list, err = e.sweep(ctx, list); err != nil {
			return err
		}
		if len(list) == 0 {
			return errs.NoOrders(errs.StoreHasNoOrders, storeID)
		}
		out, err = e.summarize(ctx, list, func(o orders.Order) string { return o.BuyerID })
		return err
	})
	return out, err
}

// GetOrder looks up one order, expiring it if it is overdue.
func (e *Engine) GetOrder(ctx context.Context, orderID string) (Detail, error) {
	var d Detail
	err := e.run(ctx, "GetOrder", []attribute.KeyValue{orderAttr(orderID)}, func(ctx context.Context) error {
		o, err := loadOrder(ctx, e.db, orderID)
		if err != nil {
			return err
		}
		list, err := e.sweep(ctx, []orders.Order{o})
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return errs.NotFound(errs.OrderNotFound, orderID)
		}
		lines, err := orders.GetLines(ctx, e.db, orderID)
		if err != nil {
			return err
		}
		total, err := orderTotal(orderID, lines)
		if err != nil {
			return err
		}
		d = Detail{Order: list[0], Lines: orders.SummaryLines(lines), Total: total}
		return nil
	})
	return d, err
}

// sweep expires overdue orders in list and returns the survivors. An order
// that changed state while being expired is re-read.
func (e *Engine) sweep(ctx context.Context, list []orders.Order) ([]orders.Order, error) {
	out := list[:0]
	for _, o := range list {
		if !e.expired(o) {
			out = append(out, o)
			continue
		}
		gone, err := e.expire(ctx, o)
		if err != nil {
			return nil, err
		}
		if gone {
			continue
		}
		cur, err := orders.GetOrder(ctx, e.db, o.ID)
		if errors.Is(err, orders.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cur)
	}
	return out, nil
}

// expire deletes an overdue UNPAID order and puts its stock back. It
// reports false if the order left UNPAID in the meantime.
func (e *Engine) expire(ctx context.Context, o orders.Order) (bool, error) {
	var (
		lines []orders.Line
		gone  bool
	)
	err := e.db.InTx(ctx, txn.ReadCommitted, func(q txn.Querier) error {
		var err error
		if lines, err = orders.GetLines(ctx, q, o.ID); err != nil {
			return err
		}
		if gone, err = orders.DeleteOrder(ctx, q, o.ID, orders.StatusUnpaid); err != nil || !gone {
			return err
		}
		for _, l := range lines {
			if err := inventory.Release(ctx, q, o.StoreID, l.BookID, l.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	if gone {
		e.log.Info("expired unpaid order", zap.String("order_id", o.ID), zap.Time("created_at", o.CreatedAt))
		e.publish(ctx, orders.EventOrderExpired, o, orders.StatusCancelled, lines)
	}
	return gone, nil
}

func (e *Engine) summarize(ctx context.Context, list []orders.Order, counterpart func(orders.Order) string) ([]orders.Summary, error) {
	out := make([]orders.Summary, 0, len(list))
	for _, o := range list {
		lines, err := orders.GetLines(ctx, e.db, o.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, orders.Summary{
			OrderID:       o.ID,
			CounterpartID: counterpart(o),
			Status:        o.Status,
			CreatedAt:     o.CreatedAt,
			Lines:         orders.SummaryLines(lines),
		})
	}
	return out, nil
}
