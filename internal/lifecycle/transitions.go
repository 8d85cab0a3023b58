package lifecycle

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ariefcatur/go-bookstore-orders/internal/accounts"
	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/identity"
	"github.com/ariefcatur/go-bookstore-orders/internal/inventory"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

// Deliver marks a PAID order SHIPPED. Only the store owner may do it.
func (e *Engine) Deliver(ctx context.Context, sellerID, orderID string) error {
	attrs := []attribute.KeyValue{userAttr(sellerID), orderAttr(orderID)}
	return e.run(ctx, "Deliver", attrs, func(ctx context.Context) error {
		var o orders.Order
		err := e.db.InTx(ctx, txn.RepeatableRead, func(q txn.Querier) error {
			var err error
			if o, err = loadOrder(ctx, q, orderID); err != nil {
				return err
			}
			owner, err := identity.New(q).StoreOwner(ctx, o.StoreID)
			if err != nil {
				return err
			}
			if owner != sellerID {
				return errs.Unauthorized(sellerID + " does not own store " + o.StoreID)
			}
			return transition(ctx, q, orderID, o.Status, orders.StatusShipped)
		})
		if err != nil {
			return err
		}
		e.publish(ctx, orders.EventOrderShipped, o, orders.StatusShipped, nil)
		return nil
	})
}

// Receive marks a SHIPPED order RECEIVED. Only the buyer may do it.
func (e *Engine) Receive(ctx context.Context, buyerID, orderID string) error {
	attrs := []attribute.KeyValue{userAttr(buyerID), orderAttr(orderID)}
	return e.run(ctx, "Receive", attrs, func(ctx context.Context) error {
		var o orders.Order
		err := e.db.InTx(ctx, txn.RepeatableRead, func(q txn.Querier) error {
			var err error
			if o, err = loadOrder(ctx, q, orderID); err != nil {
				return err
			}
			if o.BuyerID != buyerID {
				return errs.Unauthorized("order " + orderID + " does not belong to " + buyerID)
			}
			return transition(ctx, q, orderID, o.Status, orders.StatusReceived)
		})
		if err != nil {
			return err
		}
		e.publish(ctx, orders.EventOrderReceived, o, orders.StatusReceived, nil)
		return nil
	})
}

// cancelAttempts bounds how often Cancel re-reads an order whose status
// moved between the read and the delete.
const cancelAttempts = 3

// Cancel removes an UNPAID or PAID order, returns its stock and, for a
// paid order, refunds the buyer from the seller. The refund is refused as
// a whole if the seller can no longer cover it.
func (e *Engine) Cancel(ctx context.Context, buyerID, orderID string) error {
	attrs := []attribute.KeyValue{userAttr(buyerID), orderAttr(orderID)}
	return e.run(ctx, "Cancel", attrs, func(ctx context.Context) error {
		var (
			o     orders.Order
			lines []orders.Line
		)
		err := e.db.InTx(ctx, txn.ReadCommitted, func(q txn.Querier) error {
			for attempt := 1; ; attempt++ {
				var err error
				if o, err = loadOrder(ctx, q, orderID); err != nil {
					return err
				}
				if o.BuyerID != buyerID {
					return errs.Unauthorized("order " + orderID + " does not belong to " + buyerID)
				}
				if !orders.CanTransition(o.Status, orders.StatusCancelled) {
					return errs.NotAllowed(orderID, o.Status.String())
				}
				if lines, err = orders.GetLines(ctx, q, orderID); err != nil {
					return err
				}
				ok, err := orders.DeleteOrder(ctx, q, orderID, o.Status)
				if err != nil {
					return err
				}
				if ok {
					break
				}
				// paid or shipped under us; decide again on the new status
				if attempt == cancelAttempts {
					return changedUnder(ctx, q, orderID)
				}
			}
			for _, l := range lines {
				if err := inventory.Release(ctx, q, o.StoreID, l.BookID, l.Quantity); err != nil {
					return err
				}
			}
			if o.Status != orders.StatusPaid {
				return nil
			}
			seller, err := identity.New(q).StoreOwner(ctx, o.StoreID)
			if err != nil {
				return err
			}
			total, err := orderTotal(orderID, lines)
			if err != nil {
				return err
			}
			if err := accounts.Debit(ctx, q, seller, total); err != nil {
				return err
			}
			return accounts.Credit(ctx, q, buyerID, total)
		})
		if err != nil {
			return err
		}
		e.publish(ctx, orders.EventOrderCancelled, o, orders.StatusCancelled, lines)
		return nil
	})
}

// changedUnder reports the state of an order that a guarded write missed.
func changedUnder(ctx context.Context, q txn.Querier, orderID string) error {
	o, err := loadOrder(ctx, q, orderID)
	if err != nil {
		return err
	}
	return errs.NotAllowed(orderID, o.Status.String())
}
