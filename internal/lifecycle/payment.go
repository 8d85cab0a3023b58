package lifecycle

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ariefcatur/go-bookstore-orders/internal/accounts"
	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/identity"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

// Payment moves the order total from the buyer to the store owner and marks
// the order PAID.
func (e *Engine) Payment(ctx context.Context, buyerID, password, orderID string) error {
	attrs := []attribute.KeyValue{userAttr(buyerID), orderAttr(orderID)}
	return e.run(ctx, "Payment", attrs, func(ctx context.Context) error {
		var (
			o      orders.Order
			lines  []orders.Line
			seller string
		)
		// Lines are immutable once written, so the total can be computed
		// outside the transaction that moves money.
		err := e.db.InTx(ctx, txn.ReadCommitted, func(q txn.Querier) error {
			var err error
			if o, err = loadOrder(ctx, q, orderID); err != nil {
				return err
			}
			if o.BuyerID != buyerID {
				return errs.Unauthorized("order " + orderID + " does not belong to " + buyerID)
			}
			if o.Status != orders.StatusUnpaid {
				return errs.NotAllowed(orderID, o.Status.String())
			}
			if e.expired(o) {
				return nil
			}
			if seller, err = identity.New(q).StoreOwner(ctx, o.StoreID); err != nil {
				return err
			}
			lines, err = orders.GetLines(ctx, q, orderID)
			return err
		})
		if err != nil {
			return err
		}
		if e.expired(o) {
			if _, err := e.expire(ctx, o); err != nil {
				return err
			}
			return errs.NotFound(errs.OrderNotFound, orderID)
		}
		total, err := orderTotal(orderID, lines)
		if err != nil {
			return err
		}

		err = e.db.InTx(ctx, txn.RepeatableRead, func(q txn.Querier) error {
			if err := accounts.VerifyPassword(ctx, q, buyerID, password); err != nil {
				return err
			}
			if err := accounts.Debit(ctx, q, buyerID, total); err != nil {
				return err
			}
			if err := accounts.Credit(ctx, q, seller, total); err != nil {
				return err
			}
			return transition(ctx, q, orderID, orders.StatusUnpaid, orders.StatusPaid)
		})
		if err != nil {
			return err
		}
		e.publish(ctx, orders.EventOrderPaid, o, orders.StatusPaid, lines)
		return nil
	})
}

// AddFunds credits amount to userID after checking the password.
func (e *Engine) AddFunds(ctx context.Context, userID, password string, amount int64) error {
	return e.run(ctx, "AddFunds", []attribute.KeyValue{userAttr(userID)}, func(ctx context.Context) error {
		if amount <= 0 {
			return errs.Invalid("amount %d must be positive", amount)
		}
		return e.db.InTx(ctx, txn.RepeatableRead, func(q txn.Querier) error {
			if err := accounts.VerifyPassword(ctx, q, userID, password); err != nil {
				return err
			}
			return accounts.Credit(ctx, q, userID, amount)
		})
	})
}

func loadOrder(ctx context.Context, q txn.Querier, orderID string) (orders.Order, error) {
	o, err := orders.GetOrder(ctx, q, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		return orders.Order{}, errs.NotFound(errs.OrderNotFound, orderID)
	}
	return o, err
}

// transition applies from -> to as a compare-and-set. When another command
// got there first the order is re-read to report why.
func transition(ctx context.Context, q txn.Querier, orderID string, from, to orders.Status) error {
	if !orders.CanTransition(from, to) {
		return errs.NotAllowed(orderID, from.String())
	}
	ok, err := orders.SetStatus(ctx, q, orderID, from, to)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return changedUnder(ctx, q, orderID)
}

func orderTotal(orderID string, lines []orders.Line) (int64, error) {
	t, err := orders.Total(lines)
	if err != nil {
		return 0, errs.Invalid("order %s: %v", orderID, err)
	}
	return t, nil
}
