// Package identity answers existence and ownership questions. Every lookup
// is a single autocommit read so it can run before a mutating transaction
// is opened.
package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

type Gate struct {
	q txn.Querier
}

func New(q txn.Querier) *Gate { return &Gate{q: q} }

func (g *Gate) UserExists(ctx context.Context, userID string) (bool, error) {
	return g.exists(ctx, `SELECT COUNT(*) FROM users WHERE user_id = $1`, userID)
}

func (g *Gate) StoreExists(ctx context.Context, storeID string) (bool, error) {
	return g.exists(ctx, `SELECT COUNT(*) FROM user_stores WHERE store_id = $1`, storeID)
}

func (g *Gate) BookExists(ctx context.Context, storeID, bookID string) (bool, error) {
	return g.exists(ctx, `SELECT COUNT(*) FROM store_books WHERE store_id = $1 AND book_id = $2`, storeID, bookID)
}

// StoreOwner returns the seller owning storeID.
func (g *Gate) StoreOwner(ctx context.Context, storeID string) (string, error) {
	var owner string
	err := g.q.QueryRow(ctx, `SELECT user_id FROM user_stores WHERE store_id = $1`, storeID).Scan(&owner)
	if errors.Is(err, txn.ErrNoRows) {
		return "", errs.NotFound(errs.StoreNotFound, storeID)
	}
	if err != nil {
		return "", fmt.Errorf("store owner %s: %w", storeID, err)
	}
	return owner, nil
}

// RequireUser turns a missing user into UserNotFound.
func (g *Gate) RequireUser(ctx context.Context, userID string) error {
	ok, err := g.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return errs.NotFound(errs.UserNotFound, userID)
	}
	return nil
}

// RequireOwner checks that sellerID exists and owns storeID.
func (g *Gate) RequireOwner(ctx context.Context, sellerID, storeID string) error {
	if err := g.RequireUser(ctx, sellerID); err != nil {
		return err
	}
	owner, err := g.StoreOwner(ctx, storeID)
	if err != nil {
		return err
	}
	if owner != sellerID {
		return errs.Unauthorized(fmt.Sprintf("%s does not own store %s", sellerID, storeID))
	}
	return nil
}

// CreateStore registers storeID as owned by userID.
func CreateStore(ctx context.Context, q txn.Querier, userID, storeID string) error {
	_, err := q.Exec(ctx, `INSERT INTO user_stores (store_id, user_id) VALUES ($1, $2)`, storeID, userID)
	if errors.Is(err, txn.ErrDuplicate) {
		return errs.Exists(errs.StoreExists, storeID)
	}
	if err != nil {
		return fmt.Errorf("insert store %s: %w", storeID, err)
	}
	return nil
}

func (g *Gate) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var n int
	if err := g.q.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup: %w", err)
	}
	return n > 0, nil
}
