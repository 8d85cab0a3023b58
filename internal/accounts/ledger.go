// Package accounts holds user credentials and balances.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

// Register creates userID with a zero balance and a bcrypt hash of password.
func Register(ctx context.Context, q txn.Querier, userID, password string, cost int) error {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO users (user_id, password_hash, balance, token, terminal)
		VALUES ($1, $2, 0, '', $3)`,
		userID, string(hash), "terminal_"+uuid.NewString())
	if errors.Is(err, txn.ErrDuplicate) {
		return errs.Exists(errs.UserExists, userID)
	}
	if err != nil {
		return fmt.Errorf("insert user %s: %w", userID, err)
	}
	return nil
}

// VerifyPassword returns nil when password matches userID's stored hash.
func VerifyPassword(ctx context.Context, q txn.Querier, userID, password string) error {
	var hash string
	err := q.QueryRow(ctx, `SELECT password_hash FROM users WHERE user_id = $1`, userID).Scan(&hash)
	if errors.Is(err, txn.ErrNoRows) {
		return errs.NotFound(errs.UserNotFound, userID)
	}
	if err != nil {
		return fmt.Errorf("load user %s: %w", userID, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return errs.BadPassword(userID)
	}
	return nil
}

// Debit subtracts amount only if the balance covers it.
func Debit(ctx context.Context, q txn.Querier, userID string, amount int64) error {
	if amount < 0 {
		return errs.Invalid("debit of %d for %s is negative", amount, userID)
	}
	n, err := q.Exec(ctx, `
		UPDATE users SET balance = balance - $2
		WHERE user_id = $1 AND balance >= $2`, userID, amount)
	if err != nil {
		return fmt.Errorf("debit %s: %w", userID, err)
	}
	if n == 1 {
		return nil
	}
	ok, err := userExists(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("debit %s: %w", userID, err)
	}
	if !ok {
		return errs.NotFound(errs.UserNotFound, userID)
	}
	return errs.LowFunds(userID)
}

// Credit adds amount unless the balance would overflow.
func Credit(ctx context.Context, q txn.Querier, userID string, amount int64) error {
	if amount < 0 {
		return errs.Invalid("credit of %d for %s is negative", amount, userID)
	}
	n, err := q.Exec(ctx, `
		UPDATE users SET balance = balance + $2
		WHERE user_id = $1 AND balance <= $3`, userID, amount, math.MaxInt64-amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", userID, err)
	}
	if n == 1 {
		return nil
	}
	ok, err := userExists(ctx, q, userID)
	if err != nil {
		return fmt.Errorf("credit %s: %w", userID, err)
	}
	if !ok {
		return errs.NotFound(errs.UserNotFound, userID)
	}
	return errs.Invalid("balance of %s would overflow", userID)
}

func userExists(ctx context.Context, q txn.Querier, userID string) (bool, error) {
	var c int
	err := q.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE user_id = $1`, userID).Scan(&c)
	return c > 0, err
}

func Balance(ctx context.Context, q txn.Querier, userID string) (int64, error) {
	var b int64
	err := q.QueryRow(ctx, `SELECT balance FROM users WHERE user_id = $1`, userID).Scan(&b)
	if errors.Is(err, txn.ErrNoRows) {
		return 0, errs.NotFound(errs.UserNotFound, userID)
	}
	return b, err
}
