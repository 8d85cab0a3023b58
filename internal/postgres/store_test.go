package postgres

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))

	err := translate(pgx.ErrNoRows)
	assert.ErrorIs(t, err, txn.ErrNoRows)
	assert.ErrorIs(t, err, pgx.ErrNoRows)

	dup := translate(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})
	assert.ErrorIs(t, dup, txn.ErrDuplicate)

	serial := &pgconn.PgError{Code: "40001"}
	got := translate(serial)
	assert.NotErrorIs(t, got, txn.ErrDuplicate)
	assert.ErrorIs(t, got, txn.ErrConflict)
	assert.ErrorIs(t, translate(&pgconn.PgError{Code: "40P01"}), txn.ErrConflict)
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(got, &pgErr))
}

func TestIsoLevel(t *testing.T) {
	assert.Equal(t, pgx.ReadCommitted, isoLevel(txn.ReadCommitted))
	assert.Equal(t, pgx.RepeatableRead, isoLevel(txn.RepeatableRead))
	assert.Equal(t, pgx.Serializable, isoLevel(txn.Serializable))
}

func TestSchemaEmbedded(t *testing.T) {
	for _, table := range []string{"users", "user_stores", "store_books", "orders", "order_lines"} {
		assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS "+table)
	}
}
