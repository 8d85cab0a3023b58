// Package sqlite is the embedded transactional store used for local runs,
// the admin CLI and tests. It shares the Postgres schema shape and accepts
// the same $n-style SQL.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"regexp"

	"github.com/mattn/go-sqlite3"

	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

//go:embed schema.sql
var schemaSQL string

var _ txn.DB = (*Store)(nil)

type Store struct {
	db *sql.DB
	conn
}

// Open creates or opens the database at path.
//
// SQLite has a single writer, so the pool is pinned to one connection:
// transactions queue on it instead of failing with SQLITE_BUSY, which also
// makes every transaction serializable.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: connect: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, conn: conn{q: db}}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("sqlite: %q: %w", p, err)
		}
	}
	return nil
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) InTx(ctx context.Context, _ txn.Isolation, fn func(q txn.Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate(err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(conn{q: tx}); err != nil {
		return err
	}
	return translate(tx.Commit())
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() { _ = s.db.Close() }

// querier is what *sql.DB and *sql.Tx have in common.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type conn struct{ q querier }

func (c conn) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.q.ExecContext(ctx, rebind(query), args...)
	if err != nil {
		return 0, translate(err)
	}
	n, err := res.RowsAffected()
	return n, translate(err)
}

func (c conn) QueryRow(ctx context.Context, query string, args ...any) txn.Row {
	return row{c.q.QueryRowContext(ctx, rebind(query), args...)}
}

func (c conn) Query(ctx context.Context, query string, args ...any) (txn.Rows, error) {
	rs, err := c.q.QueryContext(ctx, rebind(query), args...)
	if err != nil {
		return nil, translate(err)
	}
	return rows{rs}, nil
}

type row struct{ r *sql.Row }

func (r row) Scan(dest ...any) error { return translate(r.r.Scan(dest...)) }

type rows struct{ *sql.Rows }

func (r rows) Close() { _ = r.Rows.Close() }

var placeholder = regexp.MustCompile(`\$(\d+)`)

// rebind turns $n into ?n. SQLite numbers named $params by first
// appearance, ?n keeps the positional meaning Postgres gives $n.
func rebind(query string) string {
	return placeholder.ReplaceAllString(query, "?${1}")
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", txn.ErrNoRows, err)
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%w: %w", txn.ErrDuplicate, err)
		case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %w", txn.ErrConflict, err)
		}
	}
	return err
}
