// Package txn is the seam between the bookstore ledgers and whichever
// transactional store backs them. Backends (postgres, sqlite) translate their
// driver errors into the sentinels below so callers never import a driver.
package txn

import (
	"context"
	"errors"
)

var (
	ErrNoRows    = errors.New("txn: no rows in result set")
	ErrDuplicate = errors.New("txn: duplicate key")
	// ErrConflict is a serialization failure or deadlock. The transaction
	// was rolled back and may be retried by the caller.
	ErrConflict = errors.New("txn: serialization conflict")
)

// Isolation is the isolation level requested for one transaction.
type Isolation uint8

const (
	ReadCommitted Isolation = iota
	RepeatableRead
	Serializable
)

func (i Isolation) String() string {
	switch i {
	case ReadCommitted:
		return "READ COMMITTED"
	case RepeatableRead:
		return "REPEATABLE READ"
	case Serializable:
		return "SERIALIZABLE"
	}
	return "UNKNOWN"
}

type Row interface {
	Scan(dest ...any) error
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Querier runs statements either against the pool (autocommit) or inside a
// transaction. SQL uses $n placeholders.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// DB is an explicitly constructed store handle. Its own Querier methods run
// as single-statement autocommit reads/writes.
type DB interface {
	Querier

	// InTx runs fn in one transaction at iso. fn's Querier must be the only
	// handle used inside fn. A nil return commits, anything else rolls back.
	InTx(ctx context.Context, iso Isolation, fn func(q Querier) error) error

	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close()
}
