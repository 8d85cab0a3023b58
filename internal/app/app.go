// Package app wires the configured store for the binaries.
package app

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	"github.com/ariefcatur/go-bookstore-orders/internal/postgres"
	"github.com/ariefcatur/go-bookstore-orders/internal/sqlite"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

// OpenStore connects to the store named by cfg.StoreDriver and applies the
// schema.
func OpenStore(ctx context.Context, cfg config.Config) (txn.DB, error) {
	var db txn.DB
	switch cfg.StoreDriver {
	case "postgres":
		s, err := postgres.Open(ctx, cfg.PostgresDSN, int32(cfg.PGMaxConns))
		if err != nil {
			return nil, err
		}
		db = s
	case "sqlite":
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite open: %w", err)
		}
		db = s
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
