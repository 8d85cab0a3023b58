// Package cli is the bookstorectl command tree: operator commands that run
// the order engine directly against the configured store.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ariefcatur/go-bookstore-orders/internal/app"
	"github.com/ariefcatur/go-bookstore-orders/internal/config"
	"github.com/ariefcatur/go-bookstore-orders/internal/lifecycle"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Driver     string
	SQLitePath string
	Format     string // "json" | "text"
}

var ValidFormats = []string{"text", "json"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:           "bookstorectl",
		Short:         "Operate the bookstore order store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Driver, "driver", cfg.StoreDriver, "store driver (postgres|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite-path", cfg.SQLitePath, "sqlite database file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newUserCommand(opts))
	cmd.AddCommand(newStoreCommand(opts))
	cmd.AddCommand(newBookCommand(opts))
	cmd.AddCommand(newOrdersCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withEngine opens the store named by the flags, runs fn and closes it.
func withEngine(ctx context.Context, opts *RootOptions, fn func(*lifecycle.Engine) error) error {
	cfg := config.Load()
	cfg.StoreDriver = opts.Driver
	cfg.SQLitePath = opts.SQLitePath
	db, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	eng := lifecycle.New(db,
		lifecycle.WithLogger(zap.NewNop()),
		lifecycle.WithPasswordCost(cfg.BcryptCost),
		lifecycle.WithUnpaidTTL(cfg.UnpaidTTL),
		lifecycle.WithProducerName("bookstorectl"),
	)
	return fn(eng)
}

// emit writes v as JSON, or text as a line, depending on --format.
func emit(w io.Writer, opts *RootOptions, text string, v any) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}
