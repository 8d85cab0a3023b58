package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ariefcatur/go-bookstore-orders/internal/lifecycle"
	"github.com/ariefcatur/go-bookstore-orders/internal/orders"
)

func newMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema to the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(*lifecycle.Engine) error {
				return emit(cmd.OutOrStdout(), opts, "schema applied", map[string]bool{"migrated": true})
			})
		},
	}
}

func newUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "Manage user accounts"}

	var password string
	register := &cobra.Command{
		Use:   "register <user-id>",
		Short: "Create a user account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *lifecycle.Engine) error {
				if err := e.Register(cmd.Context(), args[0], password); err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts, "registered "+args[0], map[string]string{"user_id": args[0]})
			})
		},
	}
	register.Flags().StringVar(&password, "password", "", "account password")
	_ = register.MarkFlagRequired("password")

	var fundsPassword string
	var amount int64
	funds := &cobra.Command{
		Use:   "add-funds <user-id>",
		Short: "Top up a user's balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *lifecycle.Engine) error {
				ctx := cmd.Context()
				if err := e.AddFunds(ctx, args[0], fundsPassword, amount); err != nil {
					return err
				}
				bal, err := e.Balance(ctx, args[0])
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts, fmt.Sprintf("%s balance %d", args[0], bal),
					map[string]any{"user_id": args[0], "balance": bal})
			})
		},
	}
	funds.Flags().StringVar(&fundsPassword, "password", "", "account password")
	funds.Flags().Int64Var(&amount, "amount", 0, "amount to add")
	_ = funds.MarkFlagRequired("password")

	cmd.AddCommand(register, funds)
	return cmd
}

func newStoreCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "store", Short: "Manage stores"}

	var owner string
	create := &cobra.Command{
		Use:   "create <store-id>",
		Short: "Open a store owned by a registered user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *lifecycle.Engine) error {
				if err := e.CreateStore(cmd.Context(), owner, args[0]); err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts, "created store "+args[0],
					map[string]string{"store_id": args[0], "user_id": owner})
			})
		},
	}
	create.Flags().StringVar(&owner, "owner", "", "owning user id")
	_ = create.MarkFlagRequired("owner")

	cmd.AddCommand(create)
	return cmd
}

type bookFlags struct {
	owner, store string
}

func (f *bookFlags) bind(c *cobra.Command) {
	c.Flags().StringVar(&f.owner, "owner", "", "store owner user id")
	c.Flags().StringVar(&f.store, "store", "", "store id")
	_ = c.MarkFlagRequired("owner")
	_ = c.MarkFlagRequired("store")
}

func newBookCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "book", Short: "Manage a store's catalog"}

	var addF bookFlags
	var price int64
	var stock int
	var info string
	add := &cobra.Command{
		Use:   "add <book-id>",
		Short: "List a new book in a store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b := lifecycle.Book{ID: args[0], Price: price}
			if info != "" {
				b.Info = json.RawMessage(info)
			}
			return withEngine(cmd.Context(), opts, func(e *lifecycle.Engine) error {
				if err := e.AddBook(cmd.Context(), addF.owner, addF.store, b, stock); err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts, fmt.Sprintf("listed %s in %s", args[0], addF.store), b)
			})
		},
	}
	addF.bind(add)
	add.Flags().Int64Var(&price, "price", 0, "unit price")
	add.Flags().IntVar(&stock, "stock", 0, "initial stock level")
	add.Flags().StringVar(&info, "info", "", "book info as JSON")

	var stockF bookFlags
	var delta int
	addStock := &cobra.Command{
		Use:   "add-stock <book-id>",
		Short: "Adjust a book's stock level",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *lifecycle.Engine) error {
				ctx := cmd.Context()
				if err := e.AddStockLevel(ctx, stockF.owner, stockF.store, args[0], delta); err != nil {
					return err
				}
				n, err := e.Stock(ctx, stockF.store, args[0])
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts, fmt.Sprintf("%s stock %d", args[0], n),
					map[string]any{"book_id": args[0], "stock_level": n})
			})
		},
	}
	stockF.bind(addStock)
	addStock.Flags().IntVar(&delta, "delta", 0, "stock change, may be negative")

	var priceF bookFlags
	var newPrice int64
	setPrice := &cobra.Command{
		Use:   "set-price <book-id>",
		Short: "Change a book's catalog price",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *lifecycle.Engine) error {
				if err := e.SetPrice(cmd.Context(), priceF.owner, priceF.store, args[0], newPrice); err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), opts, fmt.Sprintf("%s price %d", args[0], newPrice),
					map[string]any{"book_id": args[0], "price": newPrice})
			})
		},
	}
	priceF.bind(setPrice)
	setPrice.Flags().Int64Var(&newPrice, "price", 0, "new unit price")
	_ = setPrice.MarkFlagRequired("price")

	cmd.AddCommand(add, addStock, setPrice)
	return cmd
}

func newOrdersCommand(opts *RootOptions) *cobra.Command {
	var store bool
	cmd := &cobra.Command{
		Use:   "orders <user-id|store-id>",
		Short: "List a buyer's or a store's orders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), opts, func(e *lifecycle.Engine) error {
				list, err := listOrders(cmd.Context(), e, args[0], store)
				if err != nil {
					return err
				}
				var b strings.Builder
				for i, s := range list {
					if i > 0 {
						b.WriteByte('\n')
					}
					fmt.Fprintf(&b, "%s\t%s\t%s\t%d line(s)", s.OrderID, s.CounterpartID, s.Status, len(s.Lines))
				}
				return emit(cmd.OutOrStdout(), opts, b.String(), list)
			})
		},
	}
	cmd.Flags().BoolVar(&store, "store", false, "treat the argument as a store id")
	return cmd
}

func listOrders(ctx context.Context, e *lifecycle.Engine, id string, store bool) ([]orders.Summary, error) {
	if store {
		return e.ListStoreOrders(ctx, id)
	}
	return e.ListOrders(ctx, id)
}
