package accounts_test

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-bookstore-orders/internal/accounts"
	"github.com/ariefcatur/go-bookstore-orders/internal/errs"
	"github.com/ariefcatur/go-bookstore-orders/internal/testutil"
	"github.com/ariefcatur/go-bookstore-orders/internal/txn"
)

func TestRegisterAndVerify(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	require.NoError(t, accounts.Register(ctx, db, "alice", "s3cret", bcrypt.MinCost))

	err := accounts.Register(ctx, db, "alice", "other", bcrypt.MinCost)
	assert.True(t, errs.Is(err, errs.UserExists))

	assert.NoError(t, accounts.VerifyPassword(ctx, db, "alice", "s3cret"))
	assert.True(t, errs.Is(accounts.VerifyPassword(ctx, db, "alice", "wrong"), errs.WrongPassword))
	assert.True(t, errs.Is(accounts.VerifyPassword(ctx, db, "bob", "x"), errs.UserNotFound))

	b, err := accounts.Balance(ctx, db, "alice")
	require.NoError(t, err)
	assert.Zero(t, b)
}

func TestDebitCredit(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	require.NoError(t, accounts.Register(ctx, db, "alice", "pw", bcrypt.MinCost))

	require.NoError(t, accounts.Credit(ctx, db, "alice", 100))
	require.NoError(t, accounts.Debit(ctx, db, "alice", 60))

	err := accounts.Debit(ctx, db, "alice", 41)
	assert.True(t, errs.Is(err, errs.InsufficientFunds))

	b, err := accounts.Balance(ctx, db, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 40, b)

	assert.True(t, errs.Is(accounts.Debit(ctx, db, "ghost", 1), errs.UserNotFound))
	assert.True(t, errs.Is(accounts.Credit(ctx, db, "ghost", 1), errs.UserNotFound))
}

func TestDebitCreditRejectBadAmounts(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	require.NoError(t, accounts.Register(ctx, db, "alice", "pw", bcrypt.MinCost))
	require.NoError(t, accounts.Credit(ctx, db, "alice", 10))

	// a negative debit would otherwise pay the debtor
	assert.True(t, errs.Is(accounts.Debit(ctx, db, "alice", -5), errs.BadInput))
	assert.True(t, errs.Is(accounts.Credit(ctx, db, "alice", -5), errs.BadInput))

	require.NoError(t, accounts.Credit(ctx, db, "alice", math.MaxInt64-10))
	err := accounts.Credit(ctx, db, "alice", 1)
	assert.True(t, errs.Is(err, errs.BadInput), "wrapping credit: %v", err)

	b, err := accounts.Balance(ctx, db, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, int64(math.MaxInt64), b)
}

func TestConcurrentDebitsStayNonNegative(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	require.NoError(t, accounts.Register(ctx, db, "alice", "pw", bcrypt.MinCost))
	require.NoError(t, accounts.Credit(ctx, db, "alice", 30))

	var ok atomic.Int32
	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			err := db.InTx(ctx, txn.RepeatableRead, func(q txn.Querier) error {
				return accounts.Debit(ctx, q, "alice", 10)
			})
			if err == nil {
				ok.Add(1)
				return nil
			}
			if errs.Is(err, errs.InsufficientFunds) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	assert.EqualValues(t, 3, ok.Load())

	b, err := accounts.Balance(ctx, db, "alice")
	require.NoError(t, err)
	assert.Zero(t, b)
}
