package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"radix/backend/internal/domain"
	"radix/backend/internal/store"
	"radix/backend/internal/store/memory"
)

func TestApplyDiscount(t *testing.T) {
	cases := []struct {
		total, percent, want int64
	}{
		{9000, 10, 8100},
		{10000, 5, 9500},
		{20000, 5, 19000},
		{999, 33, 670},
		{100, 0, 100},
		{100, 100, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ApplyDiscount(tc.total, tc.percent), "total=%d percent=%d", tc.total, tc.percent)
	}
}

func TestCanCover(t *testing.T) {
	assert.True(t, CanCover(domain.Account{Credit: 500}, 500))
	assert.False(t, CanCover(domain.Account{Credit: 499}, 500))
	assert.True(t, CanCover(domain.Account{Credit: 0, Overdraft: true}, 500))
}

func TestGetAccountNotFound(t *testing.T) {
	_, err := New(memory.New()).GetAccount(context.Background(), 42)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDebitRejectsNegativeAmount(t *testing.T) {
	repo := memory.NewSeeded()
	l := New(repo)

	require.Error(t, l.Debit(context.Background(), 1001, -5))
	account, err := l.GetAccount(context.Background(), 1001)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), account.Credit)
}

func TestConcurrentDebitsDoNotLoseUpdates(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.UpsertAccount(ctx, domain.Account{ID: 1, Name: "Shared", Credit: 10000}))
	l := New(repo)

	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error { return l.Debit(ctx, 1, 100) })
	}
	require.NoError(t, g.Wait())

	account, err := l.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), account.Credit)
}

func TestChargeRejectsShortBalance(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.UpsertAccount(ctx, domain.Account{ID: 1, Name: "Camper", Credit: 300}))
	l := New(repo)

	assert.ErrorIs(t, l.Charge(ctx, 1, 301), store.ErrInsufficientCredit)
	assert.ErrorIs(t, l.Charge(ctx, 2, 1), store.ErrNotFound)
	require.Error(t, l.Charge(ctx, 1, -1))
	require.NoError(t, l.Charge(ctx, 1, 300))

	account, err := l.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, account.Credit)
}

func TestConcurrentChargesNeverOverdraw(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	require.NoError(t, repo.UpsertAccount(ctx, domain.Account{ID: 1, Name: "Shared", Credit: 2550}))
	l := New(repo)

	var charged, refused atomic.Int32
	var g errgroup.Group
	for i := 0; i < 50; i++ {
		g.Go(func() error {
			err := l.Charge(ctx, 1, 100)
			switch {
			case err == nil:
				charged.Add(1)
			case errors.Is(err, store.ErrInsufficientCredit):
				refused.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(25), charged.Load())
	assert.Equal(t, int32(25), refused.Load())
	account, err := l.GetAccount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), account.Credit)
}
