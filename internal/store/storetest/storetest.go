// Package storetest holds the behavioural checks every store.Repository
// implementation has to pass.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radix/backend/internal/domain"
	"radix/backend/internal/store"
)

// Run exercises repo against the repository contract. newRepo must return an
// empty repository for every call.
func Run(t *testing.T, newRepo func(t *testing.T) store.Repository) {
	t.Helper()

	t.Run("prices", func(t *testing.T) { testPrices(t, newRepo(t)) })
	t.Run("accounts", func(t *testing.T) { testAccounts(t, newRepo(t)) })
	t.Run("charge", func(t *testing.T) { testCharge(t, newRepo(t)) })
	t.Run("partials", func(t *testing.T) { testPartials(t, newRepo(t)) })
	t.Run("history", func(t *testing.T) { testHistory(t, newRepo(t)) })
}

func testPrices(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	gtin := int64(4006381333931)

	require.NoError(t, repo.UpsertItem(ctx, domain.Item{ID: 1, Name: "Apple", Price: 120}))
	require.NoError(t, repo.UpsertItem(ctx, domain.Item{ID: 2, Name: "Pencil", GTIN: &gtin, Price: 45}))

	prices, err := repo.GetPrices(ctx, []int64{1, 2, 99})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 120, 2: 45}, prices)

	empty, err := repo.GetPrices(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, repo.UpsertItem(ctx, domain.Item{ID: 1, Name: "Apple", Price: 130}))
	items, err := repo.ListItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(130), items[0].Price)
	require.NotNil(t, items[1].GTIN)
	assert.Equal(t, gtin, *items[1].GTIN)
}

func testAccounts(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	_, err := repo.GetAccount(ctx, 7)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, repo.DebitAccount(ctx, 7, 100), store.ErrNotFound)

	account := domain.Account{ID: 7, Name: "Cabin 7", Credit: 1000, Overdraft: true, Discount: 10, Bunk: 3}
	require.NoError(t, repo.UpsertAccount(ctx, account))

	got, err := repo.GetAccount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, account, *got)

	require.NoError(t, repo.DebitAccount(ctx, 7, 1500))
	got, err = repo.GetAccount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(-500), got.Credit)

	for _, discount := range []int64{-1, 101} {
		err := repo.UpsertAccount(ctx, domain.Account{ID: 4, Name: "Cabin 4", Discount: discount})
		assert.ErrorIs(t, err, domain.ErrDiscountOutOfRange)
	}
	_, err = repo.GetAccount(ctx, 4)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, repo.UpsertAccount(ctx, domain.Account{ID: 3, Name: "Cabin 3", Credit: 50}))
	accounts, err := repo.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, int64(3), accounts[0].ID)
	assert.False(t, accounts[0].Overdraft)
	assert.True(t, accounts[1].Overdraft)
}

func testCharge(t *testing.T, repo store.Repository) {
	ctx := context.Background()

	assert.ErrorIs(t, repo.ChargeAccount(ctx, 8, 100), store.ErrNotFound)

	require.NoError(t, repo.UpsertAccount(ctx, domain.Account{ID: 8, Name: "Cabin 8", Credit: 1000}))
	require.NoError(t, repo.UpsertAccount(ctx, domain.Account{ID: 9, Name: "Cabin 9", Credit: 100, Overdraft: true}))

	require.NoError(t, repo.ChargeAccount(ctx, 8, 600))
	assert.ErrorIs(t, repo.ChargeAccount(ctx, 8, 401), store.ErrInsufficientCredit)
	require.NoError(t, repo.ChargeAccount(ctx, 8, 400))

	got, err := repo.GetAccount(ctx, 8)
	require.NoError(t, err)
	assert.Zero(t, got.Credit)

	require.NoError(t, repo.ChargeAccount(ctx, 9, 350))
	got, err = repo.GetAccount(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(-250), got.Credit)
}

func testPartials(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	txID := uuid.NewString()

	_, err := repo.GetPartialTransaction(ctx, txID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	partial := domain.PartialTransaction{ID: txID, Basket: domain.Basket{1: 2, 5: 1}, Remaining: 400}
	require.NoError(t, repo.UpsertPartialTransaction(ctx, partial))

	got, err := repo.GetPartialTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, partial, *got)

	partial.Remaining = 150
	require.NoError(t, repo.UpsertPartialTransaction(ctx, partial))
	got, err = repo.GetPartialTransaction(ctx, txID)
	require.NoError(t, err)
	assert.Equal(t, int64(150), got.Remaining)
	assert.Equal(t, domain.Basket{1: 2, 5: 1}, got.Basket)

	require.NoError(t, repo.DeletePartialTransaction(ctx, txID))
	_, err = repo.GetPartialTransaction(ctx, txID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, repo.DeletePartialTransaction(ctx, txID))
}

func testHistory(t *testing.T, repo store.Repository) {
	ctx := context.Background()
	base := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.InsertCompletedTransaction(ctx, domain.CompletedTransaction{
			ID:        fmt.Sprintf("tx-%d", i),
			Basket:    domain.Basket{int64(i + 1): 1},
			CashBack:  int64(i * 10),
			Method:    domain.MethodCash,
			SettledAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	err := repo.InsertCompletedTransaction(ctx, domain.CompletedTransaction{
		ID: "tx-1", Basket: domain.Basket{}, Method: domain.MethodCredit, SettledAt: base,
	})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)

	got, err := repo.GetCompletedTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), got.CashBack)
	assert.Equal(t, domain.MethodCash, got.Method)
	assert.Equal(t, domain.Basket{2: 1}, got.Basket)
	assert.True(t, base.Add(time.Minute).Equal(got.SettledAt))

	_, err = repo.GetCompletedTransaction(ctx, "tx-missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	recent, err := repo.ListCompletedTransactions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "tx-2", recent[0].ID)
	assert.Equal(t, "tx-1", recent[1].ID)

	all, err := repo.ListCompletedTransactions(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "tx-2", all[0].ID)
	assert.Equal(t, "tx-0", all[2].ID)
}
