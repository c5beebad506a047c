package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radix/backend/internal/domain"
	"radix/backend/internal/store"
	"radix/backend/internal/store/storetest"
)

func TestRepositoryContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Repository {
		return New()
	})
}

func TestSeededStoreHasPricebookAndAccounts(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	prices, err := s.GetPrices(ctx, []int64{1, 5})
	require.NoError(t, err)
	assert.Equal(t, map[int64]int64{1: 100, 5: 899}, prices)

	account, err := s.GetAccount(ctx, 1002)
	require.NoError(t, err)
	assert.True(t, account.Overdraft)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.UpsertPartialTransaction(ctx, domain.PartialTransaction{
		ID: "tx-copy", Basket: domain.Basket{1: 1}, Remaining: 10,
	}))

	got, err := s.GetPartialTransaction(ctx, "tx-copy")
	require.NoError(t, err)
	got.Basket[1] = 99

	again, err := s.GetPartialTransaction(ctx, "tx-copy")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Basket[1])
}
