package pricing

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radix/backend/internal/domain"
	"radix/backend/internal/logger"
	"radix/backend/internal/store"
	"radix/backend/internal/store/memory"
)

type duplicatePrices struct {
	*memory.Store
}

func (duplicatePrices) GetPrices(context.Context, []int64) (map[int64]int64, error) {
	return nil, store.ErrDuplicateEntries
}

type brokenPrices struct {
	*memory.Store
}

func (brokenPrices) GetPrices(context.Context, []int64) (map[int64]int64, error) {
	return nil, errors.New("connection reset")
}

func TestResolveTotalSumsCatalogPrices(t *testing.T) {
	repo := memory.NewSeeded()
	resolver := NewResolver(repo, nil)

	total, err := resolver.ResolveTotal(context.Background(), "tx-1", domain.Basket{1: 2, 2: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(2*100+3*150), total)
}

func TestResolveTotalPricesUnknownItemsAtZero(t *testing.T) {
	resolver := NewResolver(memory.NewSeeded(), nil)

	total, err := resolver.ResolveTotal(context.Background(), "tx-2", domain.Basket{1: 1, 404: 7})
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)
}

func TestResolveTotalUsesFrozenRemaining(t *testing.T) {
	repo := memory.NewSeeded()
	ctx := context.Background()
	require.NoError(t, repo.UpsertPartialTransaction(ctx, domain.PartialTransaction{
		ID: "tx-3", Basket: domain.Basket{1: 2}, Remaining: 120,
	}))
	// catalog drift after the first attempt must not change what is owed
	require.NoError(t, repo.UpsertItem(ctx, domain.Item{ID: 1, Name: "Chocolate Bar", Price: 500}))

	total, err := NewResolver(repo, nil).ResolveTotal(ctx, "tx-3", domain.Basket{1: 2, 2: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(120), total)
}

func TestResolveTotalEmptyBasket(t *testing.T) {
	total, err := NewResolver(memory.New(), nil).ResolveTotal(context.Background(), "tx-4", domain.Basket{})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestResolveTotalReportsDuplicatePriceRows(t *testing.T) {
	resolver := NewResolver(duplicatePrices{memory.New()}, nil)

	_, err := resolver.ResolveTotal(context.Background(), "tx-5", domain.Basket{1: 1})
	var resolutionErr *PriceResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.Equal(t, "tx-5", resolutionErr.TxID)
	assert.ErrorIs(t, err, store.ErrDuplicateEntries)
}

func TestResolveTotalPropagatesStoreFailure(t *testing.T) {
	resolver := NewResolver(brokenPrices{memory.New()}, nil)

	_, err := resolver.ResolveTotal(context.Background(), "tx-6", domain.Basket{1: 1})
	require.Error(t, err)
	var resolutionErr *PriceResolutionError
	assert.False(t, errors.As(err, &resolutionErr))
	assert.NotErrorIs(t, err, store.ErrNotFound)
}

func TestTotalRejectsOverflow(t *testing.T) {
	cases := map[string]struct {
		basket domain.Basket
		prices map[int64]int64
	}{
		"line wraps negative": {domain.Basket{2: 1 << 62}, map[int64]int64{2: 150}},
		"line wraps to zero":  {domain.Basket{2: 1 << 62}, map[int64]int64{2: 4}},
		"sum of lines":        {domain.Basket{1: 1, 2: 1}, map[int64]int64{1: math.MaxInt64, 2: 1}},
	}
	for name, tc := range cases {
		_, err := Total(tc.basket, tc.prices)
		assert.ErrorIs(t, err, ErrTotalOverflow, name)
	}

	total, err := Total(domain.Basket{1: 1, 2: 1}, map[int64]int64{1: math.MaxInt64 - 1, 2: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), total)
}

func TestResolveTotalReportsOverflow(t *testing.T) {
	resolver := NewResolver(memory.NewSeeded(), nil)

	_, err := resolver.ResolveTotal(context.Background(), "tx-7", domain.Basket{2: 1 << 62})
	var resolutionErr *PriceResolutionError
	require.ErrorAs(t, err, &resolutionErr)
	assert.ErrorIs(t, err, ErrTotalOverflow)
}

func TestResolveTotalLogsPricingSource(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(logger.Options{Level: logger.ParseLevel("debug"), Output: &buf})
	repo := memory.NewSeeded()
	ctx := context.Background()
	resolver := NewResolver(repo, log)

	_, err := resolver.ResolveTotal(ctx, "tx-8", domain.Basket{1: 1})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "pricing from catalog")

	require.NoError(t, repo.UpsertPartialTransaction(ctx, domain.PartialTransaction{ID: "tx-8", Basket: domain.Basket{1: 1}, Remaining: 40}))
	_, err = resolver.ResolveTotal(ctx, "tx-8", domain.Basket{1: 1})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "resuming partial transaction")
}
