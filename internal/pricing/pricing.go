// Package pricing turns a basket into the amount owed for a transaction.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"math"

	"radix/backend/internal/domain"
	"radix/backend/internal/logger"
	"radix/backend/internal/store"
)

// UnknownItemPrice is charged for basket ids with no pricebook row.
const UnknownItemPrice int64 = 0

var ErrTotalOverflow = errors.New("basket total exceeds the representable amount")

// PriceResolutionError reports a pricebook that cannot price the basket
// unambiguously.
type PriceResolutionError struct {
	TxID string
	Err  error
}

func (e *PriceResolutionError) Error() string {
	return fmt.Sprintf("resolve price for %s: %v", e.TxID, e.Err)
}

func (e *PriceResolutionError) Unwrap() error {
	return e.Err
}

type Resolver struct {
	repo store.Repository
	log  *logger.Logger
}

// NewResolver builds a resolver; a nil log discards its output.
func NewResolver(repo store.Repository, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{repo: repo, log: log}
}

// ResolveTotal returns the frozen remaining amount when txID has a partial
// transaction on file, and the basket's catalog total otherwise.
func (r *Resolver) ResolveTotal(ctx context.Context, txID string, basket domain.Basket) (int64, error) {
	partial, err := r.repo.GetPartialTransaction(ctx, txID)
	switch {
	case err == nil:
		r.log.Debug(r.log.WithField(ctx, "remaining", partial.Remaining), "resuming partial transaction")
		return partial.Remaining, nil
	case !errors.Is(err, store.ErrNotFound):
		return 0, fmt.Errorf("load partial transaction: %w", err)
	}
	r.log.Debug(ctx, "no partial transaction, pricing from catalog")

	if len(basket) == 0 {
		return 0, nil
	}

	prices, err := r.repo.GetPrices(ctx, basket.ItemIDs())
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEntries) || errors.Is(err, store.ErrSerialization) {
			return 0, &PriceResolutionError{TxID: txID, Err: err}
		}
		return 0, fmt.Errorf("load prices: %w", err)
	}

	total, err := Total(basket, prices)
	if err != nil {
		return 0, &PriceResolutionError{TxID: txID, Err: err}
	}
	return total, nil
}

// Total sums quantity times unit price over the basket. It returns
// ErrTotalOverflow instead of wrapping around.
func Total(basket domain.Basket, prices map[int64]int64) (int64, error) {
	var total int64
	for id, qty := range basket {
		price, ok := prices[id]
		if !ok {
			price = UnknownItemPrice
		}
		line, ok := mulChecked(qty, price)
		if !ok {
			return 0, fmt.Errorf("%w: item %d x %d", ErrTotalOverflow, id, qty)
		}
		if total, ok = addChecked(total, line); !ok {
			return 0, ErrTotalOverflow
		}
	}
	return total, nil
}

func mulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	product := a * b
	return product, product/b == a
}

func addChecked(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}
