// Package settlement decides the outcome of a priced basket paid in cash or
// store credit and commits it to the store.
//
// Writes fall in two classes. The partial-transaction upsert and the account
// debit are authoritative: if they fail the call fails. The history append
// and the partial cleanup that follow a success are bookkeeping: their
// failures are reported in Result.Bookkeeping, logged and counted, and never
// change the outcome returned to the register.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"radix/backend/internal/domain"
	"radix/backend/internal/ledger"
	"radix/backend/internal/lock"
	"radix/backend/internal/logger"
	"radix/backend/internal/metrics"
	"radix/backend/internal/pricing"
	"radix/backend/internal/store"
)

var ErrInvalidRequest = errors.New("invalid transaction request")

const (
	opPartialUpsert = "partial_upsert"
	opHistoryAppend = "history_append"
	opPartialDelete = "partial_delete"
)

// Result carries the customer-facing outcome and, separately, any failure of
// the advisory writes made after the outcome was decided.
type Result struct {
	Outcome     domain.Outcome
	Bookkeeping error
	// Replayed is set when the transaction id was already settled and the
	// recorded outcome was returned without touching the store.
	Replayed bool
}

type Engine struct {
	repo     store.Repository
	resolver *pricing.Resolver
	ledger   *ledger.Ledger
	locker   lock.Locker
	metrics  *metrics.Settlement
	log      *logger.Logger
	now      func() time.Time
}

type Option func(*Engine)

func WithLocker(l lock.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

func WithMetrics(m *metrics.Settlement) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(repo store.Repository, opts ...Option) *Engine {
	e := &Engine{
		repo:   repo,
		ledger: ledger.New(repo),
		locker: lock.NewLocal(),
		log:    logger.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	e.resolver = pricing.NewResolver(repo, e.log)
	return e
}

// Settle prices the request basket (resuming a partial transaction when one
// exists for the tx id) and settles it with the request's payment method.
func (e *Engine) Settle(ctx context.Context, req domain.TransactionRequest) (Result, error) {
	if req.TxID == "" {
		return Result{}, fmt.Errorf("%w: tx_id is required", ErrInvalidRequest)
	}
	for _, entry := range req.Items {
		if entry.Quantity < 1 || entry.Quantity > domain.MaxQuantity {
			return Result{}, fmt.Errorf("%w: item %d has quantity %d", ErrInvalidRequest, entry.ID, entry.Quantity)
		}
	}
	basket := domain.NewBasket(req.Items)

	switch req.Method.Kind {
	case domain.PaymentCash:
		tendered := req.TenderAmount()
		if tendered < 0 {
			return Result{}, fmt.Errorf("%w: negative tender", ErrInvalidRequest)
		}
		return e.exclusive(ctx, req.TxID, domain.MethodCash, func(ctx context.Context) (Result, error) {
			total, err := e.resolver.ResolveTotal(ctx, req.TxID, basket)
			if err != nil {
				return Result{}, err
			}
			return e.settleCash(ctx, req.TxID, tendered, basket, total)
		})
	case domain.PaymentCredit:
		return e.exclusive(ctx, req.TxID, domain.MethodCredit, func(ctx context.Context) (Result, error) {
			total, err := e.resolver.ResolveTotal(ctx, req.TxID, basket)
			if err != nil {
				return Result{}, err
			}
			return e.settleCredit(ctx, req.TxID, req.Method.AccountID, basket, total)
		})
	default:
		return Result{}, fmt.Errorf("%w: unsupported payment method %q", ErrInvalidRequest, req.Method.Kind)
	}
}

// SettleCash settles an already priced basket against the cash tendered.
func (e *Engine) SettleCash(ctx context.Context, txID string, tendered int64, basket domain.Basket, total int64) (Result, error) {
	return e.exclusive(ctx, txID, domain.MethodCash, func(ctx context.Context) (Result, error) {
		return e.settleCash(ctx, txID, tendered, basket, total)
	})
}

// SettleCredit settles an already priced basket against an account balance.
func (e *Engine) SettleCredit(ctx context.Context, txID string, accountID int64, basket domain.Basket, total int64) (Result, error) {
	return e.exclusive(ctx, txID, domain.MethodCredit, func(ctx context.Context) (Result, error) {
		return e.settleCredit(ctx, txID, accountID, basket, total)
	})
}

// exclusive runs fn while holding the lock for txID, after checking that the
// transaction has not been settled already.
func (e *Engine) exclusive(ctx context.Context, txID string, method string, fn func(context.Context) (Result, error)) (Result, error) {
	started := time.Now()
	ctx = e.log.WithFields(ctx, map[string]any{"tx_id": txID, "method": method})

	result, err := e.locked(ctx, txID, fn)

	status := "error"
	if err == nil {
		status = string(result.Outcome.Status)
	}
	e.metrics.ObserveOutcome(method, status, time.Since(started))
	if err != nil {
		e.log.Error(ctx, "settlement failed", err)
	}
	return result, err
}

func (e *Engine) locked(ctx context.Context, txID string, fn func(context.Context) (Result, error)) (Result, error) {
	release, err := e.locker.Acquire(ctx, txID)
	if err != nil {
		return Result{}, fmt.Errorf("acquire settlement lock: %w", err)
	}
	defer release()

	settled, err := e.repo.GetCompletedTransaction(ctx, txID)
	switch {
	case err == nil:
		e.log.Info(ctx, "transaction already settled, replaying recorded outcome")
		return Result{Outcome: domain.Success(settled.CashBack), Replayed: true}, nil
	case !errors.Is(err, store.ErrNotFound):
		return Result{}, fmt.Errorf("check settlement history: %w", err)
	}

	return fn(ctx)
}

func (e *Engine) settleCash(ctx context.Context, txID string, tendered int64, basket domain.Basket, total int64) (Result, error) {
	difference := total - tendered
	if difference > 0 {
		err := e.repo.UpsertPartialTransaction(ctx, domain.PartialTransaction{
			ID:        txID,
			Basket:    basket,
			Remaining: difference,
		})
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", opPartialUpsert, err)
		}
		e.log.Info(e.log.WithField(ctx, "remaining", difference), "cash transaction partially paid")
		return Result{Outcome: domain.Partial(difference)}, nil
	}

	cashBack := -difference
	bookkeeping := e.finalize(ctx, txID, basket, cashBack, domain.MethodCash)
	e.log.Info(e.log.WithField(ctx, "cash_back", cashBack), "cash transaction settled")
	return Result{Outcome: domain.Success(cashBack), Bookkeeping: bookkeeping}, nil
}

func (e *Engine) settleCredit(ctx context.Context, txID string, accountID int64, basket domain.Basket, total int64) (Result, error) {
	ctx = e.log.WithField(ctx, "account_id", accountID)

	account, err := e.ledger.GetAccount(ctx, accountID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.log.Info(ctx, "credit settlement for unknown account")
			return Result{Outcome: domain.InvalidAccount(accountID)}, nil
		}
		return Result{}, fmt.Errorf("load account: %w", err)
	}

	discounted := ledger.ApplyDiscount(total, account.Discount)
	if !ledger.CanCover(account, discounted) {
		e.log.Info(e.log.WithField(ctx, "amount", discounted), "credit settlement rejected")
		return Result{Outcome: domain.Failure(domain.ReasonInsufficientCredit)}, nil
	}

	if err := e.ledger.Charge(ctx, accountID, discounted); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			return Result{Outcome: domain.InvalidAccount(accountID)}, nil
		case errors.Is(err, store.ErrInsufficientCredit):
			e.log.Info(e.log.WithField(ctx, "amount", discounted), "credit settlement rejected, balance changed")
			return Result{Outcome: domain.Failure(domain.ReasonInsufficientCredit)}, nil
		}
		return Result{}, fmt.Errorf("debit account: %w", err)
	}

	bookkeeping := e.finalize(ctx, txID, basket, 0, domain.MethodCredit)
	e.log.Info(e.log.WithField(ctx, "amount", discounted), "credit transaction settled")
	return Result{Outcome: domain.Success(0), Bookkeeping: bookkeeping}, nil
}

// finalize appends the history record and clears any partial row. Failures
// are returned for observation only.
func (e *Engine) finalize(ctx context.Context, txID string, basket domain.Basket, cashBack int64, method string) error {
	var errs error

	err := e.repo.InsertCompletedTransaction(ctx, domain.CompletedTransaction{
		ID:        txID,
		Basket:    basket,
		CashBack:  cashBack,
		Method:    method,
		SettledAt: e.now(),
	})
	if err != nil {
		errs = multierr.Append(errs, e.bookkeepingFailed(ctx, opHistoryAppend, err))
	}

	if err := e.repo.DeletePartialTransaction(ctx, txID); err != nil {
		errs = multierr.Append(errs, e.bookkeepingFailed(ctx, opPartialDelete, err))
	}
	return errs
}

func (e *Engine) bookkeepingFailed(ctx context.Context, op string, err error) error {
	e.metrics.IncBookkeepingFailure(op)
	e.log.Warn(e.log.WithFields(ctx, map[string]any{"op": op, "error": err.Error()}), "settlement bookkeeping failed")
	return fmt.Errorf("%s: %w", op, err)
}
