// Package ledger holds account balance rules and the atomic debit.
package ledger

import (
	"context"
	"fmt"

	"radix/backend/internal/domain"
	"radix/backend/internal/store"
)

type Ledger struct {
	repo store.Repository
}

func New(repo store.Repository) *Ledger {
	return &Ledger{repo: repo}
}

// GetAccount returns store.ErrNotFound when the account does not exist.
func (l *Ledger) GetAccount(ctx context.Context, accountID int64) (domain.Account, error) {
	account, err := l.repo.GetAccount(ctx, accountID)
	if err != nil {
		return domain.Account{}, err
	}
	return *account, nil
}

func (l *Ledger) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	return l.repo.ListAccounts(ctx)
}

// Debit subtracts amount from the balance in one store statement. Callers
// are responsible for the overdraft check.
func (l *Ledger) Debit(ctx context.Context, accountID int64, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("debit account %d: negative amount %d", accountID, amount)
	}
	return l.repo.DebitAccount(ctx, accountID, amount)
}

// Charge debits amount only when CanCover holds at the moment of the write.
// The check and the update are one store statement, so concurrent charges
// against the same account cannot both pass on a stale balance. A short
// balance yields store.ErrInsufficientCredit.
func (l *Ledger) Charge(ctx context.Context, accountID int64, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("charge account %d: negative amount %d", accountID, amount)
	}
	return l.repo.ChargeAccount(ctx, accountID, amount)
}

// ApplyDiscount takes percent off total, truncating toward zero.
func ApplyDiscount(total, percent int64) int64 {
	return total - total*percent/100
}

func CanCover(account domain.Account, amount int64) bool {
	return account.Overdraft || account.Credit >= amount
}
