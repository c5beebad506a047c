package store

import (
	"context"
	"errors"

	"radix/backend/internal/domain"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrDuplicateEntries = errors.New("duplicate entries found in database, please contact support")
	ErrSerialization    = errors.New("unable to encode or decode stored data")
	// ErrInsufficientCredit is returned by ChargeAccount when a non-overdraft
	// account cannot cover the amount.
	ErrInsufficientCredit = errors.New("insufficient credit")
)

// Repository is the persistent store behind pricing, settlement and the
// account ledger. Implementations serialize statement groups so that no two
// mutations interleave.
type Repository interface {
	// GetPrices returns unit prices keyed by item id. Ids with no row are
	// absent from the map; more than one row for an id yields
	// ErrDuplicateEntries.
	GetPrices(ctx context.Context, itemIDs []int64) (map[int64]int64, error)
	ListItems(ctx context.Context) ([]domain.Item, error)
	UpsertItem(ctx context.Context, item domain.Item) error

	GetAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	ListAccounts(ctx context.Context) ([]domain.Account, error)
	// UpsertAccount rejects accounts that fail domain.Account.Validate.
	UpsertAccount(ctx context.Context, account domain.Account) error
	// DebitAccount subtracts amount from the account balance in a single
	// statement. It performs no balance check.
	DebitAccount(ctx context.Context, accountID int64, amount int64) error
	// ChargeAccount debits amount only if the account allows overdraft or its
	// balance covers amount, checking and writing in one statement. It returns
	// ErrNotFound for a missing account and ErrInsufficientCredit when the
	// balance is short; the balance is unchanged in both cases.
	ChargeAccount(ctx context.Context, accountID int64, amount int64) error

	GetPartialTransaction(ctx context.Context, txID string) (*domain.PartialTransaction, error)
	UpsertPartialTransaction(ctx context.Context, partial domain.PartialTransaction) error
	DeletePartialTransaction(ctx context.Context, txID string) error

	InsertCompletedTransaction(ctx context.Context, completed domain.CompletedTransaction) error
	GetCompletedTransaction(ctx context.Context, txID string) (*domain.CompletedTransaction, error)
	// ListCompletedTransactions returns the newest records first, at most
	// limit of them. A limit below 1 returns every record.
	ListCompletedTransactions(ctx context.Context, limit int) ([]domain.CompletedTransaction, error)

	Close() error
}
