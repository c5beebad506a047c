package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"radix/backend/internal/domain"
	"radix/backend/internal/store"
)

type Store struct {
	mu        sync.RWMutex
	items     map[int64]domain.Item
	accounts  map[int64]domain.Account
	partials  map[string]domain.PartialTransaction
	history   map[string]domain.CompletedTransaction
	historyAt []string
}

var _ store.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		items:     make(map[int64]domain.Item),
		accounts:  make(map[int64]domain.Account),
		partials:  make(map[string]domain.PartialTransaction),
		history:   make(map[string]domain.CompletedTransaction),
		historyAt: make([]string, 0, 64),
	}
}

// NewSeeded returns a store with a small canteen pricebook and two accounts,
// used when the server runs without a database.
func NewSeeded() *Store {
	s := New()
	gtin := func(v int64) *int64 { return &v }

	for _, item := range []domain.Item{
		{ID: 1, Name: "Chocolate Bar", GTIN: gtin(40000000141), Price: 100},
		{ID: 2, Name: "Soda Can", GTIN: gtin(49000000443), Price: 150},
		{ID: 3, Name: "Trail Mix", Price: 225},
		{ID: 4, Name: "Camp T-Shirt", Price: 1500},
		{ID: 5, Name: "Sunscreen", GTIN: gtin(41100000028), Price: 899},
	} {
		s.items[item.ID] = item
	}
	for _, account := range []domain.Account{
		{ID: 1001, Name: "Cabin 4 - Avery", Credit: 10000, Overdraft: false, Discount: 5, Bunk: 4},
		{ID: 1002, Name: "Staff - Jordan", Credit: 2500, Overdraft: true, Discount: 10, Bunk: 0},
	} {
		s.accounts[account.ID] = account
	}
	return s
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) GetPrices(_ context.Context, itemIDs []int64) (map[int64]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prices := make(map[int64]int64, len(itemIDs))
	for _, id := range itemIDs {
		if item, ok := s.items[id]; ok {
			prices[id] = item.Price
		}
	}
	return prices, nil
}

func (s *Store) ListItems(_ context.Context) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.items))
	for _, item := range s.items {
		items = append(items, cloneItem(item))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *Store) UpsertItem(_ context.Context, item domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[item.ID] = cloneItem(item)
	return nil
}

func (s *Store) GetAccount(_ context.Context, accountID int64) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &account, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.Account, 0, len(s.accounts))
	for _, account := range s.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts, nil
}

func (s *Store) UpsertAccount(_ context.Context, account domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
	return nil
}

func (s *Store) DebitAccount(_ context.Context, accountID int64, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	account.Credit -= amount
	s.accounts[accountID] = account
	return nil
}

func (s *Store) ChargeAccount(_ context.Context, accountID int64, amount int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return store.ErrNotFound
	}
	if !account.Overdraft && account.Credit < amount {
		return store.ErrInsufficientCredit
	}
	account.Credit -= amount
	s.accounts[accountID] = account
	return nil
}

func (s *Store) GetPartialTransaction(_ context.Context, txID string) (*domain.PartialTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	partial, ok := s.partials[txID]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := clonePartial(partial)
	return &result, nil
}

func (s *Store) UpsertPartialTransaction(_ context.Context, partial domain.PartialTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.partials[partial.ID] = clonePartial(partial)
	return nil
}

func (s *Store) DeletePartialTransaction(_ context.Context, txID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.partials, txID)
	return nil
}

func (s *Store) InsertCompletedTransaction(_ context.Context, completed domain.CompletedTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.history[completed.ID]; exists {
		return store.ErrAlreadyExists
	}
	if completed.SettledAt.IsZero() {
		completed.SettledAt = time.Now().UTC()
	}
	s.history[completed.ID] = cloneCompleted(completed)
	s.historyAt = append(s.historyAt, completed.ID)
	return nil
}

func (s *Store) GetCompletedTransaction(_ context.Context, txID string) (*domain.CompletedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	completed, ok := s.history[txID]
	if !ok {
		return nil, store.ErrNotFound
	}
	result := cloneCompleted(completed)
	return &result, nil
}

// ListCompletedTransactions returns the newest records first.
func (s *Store) ListCompletedTransactions(_ context.Context, limit int) ([]domain.CompletedTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 || limit > len(s.historyAt) {
		limit = len(s.historyAt)
	}
	result := make([]domain.CompletedTransaction, 0, limit)
	for i := len(s.historyAt) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, cloneCompleted(s.history[s.historyAt[i]]))
	}
	return result, nil
}

func cloneItem(item domain.Item) domain.Item {
	if item.GTIN != nil {
		gtin := *item.GTIN
		item.GTIN = &gtin
	}
	return item
}

func clonePartial(partial domain.PartialTransaction) domain.PartialTransaction {
	partial.Basket = partial.Basket.Clone()
	return partial
}

func cloneCompleted(completed domain.CompletedTransaction) domain.CompletedTransaction {
	completed.Basket = completed.Basket.Clone()
	return completed
}
