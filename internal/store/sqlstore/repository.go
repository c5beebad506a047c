package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"radix/backend/internal/domain"
	"radix/backend/internal/store"
)

func (s *Store) GetPrices(ctx context.Context, itemIDs []int64) (map[int64]int64, error) {
	prices := make(map[int64]int64, len(itemIDs))
	if len(itemIDs) == 0 {
		return prices, nil
	}

	args := make([]any, 0, len(itemIDs))
	for _, id := range itemIDs {
		args = append(args, id)
	}

	err := s.query(ctx,
		"SELECT id, price FROM pricebook WHERE id IN ("+placeholders(len(args))+")",
		func(rows *sql.Rows) error {
			var id, price int64
			if err := rows.Scan(&id, &price); err != nil {
				return err
			}
			if _, seen := prices[id]; seen {
				return store.ErrDuplicateEntries
			}
			prices[id] = price
			return nil
		},
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get prices: %w", err)
	}
	return prices, nil
}

func (s *Store) ListItems(ctx context.Context) ([]domain.Item, error) {
	items := make([]domain.Item, 0, 64)
	err := s.query(ctx,
		"SELECT id, name, gtin, price FROM pricebook ORDER BY id",
		func(rows *sql.Rows) error {
			var item domain.Item
			var gtin sql.NullInt64
			if err := rows.Scan(&item.ID, &item.Name, &gtin, &item.Price); err != nil {
				return err
			}
			if gtin.Valid {
				item.GTIN = &gtin.Int64
			}
			items = append(items, item)
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	return items, nil
}

func (s *Store) UpsertItem(ctx context.Context, item domain.Item) error {
	_, err := s.exec(ctx, `
		INSERT INTO pricebook (id, name, gtin, price)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, gtin = excluded.gtin, price = excluded.price
	`, item.ID, item.Name, item.GTIN, item.Price)
	if err != nil {
		return fmt.Errorf("failed to upsert item %d: %w", item.ID, err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	var found *domain.Account
	err := s.query(ctx,
		"SELECT id, name, credit, overdraft, discount, bunk FROM accounts WHERE id = ?",
		func(rows *sql.Rows) error {
			account, err := scanAccount(rows)
			if err != nil {
				return err
			}
			found = &account
			return nil
		},
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", accountID, err)
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]domain.Account, error) {
	accounts := make([]domain.Account, 0, 64)
	err := s.query(ctx,
		"SELECT id, name, credit, overdraft, discount, bunk FROM accounts ORDER BY id",
		func(rows *sql.Rows) error {
			account, err := scanAccount(rows)
			if err != nil {
				return err
			}
			accounts = append(accounts, account)
			return nil
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (s *Store) UpsertAccount(ctx context.Context, account domain.Account) error {
	if err := account.Validate(); err != nil {
		return err
	}
	_, err := s.exec(ctx, `
		INSERT INTO accounts (id, name, credit, overdraft, discount, bunk)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			credit = excluded.credit,
			overdraft = excluded.overdraft,
			discount = excluded.discount,
			bunk = excluded.bunk
	`, account.ID, account.Name, account.Credit, account.Overdraft, account.Discount, account.Bunk)
	if err != nil {
		return fmt.Errorf("failed to upsert account %d: %w", account.ID, err)
	}
	return nil
}

func (s *Store) DebitAccount(ctx context.Context, accountID int64, amount int64) error {
	affected, err := s.exec(ctx, "UPDATE accounts SET credit = credit - ? WHERE id = ?", amount, accountID)
	if err != nil {
		return fmt.Errorf("failed to debit account %d: %w", accountID, err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ChargeAccount(ctx context.Context, accountID int64, amount int64) error {
	err := s.execTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.dialect.rebind(
			"UPDATE accounts SET credit = credit - ? WHERE id = ? AND (overdraft OR credit >= ?)",
		), amount, accountID, amount)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected > 0 {
			return nil
		}

		var exists int
		err = tx.QueryRowContext(ctx, s.dialect.rebind("SELECT 1 FROM accounts WHERE id = ?"), accountID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		if err != nil {
			return err
		}
		return store.ErrInsufficientCredit
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrInsufficientCredit) {
			return err
		}
		return fmt.Errorf("failed to charge account %d: %w", accountID, err)
	}
	return nil
}

func (s *Store) GetPartialTransaction(ctx context.Context, txID string) (*domain.PartialTransaction, error) {
	var found *domain.PartialTransaction
	err := s.query(ctx,
		"SELECT id, basket, remaining FROM partial_transactions WHERE id = ?",
		func(rows *sql.Rows) error {
			var partial domain.PartialTransaction
			var basket string
			if err := rows.Scan(&partial.ID, &basket, &partial.Remaining); err != nil {
				return err
			}
			decoded, err := decodeBasket(basket)
			if err != nil {
				return err
			}
			partial.Basket = decoded
			found = &partial
			return nil
		},
		txID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get partial transaction %s: %w", txID, err)
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (s *Store) UpsertPartialTransaction(ctx context.Context, partial domain.PartialTransaction) error {
	basket, err := encodeBasket(partial.Basket)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO partial_transactions (id, basket, remaining)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET basket = excluded.basket, remaining = excluded.remaining
	`, partial.ID, basket, partial.Remaining)
	if err != nil {
		return fmt.Errorf("failed to upsert partial transaction %s: %w", partial.ID, err)
	}
	return nil
}

func (s *Store) DeletePartialTransaction(ctx context.Context, txID string) error {
	if _, err := s.exec(ctx, "DELETE FROM partial_transactions WHERE id = ?", txID); err != nil {
		return fmt.Errorf("failed to delete partial transaction %s: %w", txID, err)
	}
	return nil
}

func (s *Store) InsertCompletedTransaction(ctx context.Context, completed domain.CompletedTransaction) error {
	basket, err := encodeBasket(completed.Basket)
	if err != nil {
		return err
	}
	if completed.SettledAt.IsZero() {
		completed.SettledAt = time.Now().UTC()
	}

	_, err = s.exec(ctx, `
		INSERT INTO transaction_history (id, basket, cash_back, method, settled_at)
		VALUES (?, ?, ?, ?, ?)
	`, completed.ID, basket, completed.CashBack, completed.Method, completed.SettledAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrAlreadyExists
		}
		return fmt.Errorf("failed to log transaction %s: %w", completed.ID, err)
	}
	return nil
}

func (s *Store) GetCompletedTransaction(ctx context.Context, txID string) (*domain.CompletedTransaction, error) {
	var found *domain.CompletedTransaction
	err := s.query(ctx,
		"SELECT id, basket, cash_back, method, settled_at FROM transaction_history WHERE id = ?",
		func(rows *sql.Rows) error {
			completed, err := scanCompleted(rows)
			if err != nil {
				return err
			}
			found = &completed
			return nil
		},
		txID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", txID, err)
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (s *Store) ListCompletedTransactions(ctx context.Context, limit int) ([]domain.CompletedTransaction, error) {
	query := "SELECT id, basket, cash_back, method, settled_at FROM transaction_history ORDER BY settled_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	history := make([]domain.CompletedTransaction, 0, 64)
	err := s.query(ctx, query,
		func(rows *sql.Rows) error {
			completed, err := scanCompleted(rows)
			if err != nil {
				return err
			}
			history = append(history, completed)
			return nil
		},
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return history, nil
}

func scanAccount(rows *sql.Rows) (domain.Account, error) {
	var account domain.Account
	err := rows.Scan(&account.ID, &account.Name, &account.Credit, &account.Overdraft, &account.Discount, &account.Bunk)
	return account, err
}

func scanCompleted(rows *sql.Rows) (domain.CompletedTransaction, error) {
	var completed domain.CompletedTransaction
	var basket string
	var settledAt int64
	if err := rows.Scan(&completed.ID, &basket, &completed.CashBack, &completed.Method, &settledAt); err != nil {
		return completed, err
	}
	decoded, err := decodeBasket(basket)
	if err != nil {
		return completed, err
	}
	completed.Basket = decoded
	completed.SettledAt = time.UnixMilli(settledAt).UTC()
	return completed, nil
}

func encodeBasket(basket domain.Basket) (string, error) {
	payload, err := json.Marshal(basket)
	if err != nil {
		return "", fmt.Errorf("%w: %v", store.ErrSerialization, err)
	}
	return string(payload), nil
}

func decodeBasket(raw string) (domain.Basket, error) {
	var basket domain.Basket
	if err := json.Unmarshal([]byte(raw), &basket); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrSerialization, err)
	}
	return basket, nil
}
