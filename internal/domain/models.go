package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

const (
	MethodCash   = "cash"
	MethodCredit = "credit"
)

// MaxQuantity caps a single basket line.
const MaxQuantity int64 = 1_000_000

var ErrDiscountOutOfRange = errors.New("discount must be between 0 and 100")

type Item struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	GTIN  *int64 `json:"gtin"`
	Price int64  `json:"price"`
}

type Account struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Credit    int64  `json:"credit"`
	Overdraft bool   `json:"overdraft"`
	Discount  int64  `json:"discount"`
	Bunk      int64  `json:"bunk"`
}

func (a Account) Validate() error {
	if a.Discount < 0 || a.Discount > 100 {
		return fmt.Errorf("account %d: %w (got %d)", a.ID, ErrDiscountOutOfRange, a.Discount)
	}
	return nil
}

type BasketEntry struct {
	ID       int64 `json:"id" validate:"gte=0"`
	Quantity int64 `json:"quantity" validate:"gte=1,lte=1000000"`
}

// Basket maps item id to quantity. Its JSON form is an array of
// {id, quantity} objects ordered by id.
type Basket map[int64]int64

// NewBasket folds line entries into a basket, summing repeated ids.
func NewBasket(entries []BasketEntry) Basket {
	basket := make(Basket, len(entries))
	for _, entry := range entries {
		basket[entry.ID] += entry.Quantity
	}
	return basket
}

func (b Basket) ItemIDs() []int64 {
	ids := make([]int64, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (b Basket) Entries() []BasketEntry {
	entries := make([]BasketEntry, 0, len(b))
	for _, id := range b.ItemIDs() {
		entries = append(entries, BasketEntry{ID: id, Quantity: b[id]})
	}
	return entries
}

func (b Basket) Clone() Basket {
	cloned := make(Basket, len(b))
	for id, qty := range b {
		cloned[id] = qty
	}
	return cloned
}

func (b Basket) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Entries())
}

func (b *Basket) UnmarshalJSON(data []byte) error {
	var entries []BasketEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("basket: %w", err)
	}
	*b = NewBasket(entries)
	return nil
}

type PartialTransaction struct {
	ID        string `json:"id"`
	Basket    Basket `json:"items"`
	Remaining int64  `json:"remaining"`
}

type CompletedTransaction struct {
	ID        string    `json:"id"`
	Basket    Basket    `json:"items"`
	CashBack  int64     `json:"cash_back"`
	Method    string    `json:"method"`
	SettledAt time.Time `json:"settled_at"`
}
