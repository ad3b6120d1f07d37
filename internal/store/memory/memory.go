package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/macharian8/stocksnap/internal/domain"
	"github.com/macharian8/stocksnap/internal/store"
)

// Store is an in-memory catalog + ledger used in dev mode and unit tests.
type Store struct {
	mu           sync.RWMutex
	itemsByID    map[string]domain.Item
	transactions []domain.Transaction
}

func New() *Store {
	return &Store{
		itemsByID:    make(map[string]domain.Item),
		transactions: make([]domain.Transaction, 0, 128),
	}
}

func NewSeeded(scope string) *Store {
	if scope == "" {
		scope = "main-shop"
	}
	ceiling := func(v int64) *int64 { return &v }
	now := time.Now().UTC()

	items := []domain.Item{
		{Name: "Milk 500ml", Code: "SS-2601-MLK-00001", SellPrice: 6500, PriceFloor: 6000, PriceCeiling: ceiling(7500), QuantityInStock: 48, ReorderPoint: 12},
		{Name: "Bread 400g", Code: "SS-2601-BRD-00002", SellPrice: 6000, PriceFloor: 5500, QuantityInStock: 30, ReorderPoint: 10},
		{Name: "Sugar 1kg", Code: "SS-2601-SGR-00003", LegacyCode: "SGR1KG", SellPrice: 17000, PriceFloor: 16000, PriceCeiling: ceiling(18500), QuantityInStock: 25, ReorderPoint: 8},
		{Name: "Cooking Oil 1L", Code: "SS-2601-OIL-00004", LegacyCode: "OIL1L", SellPrice: 32000, PriceFloor: 30000, QuantityInStock: 18, ReorderPoint: 6},
		{Name: "Maize Flour 2kg", Code: "SS-2601-MZF-00005", SellPrice: 19500, PriceFloor: 18000, PriceCeiling: ceiling(21000), QuantityInStock: 40, ReorderPoint: 15},
		{Name: "Tea Leaves 250g", Code: "SS-2601-TEA-00006", SellPrice: 12000, PriceFloor: 11000, QuantityInStock: 22, ReorderPoint: 6},
		{Name: "Bar Soap", Code: "SS-2601-SOP-00007", LegacyCode: "SOAP01", SellPrice: 9000, PriceFloor: 8000, QuantityInStock: 35, ReorderPoint: 10},
		{Name: "Matchbox", Code: "SS-2601-MTC-00008", SellPrice: 1000, PriceFloor: 800, QuantityInStock: 60, ReorderPoint: 20},
	}

	s := New()
	for _, item := range items {
		item.ID = uuid.NewString()
		item.Scope = scope
		item.Active = true
		item.CreatedAt = now
		item.UpdatedAt = now
		s.itemsByID[item.ID] = item
	}
	return s
}

func (s *Store) FindActiveItemByCode(_ context.Context, scope string, code string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.itemsByID {
		if item.Scope != scope || !item.Active {
			continue
		}
		// Match either code column: pre-migration items may carry the
		// scanned value in either field.
		if item.Code == code || (item.LegacyCode != "" && item.LegacyCode == code) {
			found := item
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) GetItemByID(_ context.Context, scope string, id string) (*domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.itemsByID[id]
	if !exists || item.Scope != scope || !item.Active {
		return nil, store.ErrNotFound
	}
	found := item
	return &found, nil
}

func (s *Store) ListItems(_ context.Context, scope string) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.Item, 0, len(s.itemsByID))
	for _, item := range s.itemsByID {
		if item.Scope != scope {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
	return items, nil
}

func (s *Store) CreateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.itemsByID[item.ID]; exists {
		return nil, store.ErrInvalidItem
	}
	for _, existing := range s.itemsByID {
		if existing.Scope == item.Scope && existing.Code == item.Code {
			return nil, store.ErrInvalidItem
		}
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.itemsByID[item.ID] = item
	created := item
	return &created, nil
}

func (s *Store) UpdateItem(_ context.Context, item domain.Item) (*domain.Item, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.itemsByID[item.ID]
	if !exists || existing.Scope != item.Scope {
		return nil, store.ErrNotFound
	}
	// Canonical code is immutable once assigned.
	if existing.Code != item.Code {
		return nil, store.ErrInvalidItem
	}

	item.CreatedAt = existing.CreatedAt
	item.UpdatedAt = time.Now().UTC()
	s.itemsByID[item.ID] = item
	updated := item
	return &updated, nil
}

func (s *Store) DecrementStock(_ context.Context, scope string, itemID string, qty int) (int, error) {
	if qty < 1 {
		return 0, store.ErrInvalidItem
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, exists := s.itemsByID[itemID]
	if !exists || item.Scope != scope {
		return 0, store.ErrNotFound
	}

	item.QuantityInStock -= qty
	if item.QuantityInStock < 0 {
		item.QuantityInStock = 0
	}
	item.QuantitySold += qty
	item.UpdatedAt = time.Now().UTC()
	s.itemsByID[itemID] = item

	return item.QuantityInStock, nil
}

func (s *Store) InsertSaleTransaction(_ context.Context, tx domain.Transaction) (string, error) {
	if tx.Scope == "" || tx.ItemID == "" || tx.Quantity < 1 || tx.UnitPrice < 0 {
		return "", store.ErrInvalidItem
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = append(s.transactions, tx)
	return tx.ID, nil
}

func (s *Store) ListTransactionsByDay(_ context.Context, scope string, day time.Time, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 100
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, limit)
	for i := len(s.transactions) - 1; i >= 0 && len(result) < limit; i-- {
		tx := s.transactions[i]
		if tx.Scope != scope {
			continue
		}
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		result = append(result, tx)
	}
	return result, nil
}

func validateItem(item domain.Item) error {
	if item.ID == "" || item.Scope == "" || item.Name == "" || item.Code == "" {
		return store.ErrInvalidItem
	}
	if item.SellPrice < 1 || item.PriceFloor < 0 || item.QuantityInStock < 0 || item.ReorderPoint < 0 {
		return store.ErrInvalidItem
	}
	if item.PriceFloor > item.SellPrice {
		return store.ErrInvalidItem
	}
	if item.PriceCeiling != nil && *item.PriceCeiling < item.SellPrice {
		return store.ErrInvalidItem
	}
	return nil
}
