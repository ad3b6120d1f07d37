package store

import (
	"context"
	"errors"
	"time"

	"github.com/macharian8/stocksnap/internal/domain"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidItem = errors.New("invalid item")
)

// CatalogStore is the item catalog consumed by the sale engine and the
// catalog management surface. Lookup matches both the canonical and the
// legacy code column because items created before the code-format
// migration may carry mismatched values between the two.
type CatalogStore interface {
	FindActiveItemByCode(ctx context.Context, scope string, code string) (*domain.Item, error)
	GetItemByID(ctx context.Context, scope string, id string) (*domain.Item, error)
	ListItems(ctx context.Context, scope string) ([]domain.Item, error)
	CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error)
	UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error)

	// DecrementStock atomically lowers quantity_in_stock by qty (floored at
	// zero) and raises quantity_sold by the same amount, returning the
	// remaining stock. The single atomic update is what prevents two
	// concurrent sales from corrupting the count via read-modify-write.
	DecrementStock(ctx context.Context, scope string, itemID string, qty int) (int, error)
}

// LedgerStore is append-only: there are deliberately no update or delete
// entry points for transactions.
type LedgerStore interface {
	InsertSaleTransaction(ctx context.Context, tx domain.Transaction) (string, error)
	ListTransactionsByDay(ctx context.Context, scope string, day time.Time, limit int) ([]domain.Transaction, error)
}
