package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/macharian8/stocksnap/internal/domain"
	"github.com/macharian8/stocksnap/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const itemColumns = `
	id, scope, name, code, legacy_code, sell_price, price_floor, price_ceiling,
	quantity_in_stock, quantity_sold, reorder_point, active, created_at, updated_at
`

func (s *Store) FindActiveItemByCode(ctx context.Context, scope string, code string) (*domain.Item, error) {
	// Match canonical OR legacy code: items created before the code-format
	// migration may carry the scanned value in either column.
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE scope = $1 AND active = true AND (code = $2 OR legacy_code = $2)
		LIMIT 1
	`, scope, code)
	return scanItem(row)
}

func (s *Store) GetItemByID(ctx context.Context, scope string, id string) (*domain.Item, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE scope = $1 AND active = true AND id = $2
	`, scope, id)
	return scanItem(row)
}

func (s *Store) ListItems(ctx context.Context, scope string) ([]domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+`
		FROM items
		WHERE scope = $1
		ORDER BY lower(name)
	`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Item, 0, 128)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (
			id, scope, name, code, legacy_code, sell_price, price_floor, price_ceiling,
			quantity_in_stock, quantity_sold, reorder_point, active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,NULLIF($5,''),$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, item.ID, item.Scope, item.Name, item.Code, item.LegacyCode, item.SellPrice,
		item.PriceFloor, item.PriceCeiling, item.QuantityInStock, item.QuantitySold,
		item.ReorderPoint, item.Active, item.CreatedAt, item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidItem
		}
		return nil, err
	}

	created := item
	return &created, nil
}

func (s *Store) UpdateItem(ctx context.Context, item domain.Item) (*domain.Item, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}

	// code is deliberately absent from SET: canonical codes are immutable.
	res, err := s.db.ExecContext(ctx, `
		UPDATE items
		SET name = $3, sell_price = $4, price_floor = $5, price_ceiling = $6,
			quantity_in_stock = $7, reorder_point = $8, active = $9, updated_at = now()
		WHERE id = $1 AND scope = $2 AND code = $10
	`, item.ID, item.Scope, item.Name, item.SellPrice, item.PriceFloor, item.PriceCeiling,
		item.QuantityInStock, item.ReorderPoint, item.Active, item.Code)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	item.UpdatedAt = time.Now().UTC()
	updated := item
	return &updated, nil
}

func (s *Store) DecrementStock(ctx context.Context, scope string, itemID string, qty int) (int, error) {
	if qty < 1 {
		return 0, store.ErrInvalidItem
	}

	// Single atomic update: floors the stock at zero and bumps the sold
	// counter in the same statement, so concurrent sales cannot race.
	var remaining int
	err := s.db.QueryRowContext(ctx, `
		UPDATE items
		SET quantity_in_stock = GREATEST(quantity_in_stock - $3, 0),
			quantity_sold = quantity_sold + $3,
			updated_at = now()
		WHERE id = $1 AND scope = $2
		RETURNING quantity_in_stock
	`, itemID, scope, qty).Scan(&remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return remaining, nil
}

func (s *Store) InsertSaleTransaction(ctx context.Context, tx domain.Transaction) (string, error) {
	if tx.Scope == "" || tx.ItemID == "" || tx.Quantity < 1 || tx.UnitPrice < 0 {
		return "", store.ErrInvalidItem
	}
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (
			id, scope, item_id, item_name, type, quantity, unit_price, total,
			payment_method, payment_status, transaction_code, phone, note, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULLIF($11,''),NULLIF($12,''),NULLIF($13,''),$14)
	`, tx.ID, tx.Scope, tx.ItemID, tx.ItemName, tx.Type, tx.Quantity, tx.UnitPrice, tx.Total,
		tx.PaymentMethod, tx.PaymentStatus, tx.TransactionCode, tx.Phone, tx.Note, tx.CreatedAt)
	if err != nil {
		return "", err
	}
	return tx.ID, nil
}

func (s *Store) ListTransactionsByDay(ctx context.Context, scope string, day time.Time, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 100
	}
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope, item_id, item_name, type, quantity, unit_price, total,
			payment_method, payment_status,
			COALESCE(transaction_code, ''), COALESCE(phone, ''), COALESCE(note, ''),
			created_at
		FROM transactions
		WHERE scope = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC
		LIMIT $4
	`, scope, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.ID, &tx.Scope, &tx.ItemID, &tx.ItemName, &tx.Type,
			&tx.Quantity, &tx.UnitPrice, &tx.Total, &tx.PaymentMethod, &tx.PaymentStatus,
			&tx.TransactionCode, &tx.Phone, &tx.Note, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		result = append(result, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	var item domain.Item
	var legacy sql.NullString
	var ceiling sql.NullInt64
	err := row.Scan(&item.ID, &item.Scope, &item.Name, &item.Code, &legacy,
		&item.SellPrice, &item.PriceFloor, &ceiling, &item.QuantityInStock,
		&item.QuantitySold, &item.ReorderPoint, &item.Active, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if legacy.Valid {
		item.LegacyCode = legacy.String
	}
	if ceiling.Valid {
		value := ceiling.Int64
		item.PriceCeiling = &value
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
