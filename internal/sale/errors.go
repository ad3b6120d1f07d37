package sale

import (
	"errors"
	"fmt"
)

// The engine's error taxonomy is a closed enumeration; callers branch on
// these types with errors.Is/errors.As, never on message substrings.
var (
	ErrItemNotFound   = errors.New("item not found")
	ErrSaleInProgress = errors.New("a sale is already in progress")
	ErrNoDraft        = errors.New("no sale draft is active")
	ErrInvalidState   = errors.New("operation not allowed in current state")
)

type PriceReason string

const (
	BelowFloor   PriceReason = "below_floor"
	AboveCeiling PriceReason = "above_ceiling"
)

// PriceError reports a proposed price outside the item's bounds. Bound is
// the violated limit so the UI can show it next to the field.
type PriceError struct {
	Reason PriceReason
	Bound  int64
}

func (e *PriceError) Error() string {
	switch e.Reason {
	case BelowFloor:
		return fmt.Sprintf("price is below the floor of %d", e.Bound)
	case AboveCeiling:
		return fmt.Sprintf("price is above the ceiling of %d", e.Bound)
	default:
		return "price outside allowed bounds"
	}
}

type FieldReason string

const (
	InvalidPhone    FieldReason = "invalid_phone"
	InvalidCode     FieldReason = "invalid_code"
	InvalidQuantity FieldReason = "invalid_quantity"
)

// FieldError is a recoverable, field-level validation failure.
type FieldError struct {
	Field  string
	Reason FieldReason
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PersistError wraps a failed ledger insert. The draft is preserved so the
// user can retry without re-entering anything.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to record sale: %v", e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// StockAdjustError is post-hoc and non-fatal: the transaction is already
// durable when it occurs, so it is surfaced as a warning, never a failure.
type StockAdjustError struct {
	Err error
}

func (e *StockAdjustError) Error() string {
	return fmt.Sprintf("sale recorded, stock update failed: %v", e.Err)
}

func (e *StockAdjustError) Unwrap() error { return e.Err }
