package sale

import "github.com/macharian8/stocksnap/internal/domain"

// ValidatePrice checks a proposed unit price against the item's bounds.
// The floor is a hard block with no override, and the ceiling is enforced
// the same way. This runs again at confirm time even when the entry form
// already blocked the value: price and item state can change in between.
func ValidatePrice(item domain.Item, price int64) error {
	if price < item.PriceFloor {
		return &PriceError{Reason: BelowFloor, Bound: item.PriceFloor}
	}
	if item.PriceCeiling != nil && price > *item.PriceCeiling {
		return &PriceError{Reason: AboveCeiling, Bound: *item.PriceCeiling}
	}
	return nil
}
