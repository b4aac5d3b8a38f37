// Package ledger holds the stock-level mutation rules. Both repository
// implementations apply every stock change through these functions inside
// their own serialization scope (row lock or store mutex), so the
// read-check-write of each primitive is never interleaved per key.
package ledger

import (
	"fmt"
	"time"

	"lumapos/backend/internal/domain"
	"lumapos/backend/internal/store"
)

// Reserve moves qty from available to reserved.
func Reserve(level domain.StockLevel, qty int, now time.Time) (domain.StockLevel, error) {
	if qty < 1 {
		return level, fmt.Errorf("%w: reserve qty must be positive", store.ErrValidation)
	}
	if level.Available < qty {
		return level, fmt.Errorf("%w: variant %s at store %s has %d available, requested %d",
			store.ErrInsufficientStock, level.VariantID, level.StoreID, level.Available, qty)
	}
	level.Available -= qty
	level.Reserved += qty
	level.OnHand = level.Available + level.Reserved
	level.UpdatedAt = now
	return level, nil
}

// Release moves qty from reserved back to available.
func Release(level domain.StockLevel, qty int, now time.Time) (domain.StockLevel, error) {
	if qty < 1 {
		return level, fmt.Errorf("%w: release qty must be positive", store.ErrValidation)
	}
	if level.Reserved < qty {
		return level, fmt.Errorf("%w: variant %s at store %s has %d reserved, requested %d",
			store.ErrInsufficientReservation, level.VariantID, level.StoreID, level.Reserved, qty)
	}
	level.Reserved -= qty
	level.Available += qty
	level.OnHand = level.Available + level.Reserved
	level.UpdatedAt = now
	return level, nil
}

// ConsumeReserved removes qty from reserved and on-hand: the stock left the
// building with a completed sale.
func ConsumeReserved(level domain.StockLevel, qty int, now time.Time) (domain.StockLevel, error) {
	if qty < 1 {
		return level, fmt.Errorf("%w: consume qty must be positive", store.ErrValidation)
	}
	if level.Reserved < qty {
		return level, fmt.Errorf("%w: variant %s at store %s has %d reserved, requested %d",
			store.ErrInsufficientReservation, level.VariantID, level.StoreID, level.Reserved, qty)
	}
	level.Reserved -= qty
	level.OnHand = level.Available + level.Reserved
	level.UpdatedAt = now
	return level, nil
}

// Adjust applies a signed delta to available stock.
func Adjust(level domain.StockLevel, delta int, now time.Time) (domain.StockLevel, error) {
	if delta == 0 {
		return level, fmt.Errorf("%w: adjust delta must be non-zero", store.ErrValidation)
	}
	if level.Available+delta < 0 {
		return level, fmt.Errorf("%w: variant %s at store %s has %d available, adjustment %d",
			store.ErrInsufficientStock, level.VariantID, level.StoreID, level.Available, delta)
	}
	level.Available += delta
	level.OnHand = level.Available + level.Reserved
	level.UpdatedAt = now
	return level, nil
}

// SetCounted pins the level to a physical count. Reserved stock is left
// untouched, so available may become negative when reservations exceed the
// count; callers must surface that, not clamp it.
func SetCounted(level domain.StockLevel, countedQty int, now time.Time) (domain.StockLevel, error) {
	if countedQty < 0 {
		return level, fmt.Errorf("%w: counted qty must not be negative", store.ErrValidation)
	}
	level.Available = countedQty - level.Reserved
	level.OnHand = countedQty
	level.UpdatedAt = now
	return level, nil
}

// Consistent reports whether the on-hand identity holds.
func Consistent(level domain.StockLevel) bool {
	return level.OnHand == level.Available+level.Reserved
}
