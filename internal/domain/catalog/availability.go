package catalog

import (
	"errors"
	"time"
)

var (
	ErrVariantNotFound    = errors.New("variant not found")
	ErrProductNotFound    = errors.New("product not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrUnavailable        = errors.New("product is not available for sale")
	ErrNotReleased        = errors.New("collection is not released yet")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
)

// CanFulfill is the stock predicate behind both the checkout pre-check and
// the conditional decrement at payment confirmation. Stores implement the
// decrement as an atomic "stock_quantity >= qty" guarded update; this is
// the same rule evaluated on a snapshot.
func CanFulfill(stockQuantity, qty int) bool {
	return qty > 0 && stockQuantity >= qty
}

// CheckAvailability reports whether qty units of the variant can be sold at now.
func CheckAvailability(d VariantDetail, qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if d.ProductStatus != ProductStatusActive {
		return ErrUnavailable
	}
	for _, c := range d.Collections {
		if !Released(c.Windows, now) {
			return ErrNotReleased
		}
	}
	if !CanFulfill(d.StockQuantity, qty) {
		return ErrInsufficientStock
	}
	return nil
}

// PrimaryWindow picks the window that governs a collection: the first
// ACTIVE one, else SCHEDULED, else DRAFT, else the first listed.
func PrimaryWindow(windows []ReleaseWindow) *ReleaseWindow {
	if len(windows) == 0 {
		return nil
	}
	for _, status := range []ReleaseStatus{ReleaseStatusActive, ReleaseStatusScheduled, ReleaseStatusDraft} {
		for i := range windows {
			if windows[i].Status == status {
				return &windows[i]
			}
		}
	}
	return &windows[0]
}

// Released reports whether a collection with these windows is purchasable at now.
// A collection without windows is always released; a cancelled drop falls
// back to normal sale.
func Released(windows []ReleaseWindow, now time.Time) bool {
	w := PrimaryWindow(windows)
	if w == nil {
		return true
	}

	switch w.Status {
	case ReleaseStatusActive, ReleaseStatusScheduled:
		if now.Before(w.StartsAt) {
			return false
		}
		return w.EndsAt == nil || now.Before(*w.EndsAt)
	case ReleaseStatusCancelled:
		return true
	default:
		return false
	}
}
