package cart

import (
	"context"
	"errors"
)

// ErrCartNotFound is returned by Store.FindCart when no cart exists for a key
var ErrCartNotFound = errors.New("cart not found")

// Store is the Cart Store. Every line write is a single-row upsert keyed by
// (cart, variant); no operation rewrites a whole cart.
type Store interface {
	// FindCart loads a cart with its lines ordered by creation.
	FindCart(ctx context.Context, key Key) (*Cart, error)
	// CreateCart creates an empty cart, or returns the existing one when a
	// concurrent request created it first.
	CreateCart(ctx context.Context, key Key) (*Cart, error)
	SetLineQuantity(ctx context.Context, cartID, variantID uint, quantity int) error
	// AddLineQuantity adds delta to a line and returns the resulting quantity.
	// A result <= 0 removes the line.
	AddLineQuantity(ctx context.Context, cartID, variantID uint, delta int) (int, error)
	DeleteLine(ctx context.Context, cartID, variantID uint) error
	ClearLines(ctx context.Context, cartID uint) error
	// MergeCarts folds every line of from into into, summing quantities per
	// variant, and deletes from, all in one transaction.
	MergeCarts(ctx context.Context, fromCartID, intoCartID uint) error
	DeleteCart(ctx context.Context, cartID uint) error
}
