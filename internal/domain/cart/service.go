// internal/domain/cart/service.go
package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
	"github.com/yametee/storefront-api/internal/pkg/auth"
)

// MaxLineQuantity caps a single line so a typo cannot produce absurd carts
const MaxLineQuantity = 99

// Service handles cart business logic
type Service struct {
	store   Store
	catalog catalog.Store
	hasher  *auth.CartTokenHasher
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewService creates a new cart service
func NewService(store Store, catalogStore catalog.Store, hasher *auth.CartTokenHasher, logger logrus.FieldLogger) *Service {
	return &Service{
		store:   store,
		catalog: catalogStore,
		hasher:  hasher,
		logger:  logger.WithField("component", "cart"),
		now:     time.Now,
	}
}

// AddLineRequest represents an add-to-cart request
type AddLineRequest struct {
	VariantID uint `json:"variant_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required"`
}

// UpdateLineRequest represents a set-quantity request; 0 removes the line
type UpdateLineRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// GetCart returns the owner's cart, creating it on first access
func (s *Service) GetCart(ctx context.Context, owner Owner) (*View, error) {
	c, err := s.findOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, c)
}

// Snapshot returns the owner's cart lines without creating a cart.
// A missing cart is returned as an empty cart.
func (s *Service) Snapshot(ctx context.Context, owner Owner) (*Cart, error) {
	key, err := s.keyFor(owner)
	if err != nil {
		return nil, err
	}

	c, err := s.store.FindCart(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return &Cart{}, nil
		}
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return c, nil
}

// AddOrUpdateLine sets (ModeAbsolute) or adjusts (ModeDelta) the quantity of
// a variant in the cart. Quantities are clamped at zero and a zero quantity
// removes the line. Stock is not checked here; checkout does that.
func (s *Service) AddOrUpdateLine(ctx context.Context, owner Owner, variantID uint, quantity int, mode Mode) (*View, error) {
	if variantID == 0 {
		return nil, apperrors.Validation("variant_id", "Variant is required")
	}

	c, err := s.findOrCreate(ctx, owner)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeAbsolute:
		if quantity < 0 {
			quantity = 0
		}
		if quantity > MaxLineQuantity {
			return nil, apperrors.Validation("quantity", "Quantity cannot exceed %d", MaxLineQuantity)
		}
		if quantity == 0 {
			if err := s.store.DeleteLine(ctx, c.ID, variantID); err != nil {
				return nil, fmt.Errorf("failed to remove cart line: %w", err)
			}
			break
		}
		if err := s.ensureVariant(ctx, variantID); err != nil {
			return nil, err
		}
		if err := s.store.SetLineQuantity(ctx, c.ID, variantID, quantity); err != nil {
			return nil, fmt.Errorf("failed to update cart line: %w", err)
		}

	case ModeDelta:
		if quantity == 0 {
			break
		}
		if quantity > 0 {
			if err := s.ensureVariant(ctx, variantID); err != nil {
				return nil, err
			}
		}
		newQty, err := s.store.AddLineQuantity(ctx, c.ID, variantID, quantity)
		if err != nil {
			return nil, fmt.Errorf("failed to update cart line: %w", err)
		}
		if newQty > MaxLineQuantity {
			if err := s.store.SetLineQuantity(ctx, c.ID, variantID, MaxLineQuantity); err != nil {
				return nil, fmt.Errorf("failed to cap cart line: %w", err)
			}
		}

	default:
		return nil, apperrors.Validation("mode", "Unknown quantity mode %q", mode)
	}

	return s.reload(ctx, c.ID, owner)
}

// RemoveLine deletes a variant from the cart
func (s *Service) RemoveLine(ctx context.Context, owner Owner, variantID uint) (*View, error) {
	return s.AddOrUpdateLine(ctx, owner, variantID, 0, ModeAbsolute)
}

// Clear deletes every line of the owner's cart
func (s *Service) Clear(ctx context.Context, owner Owner) error {
	key, err := s.keyFor(owner)
	if err != nil {
		return err
	}

	c, err := s.store.FindCart(ctx, key)
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load cart: %w", err)
	}

	if err := s.store.ClearLines(ctx, c.ID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

// MergeGuestIntoCustomer folds the guest cart addressed by sessionToken into
// the customer's cart at login. Retrying after success is a no-op because the
// guest cart no longer exists.
func (s *Service) MergeGuestIntoCustomer(ctx context.Context, sessionToken string, customerID uint) (*View, error) {
	if customerID == 0 {
		return nil, apperrors.Validation("customer_id", "Customer is required")
	}

	customerOwner := Owner{CustomerID: &customerID}
	if !auth.ValidCartToken(sessionToken) {
		return s.GetCart(ctx, customerOwner)
	}

	guest, err := s.store.FindCart(ctx, Key{SessionKey: s.hasher.Hash(sessionToken)})
	if err != nil {
		if errors.Is(err, ErrCartNotFound) {
			return s.GetCart(ctx, customerOwner)
		}
		return nil, fmt.Errorf("failed to load guest cart: %w", err)
	}

	if len(guest.Lines) == 0 {
		if err := s.store.DeleteCart(ctx, guest.ID); err != nil {
			s.logger.WithError(err).WithField("cart_id", guest.ID).Warn("Failed to delete empty guest cart")
		}
		return s.GetCart(ctx, customerOwner)
	}

	customerCart, err := s.findOrCreate(ctx, customerOwner)
	if err != nil {
		return nil, err
	}

	if err := s.store.MergeCarts(ctx, guest.ID, customerCart.ID); err != nil {
		if errors.Is(err, ErrCartNotFound) {
			// a concurrent login already merged it
			return s.GetCart(ctx, customerOwner)
		}
		return nil, fmt.Errorf("failed to merge guest cart: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"guest_cart_id":    guest.ID,
		"customer_cart_id": customerCart.ID,
		"customer_id":      customerID,
		"lines":            len(guest.Lines),
	}).Info("Guest cart merged into customer cart")

	return s.reload(ctx, customerCart.ID, customerOwner)
}

func (s *Service) keyFor(owner Owner) (Key, error) {
	if owner.CustomerID != nil && *owner.CustomerID != 0 {
		return Key{CustomerID: *owner.CustomerID}, nil
	}
	if !auth.ValidCartToken(owner.SessionToken) {
		return Key{}, apperrors.Validation("cart_session", "Cart session is missing or malformed")
	}
	return Key{SessionKey: s.hasher.Hash(owner.SessionToken)}, nil
}

func (s *Service) findOrCreate(ctx context.Context, owner Owner) (*Cart, error) {
	key, err := s.keyFor(owner)
	if err != nil {
		return nil, err
	}

	c, err := s.store.FindCart(ctx, key)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrCartNotFound) {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}

	c, err = s.store.CreateCart(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}
	return c, nil
}

func (s *Service) reload(ctx context.Context, cartID uint, owner Owner) (*View, error) {
	key, err := s.keyFor(owner)
	if err != nil {
		return nil, err
	}
	c, err := s.store.FindCart(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to reload cart %d: %w", cartID, err)
	}
	return s.view(ctx, c)
}

func (s *Service) ensureVariant(ctx context.Context, variantID uint) error {
	if _, err := s.catalog.GetVariant(ctx, variantID); err != nil {
		if errors.Is(err, catalog.ErrVariantNotFound) {
			return apperrors.Validation("variant_id", "Variant not found: %d", variantID)
		}
		return fmt.Errorf("failed to get variant: %w", err)
	}
	return nil
}

func (s *Service) view(ctx context.Context, c *Cart) (*View, error) {
	v := &View{
		ID:        c.ID,
		Lines:     make([]LineView, 0, len(c.Lines)),
		Subtotal:  decimal.Zero,
		UpdatedAt: c.UpdatedAt,
	}
	if len(c.Lines) == 0 {
		return v, nil
	}

	ids := make([]uint, 0, len(c.Lines))
	for _, l := range c.Lines {
		ids = append(ids, l.VariantID)
	}
	details, err := s.catalog.GetVariants(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart variants: %w", err)
	}

	now := s.now()
	for _, l := range c.Lines {
		d, ok := details[l.VariantID]
		if !ok {
			// variant removed from the catalog after it was carted
			continue
		}
		lineTotal := d.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		availability := catalog.CheckAvailability(d, l.Quantity, now)
		v.Lines = append(v.Lines, LineView{
			VariantID:   l.VariantID,
			ProductID:   d.ProductID,
			ProductName: d.ProductName,
			SKU:         d.SKU,
			Size:        d.Size,
			Color:       d.Color,
			UnitPrice:   d.Price,
			Quantity:    l.Quantity,
			LineTotal:   lineTotal,
			InStock:     catalog.CanFulfill(d.StockQuantity, l.Quantity),
			Available:   availability == nil,
		})
		v.ItemCount += l.Quantity
		v.Subtotal = v.Subtotal.Add(lineTotal)
	}

	return v, nil
}
