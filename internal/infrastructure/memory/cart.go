package memory

import (
	"context"
	"sort"
	"time"

	"github.com/yametee/storefront-api/internal/domain/cart"
)

// CartStore is the cart.Store view of the memory store
type CartStore struct{ *Store }

// Carts returns the cart.Store view
func (s *Store) Carts() *CartStore { return &CartStore{s} }

var _ cart.Store = (*CartStore)(nil)

func (st *state) findCart(key cart.Key) (cart.Cart, bool) {
	for _, c := range st.carts {
		if key.IsCustomer() {
			if c.CustomerID != nil && *c.CustomerID == key.CustomerID {
				return c, true
			}
			continue
		}
		if c.SessionKey != nil && *c.SessionKey == key.SessionKey {
			return c, true
		}
	}
	return cart.Cart{}, false
}

func (st *state) linesOf(cartID uint) []cart.Line {
	var lines []cart.Line
	for _, l := range st.cartLines {
		if l.CartID == cartID {
			lines = append(lines, l)
		}
	}
	sort.Slice(lines, func(i, j int) bool {
		if !lines[i].CreatedAt.Equal(lines[j].CreatedAt) {
			return lines[i].CreatedAt.Before(lines[j].CreatedAt)
		}
		return lines[i].ID < lines[j].ID
	})
	return lines
}

func (st *state) findLine(cartID, variantID uint) (cart.Line, bool) {
	for _, l := range st.cartLines {
		if l.CartID == cartID && l.VariantID == variantID {
			return l, true
		}
	}
	return cart.Line{}, false
}

// FindCart loads a cart with its lines
func (s *CartStore) FindCart(ctx context.Context, key cart.Key) (*cart.Cart, error) {
	var (
		c  cart.Cart
		ok bool
	)
	s.read(func(st *state) {
		if c, ok = st.findCart(key); ok {
			c.Lines = st.linesOf(c.ID)
		}
	})
	if !ok {
		return nil, cart.ErrCartNotFound
	}
	return &c, nil
}

// CreateCart creates an empty cart or returns the existing one for key
func (s *CartStore) CreateCart(ctx context.Context, key cart.Key) (*cart.Cart, error) {
	var c cart.Cart
	err := s.write(func(st *state) error {
		if existing, ok := st.findCart(key); ok {
			c = existing
			c.Lines = st.linesOf(c.ID)
			return nil
		}
		now := s.now()
		c = cart.Cart{ID: st.nextID(), CreatedAt: now, UpdatedAt: now}
		if key.IsCustomer() {
			id := key.CustomerID
			c.CustomerID = &id
		} else {
			sk := key.SessionKey
			c.SessionKey = &sk
		}
		st.carts[c.ID] = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (st *state) setLine(cartID, variantID uint, quantity int, s *Store) {
	now := s.now()
	l, ok := st.findLine(cartID, variantID)
	if quantity <= 0 {
		if ok {
			delete(st.cartLines, l.ID)
		}
		return
	}
	if !ok {
		l = cart.Line{ID: st.nextID(), CartID: cartID, VariantID: variantID, CreatedAt: now}
	}
	l.Quantity = quantity
	l.UpdatedAt = now
	st.cartLines[l.ID] = l
	st.touchCart(cartID, now)
}

// SetLineQuantity upserts a line with an absolute quantity
func (s *CartStore) SetLineQuantity(ctx context.Context, cartID, variantID uint, quantity int) error {
	return s.write(func(st *state) error {
		if _, ok := st.carts[cartID]; !ok {
			return cart.ErrCartNotFound
		}
		st.setLine(cartID, variantID, quantity, s.Store)
		return nil
	})
}

// AddLineQuantity adds delta to a line; a result <= 0 removes the line
func (s *CartStore) AddLineQuantity(ctx context.Context, cartID, variantID uint, delta int) (int, error) {
	result := 0
	err := s.write(func(st *state) error {
		if _, ok := st.carts[cartID]; !ok {
			return cart.ErrCartNotFound
		}
		current := 0
		if l, ok := st.findLine(cartID, variantID); ok {
			current = l.Quantity
		}
		result = current + delta
		st.setLine(cartID, variantID, result, s.Store)
		return nil
	})
	if result < 0 {
		result = 0
	}
	return result, err
}

// DeleteLine removes one line
func (s *CartStore) DeleteLine(ctx context.Context, cartID, variantID uint) error {
	return s.write(func(st *state) error {
		if l, ok := st.findLine(cartID, variantID); ok {
			delete(st.cartLines, l.ID)
		}
		return nil
	})
}

// ClearLines removes every line of a cart
func (s *CartStore) ClearLines(ctx context.Context, cartID uint) error {
	return s.write(func(st *state) error {
		for id, l := range st.cartLines {
			if l.CartID == cartID {
				delete(st.cartLines, id)
			}
		}
		return nil
	})
}

// MergeCarts folds from into into, summing quantities up to
// cart.MaxLineQuantity, and deletes from
func (s *CartStore) MergeCarts(ctx context.Context, fromCartID, intoCartID uint) error {
	return s.write(func(st *state) error {
		if _, ok := st.carts[fromCartID]; !ok {
			return cart.ErrCartNotFound
		}
		if _, ok := st.carts[intoCartID]; !ok {
			return cart.ErrCartNotFound
		}
		for _, l := range st.linesOf(fromCartID) {
			current := 0
			if existing, ok := st.findLine(intoCartID, l.VariantID); ok {
				current = existing.Quantity
			}
			st.setLine(intoCartID, l.VariantID, min(current+l.Quantity, cart.MaxLineQuantity), s.Store)
			delete(st.cartLines, l.ID)
		}
		delete(st.carts, fromCartID)
		return nil
	})
}

// DeleteCart removes a cart and its lines
func (s *CartStore) DeleteCart(ctx context.Context, cartID uint) error {
	return s.write(func(st *state) error {
		for id, l := range st.cartLines {
			if l.CartID == cartID {
				delete(st.cartLines, id)
			}
		}
		delete(st.carts, cartID)
		return nil
	})
}

func (st *state) touchCart(cartID uint, now time.Time) {
	if c, ok := st.carts[cartID]; ok {
		c.UpdatedAt = now
		st.carts[cartID] = c
	}
}
