// Package memory is an in-process implementation of every store interface.
// It backs STORAGE_DRIVER=memory and the service tests. Transactions run
// against a copy of the state and replace it on commit, so a failing
// transaction leaves nothing behind.
package memory

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/yametee/storefront-api/internal/domain/cart"
	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/domain/order"
	"github.com/yametee/storefront-api/internal/domain/promotion"
)

type state struct {
	seq uint

	products           map[uint]catalog.Product
	variants           map[uint]catalog.Variant
	collections        map[uint]catalog.Collection
	windows            map[uint]catalog.ReleaseWindow
	collectionProducts map[uint][]uint
	movements          []catalog.StockMovement

	carts     map[uint]cart.Cart
	cartLines map[uint]cart.Line

	promotions map[uint]promotion.Promotion
	rules      map[uint]promotion.PromotionRule

	customers       map[uint]order.Customer
	addresses       map[uint]order.Address
	orders          map[uint]order.Order
	orderItems      map[uint]order.OrderItem
	orderPromotions map[uint]order.OrderPromotion
	payments        map[uint]order.Payment
	history         map[uint]order.StatusHistory
	reconciliations map[uint]order.Reconciliation
}

func newState() *state {
	return &state{
		products:           map[uint]catalog.Product{},
		variants:           map[uint]catalog.Variant{},
		collections:        map[uint]catalog.Collection{},
		windows:            map[uint]catalog.ReleaseWindow{},
		collectionProducts: map[uint][]uint{},
		carts:              map[uint]cart.Cart{},
		cartLines:          map[uint]cart.Line{},
		promotions:         map[uint]promotion.Promotion{},
		rules:              map[uint]promotion.PromotionRule{},
		customers:          map[uint]order.Customer{},
		addresses:          map[uint]order.Address{},
		orders:             map[uint]order.Order{},
		orderItems:         map[uint]order.OrderItem{},
		orderPromotions:    map[uint]order.OrderPromotion{},
		payments:           map[uint]order.Payment{},
		history:            map[uint]order.StatusHistory{},
		reconciliations:    map[uint]order.Reconciliation{},
	}
}

// clone copies every table. Rows are stored without relationships, so a
// shallow copy of each map is enough.
func (s *state) clone() *state {
	c := &state{
		seq:             s.seq,
		products:        maps.Clone(s.products),
		variants:        maps.Clone(s.variants),
		collections:     maps.Clone(s.collections),
		windows:         maps.Clone(s.windows),
		movements:       slices.Clone(s.movements),
		carts:           maps.Clone(s.carts),
		cartLines:       maps.Clone(s.cartLines),
		promotions:      maps.Clone(s.promotions),
		rules:           maps.Clone(s.rules),
		customers:       maps.Clone(s.customers),
		addresses:       maps.Clone(s.addresses),
		orders:          maps.Clone(s.orders),
		orderItems:      maps.Clone(s.orderItems),
		orderPromotions: maps.Clone(s.orderPromotions),
		payments:        maps.Clone(s.payments),
		history:         maps.Clone(s.history),
		reconciliations: maps.Clone(s.reconciliations),
	}
	c.collectionProducts = make(map[uint][]uint, len(s.collectionProducts))
	for k, v := range s.collectionProducts {
		c.collectionProducts[k] = slices.Clone(v)
	}
	return c
}

func (s *state) nextID() uint {
	s.seq++
	return s.seq
}

// Store holds all tables behind one lock. Every operation, including a
// whole transaction, runs with the lock held, which makes transactions
// serializable.
type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{state: newState(), now: time.Now}
}

// SetClock replaces the clock used for timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// read runs fn against the committed state
func (s *Store) read(fn func(st *state)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.state)
}

// write runs fn against a copy of the state and commits it when fn succeeds
func (s *Store) write(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(work); err != nil {
		return err
	}
	s.state = work
	return nil
}

// Ping reports the store as healthy
func (s *Store) Ping() error { return nil }

func sortedKeys[V any](m map[uint]V) []uint {
	keys := slices.Collect(maps.Keys(m))
	slices.Sort(keys)
	return keys
}

func page[T any](rows []T, offset, limit int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	end := len(rows)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return rows[offset:end]
}
