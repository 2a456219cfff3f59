package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/domain/order"
	"github.com/yametee/storefront-api/internal/domain/promotion"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
)

// OrderStore is the order.Store view of the memory store
type OrderStore struct{ *Store }

// Orders returns the order.Store view
func (s *Store) Orders() *OrderStore { return &OrderStore{s} }

var (
	_ order.Store = (*OrderStore)(nil)
	_ order.Tx    = (*orderTx)(nil)
)

// WithinTx runs fn against a private copy of the state and commits it only
// when fn returns nil
func (s *OrderStore) WithinTx(ctx context.Context, fn func(tx order.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(func(st *state) error {
		return fn(&orderTx{st: st, store: s.Store})
	})
}

func (st *state) loadOrder(id uint) order.Order {
	o := st.orders[id]
	o.Items, o.Promotions, o.Payments, o.StatusHistory = nil, nil, nil, nil
	for _, k := range sortedKeys(st.orderItems) {
		if it := st.orderItems[k]; it.OrderID == id {
			o.Items = append(o.Items, it)
		}
	}
	for _, k := range sortedKeys(st.orderPromotions) {
		if p := st.orderPromotions[k]; p.OrderID == id {
			o.Promotions = append(o.Promotions, p)
		}
	}
	for _, k := range sortedKeys(st.payments) {
		if p := st.payments[k]; p.OrderID == id {
			o.Payments = append(o.Payments, p)
		}
	}
	for _, k := range sortedKeys(st.history) {
		if h := st.history[k]; h.OrderID == id {
			o.StatusHistory = append(o.StatusHistory, h)
		}
	}
	if a, ok := st.addresses[o.AddressID]; ok {
		o.Address = &a
	}
	if o.CustomerID != nil {
		if c, ok := st.customers[*o.CustomerID]; ok {
			o.Customer = &c
		}
	}
	return o
}

func (st *state) orderIDByNumber(number string) (uint, bool) {
	for id, o := range st.orders {
		if o.OrderNumber == number {
			return id, true
		}
	}
	return 0, false
}

func storedOrder(o *order.Order) order.Order {
	row := *o
	row.Items, row.Promotions, row.Payments, row.StatusHistory = nil, nil, nil, nil
	row.Address, row.Customer = nil, nil
	return row
}

// FindByNumber loads an order with every relation
func (s *OrderStore) FindByNumber(ctx context.Context, orderNumber string) (*order.Order, error) {
	var (
		o  order.Order
		ok bool
	)
	s.read(func(st *state) {
		var id uint
		if id, ok = st.orderIDByNumber(orderNumber); ok {
			o = st.loadOrder(id)
		}
	})
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return &o, nil
}

// List returns orders matching filter, newest first
func (s *OrderStore) List(ctx context.Context, filter order.ListFilter) ([]order.Order, int64, error) {
	var all []order.Order
	s.read(func(st *state) {
		keys := sortedKeys(st.orders)
		slices.Reverse(keys)
		for _, id := range keys {
			o := st.orders[id]
			if filter.Status != "" && o.Status != filter.Status {
				continue
			}
			if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
				continue
			}
			if filter.NeedsReconciliation != nil && o.NeedsReconciliation != *filter.NeedsReconciliation {
				continue
			}
			all = append(all, st.loadOrder(id))
		}
	})
	return page(all, filter.Offset, filter.Limit), int64(len(all)), nil
}

// FindCustomerByEmail looks a customer up by email, case-insensitively
func (s *OrderStore) FindCustomerByEmail(ctx context.Context, email string) (*order.Customer, error) {
	var (
		c     order.Customer
		found bool
	)
	s.read(func(st *state) {
		for _, id := range sortedKeys(st.customers) {
			if strings.EqualFold(st.customers[id].Email, email) {
				c, found = st.customers[id], true
				return
			}
		}
	})
	if !found {
		return nil, order.ErrCustomerNotFound
	}
	return &c, nil
}

// HasCompletedOrder reports whether the customer has a COMPLETED order
func (s *OrderStore) HasCompletedOrder(ctx context.Context, customerID uint) (bool, error) {
	found := false
	s.read(func(st *state) {
		for _, o := range st.orders {
			if o.CustomerID != nil && *o.CustomerID == customerID && o.Status == order.OrderStatusCompleted {
				found = true
				return
			}
		}
	})
	return found, nil
}

// ListReconciliations returns reconciliations, newest first
func (s *OrderStore) ListReconciliations(ctx context.Context, status order.ReconciliationStatus) ([]order.Reconciliation, error) {
	var out []order.Reconciliation
	s.read(func(st *state) {
		keys := sortedKeys(st.reconciliations)
		slices.Reverse(keys)
		for _, id := range keys {
			r := st.reconciliations[id]
			if status == "" || r.Status == status {
				out = append(out, r)
			}
		}
	})
	return out, nil
}

type orderTx struct {
	st    *state
	store *Store
}

func (tx *orderTx) UpsertCustomer(c *order.Customer) error {
	now := tx.store.now()
	for id, existing := range tx.st.customers {
		if strings.EqualFold(existing.Email, c.Email) {
			existing.Name = c.Name
			existing.Phone = c.Phone
			existing.UpdatedAt = now
			tx.st.customers[id] = existing
			*c = existing
			return nil
		}
	}
	if c.Tier == "" {
		c.Tier = "STANDARD"
	}
	c.ID = tx.st.nextID()
	c.CreatedAt, c.UpdatedAt = now, now
	tx.st.customers[c.ID] = *c
	return nil
}

func (tx *orderTx) CreateAddress(a *order.Address) error {
	a.ID = tx.st.nextID()
	a.CreatedAt = tx.store.now()
	tx.st.addresses[a.ID] = *a
	return nil
}

func (tx *orderTx) CreateOrder(o *order.Order) error {
	if _, taken := tx.st.orderIDByNumber(o.OrderNumber); taken {
		return order.ErrDuplicateOrderNumber
	}
	now := tx.store.now()
	o.ID = tx.st.nextID()
	o.CreatedAt, o.UpdatedAt = now, now
	for i := range o.Items {
		it := &o.Items[i]
		it.ID = tx.st.nextID()
		it.OrderID = o.ID
		it.CreatedAt = now
		tx.st.orderItems[it.ID] = *it
	}
	for i := range o.Promotions {
		p := &o.Promotions[i]
		p.ID = tx.st.nextID()
		p.OrderID = o.ID
		p.CreatedAt = now
		tx.st.orderPromotions[p.ID] = *p
	}
	tx.st.orders[o.ID] = storedOrder(o)
	return nil
}

func (tx *orderTx) ConsumePromotion(promotionID uint) error {
	p, ok := tx.st.promotions[promotionID]
	if !ok {
		return promotion.ErrPromotionNotFound
	}
	if p.UsageLimit != nil && p.UsageCount >= *p.UsageLimit {
		return promotion.ErrUsageLimitReached
	}
	p.UsageCount++
	tx.st.promotions[promotionID] = p
	return nil
}

func (tx *orderTx) CreatePayment(p *order.Payment) error {
	for _, existing := range tx.st.payments {
		if existing.ProviderPaymentID == p.ProviderPaymentID {
			return fmt.Errorf("payment %q: %w", p.ProviderPaymentID, apperrors.ErrConflict)
		}
	}
	now := tx.store.now()
	p.ID = tx.st.nextID()
	p.CreatedAt, p.UpdatedAt = now, now
	tx.st.payments[p.ID] = *p
	return nil
}

func (tx *orderTx) FindPaymentByProviderID(providerPaymentID string) (*order.Payment, error) {
	for _, id := range sortedKeys(tx.st.payments) {
		if p := tx.st.payments[id]; p.ProviderPaymentID == providerPaymentID {
			return &p, nil
		}
	}
	return nil, order.ErrPaymentNotFound
}

func (tx *orderTx) LockOrderByID(id uint) (*order.Order, error) {
	if _, ok := tx.st.orders[id]; !ok {
		return nil, order.ErrOrderNotFound
	}
	o := tx.st.loadOrder(id)
	return &o, nil
}

func (tx *orderTx) LockOrderByNumber(orderNumber string) (*order.Order, error) {
	id, ok := tx.st.orderIDByNumber(orderNumber)
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	o := tx.st.loadOrder(id)
	return &o, nil
}

func (tx *orderTx) UpdateOrder(o *order.Order) error {
	if _, ok := tx.st.orders[o.ID]; !ok {
		return order.ErrOrderNotFound
	}
	o.UpdatedAt = tx.store.now()
	tx.st.orders[o.ID] = storedOrder(o)
	return nil
}

func (tx *orderTx) UpdatePayment(p *order.Payment) error {
	if _, ok := tx.st.payments[p.ID]; !ok {
		return order.ErrPaymentNotFound
	}
	p.UpdatedAt = tx.store.now()
	tx.st.payments[p.ID] = *p
	return nil
}

func (tx *orderTx) AppendHistory(h *order.StatusHistory) error {
	h.ID = tx.st.nextID()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = tx.store.now()
	}
	tx.st.history[h.ID] = *h
	return nil
}

func (tx *orderTx) DecrementStock(variantID uint, qty int, reference string) (int, error) {
	v, ok := tx.st.variants[variantID]
	if !ok {
		return 0, catalog.ErrVariantNotFound
	}
	if !catalog.CanFulfill(v.StockQuantity, qty) {
		return v.StockQuantity, catalog.ErrInsufficientStock
	}
	now := tx.store.now()
	v.StockQuantity -= qty
	v.UpdatedAt = now
	tx.st.variants[variantID] = v
	tx.st.addMovement(variantID, -qty, catalog.ReasonSale, reference, now)
	return v.StockQuantity, nil
}

func (tx *orderTx) RestockVariant(variantID uint, qty int, reference string) error {
	v, ok := tx.st.variants[variantID]
	if !ok {
		return catalog.ErrVariantNotFound
	}
	now := tx.store.now()
	v.StockQuantity += qty
	v.UpdatedAt = now
	tx.st.variants[variantID] = v
	tx.st.addMovement(variantID, qty, catalog.ReasonRestock, reference, now)
	return nil
}

func (tx *orderTx) CreateReconciliation(r *order.Reconciliation) error {
	now := tx.store.now()
	r.ID = tx.st.nextID()
	r.CreatedAt, r.UpdatedAt = now, now
	tx.st.reconciliations[r.ID] = *r
	return nil
}

func (tx *orderTx) LockReconciliation(id uint) (*order.Reconciliation, error) {
	r, ok := tx.st.reconciliations[id]
	if !ok {
		return nil, order.ErrReconciliationNotFound
	}
	return &r, nil
}

func (tx *orderTx) UpdateReconciliation(r *order.Reconciliation) error {
	if _, ok := tx.st.reconciliations[r.ID]; !ok {
		return order.ErrReconciliationNotFound
	}
	r.UpdatedAt = tx.store.now()
	tx.st.reconciliations[r.ID] = *r
	return nil
}

func (tx *orderTx) CountOpenReconciliations(orderID uint) (int64, error) {
	var n int64
	for _, r := range tx.st.reconciliations {
		if r.OrderID == orderID && r.Status == order.ReconciliationOpen {
			n++
		}
	}
	return n, nil
}

// Movements returns every stock movement in insertion order
func (s *Store) Movements() []catalog.StockMovement {
	var out []catalog.StockMovement
	s.read(func(st *state) {
		out = slices.Clone(st.movements)
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
