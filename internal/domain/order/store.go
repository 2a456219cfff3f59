package order

import (
	"context"
	"errors"
	"time"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrPaymentNotFound        = errors.New("payment not found")
	ErrCustomerNotFound       = errors.New("customer not found")
	ErrReconciliationNotFound = errors.New("reconciliation not found")
	// ErrDuplicateOrderNumber is returned by Tx.CreateOrder when the generated
	// number collides with an existing order.
	ErrDuplicateOrderNumber = errors.New("order number already exists")
)

// ListFilter narrows the admin order feed
type ListFilter struct {
	Status              OrderStatus
	PaymentStatus       PaymentStatus
	NeedsReconciliation *bool
	Offset              int
	Limit               int
}

// Store persists orders, customers and payments. Every write goes through
// WithinTx; reads outside a transaction see committed state only.
type Store interface {
	// WithinTx runs fn in one transaction. Any error returned by fn rolls
	// back every write made through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	// FindByNumber loads an order with its items, promotions, payments,
	// address and status history.
	FindByNumber(ctx context.Context, orderNumber string) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]Order, int64, error)
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	HasCompletedOrder(ctx context.Context, customerID uint) (bool, error)
	ListReconciliations(ctx context.Context, status ReconciliationStatus) ([]Reconciliation, error)
}

// Tx is the transactional view of the store used by checkout and the
// lifecycle manager.
type Tx interface {
	// UpsertCustomer inserts the customer or updates name and phone of the
	// existing customer with the same email. c.ID is set either way.
	UpsertCustomer(c *Customer) error
	CreateAddress(a *Address) error
	// CreateOrder inserts the order with its items and promotions.
	CreateOrder(o *Order) error
	// ConsumePromotion increments a promotion's usage counter unless its
	// usage limit is already reached (promotion.ErrUsageLimitReached).
	ConsumePromotion(promotionID uint) error
	CreatePayment(p *Payment) error

	FindPaymentByProviderID(providerPaymentID string) (*Payment, error)
	// LockOrderByID and LockOrderByNumber load the order with items and
	// payments, holding a row lock until the transaction ends.
	LockOrderByID(id uint) (*Order, error)
	LockOrderByNumber(orderNumber string) (*Order, error)
	UpdateOrder(o *Order) error
	UpdatePayment(p *Payment) error
	AppendHistory(h *StatusHistory) error

	// DecrementStock removes qty units when at least qty are on hand and
	// returns the remaining stock. Otherwise it changes nothing and returns
	// the current stock with catalog.ErrInsufficientStock.
	DecrementStock(variantID uint, qty int, reference string) (int, error)
	RestockVariant(variantID uint, qty int, reference string) error

	CreateReconciliation(r *Reconciliation) error
	LockReconciliation(id uint) (*Reconciliation, error)
	UpdateReconciliation(r *Reconciliation) error
	CountOpenReconciliations(orderID uint) (int64, error)
}

// EventGuard remembers processed webhook event ids. It is a fast path only;
// the payment row lock keeps finalization idempotent without it.
type EventGuard interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Remember(ctx context.Context, eventID string, ttl time.Duration) error
}
