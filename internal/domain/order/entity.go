// internal/domain/order/entity.go
package order

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the fulfilment status of an order
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// PaymentStatus represents payment status, on both orders and payments
type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// ReconciliationStatus represents whether a stock shortfall was handled
type ReconciliationStatus string

const (
	ReconciliationOpen     ReconciliationStatus = "OPEN"
	ReconciliationResolved ReconciliationStatus = "RESOLVED"
)

// Customer is upserted by email at checkout
type Customer struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Name      string    `gorm:"not null;size:255" json:"name"`
	Phone     string    `gorm:"size:30" json:"phone"`
	Tier      string    `gorm:"size:30;default:'STANDARD'" json:"tier"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Address is the shipping address captured with an order
type Address struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CustomerID *uint     `gorm:"index" json:"customer_id"`
	FullName   string    `gorm:"not null;size:255" json:"full_name"`
	Phone      string    `gorm:"not null;size:30" json:"phone"`
	Line1      string    `gorm:"not null;size:255" json:"line1"`
	Line2      string    `gorm:"size:255" json:"line2"`
	City       string    `gorm:"not null;size:100" json:"city"`
	Province   string    `gorm:"not null;size:100" json:"province"`
	PostalCode string    `gorm:"not null;size:20" json:"postal_code"`
	Country    string    `gorm:"not null;size:100" json:"country"`
	CreatedAt  time.Time `json:"created_at"`
}

// Order represents the order entity. Items and money fields are frozen at
// creation; only the status fields change afterwards.
type Order struct {
	ID                  uint          `gorm:"primaryKey" json:"id"`
	OrderNumber         string        `gorm:"uniqueIndex;not null;size:32" json:"order_number"`
	CustomerID          *uint         `gorm:"index" json:"customer_id"`
	AddressID           uint          `gorm:"not null" json:"address_id"`
	Email               string        `gorm:"not null;size:255" json:"email"`
	Status              OrderStatus   `gorm:"not null;size:20;index;default:'PENDING'" json:"status"`
	PaymentStatus       PaymentStatus `gorm:"not null;size:20;index;default:'UNPAID'" json:"payment_status"`
	PaymentProvider     string        `gorm:"size:30" json:"payment_provider"`
	PaymentMethod       string        `gorm:"size:30" json:"payment_method"`
	Channel             string        `gorm:"size:30" json:"channel"`
	Currency            string        `gorm:"size:3;default:'PHP'" json:"currency"`
	NeedsReconciliation bool          `gorm:"default:false;index" json:"needs_reconciliation"`

	// Financial Information
	Subtotal      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	DiscountTotal decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"discount_total"`
	ShippingFee   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"shipping_fee"`
	GrandTotal    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"grand_total"`

	// Timestamps
	PaidAt      *time.Time `json:"paid_at"`
	ShippedAt   *time.Time `json:"shipped_at"`
	CompletedAt *time.Time `json:"completed_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	// Relationships
	Customer      *Customer        `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Address       *Address         `gorm:"foreignKey:AddressID" json:"address,omitempty"`
	Items         []OrderItem      `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"items"`
	Promotions    []OrderPromotion `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"promotions,omitempty"`
	Payments      []Payment        `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"payments,omitempty"`
	StatusHistory []StatusHistory  `gorm:"foreignKey:OrderID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"status_history,omitempty"`
}

// OrderItem is a line copied from the cart at its checkout price
type OrderItem struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	OrderID     uint            `gorm:"not null;index" json:"order_id"`
	ProductID   uint            `gorm:"not null" json:"product_id"`
	VariantID   uint            `gorm:"not null;index" json:"variant_id"`
	ProductName string          `gorm:"not null;size:255" json:"product_name"`
	SKU         string          `gorm:"size:100" json:"sku"`
	Size        string          `gorm:"size:20" json:"size"`
	Color       string          `gorm:"size:50" json:"color"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"unit_price"`
	TotalPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OrderPromotion records a promotion applied to an order
type OrderPromotion struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	OrderID        uint            `gorm:"not null;index" json:"order_id"`
	PromotionID    uint            `gorm:"not null;index" json:"promotion_id"`
	Name           string          `gorm:"not null;size:255" json:"name"`
	Code           string          `gorm:"size:64" json:"code"`
	Type           string          `gorm:"not null;size:20" json:"type"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	ShippingWaived decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"shipping_waived"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Payment represents a gateway checkout attempt for an order
type Payment struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	OrderID           uint            `gorm:"not null;index" json:"order_id"`
	Provider          string          `gorm:"not null;size:30" json:"provider"`
	ProviderPaymentID string          `gorm:"uniqueIndex;not null;size:100" json:"provider_payment_id"`
	Method            string          `gorm:"size:30" json:"method"`
	Amount            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status            PaymentStatus   `gorm:"not null;size:20;default:'PENDING'" json:"status"`
	CheckoutURL       string          `gorm:"type:text" json:"checkout_url"`
	RawPayload        string          `gorm:"type:text" json:"-"`
	ProcessedAt       *time.Time      `json:"processed_at"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// StatusHistory tracks order and payment status changes
type StatusHistory struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	OrderID     uint          `gorm:"not null;index" json:"order_id"`
	FromStatus  OrderStatus   `gorm:"size:20" json:"from_status"`
	ToStatus    OrderStatus   `gorm:"size:20" json:"to_status"`
	FromPayment PaymentStatus `gorm:"size:20" json:"from_payment"`
	ToPayment   PaymentStatus `gorm:"size:20" json:"to_payment"`
	Actor       string        `gorm:"size:100" json:"actor"`
	Note        string        `gorm:"type:text" json:"note"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Reconciliation flags a paid order whose stock debit failed
type Reconciliation struct {
	ID             uint                 `gorm:"primaryKey" json:"id"`
	OrderID        uint                 `gorm:"not null;index" json:"order_id"`
	OrderNumber    string               `gorm:"not null;size:32;index" json:"order_number"`
	Reason         string               `gorm:"not null;size:100" json:"reason"`
	Lines          string               `gorm:"type:text" json:"lines"`
	Status         ReconciliationStatus `gorm:"not null;size:20;index;default:'OPEN'" json:"status"`
	ResolutionNote string               `gorm:"type:text" json:"resolution_note"`
	ResolvedAt     *time.Time           `json:"resolved_at"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// TableName methods
func (Customer) TableName() string { return "customers" }
func (Address) TableName() string { return "addresses" }
func (Order) TableName() string { return "orders" }
func (OrderItem) TableName() string { return "order_items" }
func (OrderPromotion) TableName() string { return "order_promotions" }
func (Payment) TableName() string { return "payments" }
func (StatusHistory) TableName() string { return "order_status_history" }
func (Reconciliation) TableName() string { return "reconciliations" }

// GenerateOrderNumber returns a number of the form WEB-<year>-<6 digits>
func GenerateOrderNumber(now time.Time, rng *rand.Rand) string {
	return fmt.Sprintf("WEB-%d-%06d", now.Year(), rng.Intn(1000000))
}

// StockDebited reports whether the order's items have been taken out of stock
func (o *Order) StockDebited() bool {
	switch o.Status {
	case OrderStatusPaid, OrderStatusProcessing, OrderStatusShipped, OrderStatusCompleted:
		return true
	default:
		return false
	}
}

// ItemsTotal sums the frozen line totals
func (o *Order) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.TotalPrice)
	}
	return total
}

// LatestPayment returns the most recently created payment, if any
func (o *Order) LatestPayment() *Payment {
	var latest *Payment
	for i := range o.Payments {
		if latest == nil || o.Payments[i].CreatedAt.After(latest.CreatedAt) ||
			(o.Payments[i].CreatedAt.Equal(latest.CreatedAt) && o.Payments[i].ID > latest.ID) {
			latest = &o.Payments[i]
		}
	}
	return latest
}
