// internal/domain/cart/entity.go
package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cart is owned by exactly one of a guest session or a customer
type Cart struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionKey *string   `gorm:"uniqueIndex;size:64" json:"-"` // keyed hash of the guest token
	CustomerID *uint     `gorm:"uniqueIndex" json:"customer_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`

	// Relationships
	Lines []Line `gorm:"foreignKey:CartID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"lines"`
}

// Line is one (variant, quantity) pair; unique per cart
type Line struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CartID    uint      `gorm:"not null;uniqueIndex:idx_cart_lines_cart_variant" json:"cart_id"`
	VariantID uint      `gorm:"not null;uniqueIndex:idx_cart_lines_cart_variant" json:"variant_id"`
	Quantity  int       `gorm:"not null" json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName methods
func (Cart) TableName() string { return "carts" }
func (Line) TableName() string { return "cart_lines" }

// Key addresses a cart in the store: a hashed session key or a customer id.
type Key struct {
	SessionKey string
	CustomerID uint
}

// IsCustomer reports whether the key addresses a customer cart.
func (k Key) IsCustomer() bool {
	return k.CustomerID != 0
}

// Owner identifies who is acting on a cart in a request.
type Owner struct {
	SessionToken string
	CustomerID   *uint
}

// Mode selects how AddOrUpdateLine interprets its quantity.
type Mode string

const (
	ModeAbsolute Mode = "ABSOLUTE"
	ModeDelta    Mode = "DELTA"
)

// LineView is a cart line priced against the live catalog
type LineView struct {
	VariantID   uint            `json:"variant_id"`
	ProductID   uint            `json:"product_id"`
	ProductName string          `json:"product_name"`
	SKU         string          `json:"sku"`
	Size        string          `json:"size"`
	Color       string          `json:"color"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	LineTotal   decimal.Decimal `json:"line_total"`
	InStock     bool            `json:"in_stock"`
	Available   bool            `json:"available"`
}

// View is the cart as shown to the shopper
type View struct {
	ID        uint            `json:"id"`
	Lines     []LineView      `json:"lines"`
	ItemCount int             `json:"item_count"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	UpdatedAt time.Time       `json:"updated_at"`
}
