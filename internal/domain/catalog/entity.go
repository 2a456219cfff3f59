// internal/domain/catalog/entity.go
package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus represents the publication status of a product
type ProductStatus string

const (
	ProductStatusDraft    ProductStatus = "DRAFT"
	ProductStatusActive   ProductStatus = "ACTIVE"
	ProductStatusArchived ProductStatus = "ARCHIVED"
)

// CollectionStatus represents the publication status of a collection
type CollectionStatus string

const (
	CollectionStatusDraft     CollectionStatus = "DRAFT"
	CollectionStatusPublished CollectionStatus = "PUBLISHED"
	CollectionStatusArchived  CollectionStatus = "ARCHIVED"
)

// ReleaseStatus represents the status of a collection drop
type ReleaseStatus string

const (
	ReleaseStatusDraft     ReleaseStatus = "DRAFT"
	ReleaseStatusScheduled ReleaseStatus = "SCHEDULED"
	ReleaseStatusActive    ReleaseStatus = "ACTIVE"
	ReleaseStatusClosed    ReleaseStatus = "CLOSED"
	ReleaseStatusCancelled ReleaseStatus = "CANCELLED"
)

// MovementReason represents why a variant's stock changed
type MovementReason string

const (
	ReasonSale       MovementReason = "SALE"       // paid order debit
	ReasonRestock    MovementReason = "RESTOCK"    // cancelled paid order
	ReasonAdjustment MovementReason = "ADJUSTMENT" // admin stock edit
)

// Product represents a garment; size/color combinations are its variants
type Product struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	Name        string        `gorm:"not null;size:255" json:"name"`
	Slug        string        `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Description string        `gorm:"type:text" json:"description"`
	Status      ProductStatus `gorm:"not null;size:20;default:'DRAFT'" json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	// Relationships
	Variants    []Variant    `gorm:"foreignKey:ProductID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"variants,omitempty"`
	Collections []Collection `gorm:"many2many:collection_products;" json:"collections,omitempty"`
}

// Variant is a purchasable size/color combination with its own price and stock
type Variant struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	ProductID     uint            `gorm:"not null;index" json:"product_id"`
	SKU           string          `gorm:"uniqueIndex;not null;size:100" json:"sku"`
	Size          string          `gorm:"not null;size:20" json:"size"`
	Color         string          `gorm:"not null;size:50" json:"color"`
	Price         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	StockQuantity int             `gorm:"not null;default:0;check:stock_quantity >= 0" json:"stock_quantity"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Collection groups products into a themed drop
type Collection struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Title       string           `gorm:"not null;size:255" json:"title"`
	Slug        string           `gorm:"uniqueIndex;not null;size:255" json:"slug"`
	Subtitle    string           `gorm:"size:255" json:"subtitle"`
	Description string           `gorm:"type:text" json:"description"`
	Status      CollectionStatus `gorm:"not null;size:20;default:'DRAFT'" json:"status"`
	LaunchDate  *time.Time       `json:"launch_date"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`

	// Relationships
	Products       []Product       `gorm:"many2many:collection_products;" json:"products,omitempty"`
	ReleaseWindows []ReleaseWindow `gorm:"foreignKey:CollectionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"release_windows,omitempty"`
}

// ReleaseWindow is a scheduled range during which a collection is purchasable
type ReleaseWindow struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	CollectionID  uint          `gorm:"not null;index" json:"collection_id"`
	StartsAt      time.Time     `gorm:"not null" json:"starts_at"`
	EndsAt        *time.Time    `json:"ends_at"`
	Status        ReleaseStatus `gorm:"not null;size:20;default:'DRAFT'" json:"status"`
	AllowlistOnly bool          `gorm:"default:false" json:"allowlist_only"`
	MaxUnits      *int          `json:"max_units"`
	Notes         string        `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time     `json:"created_at"`
}

// StockMovement is the audit trail of every stock change
type StockMovement struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	VariantID uint           `gorm:"not null;index" json:"variant_id"`
	Delta     int            `gorm:"not null" json:"delta"`
	Reason    MovementReason `gorm:"not null;size:20" json:"reason"`
	Reference string         `gorm:"size:100;index" json:"reference"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName methods
func (Product) TableName() string { return "products" }
func (Variant) TableName() string { return "variants" }
func (Collection) TableName() string { return "collections" }
func (ReleaseWindow) TableName() string { return "release_windows" }
func (StockMovement) TableName() string { return "stock_movements" }

// VariantDetail is the read model the checkout and cart flows work from.
type VariantDetail struct {
	Variant
	ProductName   string          `json:"product_name"`
	ProductStatus ProductStatus   `json:"product_status"`
	Collections   []CollectionRef `json:"collections,omitempty"`
}

// CollectionRef is a product's membership in a collection with that
// collection's release windows.
type CollectionRef struct {
	CollectionID uint            `json:"collection_id"`
	Windows      []ReleaseWindow `json:"-"`
}

// DisplayName renders the name shoppers see, e.g. "Oni Tee (M / Black)".
func (d VariantDetail) DisplayName() string {
	if d.Size == "" && d.Color == "" {
		return d.ProductName
	}
	return fmt.Sprintf("%s (%s / %s)", d.ProductName, d.Size, d.Color)
}

// CollectionIDs returns the ids of every collection the product belongs to.
func (d VariantDetail) CollectionIDs() []uint {
	ids := make([]uint, 0, len(d.Collections))
	for _, c := range d.Collections {
		ids = append(ids, c.CollectionID)
	}
	return ids
}
