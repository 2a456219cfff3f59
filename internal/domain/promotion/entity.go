// internal/domain/promotion/entity.go
package promotion

import (
	"time"

	"github.com/shopspring/decimal"
)

// Type represents how a promotion discounts a cart
type Type string

const (
	TypePercentage   Type = "PERCENTAGE"
	TypeFixedAmount  Type = "FIXED_AMOUNT"
	TypeFreeShipping Type = "FREE_SHIPPING"
	TypeBundle       Type = "BUNDLE"
	TypeGift         Type = "GIFT"
)

// Status represents the lifecycle status of a promotion
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusScheduled Status = "SCHEDULED"
	StatusActive    Status = "ACTIVE"
	StatusPaused    Status = "PAUSED"
	StatusExpired   Status = "EXPIRED"
	StatusArchived  Status = "ARCHIVED"
)

// RuleType identifies the payload shape of a stored rule
type RuleType string

const (
	RuleMinSubtotal   RuleType = "MIN_SUBTOTAL"
	RuleCustomerTier  RuleType = "CUSTOMER_TIER"
	RuleFirstPurchase RuleType = "FIRST_PURCHASE"
)

// Promotion is the stored promotion row
type Promotion struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Name         string          `gorm:"not null;size:255" json:"name"`
	Code         *string         `gorm:"uniqueIndex;size:64" json:"code"`
	Description  string          `gorm:"type:text" json:"description"`
	Type         Type            `gorm:"not null;size:20" json:"type"`
	Status       Status          `gorm:"not null;size:20;index" json:"status"`
	Value        decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"value"`
	Stackable    bool            `gorm:"default:false" json:"stackable"`
	UsageLimit   *int            `json:"usage_limit"`
	UsageCount   int             `gorm:"not null;default:0" json:"usage_count"`
	StartsAt     *time.Time      `json:"starts_at"`
	EndsAt       *time.Time      `json:"ends_at"`
	Channels     []string        `gorm:"serializer:json" json:"channels"`
	CollectionID *uint           `gorm:"index" json:"collection_id"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`

	// Relationships
	Rules []PromotionRule `gorm:"foreignKey:PromotionID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"rules"`
}

// PromotionRule is a stored rule with its raw JSON payload
type PromotionRule struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PromotionID uint      `gorm:"not null;index" json:"promotion_id"`
	RuleType    RuleType  `gorm:"not null;size:30" json:"rule_type"`
	Payload     string    `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName methods
func (Promotion) TableName() string { return "promotions" }
func (PromotionRule) TableName() string { return "promotion_rules" }
