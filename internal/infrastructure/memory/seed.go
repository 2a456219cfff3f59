package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/domain/promotion"
)

// Seed loads the demo catalog used for local development: one tee in three
// sizes, a live drop and the WELCOME10 code.
func (s *Store) Seed(ctx context.Context) error {
	tee := &catalog.Product{
		Name:   "Oni Mask Tee",
		Slug:   "oni-mask-tee",
		Status: catalog.ProductStatusActive,
		Variants: []catalog.Variant{
			{SKU: "ONI-TEE-S-BLK", Size: "S", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: 20},
			{SKU: "ONI-TEE-M-BLK", Size: "M", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: 20},
			{SKU: "ONI-TEE-L-BLK", Size: "L", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: 5},
		},
	}
	if err := s.Catalog().CreateProduct(ctx, tee); err != nil {
		return fmt.Errorf("failed to seed product: %w", err)
	}

	start := s.now().Add(-time.Hour)
	drop := &catalog.Collection{
		Title:          "Yokai Drop",
		Slug:           "yokai-drop",
		Status:         catalog.CollectionStatusPublished,
		ReleaseWindows: []catalog.ReleaseWindow{{StartsAt: start, Status: catalog.ReleaseStatusActive}},
	}
	if err := s.Catalog().CreateCollection(ctx, drop, []uint{tee.ID}); err != nil {
		return fmt.Errorf("failed to seed collection: %w", err)
	}

	code := "WELCOME10"
	rule, err := promotion.EncodeRule(promotion.MinSubtotal{Threshold: decimal.NewFromInt(800)})
	if err != nil {
		return err
	}
	welcome := &promotion.Promotion{
		Name:   "Welcome 10%",
		Code:   &code,
		Type:   promotion.TypePercentage,
		Status: promotion.StatusActive,
		Value:  decimal.NewFromInt(10),
		Rules:  []promotion.PromotionRule{rule},
	}
	if err := s.Promotions().Create(ctx, welcome); err != nil {
		return fmt.Errorf("failed to seed promotion: %w", err)
	}
	return nil
}
