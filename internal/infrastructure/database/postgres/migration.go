// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yametee/storefront-api/internal/domain/cart"
	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/domain/order"
	"github.com/yametee/storefront-api/internal/domain/promotion"
	"gorm.io/gorm"
)

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, logger logrus.FieldLogger) *Migration {
	return &Migration{
		db:     db,
		logger: logger.WithField("component", "migration"),
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.logger.Info("Running database auto-migrations")

	// dependency order
	models := []interface{}{
		// Catalog
		&catalog.Product{},
		&catalog.Variant{},
		&catalog.Collection{},
		&catalog.ReleaseWindow{},
		&catalog.StockMovement{},

		// Cart
		&cart.Cart{},
		&cart.Line{},

		// Promotions
		&promotion.Promotion{},
		&promotion.PromotionRule{},

		// Orders
		&order.Customer{},
		&order.Address{},
		&order.Order{},
		&order.OrderItem{},
		&order.OrderPromotion{},
		&order.Payment{},
		&order.StatusHistory{},
		&order.Reconciliation{},
	}

	for _, model := range models {
		m.logger.Debugf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("Database auto-migrations completed")
	return nil
}

// CreateIndexes creates indexes AutoMigrate cannot express
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		// Carts belong to exactly one owner
		"ALTER TABLE carts DROP CONSTRAINT IF EXISTS chk_carts_single_owner",
		"ALTER TABLE carts ADD CONSTRAINT chk_carts_single_owner CHECK ((session_key IS NULL) <> (customer_id IS NULL))",
		"ALTER TABLE cart_lines DROP CONSTRAINT IF EXISTS chk_cart_lines_quantity",
		"ALTER TABLE cart_lines ADD CONSTRAINT chk_cart_lines_quantity CHECK (quantity > 0)",

		// Promotions
		"CREATE INDEX IF NOT EXISTS idx_promotions_status_created ON promotions(status, created_at)",
		"ALTER TABLE promotions DROP CONSTRAINT IF EXISTS chk_promotions_usage",
		"ALTER TABLE promotions ADD CONSTRAINT chk_promotions_usage CHECK (usage_limit IS NULL OR usage_count <= usage_limit)",

		// Orders
		"CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_orders_customer_status ON orders(customer_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_customers_email_lower ON customers(LOWER(email))",
		"CREATE INDEX IF NOT EXISTS idx_reconciliations_order_status ON reconciliations(order_id, status)",

		// Stock audit
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_variant_created ON stock_movements(variant_id, created_at DESC)",
	}

	successCount, failCount := 0, 0
	for _, stmt := range indexes {
		if err := m.db.Exec(stmt).Error; err != nil {
			m.logger.WithError(err).WithField("statement", stmt).Warn("Failed to apply index")
			failCount++
			continue
		}
		successCount++
	}

	m.logger.WithFields(logrus.Fields{
		"created": successCount,
		"failed":  failCount,
	}).Info("Database indexes applied")
	return nil
}

// SeedInitialData inserts a demo drop for development
func (m *Migration) SeedInitialData() error {
	var count int64
	if err := m.db.Model(&catalog.Product{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count products: %w", err)
	}
	if count > 0 {
		m.logger.Debug("Catalog already seeded")
		return nil
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		tee := catalog.Product{
			Name:   "Oni Mask Tee",
			Slug:   "oni-mask-tee",
			Status: catalog.ProductStatusActive,
			Variants: []catalog.Variant{
				{SKU: "ONI-TEE-S-BLK", Size: "S", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: 20},
				{SKU: "ONI-TEE-M-BLK", Size: "M", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: 20},
				{SKU: "ONI-TEE-L-BLK", Size: "L", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: 5},
			},
		}
		if err := tx.Create(&tee).Error; err != nil {
			return fmt.Errorf("failed to seed product: %w", err)
		}

		drop := catalog.Collection{
			Title:  "Yokai Drop",
			Slug:   "yokai-drop",
			Status: catalog.CollectionStatusPublished,
			ReleaseWindows: []catalog.ReleaseWindow{
				{StartsAt: time.Now().UTC().Add(-time.Hour), Status: catalog.ReleaseStatusActive},
			},
			Products: []catalog.Product{tee},
		}
		if err := tx.Omit("Products.*").Create(&drop).Error; err != nil {
			return fmt.Errorf("failed to seed collection: %w", err)
		}

		code := "WELCOME10"
		welcome := promotion.Promotion{
			Name:     "Welcome 10%",
			Code:     &code,
			Type:     promotion.TypePercentage,
			Status:   promotion.StatusActive,
			Value:    decimal.NewFromInt(10),
			Channels: []string{},
		}
		rule, err := promotion.EncodeRule(promotion.MinSubtotal{Threshold: decimal.NewFromInt(800)})
		if err != nil {
			return err
		}
		welcome.Rules = []promotion.PromotionRule{rule}
		if err := tx.Create(&welcome).Error; err != nil {
			return fmt.Errorf("failed to seed promotion: %w", err)
		}

		m.logger.Info("Seeded demo catalog and promotion")
		return nil
	})
}

// DropAllTables drops all tables (use with extreme caution)
func (m *Migration) DropAllTables() error {
	m.logger.Warn("Dropping all database tables")

	// reverse dependency order
	tables := []string{
		"reconciliations",
		"order_status_history",
		"payments",
		"order_promotions",
		"order_items",
		"orders",
		"addresses",
		"customers",
		"promotion_rules",
		"promotions",
		"cart_lines",
		"carts",
		"stock_movements",
		"release_windows",
		"collection_products",
		"collections",
		"variants",
		"products",
	}

	for _, table := range tables {
		if err := m.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", table)).Error; err != nil {
			m.logger.WithError(err).WithField("table", table).Warn("Failed to drop table")
		}
	}
	return nil
}
