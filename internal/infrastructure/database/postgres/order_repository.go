package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/domain/order"
	"github.com/yametee/storefront-api/internal/domain/promotion"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository implements order.Store on Postgres
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

var (
	_ order.Store = (*OrderRepository)(nil)
	_ order.Tx    = (*orderTx)(nil)
)

func byID(db *gorm.DB) *gorm.DB { return db.Order("id") }

// WithinTx runs fn inside a database transaction
func (r *OrderRepository) WithinTx(ctx context.Context, fn func(tx order.Tx) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&orderTx{db: tx})
	})
}

// FindByNumber loads an order with every association
func (r *OrderRepository) FindByNumber(ctx context.Context, orderNumber string) (*order.Order, error) {
	var o order.Order
	err := r.db.WithContext(ctx).
		Preload("Customer").
		Preload("Address").
		Preload("Items", byID).
		Preload("Promotions", byID).
		Preload("Payments", byID).
		Preload("StatusHistory", byID).
		Where("order_number = ?", orderNumber).
		First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

// List returns orders matching filter, newest first
func (r *OrderRepository) List(ctx context.Context, filter order.ListFilter) ([]order.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&order.Order{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PaymentStatus != "" {
		query = query.Where("payment_status = ?", filter.PaymentStatus)
	}
	if filter.NeedsReconciliation != nil {
		query = query.Where("needs_reconciliation = ?", *filter.NeedsReconciliation)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []order.Order
	err := query.
		Preload("Items", byID).
		Preload("Payments", byID).
		Order("created_at DESC, id DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&orders).Error
	return orders, total, err
}

// FindCustomerByEmail looks a customer up by email, case-insensitively
func (r *OrderRepository) FindCustomerByEmail(ctx context.Context, email string) (*order.Customer, error) {
	var c order.Customer
	err := r.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrCustomerNotFound
		}
		return nil, err
	}
	return &c, nil
}

// HasCompletedOrder reports whether the customer has a COMPLETED order
func (r *OrderRepository) HasCompletedOrder(ctx context.Context, customerID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&order.Order{}).
		Where("customer_id = ? AND status = ?", customerID, order.OrderStatusCompleted).
		Limit(1).
		Count(&count).Error
	return count > 0, err
}

// ListReconciliations returns reconciliations, newest first. An empty status
// returns all of them.
func (r *OrderRepository) ListReconciliations(ctx context.Context, status order.ReconciliationStatus) ([]order.Reconciliation, error) {
	query := r.db.WithContext(ctx).Order("created_at DESC, id DESC")
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var out []order.Reconciliation
	err := query.Find(&out).Error
	return out, err
}

type orderTx struct {
	db *gorm.DB
}

func (tx *orderTx) UpsertCustomer(c *order.Customer) error {
	c.Email = strings.ToLower(c.Email)
	if c.Tier == "" {
		c.Tier = "STANDARD"
	}
	return tx.db.Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "email"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"name":       c.Name,
				"phone":      c.Phone,
				"updated_at": time.Now().UTC(),
			}),
		},
		clause.Returning{},
	).Create(c).Error
}

func (tx *orderTx) CreateAddress(a *order.Address) error {
	return tx.db.Create(a).Error
}

func (tx *orderTx) CreateOrder(o *order.Order) error {
	err := tx.db.Omit("Customer", "Address", "Payments", "StatusHistory").Create(o).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return order.ErrDuplicateOrderNumber
	}
	return err
}

func (tx *orderTx) ConsumePromotion(promotionID uint) error {
	res := tx.db.Model(&promotion.Promotion{}).
		Where("id = ? AND (usage_limit IS NULL OR usage_count < usage_limit)", promotionID).
		UpdateColumn("usage_count", gorm.Expr("usage_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var exists int64
	if err := tx.db.Model(&promotion.Promotion{}).Where("id = ?", promotionID).Count(&exists).Error; err != nil {
		return err
	}
	if exists == 0 {
		return promotion.ErrPromotionNotFound
	}
	return promotion.ErrUsageLimitReached
}

func (tx *orderTx) CreatePayment(p *order.Payment) error {
	return tx.db.Create(p).Error
}

func (tx *orderTx) FindPaymentByProviderID(providerPaymentID string) (*order.Payment, error) {
	var p order.Payment
	err := tx.db.Where("provider_payment_id = ?", providerPaymentID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (tx *orderTx) lockOrder(query string, arg interface{}) (*order.Order, error) {
	var o order.Order
	err := tx.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where(query, arg).First(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrOrderNotFound
		}
		return nil, err
	}

	// FOR UPDATE cannot be combined with Preload joins, so associations
	// load separately under the already held row lock.
	if err := tx.db.Where("order_id = ?", o.ID).Order("id").Find(&o.Items).Error; err != nil {
		return nil, err
	}
	if err := tx.db.Where("order_id = ?", o.ID).Order("id").Find(&o.Payments).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (tx *orderTx) LockOrderByID(id uint) (*order.Order, error) {
	return tx.lockOrder("id = ?", id)
}

func (tx *orderTx) LockOrderByNumber(orderNumber string) (*order.Order, error) {
	return tx.lockOrder("order_number = ?", orderNumber)
}

func (tx *orderTx) UpdateOrder(o *order.Order) error {
	return tx.db.Model(o).
		Select("status", "payment_status", "needs_reconciliation",
			"paid_at", "shipped_at", "completed_at", "cancelled_at", "updated_at").
		Updates(o).Error
}

func (tx *orderTx) UpdatePayment(p *order.Payment) error {
	return tx.db.Model(p).
		Select("status", "provider_payment_id", "checkout_url", "raw_payload", "processed_at", "updated_at").
		Updates(p).Error
}

func (tx *orderTx) AppendHistory(h *order.StatusHistory) error {
	return tx.db.Create(h).Error
}

type stockRow struct {
	StockQuantity int
}

func (tx *orderTx) DecrementStock(variantID uint, qty int, reference string) (int, error) {
	var row stockRow
	res := tx.db.Raw(
		`UPDATE variants SET stock_quantity = stock_quantity - ?, updated_at = ?
		 WHERE id = ? AND stock_quantity >= ?
		 RETURNING stock_quantity`,
		qty, time.Now().UTC(), variantID, qty,
	).Scan(&row)
	if res.Error != nil {
		return 0, res.Error
	}

	if res.RowsAffected == 0 {
		var current catalog.Variant
		err := tx.db.Select("id", "stock_quantity").First(&current, variantID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, catalog.ErrVariantNotFound
		}
		if err != nil {
			return 0, err
		}
		return current.StockQuantity, catalog.ErrInsufficientStock
	}

	err := tx.db.Create(&catalog.StockMovement{
		VariantID: variantID,
		Delta:     -qty,
		Reason:    catalog.ReasonSale,
		Reference: reference,
	}).Error
	return row.StockQuantity, err
}

func (tx *orderTx) RestockVariant(variantID uint, qty int, reference string) error {
	res := tx.db.Model(&catalog.Variant{}).
		Where("id = ?", variantID).
		UpdateColumns(map[string]interface{}{
			"stock_quantity": gorm.Expr("stock_quantity + ?", qty),
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return catalog.ErrVariantNotFound
	}
	return tx.db.Create(&catalog.StockMovement{
		VariantID: variantID,
		Delta:     qty,
		Reason:    catalog.ReasonRestock,
		Reference: reference,
	}).Error
}

func (tx *orderTx) CreateReconciliation(r *order.Reconciliation) error {
	return tx.db.Create(r).Error
}

func (tx *orderTx) LockReconciliation(id uint) (*order.Reconciliation, error) {
	var r order.Reconciliation
	err := tx.db.Clauses(clause.Locking{Strength: "UPDATE"}).First(&r, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, order.ErrReconciliationNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (tx *orderTx) UpdateReconciliation(r *order.Reconciliation) error {
	return tx.db.Model(r).Select("status", "resolution_note", "resolved_at", "updated_at").Updates(r).Error
}

func (tx *orderTx) CountOpenReconciliations(orderID uint) (int64, error) {
	var count int64
	err := tx.db.Model(&order.Reconciliation{}).
		Where("order_id = ? AND status = ?", orderID, order.ReconciliationOpen).
		Count(&count).Error
	return count, err
}
