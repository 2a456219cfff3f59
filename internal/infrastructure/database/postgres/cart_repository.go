package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/yametee/storefront-api/internal/domain/cart"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CartRepository implements cart.Store on Postgres. Line writes are single
// row upserts on (cart_id, variant_id).
type CartRepository struct {
	db *gorm.DB
}

// NewCartRepository creates a new cart repository
func NewCartRepository(db *gorm.DB) *CartRepository {
	return &CartRepository{db: db}
}

var _ cart.Store = (*CartRepository)(nil)

var lineConflict = []clause.Column{{Name: "cart_id"}, {Name: "variant_id"}}

func keyScope(key cart.Key) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if key.IsCustomer() {
			return db.Where("customer_id = ?", key.CustomerID)
		}
		return db.Where("session_key = ?", key.SessionKey)
	}
}

// FindCart loads a cart with its lines
func (r *CartRepository) FindCart(ctx context.Context, key cart.Key) (*cart.Cart, error) {
	var c cart.Cart
	err := r.db.WithContext(ctx).
		Scopes(keyScope(key)).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at, id") }).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, cart.ErrCartNotFound
		}
		return nil, err
	}
	return &c, nil
}

// CreateCart inserts an empty cart; a concurrent insert for the same key wins
func (r *CartRepository) CreateCart(ctx context.Context, key cart.Key) (*cart.Cart, error) {
	c := cart.Cart{}
	if key.IsCustomer() {
		id := key.CustomerID
		c.CustomerID = &id
	} else {
		sk := key.SessionKey
		c.SessionKey = &sk
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&c).Error; err != nil {
		return nil, err
	}
	return r.FindCart(ctx, key)
}

// SetLineQuantity upserts a line with an absolute quantity; <= 0 deletes it
func (r *CartRepository) SetLineQuantity(ctx context.Context, cartID, variantID uint, quantity int) error {
	if quantity <= 0 {
		return r.DeleteLine(ctx, cartID, variantID)
	}
	line := cart.Line{CartID: cartID, VariantID: variantID, Quantity: quantity}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: lineConflict,
		DoUpdates: clause.Assignments(map[string]interface{}{
			"quantity":   quantity,
			"updated_at": time.Now().UTC(),
		}),
	}).Create(&line).Error
}

// AddLineQuantity adds delta to a line and returns the resulting quantity
func (r *CartRepository) AddLineQuantity(ctx context.Context, cartID, variantID uint, delta int) (int, error) {
	if delta > 0 {
		line := cart.Line{CartID: cartID, VariantID: variantID, Quantity: delta}
		err := r.db.WithContext(ctx).Clauses(
			clause.OnConflict{
				Columns: lineConflict,
				DoUpdates: clause.Assignments(map[string]interface{}{
					"quantity":   gorm.Expr("LEAST(cart_lines.quantity + EXCLUDED.quantity, ?)", cart.MaxLineQuantity),
					"updated_at": time.Now().UTC(),
				}),
			},
			clause.Returning{},
		).Create(&line).Error
		return line.Quantity, err
	}

	result := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var line cart.Line
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("cart_id = ? AND variant_id = ?", cartID, variantID).
			First(&line).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		result = line.Quantity + delta
		if result <= 0 {
			result = 0
			return tx.Delete(&line).Error
		}
		return tx.Model(&line).Update("quantity", result).Error
	})
	return result, err
}

// DeleteLine removes one line
func (r *CartRepository) DeleteLine(ctx context.Context, cartID, variantID uint) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ? AND variant_id = ?", cartID, variantID).
		Delete(&cart.Line{}).Error
}

// ClearLines removes every line of a cart
func (r *CartRepository) ClearLines(ctx context.Context, cartID uint) error {
	return r.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&cart.Line{}).Error
}

// MergeCarts folds the lines of from into into, capping each at
// cart.MaxLineQuantity, and deletes from in one transaction
func (r *CartRepository) MergeCarts(ctx context.Context, fromCartID, intoCartID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var from cart.Cart
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&from, fromCartID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return cart.ErrCartNotFound
			}
			return err
		}

		var lines []cart.Line
		if err := tx.Where("cart_id = ?", fromCartID).Order("created_at, id").Find(&lines).Error; err != nil {
			return err
		}
		for _, l := range lines {
			merged := cart.Line{CartID: intoCartID, VariantID: l.VariantID, Quantity: min(l.Quantity, cart.MaxLineQuantity)}
			if err := tx.Clauses(clause.OnConflict{
				Columns: lineConflict,
				DoUpdates: clause.Assignments(map[string]interface{}{
					"quantity":   gorm.Expr("LEAST(cart_lines.quantity + EXCLUDED.quantity, ?)", cart.MaxLineQuantity),
					"updated_at": time.Now().UTC(),
				}),
			}).Create(&merged).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("cart_id = ?", fromCartID).Delete(&cart.Line{}).Error; err != nil {
			return err
		}
		return tx.Delete(&from).Error
	})
}

// DeleteCart removes a cart; its lines cascade
func (r *CartRepository) DeleteCart(ctx context.Context, cartID uint) error {
	return r.db.WithContext(ctx).Delete(&cart.Cart{}, cartID).Error
}
