package postgres

import (
	"context"
	"errors"

	"github.com/yametee/storefront-api/internal/domain/promotion"
	"gorm.io/gorm"
)

// PromotionRepository implements promotion.Store on Postgres
type PromotionRepository struct {
	db *gorm.DB
}

// NewPromotionRepository creates a new promotion repository
func NewPromotionRepository(db *gorm.DB) *PromotionRepository {
	return &PromotionRepository{db: db}
}

var _ promotion.Store = (*PromotionRepository)(nil)

func orderedRules(db *gorm.DB) *gorm.DB { return db.Order("id") }

// ListActive returns every ACTIVE promotion with rules, oldest first
func (r *PromotionRepository) ListActive(ctx context.Context) ([]promotion.Promotion, error) {
	var ps []promotion.Promotion
	err := r.db.WithContext(ctx).
		Preload("Rules", orderedRules).
		Where("status = ?", promotion.StatusActive).
		Order("created_at, id").
		Find(&ps).Error
	return ps, err
}

// FindByCode looks a promotion up by code regardless of status
func (r *PromotionRepository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	var p promotion.Promotion
	err := r.db.WithContext(ctx).Preload("Rules", orderedRules).Where("code = ?", code).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, promotion.ErrPromotionNotFound
		}
		return nil, err
	}
	return &p, nil
}

// Create inserts a promotion with its rules
func (r *PromotionRepository) Create(ctx context.Context, p *promotion.Promotion) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return promotion.ErrDuplicateCode
		}
		return err
	}
	return nil
}

// Update replaces a promotion's fields and rules. The usage counter is only
// ever changed by the conditional increment at checkout.
func (r *PromotionRepository) Update(ctx context.Context, p *promotion.Promotion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(p).Select("*").Omit("id", "created_at", "usage_count", "Rules").Updates(p)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return promotion.ErrDuplicateCode
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return promotion.ErrPromotionNotFound
		}

		if err := tx.Where("promotion_id = ?", p.ID).Delete(&promotion.PromotionRule{}).Error; err != nil {
			return err
		}
		for i := range p.Rules {
			p.Rules[i].ID = 0
			p.Rules[i].PromotionID = p.ID
		}
		if len(p.Rules) > 0 {
			return tx.Create(&p.Rules).Error
		}
		return nil
	})
}

// Get returns a promotion with its rules
func (r *PromotionRepository) Get(ctx context.Context, id uint) (*promotion.Promotion, error) {
	var p promotion.Promotion
	err := r.db.WithContext(ctx).Preload("Rules", orderedRules).First(&p, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, promotion.ErrPromotionNotFound
		}
		return nil, err
	}
	return &p, nil
}

// List returns a page of promotions, newest first
func (r *PromotionRepository) List(ctx context.Context, offset, limit int) ([]promotion.Promotion, int64, error) {
	var (
		ps    []promotion.Promotion
		total int64
	)
	db := r.db.WithContext(ctx)
	if err := db.Model(&promotion.Promotion{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Preload("Rules", orderedRules).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&ps).Error
	return ps, total, err
}

// Delete removes a promotion; its rules cascade
func (r *PromotionRepository) Delete(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).Delete(&promotion.Promotion{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return promotion.ErrPromotionNotFound
	}
	return nil
}
