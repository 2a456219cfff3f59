package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CatalogRepository implements catalog.Store on Postgres
type CatalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

var _ catalog.Store = (*CatalogRepository)(nil)

type collectionLink struct {
	CollectionID uint
	ProductID    uint
}

// GetVariant returns a variant with its product and collection context
func (r *CatalogRepository) GetVariant(ctx context.Context, id uint) (*catalog.VariantDetail, error) {
	details, err := r.GetVariants(ctx, []uint{id})
	if err != nil {
		return nil, err
	}
	d, ok := details[id]
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	return &d, nil
}

// GetVariants loads variants with product names, statuses and the release
// windows of every collection their products belong to
func (r *CatalogRepository) GetVariants(ctx context.Context, ids []uint) (map[uint]catalog.VariantDetail, error) {
	out := make(map[uint]catalog.VariantDetail, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	db := r.db.WithContext(ctx)

	var variants []catalog.Variant
	if err := db.Where("id IN ?", ids).Find(&variants).Error; err != nil {
		return nil, fmt.Errorf("failed to load variants: %w", err)
	}
	if len(variants) == 0 {
		return out, nil
	}

	productIDs := make([]uint, 0, len(variants))
	seen := map[uint]bool{}
	for _, v := range variants {
		if !seen[v.ProductID] {
			seen[v.ProductID] = true
			productIDs = append(productIDs, v.ProductID)
		}
	}

	var products []catalog.Product
	if err := db.Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	byProduct := make(map[uint]catalog.Product, len(products))
	for _, p := range products {
		byProduct[p.ID] = p
	}

	var links []collectionLink
	if err := db.Table("collection_products").
		Select("collection_id, product_id").
		Where("product_id IN ?", productIDs).
		Order("collection_id").
		Scan(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to load collection links: %w", err)
	}

	windowsByCollection := map[uint][]catalog.ReleaseWindow{}
	if len(links) > 0 {
		collectionIDs := make([]uint, 0, len(links))
		for _, l := range links {
			collectionIDs = append(collectionIDs, l.CollectionID)
		}
		var windows []catalog.ReleaseWindow
		if err := db.Where("collection_id IN ?", collectionIDs).Order("id").Find(&windows).Error; err != nil {
			return nil, fmt.Errorf("failed to load release windows: %w", err)
		}
		for _, w := range windows {
			windowsByCollection[w.CollectionID] = append(windowsByCollection[w.CollectionID], w)
		}
	}

	for _, v := range variants {
		p := byProduct[v.ProductID]
		d := catalog.VariantDetail{Variant: v, ProductName: p.Name, ProductStatus: p.Status}
		for _, l := range links {
			if l.ProductID == v.ProductID {
				d.Collections = append(d.Collections, catalog.CollectionRef{
					CollectionID: l.CollectionID,
					Windows:      windowsByCollection[l.CollectionID],
				})
			}
		}
		out[v.ID] = d
	}
	return out, nil
}

// SetStock replaces a variant's stock under a row lock and records the adjustment
func (r *CatalogRepository) SetStock(ctx context.Context, variantID uint, quantity int, reference string) (*catalog.Variant, error) {
	var variant catalog.Variant
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&variant, variantID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return catalog.ErrVariantNotFound
			}
			return err
		}

		delta := quantity - variant.StockQuantity
		if err := tx.Model(&variant).Update("stock_quantity", quantity).Error; err != nil {
			return err
		}
		if delta == 0 {
			return nil
		}
		return tx.Create(&catalog.StockMovement{
			VariantID: variantID,
			Delta:     delta,
			Reason:    catalog.ReasonAdjustment,
			Reference: reference,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &variant, nil
}

// ListMovements returns a variant's stock movements, newest first
func (r *CatalogRepository) ListMovements(ctx context.Context, variantID uint) ([]catalog.StockMovement, error) {
	var movements []catalog.StockMovement
	err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at DESC, id DESC").
		Find(&movements).Error
	return movements, err
}

// CreateProduct inserts a product with its variants
func (r *CatalogRepository) CreateProduct(ctx context.Context, product *catalog.Product) error {
	if err := r.db.WithContext(ctx).Omit("Collections").Create(product).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("product slug or variant sku: %w", apperrors.ErrConflict)
		}
		return err
	}
	return nil
}

// GetProduct returns a product with variants and collections
func (r *CatalogRepository) GetProduct(ctx context.Context, id uint) (*catalog.Product, error) {
	var product catalog.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Collections").
		First(&product, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, err
	}
	return &product, nil
}

// ListProducts returns a page of products, newest first
func (r *CatalogRepository) ListProducts(ctx context.Context, offset, limit int) ([]catalog.Product, int64, error) {
	var (
		products []catalog.Product
		total    int64
	)
	db := r.db.WithContext(ctx)
	if err := db.Model(&catalog.Product{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := db.Preload("Variants", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&products).Error
	return products, total, err
}

// CreateCollection inserts a collection with its windows and product links
func (r *CatalogRepository) CreateCollection(ctx context.Context, collection *catalog.Collection, productIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Products").Create(collection).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("collection slug %q: %w", collection.Slug, apperrors.ErrConflict)
			}
			return err
		}
		return r.replaceProducts(tx, collection, productIDs)
	})
}

// UpdateCollection replaces a collection's fields, windows and product links
func (r *CatalogRepository) UpdateCollection(ctx context.Context, collection *catalog.Collection, productIDs []uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&catalog.Collection{ID: collection.ID}).
			Select("title", "slug", "subtitle", "description", "status", "launch_date", "updated_at").
			Updates(map[string]interface{}{
				"title":       collection.Title,
				"slug":        collection.Slug,
				"subtitle":    collection.Subtitle,
				"description": collection.Description,
				"status":      collection.Status,
				"launch_date": collection.LaunchDate,
				"updated_at":  time.Now().UTC(),
			})
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("collection slug %q: %w", collection.Slug, apperrors.ErrConflict)
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return catalog.ErrCollectionNotFound
		}

		if err := tx.Where("collection_id = ?", collection.ID).Delete(&catalog.ReleaseWindow{}).Error; err != nil {
			return err
		}
		for i := range collection.ReleaseWindows {
			collection.ReleaseWindows[i].CollectionID = collection.ID
		}
		if len(collection.ReleaseWindows) > 0 {
			if err := tx.Create(&collection.ReleaseWindows).Error; err != nil {
				return err
			}
		}
		return r.replaceProducts(tx, collection, productIDs)
	})
}

func (r *CatalogRepository) replaceProducts(tx *gorm.DB, collection *catalog.Collection, productIDs []uint) error {
	products := []catalog.Product{}
	if len(productIDs) > 0 {
		if err := tx.Where("id IN ?", productIDs).Find(&products).Error; err != nil {
			return err
		}
		if len(products) != len(productIDs) {
			return catalog.ErrProductNotFound
		}
	}
	return tx.Model(collection).Omit("Products.*").Association("Products").Replace(products)
}

// GetCollection returns a collection with products and release windows
func (r *CatalogRepository) GetCollection(ctx context.Context, id uint) (*catalog.Collection, error) {
	var collection catalog.Collection
	err := r.db.WithContext(ctx).
		Preload("Products").
		Preload("ReleaseWindows", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&collection, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalog.ErrCollectionNotFound
		}
		return nil, err
	}
	return &collection, nil
}

// ListCollections returns every collection with its windows
func (r *CatalogRepository) ListCollections(ctx context.Context) ([]catalog.Collection, error) {
	var collections []catalog.Collection
	err := r.db.WithContext(ctx).
		Preload("Products").
		Preload("ReleaseWindows", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Order("id").
		Find(&collections).Error
	return collections, err
}

// CollectionSlugTaken reports whether another collection uses slug
func (r *CatalogRepository) CollectionSlugTaken(ctx context.Context, slug string, excludeID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&catalog.Collection{}).
		Where("slug = ? AND id <> ?", slug, excludeID).
		Count(&count).Error
	return count > 0, err
}
