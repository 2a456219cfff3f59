// internal/domain/catalog/service.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
)

// Service handles back-office catalog operations
type Service struct {
	store  Store
	logger logrus.FieldLogger
}

// NewService creates a new catalog service
func NewService(store Store, logger logrus.FieldLogger) *Service {
	return &Service{
		store:  store,
		logger: logger.WithField("component", "catalog"),
	}
}

// CreateProductRequest represents the request to create a product with its variants
type CreateProductRequest struct {
	Name        string           `json:"name" binding:"required"`
	Slug        string           `json:"slug" binding:"required"`
	Description string           `json:"description"`
	Status      ProductStatus    `json:"status"`
	Variants    []VariantRequest `json:"variants" binding:"required,min=1,dive"`
}

// VariantRequest represents one size/color combination in a product request
type VariantRequest struct {
	SKU           string          `json:"sku" binding:"required"`
	Size          string          `json:"size" binding:"required"`
	Color         string          `json:"color" binding:"required"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
}

// CollectionRequest represents the request to create or replace a collection
type CollectionRequest struct {
	Title          string                 `json:"title"`
	Slug           string                 `json:"slug"`
	Subtitle       string                 `json:"subtitle"`
	Description    string                 `json:"description"`
	Status         CollectionStatus       `json:"status"`
	LaunchDate     *time.Time             `json:"launch_date"`
	ProductIDs     []uint                 `json:"product_ids"`
	ReleaseWindows []ReleaseWindowRequest `json:"release_windows"`
}

// ReleaseWindowRequest represents one release window in a collection request
type ReleaseWindowRequest struct {
	StartsAt      *time.Time    `json:"starts_at"`
	EndsAt        *time.Time    `json:"ends_at"`
	Status        ReleaseStatus `json:"status"`
	AllowlistOnly bool          `json:"allowlist_only"`
	MaxUnits      *int          `json:"max_units"`
	Notes         string        `json:"notes"`
}

// SetStock replaces a variant's stock counter (admin stock edit)
func (s *Service) SetStock(ctx context.Context, variantID uint, quantity int) (*Variant, error) {
	if quantity < 0 {
		return nil, apperrors.Validation("stock_quantity", "Invalid stock quantity")
	}

	variant, err := s.store.SetStock(ctx, variantID, quantity, "admin")
	if err != nil {
		if errors.Is(err, ErrVariantNotFound) {
			return nil, fmt.Errorf("variant %d: %w", variantID, apperrors.ErrNotFound)
		}
		return nil, apperrors.Persistence("update variant stock", err)
	}

	s.logger.WithFields(logrus.Fields{
		"variant_id": variantID,
		"stock":      quantity,
	}).Info("Variant stock updated")

	return variant, nil
}

// GetVariant returns a variant with its product context
func (s *Service) GetVariant(ctx context.Context, id uint) (*VariantDetail, error) {
	detail, err := s.store.GetVariant(ctx, id)
	if err != nil {
		if errors.Is(err, ErrVariantNotFound) {
			return nil, fmt.Errorf("variant %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get variant: %w", err)
	}
	return detail, nil
}

// StockMovements returns the audit trail of a variant
func (s *Service) StockMovements(ctx context.Context, variantID uint) ([]StockMovement, error) {
	movements, err := s.store.ListMovements(ctx, variantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock movements: %w", err)
	}
	return movements, nil
}

// CreateProduct creates a product together with its variants
func (s *Service) CreateProduct(ctx context.Context, req CreateProductRequest) (*Product, error) {
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Slug) == "" {
		return nil, apperrors.Validation("", "Name and slug are required")
	}
	if len(req.Variants) == 0 {
		return nil, apperrors.Validation("variants", "At least one variant is required")
	}

	status := req.Status
	if status == "" {
		status = ProductStatusDraft
	}

	product := &Product{
		Name:        strings.TrimSpace(req.Name),
		Slug:        strings.TrimSpace(req.Slug),
		Description: req.Description,
		Status:      status,
	}
	for _, v := range req.Variants {
		if v.Price.IsNegative() {
			return nil, apperrors.Validation("price", "Price must not be negative")
		}
		if v.StockQuantity < 0 {
			return nil, apperrors.Validation("stock_quantity", "Invalid stock quantity")
		}
		product.Variants = append(product.Variants, Variant{
			SKU:           v.SKU,
			Size:          v.Size,
			Color:         v.Color,
			Price:         v.Price.Round(2),
			StockQuantity: v.StockQuantity,
		})
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, apperrors.Persistence("create product", err)
	}

	s.logger.WithFields(logrus.Fields{
		"product_id": product.ID,
		"variants":   len(product.Variants),
	}).Info("Product created")

	return product, nil
}

// GetProduct returns a product with its variants
func (s *Service) GetProduct(ctx context.Context, id uint) (*Product, error) {
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, fmt.Errorf("product %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return product, nil
}

// ListProducts returns a page of products
func (s *Service) ListProducts(ctx context.Context, page, limit int) ([]Product, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	products, total, err := s.store.ListProducts(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list products: %w", err)
	}
	return products, total, nil
}

// CreateCollection creates a collection with its products and release windows
func (s *Service) CreateCollection(ctx context.Context, req CollectionRequest) (*Collection, error) {
	collection, err := s.buildCollection(ctx, 0, req)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateCollection(ctx, collection, req.ProductIDs); err != nil {
		return nil, apperrors.Persistence("create collection", err)
	}

	s.logger.WithField("collection_id", collection.ID).Info("Collection created")
	return collection, nil
}

// UpdateCollection replaces a collection's fields, products and release windows
func (s *Service) UpdateCollection(ctx context.Context, id uint, req CollectionRequest) (*Collection, error) {
	if _, err := s.store.GetCollection(ctx, id); err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			return nil, fmt.Errorf("collection %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	collection, err := s.buildCollection(ctx, id, req)
	if err != nil {
		return nil, err
	}
	collection.ID = id

	if err := s.store.UpdateCollection(ctx, collection, req.ProductIDs); err != nil {
		return nil, apperrors.Persistence("update collection", err)
	}

	s.logger.WithField("collection_id", id).Info("Collection updated")
	return collection, nil
}

// GetCollection returns a collection with products and release windows
func (s *Service) GetCollection(ctx context.Context, id uint) (*Collection, error) {
	collection, err := s.store.GetCollection(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCollectionNotFound) {
			return nil, fmt.Errorf("collection %d: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return collection, nil
}

// ListCollections returns every collection
func (s *Service) ListCollections(ctx context.Context) ([]Collection, error) {
	collections, err := s.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return collections, nil
}

func (s *Service) buildCollection(ctx context.Context, id uint, req CollectionRequest) (*Collection, error) {
	title := strings.TrimSpace(req.Title)
	slug := strings.TrimSpace(req.Slug)
	if title == "" || slug == "" {
		return nil, apperrors.Validation("", "Title and slug are required")
	}

	taken, err := s.store.CollectionSlugTaken(ctx, slug, id)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection slug: %w", err)
	}
	if taken {
		return nil, apperrors.Validation("slug", "Slug already exists")
	}

	status := req.Status
	if status == "" {
		status = CollectionStatusDraft
	}

	collection := &Collection{
		Title:       title,
		Slug:        slug,
		Subtitle:    req.Subtitle,
		Description: req.Description,
		Status:      status,
		LaunchDate:  req.LaunchDate,
	}

	for _, w := range req.ReleaseWindows {
		// windows without a start are dropped, matching the admin form
		if w.StartsAt == nil {
			continue
		}
		if w.EndsAt != nil && !w.EndsAt.After(*w.StartsAt) {
			return nil, apperrors.Validation("release_windows", "Release window must end after it starts")
		}
		if w.MaxUnits != nil && *w.MaxUnits < 0 {
			return nil, apperrors.Validation("release_windows", "Max units must not be negative")
		}
		windowStatus := w.Status
		if windowStatus == "" {
			windowStatus = ReleaseStatusDraft
		}
		collection.ReleaseWindows = append(collection.ReleaseWindows, ReleaseWindow{
			StartsAt:      *w.StartsAt,
			EndsAt:        w.EndsAt,
			Status:        windowStatus,
			AllowlistOnly: w.AllowlistOnly,
			MaxUnits:      w.MaxUnits,
			Notes:         w.Notes,
		})
	}

	return collection, nil
}
