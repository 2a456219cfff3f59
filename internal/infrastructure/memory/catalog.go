package memory

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
)

// CatalogStore is the catalog.Store view of the memory store
type CatalogStore struct{ *Store }

// Catalog returns the catalog.Store view
func (s *Store) Catalog() *CatalogStore { return &CatalogStore{s} }

var _ catalog.Store = (*CatalogStore)(nil)

func (st *state) variantDetail(v catalog.Variant) catalog.VariantDetail {
	p := st.products[v.ProductID]
	d := catalog.VariantDetail{
		Variant:       v,
		ProductName:   p.Name,
		ProductStatus: p.Status,
	}
	for _, cid := range sortedKeys(st.collectionProducts) {
		if !slices.Contains(st.collectionProducts[cid], v.ProductID) {
			continue
		}
		d.Collections = append(d.Collections, catalog.CollectionRef{
			CollectionID: cid,
			Windows:      st.windowsOf(cid),
		})
	}
	return d
}

func (st *state) windowsOf(collectionID uint) []catalog.ReleaseWindow {
	var out []catalog.ReleaseWindow
	for _, id := range sortedKeys(st.windows) {
		if w := st.windows[id]; w.CollectionID == collectionID {
			out = append(out, w)
		}
	}
	return out
}

func (st *state) loadProduct(id uint) catalog.Product {
	p := st.products[id]
	p.Variants = nil
	for _, vid := range sortedKeys(st.variants) {
		if v := st.variants[vid]; v.ProductID == id {
			p.Variants = append(p.Variants, v)
		}
	}
	return p
}

func (st *state) loadCollection(id uint) catalog.Collection {
	c := st.collections[id]
	c.ReleaseWindows = st.windowsOf(id)
	c.Products = nil
	for _, pid := range st.collectionProducts[id] {
		if p, ok := st.products[pid]; ok {
			c.Products = append(c.Products, p)
		}
	}
	return c
}

// GetVariant returns a variant with its product and collection context
func (s *CatalogStore) GetVariant(ctx context.Context, id uint) (*catalog.VariantDetail, error) {
	var (
		d  catalog.VariantDetail
		ok bool
	)
	s.read(func(st *state) {
		var v catalog.Variant
		if v, ok = st.variants[id]; ok {
			d = st.variantDetail(v)
		}
	})
	if !ok {
		return nil, catalog.ErrVariantNotFound
	}
	return &d, nil
}

// GetVariants returns the details of every variant found; missing ids are absent
func (s *CatalogStore) GetVariants(ctx context.Context, ids []uint) (map[uint]catalog.VariantDetail, error) {
	out := make(map[uint]catalog.VariantDetail, len(ids))
	s.read(func(st *state) {
		for _, id := range ids {
			if v, ok := st.variants[id]; ok {
				out[id] = st.variantDetail(v)
			}
		}
	})
	return out, nil
}

// SetStock replaces a variant's stock and records the adjustment
func (s *CatalogStore) SetStock(ctx context.Context, variantID uint, quantity int, reference string) (*catalog.Variant, error) {
	var out catalog.Variant
	err := s.write(func(st *state) error {
		v, ok := st.variants[variantID]
		if !ok {
			return catalog.ErrVariantNotFound
		}
		if quantity < 0 {
			return fmt.Errorf("stock_quantity must not be negative")
		}
		delta := quantity - v.StockQuantity
		v.StockQuantity = quantity
		v.UpdatedAt = s.now()
		st.variants[variantID] = v
		if delta != 0 {
			st.addMovement(variantID, delta, catalog.ReasonAdjustment, reference, s.now())
		}
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMovements returns a variant's stock movements, newest first
func (s *CatalogStore) ListMovements(ctx context.Context, variantID uint) ([]catalog.StockMovement, error) {
	var out []catalog.StockMovement
	s.read(func(st *state) {
		for i := len(st.movements) - 1; i >= 0; i-- {
			if st.movements[i].VariantID == variantID {
				out = append(out, st.movements[i])
			}
		}
	})
	return out, nil
}

// CreateProduct stores a product and its variants
func (s *CatalogStore) CreateProduct(ctx context.Context, product *catalog.Product) error {
	return s.write(func(st *state) error {
		for _, p := range st.products {
			if p.Slug == product.Slug {
				return fmt.Errorf("product slug %q: %w", product.Slug, apperrors.ErrConflict)
			}
		}
		skus := map[string]bool{}
		for _, v := range st.variants {
			skus[v.SKU] = true
		}

		now := s.now()
		product.ID = st.nextID()
		product.CreatedAt, product.UpdatedAt = now, now
		for i := range product.Variants {
			v := &product.Variants[i]
			if skus[v.SKU] {
				return fmt.Errorf("variant sku %q: %w", v.SKU, apperrors.ErrConflict)
			}
			skus[v.SKU] = true
			v.ID = st.nextID()
			v.ProductID = product.ID
			v.CreatedAt, v.UpdatedAt = now, now
			st.variants[v.ID] = *v
		}

		row := *product
		row.Variants, row.Collections = nil, nil
		st.products[product.ID] = row
		return nil
	})
}

// GetProduct returns a product with its variants
func (s *CatalogStore) GetProduct(ctx context.Context, id uint) (*catalog.Product, error) {
	var (
		p  catalog.Product
		ok bool
	)
	s.read(func(st *state) {
		if _, ok = st.products[id]; ok {
			p = st.loadProduct(id)
		}
	})
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

// ListProducts returns a page of products, newest first
func (s *CatalogStore) ListProducts(ctx context.Context, offset, limit int) ([]catalog.Product, int64, error) {
	var all []catalog.Product
	s.read(func(st *state) {
		keys := sortedKeys(st.products)
		slices.Reverse(keys)
		for _, id := range keys {
			all = append(all, st.loadProduct(id))
		}
	})
	return page(all, offset, limit), int64(len(all)), nil
}

// CreateCollection stores a collection with its windows and product links
func (s *CatalogStore) CreateCollection(ctx context.Context, collection *catalog.Collection, productIDs []uint) error {
	return s.write(func(st *state) error {
		collection.ID = st.nextID()
		return st.saveCollection(collection, productIDs, s.now())
	})
}

// UpdateCollection replaces a collection, its windows and product links
func (s *CatalogStore) UpdateCollection(ctx context.Context, collection *catalog.Collection, productIDs []uint) error {
	return s.write(func(st *state) error {
		existing, ok := st.collections[collection.ID]
		if !ok {
			return catalog.ErrCollectionNotFound
		}
		collection.CreatedAt = existing.CreatedAt
		for id, w := range st.windows {
			if w.CollectionID == collection.ID {
				delete(st.windows, id)
			}
		}
		return st.saveCollection(collection, productIDs, s.now())
	})
}

func (st *state) saveCollection(collection *catalog.Collection, productIDs []uint, now time.Time) error {
	for id, c := range st.collections {
		if c.Slug == collection.Slug && id != collection.ID {
			return fmt.Errorf("collection slug %q: %w", collection.Slug, apperrors.ErrConflict)
		}
	}
	for _, pid := range productIDs {
		if _, ok := st.products[pid]; !ok {
			return fmt.Errorf("product %d: %w", pid, catalog.ErrProductNotFound)
		}
	}

	if collection.CreatedAt.IsZero() {
		collection.CreatedAt = now
	}
	collection.UpdatedAt = now
	for i := range collection.ReleaseWindows {
		w := &collection.ReleaseWindows[i]
		w.ID = st.nextID()
		w.CollectionID = collection.ID
		w.CreatedAt = now
		st.windows[w.ID] = *w
	}
	st.collectionProducts[collection.ID] = slices.Clone(productIDs)

	row := *collection
	row.ReleaseWindows, row.Products = nil, nil
	st.collections[collection.ID] = row
	return nil
}

// GetCollection returns a collection with products and release windows
func (s *CatalogStore) GetCollection(ctx context.Context, id uint) (*catalog.Collection, error) {
	var (
		c  catalog.Collection
		ok bool
	)
	s.read(func(st *state) {
		if _, ok = st.collections[id]; ok {
			c = st.loadCollection(id)
		}
	})
	if !ok {
		return nil, catalog.ErrCollectionNotFound
	}
	return &c, nil
}

// ListCollections returns every collection
func (s *CatalogStore) ListCollections(ctx context.Context) ([]catalog.Collection, error) {
	var out []catalog.Collection
	s.read(func(st *state) {
		for _, id := range sortedKeys(st.collections) {
			out = append(out, st.loadCollection(id))
		}
	})
	return out, nil
}

// CollectionSlugTaken reports whether another collection uses slug
func (s *CatalogStore) CollectionSlugTaken(ctx context.Context, slug string, excludeID uint) (bool, error) {
	taken := false
	s.read(func(st *state) {
		for id, c := range st.collections {
			if c.Slug == slug && id != excludeID {
				taken = true
			}
		}
	})
	return taken, nil
}

func (st *state) addMovement(variantID uint, delta int, reason catalog.MovementReason, reference string, now time.Time) {
	st.movements = append(st.movements, catalog.StockMovement{
		ID:        st.nextID(),
		VariantID: variantID,
		Delta:     delta,
		Reason:    reason,
		Reference: reference,
		CreatedAt: now,
	})
}
