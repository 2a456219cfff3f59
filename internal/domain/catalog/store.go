package catalog

import "context"

// Store is the Catalog Store. Stock debits for paid orders happen inside the
// order lifecycle transaction, not here.
type Store interface {
	GetVariant(ctx context.Context, id uint) (*VariantDetail, error)
	GetVariants(ctx context.Context, ids []uint) (map[uint]VariantDetail, error)
	SetStock(ctx context.Context, variantID uint, quantity int, reference string) (*Variant, error)
	ListMovements(ctx context.Context, variantID uint) ([]StockMovement, error)

	CreateProduct(ctx context.Context, product *Product) error
	GetProduct(ctx context.Context, id uint) (*Product, error)
	ListProducts(ctx context.Context, offset, limit int) ([]Product, int64, error)

	CreateCollection(ctx context.Context, collection *Collection, productIDs []uint) error
	UpdateCollection(ctx context.Context, collection *Collection, productIDs []uint) error
	GetCollection(ctx context.Context, id uint) (*Collection, error)
	ListCollections(ctx context.Context) ([]Collection, error)
	CollectionSlugTaken(ctx context.Context, slug string, excludeID uint) (bool, error)
}
