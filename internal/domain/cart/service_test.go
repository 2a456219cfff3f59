package cart_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yametee/storefront-api/internal/domain/cart"
	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/infrastructure/memory"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
	"github.com/yametee/storefront-api/internal/pkg/auth"
	"github.com/yametee/storefront-api/internal/pkg/logger"
)

type fixture struct {
	svc    *cart.Service
	store  *memory.Store
	teeM   uint
	teeL   uint
	hasher *auth.CartTokenHasher
}

func setup(t *testing.T) fixture {
	t.Helper()
	store := memory.NewStore()
	product := &catalog.Product{
		Name:   "Oni Mask Tee",
		Slug:   "oni-mask-tee",
		Status: catalog.ProductStatusActive,
		Variants: []catalog.Variant{
			{SKU: "ONI-M", Size: "M", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: 5},
			{SKU: "ONI-L", Size: "L", Color: "Black", Price: decimal.NewFromInt(550), StockQuantity: 1},
		},
	}
	require.NoError(t, store.Catalog().CreateProduct(context.Background(), product))

	hasher := auth.NewCartTokenHasher("test-key")
	return fixture{
		svc:    cart.NewService(store.Carts(), store.Catalog(), hasher, logger.Discard()),
		store:  store,
		teeM:   product.Variants[0].ID,
		teeL:   product.Variants[1].ID,
		hasher: hasher,
	}
}

func guest(t *testing.T) cart.Owner {
	t.Helper()
	token, err := auth.NewCartToken()
	require.NoError(t, err)
	return cart.Owner{SessionToken: token}
}

func customer(id uint) cart.Owner {
	return cart.Owner{CustomerID: &id}
}

func TestAddOrUpdateLine_DeltaAndAbsolute(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := guest(t)

	view, err := f.svc.AddOrUpdateLine(ctx, owner, f.teeM, 2, cart.ModeDelta)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 2, view.Lines[0].Quantity)

	view, err = f.svc.AddOrUpdateLine(ctx, owner, f.teeM, 1, cart.ModeDelta)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Lines[0].Quantity)
	assert.True(t, view.Subtotal.Equal(decimal.NewFromInt(1500)))

	view, err = f.svc.AddOrUpdateLine(ctx, owner, f.teeM, 1, cart.ModeAbsolute)
	require.NoError(t, err)
	assert.Equal(t, 1, view.Lines[0].Quantity)

	view, err = f.svc.AddOrUpdateLine(ctx, owner, f.teeM, -5, cart.ModeDelta)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestAddOrUpdateLine_FlagsStockWithoutBlocking(t *testing.T) {
	f := setup(t)
	view, err := f.svc.AddOrUpdateLine(context.Background(), guest(t), f.teeL, 3, cart.ModeAbsolute)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.False(t, view.Lines[0].InStock)
	assert.Equal(t, 3, view.ItemCount)
}

func TestAddOrUpdateLine_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := guest(t)

	_, err := f.svc.AddOrUpdateLine(ctx, owner, 9999, 1, cart.ModeDelta)
	var ve *apperrors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "variant_id", ve.Field)

	_, err = f.svc.AddOrUpdateLine(ctx, owner, f.teeM, cart.MaxLineQuantity+1, cart.ModeAbsolute)
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.GetCart(ctx, cart.Owner{SessionToken: "not-a-token"})
	assert.ErrorAs(t, err, &ve)
}

func TestGuestCartIsStoredUnderHashedToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := guest(t)

	_, err := f.svc.AddOrUpdateLine(ctx, owner, f.teeM, 1, cart.ModeDelta)
	require.NoError(t, err)

	_, err = f.store.Carts().FindCart(ctx, cart.Key{SessionKey: owner.SessionToken})
	assert.ErrorIs(t, err, cart.ErrCartNotFound)

	c, err := f.store.Carts().FindCart(ctx, cart.Key{SessionKey: f.hasher.Hash(owner.SessionToken)})
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)
}

func TestMergeGuestIntoCustomer_SumsQuantities(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	g := guest(t)
	c := customer(42)

	_, err := f.svc.AddOrUpdateLine(ctx, g, f.teeM, 2, cart.ModeDelta)
	require.NoError(t, err)
	_, err = f.svc.AddOrUpdateLine(ctx, c, f.teeM, 1, cart.ModeDelta)
	require.NoError(t, err)

	view, err := f.svc.MergeGuestIntoCustomer(ctx, g.SessionToken, 42)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 3, view.Lines[0].Quantity)

	_, err = f.store.Carts().FindCart(ctx, cart.Key{SessionKey: f.hasher.Hash(g.SessionToken)})
	assert.ErrorIs(t, err, cart.ErrCartNotFound)

	// a retried merge finds no guest cart and leaves the customer cart alone
	view, err = f.svc.MergeGuestIntoCustomer(ctx, g.SessionToken, 42)
	require.NoError(t, err)
	assert.Equal(t, 3, view.Lines[0].Quantity)
}

func TestMergeGuestIntoCustomer_CapsLineQuantity(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	g := guest(t)

	_, err := f.svc.AddOrUpdateLine(ctx, g, f.teeM, 60, cart.ModeAbsolute)
	require.NoError(t, err)
	_, err = f.svc.AddOrUpdateLine(ctx, customer(42), f.teeM, 50, cart.ModeAbsolute)
	require.NoError(t, err)

	view, err := f.svc.MergeGuestIntoCustomer(ctx, g.SessionToken, 42)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, cart.MaxLineQuantity, view.Lines[0].Quantity)
}

// lateMerge lets another merge of the same guest cart win just before this
// one runs
type lateMerge struct {
	*memory.CartStore
}

func (s lateMerge) MergeCarts(ctx context.Context, fromCartID, intoCartID uint) error {
	if err := s.CartStore.MergeCarts(ctx, fromCartID, intoCartID); err != nil {
		return err
	}
	return s.CartStore.MergeCarts(ctx, fromCartID, intoCartID)
}

func TestMergeGuestIntoCustomer_LosingConcurrentMergeIsNoop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	g := guest(t)

	_, err := f.svc.AddOrUpdateLine(ctx, g, f.teeM, 2, cart.ModeDelta)
	require.NoError(t, err)
	_, err = f.svc.AddOrUpdateLine(ctx, customer(42), f.teeM, 1, cart.ModeDelta)
	require.NoError(t, err)

	svc := cart.NewService(lateMerge{f.store.Carts()}, f.store.Catalog(), f.hasher, logger.Discard())
	view, err := svc.MergeGuestIntoCustomer(ctx, g.SessionToken, 42)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 3, view.Lines[0].Quantity)
}

func TestSnapshotAndClear(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	owner := guest(t)

	snap, err := f.svc.Snapshot(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, snap.Lines)

	_, err = f.svc.AddOrUpdateLine(ctx, owner, f.teeM, 2, cart.ModeDelta)
	require.NoError(t, err)
	_, err = f.svc.AddOrUpdateLine(ctx, owner, f.teeL, 1, cart.ModeDelta)
	require.NoError(t, err)

	snap, err = f.svc.Snapshot(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, snap.Lines, 2)

	require.NoError(t, f.svc.Clear(ctx, owner))
	view, err := f.svc.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}

func TestCustomerCartIgnoresSessionToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	g := guest(t)

	_, err := f.svc.AddOrUpdateLine(ctx, g, f.teeM, 1, cart.ModeDelta)
	require.NoError(t, err)

	id := uint(7)
	owner := cart.Owner{SessionToken: g.SessionToken, CustomerID: &id}
	view, err := f.svc.GetCart(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, view.Lines)
}
