package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/domain/cart"
	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/domain/checkout"
	"github.com/yametee/storefront-api/internal/domain/order"
	"github.com/yametee/storefront-api/internal/domain/payment"
	"github.com/yametee/storefront-api/internal/domain/promotion"
	"github.com/yametee/storefront-api/internal/infrastructure/memory"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
	"github.com/yametee/storefront-api/internal/pkg/auth"
	"github.com/yametee/storefront-api/internal/pkg/logger"
)

type fakeGateway struct {
	mu       sync.Mutex
	err      error
	requests []payment.SessionRequest
}

func (g *fakeGateway) Name() string { return "FAKE" }

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	if g.err != nil {
		return nil, g.err
	}
	return &payment.Session{ID: "cs_" + req.ReferenceNumber, CheckoutURL: "https://pay.example/" + req.ReferenceNumber}, nil
}

func (g *fakeGateway) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	return payment.DecodePayMongoEvent(payload)
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// failingClear wraps the cart service with a Clear that always fails
type failingClear struct {
	*cart.Service
}

func (failingClear) Clear(ctx context.Context, owner cart.Owner) error {
	return errors.New("cart store unavailable")
}

type fixture struct {
	store   *memory.Store
	carts   *cart.Service
	gateway *fakeGateway
	cfg     *config.Config
	deps    checkout.Dependencies
	teeM    uint
	teeL    uint
	promo   *promotion.Promotion
	owner   cart.Owner
}

func setup(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	product := &catalog.Product{
		Name:   "Oni Mask Tee",
		Slug:   "oni-mask-tee",
		Status: catalog.ProductStatusActive,
		Variants: []catalog.Variant{
			{SKU: "ONI-M", Size: "M", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: 20},
			{SKU: "ONI-L", Size: "L", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: 5},
		},
	}
	require.NoError(t, store.Catalog().CreateProduct(ctx, product))

	promotions := promotion.NewService(store.Promotions(), logger.Discard(), nil)
	ten, threshold := decimal.NewFromInt(10), decimal.NewFromInt(800)
	promo, err := promotions.Create(ctx, promotion.Request{
		Name:        "Welcome 10%",
		Code:        "WELCOME10",
		Type:        promotion.TypePercentage,
		Status:      promotion.StatusActive,
		Value:       &ten,
		MinSubtotal: &threshold,
	})
	require.NoError(t, err)

	carts := cart.NewService(store.Carts(), store.Catalog(), auth.NewCartTokenHasher("test-key"), logger.Discard())
	gateway := &fakeGateway{}

	cfg := &config.Config{
		Checkout: config.CheckoutConfig{
			ShippingFee:    decimal.NewFromInt(100),
			Currency:       "PHP",
			DefaultChannel: "web",
			SuccessURL:     "https://shop.example/orders/%s?paid=1",
			FailedURL:      "https://shop.example/orders/%s?failed=1",
		},
		PayMongo: config.PayMongoConfig{Timeout: time.Second},
	}

	token, err := auth.NewCartToken()
	require.NoError(t, err)

	return &fixture{
		store:   store,
		carts:   carts,
		gateway: gateway,
		cfg:     cfg,
		deps: checkout.Dependencies{
			Carts:      carts,
			Catalog:    store.Catalog(),
			Promotions: promotions,
			Orders:     store.Orders(),
			Gateway:    gateway,
		},
		teeM:  product.Variants[0].ID,
		teeL:  product.Variants[1].ID,
		promo: promo,
		owner: cart.Owner{SessionToken: token},
	}
}

func (f *fixture) service() *checkout.Service {
	return checkout.NewService(f.deps, f.cfg, logger.Discard())
}

func (f *fixture) add(t *testing.T, variantID uint, qty int) {
	t.Helper()
	_, err := f.carts.AddOrUpdateLine(context.Background(), f.owner, variantID, qty, cart.ModeAbsolute)
	require.NoError(t, err)
}

func (f *fixture) request(code string) checkout.Request {
	return checkout.Request{
		Owner: f.owner,
		Customer: checkout.CustomerDetails{
			Email:      " Ana@Example.com ",
			Name:       "Ana Cruz",
			Phone:      "09171234567",
			Line1:      "12 Rizal St",
			City:       "Manila",
			Province:   "Metro Manila",
			PostalCode: "1000",
		},
		PaymentMethod: "gcash",
		PromotionCode: code,
	}
}

func (f *fixture) orders(t *testing.T) []order.Order {
	t.Helper()
	list, _, err := f.store.Orders().List(context.Background(), order.ListFilter{Limit: 100})
	require.NoError(t, err)
	return list
}

func (f *fixture) stock(t *testing.T, variantID uint) int {
	t.Helper()
	d, err := f.store.Catalog().GetVariant(context.Background(), variantID)
	require.NoError(t, err)
	return d.StockQuantity
}

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCheckout_CreatesPendingOrderWithPromotion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.add(t, f.teeM, 2)

	res, err := f.service().Checkout(ctx, f.request("welcome10"))
	require.NoError(t, err)

	assert.True(t, res.Quote.Subtotal.Equal(money(1000)))
	assert.True(t, res.Quote.DiscountTotal.Equal(money(100)))
	assert.True(t, res.Quote.ShippingFee.Equal(money(100)))
	assert.True(t, res.Quote.GrandTotal.Equal(money(1000)))
	assert.Equal(t, order.OrderStatusPending, res.Status)
	assert.Equal(t, order.PaymentStatusPending, res.PaymentStatus)
	assert.Equal(t, "https://pay.example/"+res.OrderNumber, res.CheckoutURL)

	require.Equal(t, 1, f.gateway.calls())
	req := f.gateway.requests[0]
	assert.Equal(t, int64(100000), req.AmountMinor)
	// discounted orders go to the gateway as one line for the grand total
	require.Len(t, req.LineItems, 1)
	assert.Equal(t, "Order "+res.OrderNumber, req.LineItems[0].Name)
	assert.Equal(t, 1, req.LineItems[0].Quantity)
	assert.Equal(t, req.AmountMinor, payment.LineItemsTotal(req.LineItems))
	assert.Equal(t, res.OrderNumber, req.Metadata["order_number"])
	assert.Equal(t, "https://shop.example/orders/"+res.OrderNumber+"?paid=1", req.SuccessURL)

	o, err := f.store.Orders().FindByNumber(ctx, res.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", o.Email)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
	require.Len(t, o.Promotions, 1)
	assert.Equal(t, "WELCOME10", o.Promotions[0].Code)
	require.Len(t, o.Payments, 1)
	assert.Equal(t, "cs_"+res.OrderNumber, o.Payments[0].ProviderPaymentID)
	assert.Equal(t, order.PaymentStatusPending, o.Payments[0].Status)

	// stock moves only when the payment is confirmed
	assert.Equal(t, 20, f.stock(t, f.teeM))

	snap, err := f.carts.Snapshot(ctx, f.owner)
	require.NoError(t, err)
	assert.Empty(t, snap.Lines)

	p, err := f.store.Promotions().Get(ctx, f.promo.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.UsageCount)
}

func TestCheckout_SessionChargesShipping(t *testing.T) {
	f := setup(t)
	f.add(t, f.teeM, 2)

	res, err := f.service().Checkout(context.Background(), f.request(""))
	require.NoError(t, err)
	assert.True(t, res.Quote.GrandTotal.Equal(money(1100)))

	require.Equal(t, 1, f.gateway.calls())
	req := f.gateway.requests[0]
	assert.Equal(t, int64(110000), req.AmountMinor)
	assert.Equal(t, []payment.LineItem{
		{Name: "Oni Mask Tee (M / Black)", Quantity: 2, AmountMinor: 50000},
		{Name: "Shipping", Quantity: 1, AmountMinor: 10000},
	}, req.LineItems)
	assert.Equal(t, req.AmountMinor, payment.LineItemsTotal(req.LineItems))
}

func TestCheckout_GatewayFailureDoesNotRedeemPromotion(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	one, five := 1, decimal.NewFromInt(5)
	promotions := promotion.NewService(f.store.Promotions(), logger.Discard(), nil)
	limited, err := promotions.Create(ctx, promotion.Request{
		Name:       "Launch 5%",
		Code:       "LAUNCH5",
		Type:       promotion.TypePercentage,
		Status:     promotion.StatusActive,
		Value:      &five,
		UsageLimit: &one,
	})
	require.NoError(t, err)

	f.add(t, f.teeM, 2)
	f.gateway.err = &apperrors.GatewayError{Op: "create checkout session", Err: context.DeadlineExceeded, Retryable: true}

	_, err = f.service().Checkout(ctx, f.request("LAUNCH5"))
	var ge *apperrors.GatewayError
	require.ErrorAs(t, err, &ge)

	p, err := f.store.Promotions().Get(ctx, limited.ID)
	require.NoError(t, err)
	assert.Zero(t, p.UsageCount)

	f.gateway.err = nil
	res, err := f.service().Checkout(ctx, f.request("LAUNCH5"))
	require.NoError(t, err)
	assert.True(t, res.Quote.DiscountTotal.Equal(money(50)))
	assert.True(t, res.Quote.GrandTotal.Equal(money(1050)))
	assert.Empty(t, res.Quote.Rejections)

	p, err = f.store.Promotions().Get(ctx, limited.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, p.UsageCount)
	assert.Len(t, f.orders(t), 2)
}

func TestCheckout_StockShortfallWritesNothing(t *testing.T) {
	f := setup(t)
	f.add(t, f.teeL, 6)
	f.add(t, f.teeM, 1)

	_, err := f.service().Checkout(context.Background(), f.request(""))
	var se *apperrors.StockError
	require.ErrorAs(t, err, &se)
	require.Len(t, se.Lines, 1)
	assert.Equal(t, f.teeL, se.Lines[0].VariantID)
	assert.Equal(t, 6, se.Lines[0].Requested)
	assert.Equal(t, 5, se.Lines[0].Available)

	assert.Empty(t, f.orders(t))
	assert.Zero(t, f.gateway.calls())
}

func TestCheckout_GatewayFailureLeavesOrderUnpaid(t *testing.T) {
	f := setup(t)
	f.gateway.err = &apperrors.GatewayError{Op: "create checkout session", Err: errors.New("timeout"), Retryable: true}
	f.add(t, f.teeM, 1)

	_, err := f.service().Checkout(context.Background(), f.request(""))
	var ge *apperrors.GatewayError
	require.ErrorAs(t, err, &ge)
	assert.True(t, ge.Retryable)

	orders := f.orders(t)
	require.Len(t, orders, 1)
	assert.Equal(t, order.OrderStatusPending, orders[0].Status)
	assert.Equal(t, order.PaymentStatusUnpaid, orders[0].PaymentStatus)
	assert.Empty(t, orders[0].Payments)

	snap, err := f.carts.Snapshot(context.Background(), f.owner)
	require.NoError(t, err)
	assert.Len(t, snap.Lines, 1)
}

func TestCheckout_CartClearFailureIsNotFatal(t *testing.T) {
	f := setup(t)
	f.add(t, f.teeM, 1)
	f.deps.Carts = failingClear{f.carts}

	res, err := f.service().Checkout(context.Background(), f.request(""))
	require.NoError(t, err)
	assert.NotEmpty(t, res.OrderNumber)
	assert.Len(t, f.orders(t), 1)
}

func TestCheckout_Validation(t *testing.T) {
	f := setup(t)
	svc := f.service()
	ctx := context.Background()

	var ve *apperrors.ValidationError
	_, err := svc.Checkout(ctx, f.request(""))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "cart", ve.Field)

	f.add(t, f.teeM, 1)

	req := f.request("")
	req.PaymentMethod = "cod"
	_, err = svc.Checkout(ctx, req)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "payment_method", ve.Field)

	req = f.request("")
	req.Customer.Email = "not-an-email"
	_, err = svc.Checkout(ctx, req)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "email", ve.Field)

	req = f.request("")
	req.Customer.City = " "
	_, err = svc.Checkout(ctx, req)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "city", ve.Field)

	_, err = svc.Checkout(ctx, f.request("NOPE"))
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "promotion_code", ve.Field)

	assert.Empty(t, f.orders(t))
}

func TestCheckout_BelowThresholdKeepsFullPrice(t *testing.T) {
	f := setup(t)
	f.add(t, f.teeM, 1)

	res, err := f.service().Checkout(context.Background(), f.request("WELCOME10"))
	require.NoError(t, err)
	assert.True(t, res.Quote.DiscountTotal.IsZero())
	assert.True(t, res.Quote.GrandTotal.Equal(money(600)))
	require.Len(t, res.Quote.Rejections, 1)
	assert.Equal(t, promotion.ReasonBelowThreshold, res.Quote.Rejections[0].Reason)
}

func TestPreview_PersistsNothing(t *testing.T) {
	f := setup(t)
	svc := f.service()
	ctx := context.Background()

	q, err := svc.Preview(ctx, checkout.Request{Owner: f.owner})
	require.NoError(t, err)
	assert.Empty(t, q.Lines)
	assert.True(t, q.GrandTotal.IsZero())

	f.add(t, f.teeM, 2)
	q, err = svc.Preview(ctx, checkout.Request{Owner: f.owner, PromotionCode: "WELCOME10"})
	require.NoError(t, err)
	assert.True(t, q.GrandTotal.Equal(money(1000)))

	assert.Empty(t, f.orders(t))
	assert.Zero(t, f.gateway.calls())
}
