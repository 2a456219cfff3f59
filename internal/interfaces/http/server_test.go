package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
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
	"github.com/yametee/storefront-api/internal/interfaces/http/handlers"
	"github.com/yametee/storefront-api/internal/interfaces/http/middleware"
	"github.com/yametee/storefront-api/internal/interfaces/http/routes"
	"github.com/yametee/storefront-api/internal/pkg/auth"
	"github.com/yametee/storefront-api/internal/pkg/logger"
	"github.com/yametee/storefront-api/internal/pkg/metrics"
	"github.com/yametee/storefront-api/internal/pkg/pdf"
)

const webhookSecret = "whsk_test"

type testAPI struct {
	handler http.Handler
	store   *memory.Store
	jwt     *auth.JWTManager
	variant uint
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := logger.Discard()

	paymongo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data struct {
				Attributes struct {
					ReferenceNumber string `json:"reference_number"`
				} `json:"attributes"`
			} `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		ref := body.Data.Attributes.ReferenceNumber
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"data":{"id":"cs_%s","attributes":{"checkout_url":"https://pay.example/%s"}}}`, ref, ref)
	}))
	t.Cleanup(paymongo.Close)

	cfg := &config.Config{
		App: config.AppConfig{Name: "storefront-api", Version: "test", Environment: "test"},
		Security: config.SecurityConfig{
			RateLimitPerMinute: 1000,
			CartCookieName:     "cart_session",
			CartCookieMaxAge:   time.Hour,
			CartTokenKey:       "test-key",
		},
		JWT: config.JWTConfig{Secret: "jwt-secret", Issuer: "test", AccessTokenExpiry: time.Hour},
		PayMongo: config.PayMongoConfig{
			SecretKey:          "sk_test",
			WebhookSecret:      webhookSecret,
			BaseURL:            paymongo.URL,
			Timeout:            2 * time.Second,
			SignatureTolerance: 5 * time.Minute,
		},
		Checkout: config.CheckoutConfig{
			ShippingFee:    decimal.NewFromInt(100),
			Currency:       "PHP",
			DefaultChannel: "web",
			SuccessURL:     "https://shop.example/orders/%s",
			FailedURL:      "https://shop.example/orders/%s?failed=1",
		},
	}

	store := memory.NewStore()
	product := &catalog.Product{
		Name:   "Oni Mask Tee",
		Slug:   "oni-mask-tee",
		Status: catalog.ProductStatusActive,
		Variants: []catalog.Variant{
			{SKU: "ONI-M", Size: "M", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: 20},
		},
	}
	require.NoError(t, store.Catalog().CreateProduct(ctx, product))

	m := metrics.New()
	promotions := promotion.NewService(store.Promotions(), log, m)
	ten, threshold := decimal.NewFromInt(10), decimal.NewFromInt(800)
	_, err := promotions.Create(ctx, promotion.Request{
		Name: "Welcome 10%", Code: "WELCOME10", Type: promotion.TypePercentage,
		Status: promotion.StatusActive, Value: &ten, MinSubtotal: &threshold,
	})
	require.NoError(t, err)

	gateway := payment.NewPayMongoGateway(cfg.PayMongo, false, log, m)
	carts := cart.NewService(store.Carts(), store.Catalog(), auth.NewCartTokenHasher(cfg.Security.CartTokenKey), log)
	receipts := pdf.NewServiceWithConverter(cfg, func(html []byte) ([]byte, error) {
		return append([]byte("%PDF-"), html[:10]...), nil
	})
	orders := order.NewService(store.Orders(), gateway, order.Options{
		Guard:    memory.NewEventGuard(),
		Receipts: receipts,
		Metrics:  m,
	}, log)
	checkoutSvc := checkout.NewService(checkout.Dependencies{
		Carts:      carts,
		Catalog:    store.Catalog(),
		Promotions: promotions,
		Orders:     store.Orders(),
		Gateway:    gateway,
		Metrics:    m,
	}, cfg, log)

	jwtManager := auth.NewJWTManager(cfg.JWT)
	srv := NewServer(cfg, Options{
		Handlers: routes.Handlers{
			Cart:       handlers.NewCartHandler(carts, log),
			Checkout:   handlers.NewCheckoutHandler(checkoutSvc, log),
			Order:      handlers.NewOrderHandler(orders, log),
			Webhook:    handlers.NewWebhookHandler(orders, log),
			Catalog:    handlers.NewCatalogHandler(catalog.NewService(store.Catalog(), log), log),
			Promotion:  handlers.NewPromotionHandler(promotions, log),
			JWTManager: jwtManager,
		},
		Limiter: memory.NewRateLimiter(),
		Metrics: m,
		HealthChecks: map[string]HealthCheck{
			"store": func(context.Context) error { return store.Ping() },
		},
	}, log)

	return &testAPI{handler: srv.Handler(), store: store, jwt: jwtManager, variant: product.Variants[0].ID}
}

type response struct {
	code   int
	header http.Header
	body   map[string]interface{}
	raw    []byte
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}, headers map[string]string) response {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)

	res := response{code: w.Code, header: w.Header(), raw: w.Body.Bytes()}
	if w.Header().Get("Content-Type") != "application/pdf" {
		_ = json.Unmarshal(w.Body.Bytes(), &res.body)
	}
	return res
}

func (a *testAPI) adminHeaders(t *testing.T) map[string]string {
	t.Helper()
	token, err := a.jwt.GenerateAccessToken(1, "ops@example.com", true)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func data(t *testing.T, r response) map[string]interface{} {
	t.Helper()
	d, ok := r.body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", r.raw)
	return d
}

func assertAmount(t *testing.T, want int64, got interface{}) {
	t.Helper()
	s, ok := got.(string)
	require.True(t, ok, "amount %v is not a string", got)
	assert.True(t, decimal.RequireFromString(s).Equal(decimal.NewFromInt(want)), "want %d, got %s", want, s)
}

func signedWebhook(eventID, eventType, sessionID, orderNumber string) ([]byte, string) {
	payload := []byte(fmt.Sprintf(`{"data":{"id":%q,"attributes":{"type":%q,"livemode":false,"data":{"id":%q,"attributes":{"metadata":{"order_number":%q}}}}}}`,
		eventID, eventType, sessionID, orderNumber))
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	return payload, fmt.Sprintf("t=%s,te=%s", ts, payment.Sign([]byte(webhookSecret), ts, payload))
}

func checkoutBody(code string) map[string]interface{} {
	return map[string]interface{}{
		"customer": map[string]string{
			"email":       "ana@example.com",
			"name":        "Ana Cruz",
			"phone":       "09171234567",
			"line1":       "12 Rizal St",
			"city":        "Manila",
			"province":    "Metro Manila",
			"postal_code": "1000",
		},
		"payment_method": "gcash",
		"promotion_code": code,
	}
}

func TestCheckoutToPaidOrder(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(t, http.MethodPost, "/api/v1/cart/items", map[string]interface{}{"variant_id": api.variant, "quantity": 2}, nil)
	require.Equal(t, http.StatusOK, res.code, "%s", res.raw)
	session := res.header.Get(middleware.CartSessionHeader)
	require.True(t, auth.ValidCartToken(session))
	sessionHeader := map[string]string{middleware.CartSessionHeader: session}

	res = api.do(t, http.MethodPost, "/api/v1/checkout/preview", checkoutBody("WELCOME10"), sessionHeader)
	require.Equal(t, http.StatusOK, res.code, "%s", res.raw)
	assertAmount(t, 1000, data(t, res)["grand_total"])

	res = api.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody("WELCOME10"), sessionHeader)
	require.Equal(t, http.StatusCreated, res.code, "%s", res.raw)
	result := data(t, res)
	number := result["order_number"].(string)
	assert.Equal(t, "https://pay.example/"+number, result["checkout_url"])
	summary := result["summary"].(map[string]interface{})
	assertAmount(t, 1000, summary["subtotal"])
	assertAmount(t, 100, summary["discount_total"])
	assertAmount(t, 100, summary["shipping_fee"])
	assertAmount(t, 1000, summary["grand_total"])

	res = api.do(t, http.MethodGet, "/api/v1/cart", nil, sessionHeader)
	require.Equal(t, http.StatusOK, res.code)
	assert.Empty(t, data(t, res)["lines"])

	payload, _ := signedWebhook("evt_1", "checkout_session.payment.paid", "cs_"+number, number)
	res = api.do(t, http.MethodPost, "/api/v1/webhooks/paymongo", payload, map[string]string{"Paymongo-Signature": "t=1,te=forged"})
	assert.Equal(t, http.StatusUnauthorized, res.code)

	payload, sig := signedWebhook("evt_1", "checkout_session.payment.paid", "cs_"+number, number)
	res = api.do(t, http.MethodPost, "/api/v1/webhooks/paymongo", payload, map[string]string{"Paymongo-Signature": sig})
	require.Equal(t, http.StatusOK, res.code, "%s", res.raw)
	assert.Equal(t, true, res.body["received"])
	assert.Equal(t, true, data(t, res)["changed"])

	res = api.do(t, http.MethodPost, "/api/v1/webhooks/paymongo", payload, map[string]string{"Paymongo-Signature": sig})
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, true, data(t, res)["duplicate"])

	res = api.do(t, http.MethodGet, "/api/v1/orders/"+number, nil, nil)
	require.Equal(t, http.StatusOK, res.code)
	o := data(t, res)
	assert.Equal(t, "PAID", o["status"])
	assert.Equal(t, "PAID", o["payment_status"])
	assert.NotContains(t, o, "email")

	d, err := api.store.Catalog().GetVariant(context.Background(), api.variant)
	require.NoError(t, err)
	assert.Equal(t, 18, d.StockQuantity)

	res = api.do(t, http.MethodPatch, "/api/v1/admin/orders/"+number, map[string]string{"status": "PROCESSING"}, nil)
	assert.Equal(t, http.StatusUnauthorized, res.code)

	admin := api.adminHeaders(t)
	res = api.do(t, http.MethodPatch, "/api/v1/admin/orders/"+number, map[string]string{"status": "COMPLETED"}, admin)
	assert.Equal(t, http.StatusConflict, res.code)

	res = api.do(t, http.MethodPatch, "/api/v1/admin/orders/"+number, map[string]string{"status": "PROCESSING"}, admin)
	require.Equal(t, http.StatusOK, res.code, "%s", res.raw)
	assert.Equal(t, "PROCESSING", data(t, res)["status"])

	res = api.do(t, http.MethodGet, "/api/v1/admin/orders/"+number+"/receipt", nil, admin)
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "application/pdf", res.header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(res.raw, []byte("%PDF-")))
}

func TestCheckoutOutOfStock(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(t, http.MethodPut, fmt.Sprintf("/api/v1/cart/items/%d", api.variant), map[string]int{"quantity": 21}, nil)
	require.Equal(t, http.StatusOK, res.code, "%s", res.raw)
	session := res.header.Get(middleware.CartSessionHeader)

	res = api.do(t, http.MethodPost, "/api/v1/checkout", checkoutBody(""), map[string]string{middleware.CartSessionHeader: session})
	require.Equal(t, http.StatusBadRequest, res.code)
	lines, ok := res.body["lines"].([]interface{})
	require.True(t, ok, "%s", res.raw)
	require.Len(t, lines, 1)

	res = api.do(t, http.MethodGet, "/api/v1/admin/orders", nil, api.adminHeaders(t))
	require.Equal(t, http.StatusOK, res.code)
	assert.Empty(t, data(t, res)["orders"])
}

func TestAdminStockAdjustment(t *testing.T) {
	api := newTestAPI(t)
	admin := api.adminHeaders(t)
	path := fmt.Sprintf("/api/v1/admin/variants/%d", api.variant)

	res := api.do(t, http.MethodPatch, path+"/stock", map[string]int{"stock_quantity": 25}, admin)
	require.Equal(t, http.StatusOK, res.code, "%s", res.raw)

	res = api.do(t, http.MethodPatch, path+"/stock", map[string]int{"stock_quantity": -1}, admin)
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = api.do(t, http.MethodGet, path+"/movements", nil, admin)
	require.Equal(t, http.StatusOK, res.code)
	movements, ok := res.body["data"].([]interface{})
	require.True(t, ok, "%s", res.raw)
	require.Len(t, movements, 1)
	assert.Equal(t, float64(5), movements[0].(map[string]interface{})["delta"])
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	res := api.do(t, http.MethodGet, "/health", nil, nil)
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "healthy", res.body["status"])

	res = api.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, res.code)

	res = api.do(t, http.MethodGet, "/api/v1/orders/WEB-2026-000000", nil, nil)
	assert.Equal(t, http.StatusNotFound, res.code)
	assert.NotEmpty(t, res.header.Get(middleware.RequestIDHeader))
}
