package pdf

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/domain/order"
)

func receiptOrder() *order.Order {
	return &order.Order{
		OrderNumber:   "WEB-1740000000-000777",
		Email:         "buyer@example.com",
		Currency:      "PHP",
		Status:        order.OrderStatusPaid,
		PaymentStatus: order.PaymentStatusPaid,
		PaymentMethod: "gcash",
		Subtotal:      decimal.NewFromInt(1000),
		DiscountTotal: decimal.NewFromInt(100),
		ShippingFee:   decimal.NewFromInt(100),
		GrandTotal:    decimal.NewFromInt(1000),
		Address:       &order.Address{FullName: "Juan Dela Cruz", Line1: "1 Rizal St", City: "Makati", Province: "Metro Manila", PostalCode: "1200", Country: "Philippines"},
		Items: []order.OrderItem{
			{ProductName: "Oni Mask Tee", SKU: "ONI-M-BLK", Size: "M", Color: "Black", Quantity: 2, UnitPrice: decimal.NewFromInt(500), TotalPrice: decimal.NewFromInt(1000)},
		},
		Promotions: []order.OrderPromotion{{Name: "Welcome 10%", Code: "WELCOME10", Amount: decimal.NewFromInt(100)}},
		Payments:   []order.Payment{{ProviderPaymentID: "cs_abc", Method: "gcash", Status: order.PaymentStatusPaid}},
	}
}

func TestReceiptHTML(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Name: "Yametee", BaseURL: "https://shop.example.com"}}
	svc := NewServiceWithConverter(cfg, nil)
	svc.now = func() time.Time { return time.Date(2025, 2, 21, 0, 0, 0, 0, time.UTC) }

	html, err := svc.ReceiptHTML(receiptOrder())
	require.NoError(t, err)

	body := string(html)
	assert.Contains(t, body, "RCPT-WEB-1740000000-000777")
	assert.Contains(t, body, "February 21, 2025")
	assert.Contains(t, body, "Juan Dela Cruz")
	assert.Contains(t, body, "PHP 500.00")
	assert.Contains(t, body, "Welcome 10% (WELCOME10):")
	assert.Contains(t, body, "-PHP 100.00")
	assert.Contains(t, body, "ref cs_abc")
}

func TestRenderReceipt_UsesConverter(t *testing.T) {
	var got []byte
	svc := NewServiceWithConverter(&config.Config{}, func(html []byte) ([]byte, error) {
		got = html
		return []byte("%PDF-1.4"), nil
	})

	doc, err := svc.RenderReceipt(receiptOrder())
	require.NoError(t, err)
	assert.Equal(t, []byte("%PDF-1.4"), doc)
	assert.Contains(t, string(got), "Oni Mask Tee")
}

func TestRenderReceipt_ConverterError(t *testing.T) {
	svc := NewServiceWithConverter(&config.Config{}, func([]byte) ([]byte, error) {
		return nil, errors.New("wkhtmltopdf not installed")
	})
	_, err := svc.RenderReceipt(receiptOrder())
	assert.ErrorContains(t, err, "wkhtmltopdf not installed")
}
