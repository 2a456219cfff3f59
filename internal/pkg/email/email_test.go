package email

import (
	"context"
	"errors"
	"net/smtp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/domain/order"
)

func paidOrder() *order.Order {
	return &order.Order{
		OrderNumber:   "WEB-1740000000-000123",
		Email:         "buyer@example.com",
		Currency:      "PHP",
		Status:        order.OrderStatusPaid,
		Subtotal:      decimal.NewFromInt(1000),
		DiscountTotal: decimal.NewFromInt(100),
		ShippingFee:   decimal.NewFromInt(100),
		GrandTotal:    decimal.NewFromInt(1000),
		CreatedAt:     time.Date(2025, 2, 20, 8, 0, 0, 0, time.UTC),
		Items: []order.OrderItem{
			{ProductName: "Oni Mask Tee", Size: "M", Color: "Black", Quantity: 2, TotalPrice: decimal.NewFromInt(1000)},
		},
	}
}

func TestOrderPaid_RendersAndSends(t *testing.T) {
	var sent *Email
	svc := NewService(config.EmailConfig{}, "https://shop.example.com/", SenderFunc(func(_ context.Context, e *Email) error {
		sent = e
		return nil
	}), logrus.New())

	require.NoError(t, svc.OrderPaid(context.Background(), paidOrder()))
	require.NotNil(t, sent)

	assert.Equal(t, []string{"buyer@example.com"}, sent.To)
	assert.Contains(t, sent.Subject, "WEB-1740000000-000123")
	assert.Contains(t, sent.HTMLContent, "Oni Mask Tee (M / Black)")
	assert.Contains(t, sent.HTMLContent, "Discount: -PHP 100.00")
	assert.Contains(t, sent.HTMLContent, "Total: PHP 1000.00")
	assert.Contains(t, sent.HTMLContent, "https://shop.example.com/orders/WEB-1740000000-000123")
}

func TestOrderPaid_SenderError(t *testing.T) {
	svc := NewService(config.EmailConfig{}, "", SenderFunc(func(context.Context, *Email) error {
		return errors.New("relay refused")
	}), logrus.New())

	err := svc.OrderPaid(context.Background(), paidOrder())
	assert.ErrorContains(t, err, "relay refused")
}

func TestOrderPaid_MissingEmail(t *testing.T) {
	svc := NewService(config.EmailConfig{}, "", SenderFunc(func(context.Context, *Email) error { return nil }), logrus.New())
	o := paidOrder()
	o.Email = ""
	assert.Error(t, svc.OrderPaid(context.Background(), o))
}

func TestSMTPSender_BuildsMessage(t *testing.T) {
	cfg := config.EmailConfig{
		FromEmail: "orders@example.com",
		FromName:  "Yametee",
		SMTPHost:  "smtp.example.com",
		SMTPPort:  587,
		SMTPUser:  "user",
		SMTPPass:  "pass",
	}
	s := NewSMTPSender(cfg)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		assert.NotNil(t, a)
		assert.Equal(t, "orders@example.com", from)
		return nil
	}

	err := s.Send(context.Background(), &Email{To: []string{"a@example.com"}, Subject: "Hi", HTMLContent: "<p>x</p>"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"a@example.com"}, gotTo)
	assert.Contains(t, gotMsg, "From: Yametee <orders@example.com>\r\n")
	assert.Contains(t, gotMsg, "Subject: Hi\r\n")
	assert.Contains(t, gotMsg, "\r\n\r\n<p>x</p>")
}

func TestSMTPSender_RequiresHost(t *testing.T) {
	err := NewSMTPSender(config.EmailConfig{}).Send(context.Background(), &Email{To: []string{"a@example.com"}})
	assert.Error(t, err)
}
