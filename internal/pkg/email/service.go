package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/domain/order"
)

// Sender delivers one rendered email
type Sender interface {
	Send(ctx context.Context, email *Email) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, email *Email) error

func (f SenderFunc) Send(ctx context.Context, email *Email) error { return f(ctx, email) }

const siteName = "Yametee"

var orderConfirmationTemplate = template.Must(template.New("order_confirmation").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.SiteName}} order {{.OrderNumber}}</title></head>
<body style="font-family: Arial, sans-serif; margin: 0; padding: 20px; background-color: #f4f4f4;">
  <div style="max-width: 600px; margin: 0 auto; background-color: white; padding: 20px; border-radius: 8px;">
    <h1 style="color: #333;">Thanks for your order!</h1>
    <p>We received your payment for order <strong>{{.OrderNumber}}</strong> placed on {{.OrderDate}}.</p>
    <table style="width: 100%; border-collapse: collapse;">
      {{range .Items}}<tr>
        <td>{{.Name}}{{if .Variant}} ({{.Variant}}){{end}}</td>
        <td style="text-align: center;">x{{.Quantity}}</td>
        <td style="text-align: right;">{{$.Currency}} {{.Total.StringFixed 2}}</td>
      </tr>{{end}}
    </table>
    <p>Subtotal: {{.Currency}} {{.Subtotal.StringFixed 2}}<br>
    {{if .DiscountTotal.IsPositive}}Discount: -{{.Currency}} {{.DiscountTotal.StringFixed 2}}<br>{{end}}
    Shipping: {{.Currency}} {{.ShippingFee.StringFixed 2}}<br>
    <strong>Total: {{.Currency}} {{.GrandTotal.StringFixed 2}}</strong></p>
    {{if .OrderURL}}<p><a href="{{.OrderURL}}">View your order</a></p>{{end}}
    <hr>
    <p style="font-size: 12px; color: #666;">&copy; {{.Year}} {{.SiteName}}. All rights reserved.</p>
  </div>
</body>
</html>`))

// Service renders and sends customer emails. It implements order.Notifier.
type Service struct {
	baseURL string
	sender  Sender
	logger  logrus.FieldLogger
	now     func() time.Time
}

// NewService creates an email service. A nil sender falls back to SMTP with cfg.
func NewService(cfg config.EmailConfig, baseURL string, sender Sender, logger logrus.FieldLogger) *Service {
	if sender == nil {
		sender = NewSMTPSender(cfg)
	}
	return &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		sender:  sender,
		logger:  logger.WithField("component", "email"),
		now:     time.Now,
	}
}

var _ order.Notifier = (*Service)(nil)

// OrderPaid sends the order confirmation once payment settles
func (s *Service) OrderPaid(ctx context.Context, o *order.Order) error {
	if o.Email == "" {
		return fmt.Errorf("order %s has no email address", o.OrderNumber)
	}

	html, err := s.RenderOrderConfirmation(o)
	if err != nil {
		return err
	}

	msg := &Email{
		To:          []string{o.Email},
		Subject:     fmt.Sprintf("Your %s order %s is confirmed", siteName, o.OrderNumber),
		HTMLContent: html,
		Type:        EmailTypeOrderConfirmation,
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("failed to send order confirmation: %w", err)
	}

	s.logger.WithField("order_number", o.OrderNumber).Info("Order confirmation sent")
	return nil
}

// RenderOrderConfirmation renders the confirmation body for o
func (s *Service) RenderOrderConfirmation(o *order.Order) (string, error) {
	data := OrderConfirmationData{
		EmailTemplateData: baseTemplateData(siteName, s.baseURL, o.Email, s.now()),
		OrderNumber:       o.OrderNumber,
		OrderDate:         o.CreatedAt.Format("January 2, 2006"),
		PaymentMethod:     o.PaymentMethod,
		Currency:          o.Currency,
		Subtotal:          o.Subtotal,
		DiscountTotal:     o.DiscountTotal,
		ShippingFee:       o.ShippingFee,
		GrandTotal:        o.GrandTotal,
	}
	if s.baseURL != "" {
		data.OrderURL = s.baseURL + "/orders/" + o.OrderNumber
	}
	for _, it := range o.Items {
		data.Items = append(data.Items, OrderItem{
			Name:     it.ProductName,
			Variant:  strings.Trim(it.Size+" / "+it.Color, " /"),
			Quantity: it.Quantity,
			Total:    it.TotalPrice,
		})
	}

	var buf bytes.Buffer
	if err := orderConfirmationTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template order_confirmation: %w", err)
	}
	return buf.String(), nil
}
