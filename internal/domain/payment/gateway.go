// internal/domain/payment/gateway.go
package payment

import (
	"context"
	"errors"
)

// Supported checkout payment methods
const (
	MethodGCash        = "gcash"
	MethodPayMaya      = "paymaya"
	MethodCard         = "card"
	MethodBankTransfer = "bank_transfer"
)

// SupportedMethods lists the methods shoppers may choose at checkout
var SupportedMethods = []string{MethodGCash, MethodPayMaya, MethodCard, MethodBankTransfer}

// IsSupportedMethod reports whether method can be used at checkout
func IsSupportedMethod(method string) bool {
	for _, m := range SupportedMethods {
		if m == method {
			return true
		}
	}
	return false
}

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrMalformedPayload = errors.New("malformed webhook payload")
)

// LineItem is shown on the hosted checkout page
type LineItem struct {
	Name        string
	Quantity    int
	AmountMinor int64
}

// SessionRequest describes a hosted checkout session to create
type SessionRequest struct {
	AmountMinor     int64
	Currency        string
	Description     string
	SuccessURL      string
	FailedURL       string
	PaymentMethod   string
	ReferenceNumber string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	LineItems       []LineItem
	Metadata        map[string]string
	IdempotencyKey  string
}

// Session is the gateway's answer to a SessionRequest
type Session struct {
	ID          string
	CheckoutURL string
	Raw         []byte
}

// EventKind is the normalized meaning of a gateway webhook event
type EventKind string

const (
	EventPaid     EventKind = "PAID"
	EventFailed   EventKind = "FAILED"
	EventRefunded EventKind = "REFUNDED"
	EventIgnored  EventKind = "IGNORED"
)

// Event is a verified, decoded webhook delivery
type Event struct {
	ID                string
	Type              string
	Kind              EventKind
	ProviderPaymentID string
	OrderNumber       string
	AmountMinor       int64
	Livemode          bool
	Raw               []byte
}

// Gateway is the Payment Gateway used by checkout and the webhook endpoint
type Gateway interface {
	Name() string
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
	// ParseWebhook verifies the signature header against the raw body and
	// decodes the event.
	ParseWebhook(payload []byte, signatureHeader string) (*Event, error)
}
