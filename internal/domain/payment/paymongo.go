// internal/domain/payment/paymongo.go
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yametee/storefront-api/internal/config"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
	"github.com/yametee/storefront-api/internal/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// ProviderPayMongo is the provider name recorded on payments
const ProviderPayMongo = "PAYMONGO"

var tracer = otel.Tracer("storefront/payment")

// PayMongoGateway talks to the PayMongo checkout sessions API
type PayMongoGateway struct {
	secretKey  string
	baseURL    string
	httpClient *http.Client
	verifier   *SignatureVerifier
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
}

// NewPayMongoGateway creates a PayMongo client with a bounded HTTP timeout
func NewPayMongoGateway(cfg config.PayMongoConfig, allowUnsigned bool, logger logrus.FieldLogger, m *metrics.Metrics) *PayMongoGateway {
	return &PayMongoGateway{
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		verifier: NewSignatureVerifier(cfg.WebhookSecret, cfg.SignatureTolerance, cfg.LiveMode, allowUnsigned),
		logger:   logger.WithField("component", "paymongo"),
		metrics:  m,
	}
}

// Name returns the provider name
func (g *PayMongoGateway) Name() string { return ProviderPayMongo }

type checkoutSessionRequest struct {
	Data struct {
		Attributes checkoutSessionAttributes `json:"attributes"`
	} `json:"data"`
}

type checkoutSessionAttributes struct {
	Billing            *billing          `json:"billing,omitempty"`
	Description        string            `json:"description"`
	LineItems          []lineItem        `json:"line_items"`
	PaymentMethodTypes []string          `json:"payment_method_types"`
	ReferenceNumber    string            `json:"reference_number,omitempty"`
	SendEmailReceipt   bool              `json:"send_email_receipt"`
	ShowDescription    bool              `json:"show_description"`
	ShowLineItems      bool              `json:"show_line_items"`
	SuccessURL         string            `json:"success_url"`
	CancelURL          string            `json:"cancel_url"`
	Metadata           map[string]string `json:"metadata,omitempty"`
}

type billing struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type lineItem struct {
	Currency string `json:"currency"`
	Amount   int64  `json:"amount"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type checkoutSessionResponse struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			CheckoutURL string `json:"checkout_url"`
			Status      string `json:"status"`
		} `json:"attributes"`
	} `json:"data"`
}

type apiErrorResponse struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// CreateCheckoutSession creates a hosted checkout session. Timeouts, network
// failures and 5xx answers are retryable; 4xx answers are not.
func (g *PayMongoGateway) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	ctx, span := tracer.Start(ctx, "paymongo.CreateCheckoutSession")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.reference", req.ReferenceNumber),
		attribute.Int64("payment.amount_minor", req.AmountMinor),
	)

	if req.AmountMinor <= 0 {
		return nil, &apperrors.GatewayError{Op: "create checkout session", Err: fmt.Errorf("amount must be positive, got %d", req.AmountMinor)}
	}

	var body checkoutSessionRequest
	attrs := checkoutSessionAttributes{
		Description:        req.Description,
		PaymentMethodTypes: []string{providerMethod(req.PaymentMethod)},
		ReferenceNumber:    req.ReferenceNumber,
		SendEmailReceipt:   true,
		ShowDescription:    true,
		ShowLineItems:      true,
		SuccessURL:         req.SuccessURL,
		CancelURL:          req.FailedURL,
		Metadata:           req.Metadata,
	}
	if req.CustomerEmail != "" || req.CustomerName != "" {
		attrs.Billing = &billing{Name: req.CustomerName, Email: req.CustomerEmail, Phone: req.CustomerPhone}
	}
	lines := req.LineItems
	if len(lines) == 0 {
		lines = []LineItem{{Name: req.Description, Quantity: 1, AmountMinor: req.AmountMinor}}
	}
	if total := LineItemsTotal(lines); total != req.AmountMinor {
		return nil, &apperrors.GatewayError{Op: "create checkout session", Err: fmt.Errorf("line items total %d does not match amount %d", total, req.AmountMinor)}
	}
	for _, li := range lines {
		attrs.LineItems = append(attrs.LineItems, lineItem{
			Currency: req.Currency,
			Amount:   li.AmountMinor,
			Name:     li.Name,
			Quantity: li.Quantity,
		})
	}
	body.Data.Attributes = attrs

	start := time.Now()
	raw, err := g.makeAPICall(ctx, http.MethodPost, "/v1/checkout_sessions", body, req.IdempotencyKey)
	g.metrics.GatewayCall(time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var resp checkoutSessionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &apperrors.GatewayError{Op: "create checkout session", Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	if resp.Data.ID == "" || resp.Data.Attributes.CheckoutURL == "" {
		return nil, &apperrors.GatewayError{Op: "create checkout session", Err: errors.New("response is missing session id or checkout url")}
	}

	g.logger.WithFields(logrus.Fields{
		"session_id": resp.Data.ID,
		"reference":  req.ReferenceNumber,
	}).Info("PayMongo checkout session created")

	return &Session{ID: resp.Data.ID, CheckoutURL: resp.Data.Attributes.CheckoutURL, Raw: raw}, nil
}

// LineItemsTotal is what the gateway charges for lines
func LineItemsTotal(lines []LineItem) int64 {
	var total int64
	for _, li := range lines {
		total += li.AmountMinor * int64(li.Quantity)
	}
	return total
}

// ParseWebhook verifies and decodes a PayMongo webhook delivery
func (g *PayMongoGateway) ParseWebhook(payload []byte, signatureHeader string) (*Event, error) {
	if err := g.verifier.Verify(payload, signatureHeader, time.Now()); err != nil {
		return nil, err
	}
	return DecodePayMongoEvent(payload)
}

// makeAPICall makes HTTP calls to the PayMongo API
func (g *PayMongoGateway) makeAPICall(ctx context.Context, method, endpoint string, data interface{}, idempotencyKey string) ([]byte, error) {
	op := method + " " + endpoint

	reqBody, err := json.Marshal(data)
	if err != nil {
		return nil, &apperrors.GatewayError{Op: op, Err: fmt.Errorf("failed to marshal request data: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, &apperrors.GatewayError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	req.SetBasicAuth(g.secretKey, "")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.GatewayError{Op: op, Err: err, Retryable: isRetryable(err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &apperrors.GatewayError{Op: op, Err: fmt.Errorf("failed to read response: %w", err), Retryable: true}
	}

	if resp.StatusCode >= 400 {
		return nil, &apperrors.GatewayError{
			Op:        op,
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, apiErrorDetail(respBody)),
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}

	return respBody, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return !errors.Is(err, context.Canceled)
}

func apiErrorDetail(body []byte) string {
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		details := make([]string, 0, len(parsed.Errors))
		for _, e := range parsed.Errors {
			details = append(details, fmt.Sprintf("%s: %s", e.Code, e.Detail))
		}
		return strings.Join(details, "; ")
	}
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}

// providerMethod maps a storefront method onto PayMongo's payment_method_types
func providerMethod(method string) string {
	if method == MethodBankTransfer {
		return "dob"
	}
	return method
}
