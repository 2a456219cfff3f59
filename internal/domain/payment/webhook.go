package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureVerifier checks the Paymongo-Signature header:
// "t=<unix ts>,te=<hex hmac>,li=<hex hmac>" where the HMAC-SHA256 is taken
// over "<t>.<raw body>". The older "v1=" field is accepted as well.
type SignatureVerifier struct {
	secret        []byte
	tolerance     time.Duration
	liveMode      bool
	allowUnsigned bool
}

// NewSignatureVerifier creates a verifier. allowUnsigned lets deliveries
// through when no secret is configured (local development only).
func NewSignatureVerifier(secret string, tolerance time.Duration, liveMode, allowUnsigned bool) *SignatureVerifier {
	return &SignatureVerifier{
		secret:        []byte(secret),
		tolerance:     tolerance,
		liveMode:      liveMode,
		allowUnsigned: allowUnsigned,
	}
}

// Verify returns ErrInvalidSignature unless header signs payload.
func (v *SignatureVerifier) Verify(payload []byte, header string, now time.Time) error {
	if len(v.secret) == 0 {
		if v.allowUnsigned {
			return nil
		}
		return fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}

	fields := parseSignatureHeader(header)
	ts, ok := fields["t"]
	if !ok {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSignature)
	}

	if v.tolerance > 0 {
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
		}
		delta := now.Sub(time.Unix(unix, 0))
		if delta < 0 {
			delta = -delta
		}
		if delta > v.tolerance {
			return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
		}
	}

	expected := Sign(v.secret, ts, payload)

	candidates := []string{fields["v1"]}
	if v.liveMode {
		candidates = append(candidates, fields["li"])
	} else {
		candidates = append(candidates, fields["te"])
	}
	for _, got := range candidates {
		if got != "" && hmac.Equal([]byte(got), []byte(expected)) {
			return nil
		}
	}
	return ErrInvalidSignature
}

// Sign computes the hex signature PayMongo would send for payload at ts.
func Sign(secret []byte, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func parseSignatureHeader(header string) map[string]string {
	fields := make(map[string]string)
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) == 2 {
			fields[kv[0]] = kv[1]
		}
	}
	return fields
}

type webhookEnvelope struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Type     string `json:"type"`
			Livemode bool   `json:"livemode"`
			Data     struct {
				ID         string `json:"id"`
				Type       string `json:"type"`
				Attributes struct {
					Amount          int64             `json:"amount"`
					ReferenceNumber string            `json:"reference_number"`
					Metadata        map[string]string `json:"metadata"`
					PaymentIntent   *struct {
						Attributes struct {
							Amount int64 `json:"amount"`
						} `json:"attributes"`
					} `json:"payment_intent"`
				} `json:"attributes"`
			} `json:"data"`
		} `json:"attributes"`
	} `json:"data"`
}

// DecodePayMongoEvent maps a PayMongo event onto an Event. For checkout
// session events the provider payment id is the session id stored at
// checkout; other events correlate through the order_number metadata.
func DecodePayMongoEvent(payload []byte) (*Event, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Data.ID == "" || env.Data.Attributes.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", ErrMalformedPayload)
	}

	resource := env.Data.Attributes.Data
	ev := &Event{
		ID:          env.Data.ID,
		Type:        env.Data.Attributes.Type,
		Livemode:    env.Data.Attributes.Livemode,
		AmountMinor: resource.Attributes.Amount,
		Raw:         payload,
	}
	if resource.Attributes.PaymentIntent != nil && ev.AmountMinor == 0 {
		ev.AmountMinor = resource.Attributes.PaymentIntent.Attributes.Amount
	}

	ev.OrderNumber = resource.Attributes.Metadata["order_number"]
	if ev.OrderNumber == "" {
		ev.OrderNumber = resource.Attributes.ReferenceNumber
	}

	switch ev.Type {
	case "checkout_session.payment.paid":
		ev.Kind = EventPaid
		ev.ProviderPaymentID = resource.ID
	case "payment.paid":
		ev.Kind = EventPaid
		ev.ProviderPaymentID = resource.ID
	case "payment.failed":
		ev.Kind = EventFailed
		ev.ProviderPaymentID = resource.ID
	case "payment.refunded", "payment.refund.updated":
		ev.Kind = EventRefunded
		ev.ProviderPaymentID = resource.ID
	default:
		ev.Kind = EventIgnored
	}

	return ev, nil
}
