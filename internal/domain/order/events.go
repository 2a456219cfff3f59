package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Lifecycle event types
const (
	EventOrderCreated           = "order.created"
	EventOrderPaid              = "order.paid"
	EventPaymentFailed          = "order.payment_failed"
	EventPaymentRefunded        = "order.payment_refunded"
	EventStatusChanged          = "order.status_changed"
	EventReconciliationRequired = "order.reconciliation_required"
)

// Event is published after the transaction that produced it commits
type Event struct {
	Type          string            `json:"type"`
	OrderNumber   string            `json:"order_number"`
	Status        OrderStatus       `json:"status"`
	PaymentStatus PaymentStatus     `json:"payment_status"`
	GrandTotal    decimal.Decimal   `json:"grand_total"`
	Actor         string            `json:"actor,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	OccurredAt    time.Time         `json:"occurred_at"`
}

// NewEvent builds an event from the order's current state
func NewEvent(eventType string, o *Order, now time.Time) Event {
	return Event{
		Type:          eventType,
		OrderNumber:   o.OrderNumber,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		GrandTotal:    o.GrandTotal,
		OccurredAt:    now.UTC(),
	}
}

// Publisher delivers lifecycle events to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// NopPublisher drops every event
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ...Event) error { return nil }
