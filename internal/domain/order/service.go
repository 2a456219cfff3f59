// internal/domain/order/service.go
package order

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/domain/payment"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
	"github.com/yametee/storefront-api/internal/pkg/metrics"
	"github.com/yametee/storefront-api/internal/pkg/money"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("storefront/order")

// Actors recorded in the status history
const (
	ActorWebhook = "webhook"
	ActorSystem  = "system"
)

// Reconciliation reasons
const (
	ReconciliationReasonStockShortfall = "STOCK_SHORTFALL"
	ReconciliationReasonPaidAfterClose = "PAID_AFTER_CANCEL"
	ReconciliationReasonAmountMismatch = "AMOUNT_MISMATCH"
)

// Notifier sends the customer-facing confirmation for a paid order
type Notifier interface {
	OrderPaid(ctx context.Context, o *Order) error
}

// ReceiptRenderer renders an order receipt document
type ReceiptRenderer interface {
	RenderReceipt(o *Order) ([]byte, error)
}

// Service is the order lifecycle manager
type Service struct {
	store     Store
	gateway   payment.Gateway
	guard     EventGuard
	publisher Publisher
	notifier  Notifier
	receipts  ReceiptRenderer
	replayTTL time.Duration
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Options carries the optional collaborators of the lifecycle manager
type Options struct {
	Guard     EventGuard
	Publisher Publisher
	Notifier  Notifier
	Receipts  ReceiptRenderer
	ReplayTTL time.Duration
	Metrics   *metrics.Metrics
}

// NewService creates a new order service
func NewService(store Store, gateway payment.Gateway, opts Options, logger logrus.FieldLogger) *Service {
	if opts.Publisher == nil {
		opts.Publisher = NopPublisher{}
	}
	if opts.ReplayTTL <= 0 {
		opts.ReplayTTL = 72 * time.Hour
	}
	return &Service{
		store:     store,
		gateway:   gateway,
		guard:     opts.Guard,
		publisher: opts.Publisher,
		notifier:  opts.Notifier,
		receipts:  opts.Receipts,
		replayTTL: opts.ReplayTTL,
		logger:    logger.WithField("component", "order"),
		metrics:   opts.Metrics,
		now:       time.Now,
	}
}

// ListRequest represents order list query parameters
type ListRequest struct {
	Page                int           `form:"page,default=1"`
	Limit               int           `form:"limit,default=20"`
	Status              OrderStatus   `form:"status"`
	PaymentStatus       PaymentStatus `form:"payment_status"`
	NeedsReconciliation *bool         `form:"needs_reconciliation"`
}

// ListResponse represents order list response with pagination
type ListResponse struct {
	Orders     []Order    `json:"orders"`
	Pagination Pagination `json:"pagination"`
}

// Pagination represents pagination information
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// Update is an admin status change. Nil fields are left as they are.
type Update struct {
	Status        *OrderStatus   `json:"status"`
	PaymentStatus *PaymentStatus `json:"payment_status"`
	Note          string         `json:"note"`
	Actor         string         `json:"-"`
}

// WebhookResult tells the webhook endpoint what a delivery did
type WebhookResult struct {
	EventID     string            `json:"event_id"`
	Kind        payment.EventKind `json:"kind"`
	OrderNumber string            `json:"order_number,omitempty"`
	Duplicate   bool              `json:"duplicate"`
	Changed     bool              `json:"changed"`
}

// ShortfallLine is one line of a reconciliation record
type ShortfallLine = apperrors.StockShortfall

// settlement is what finalizing a payment did inside the transaction
type settlement struct {
	changed    bool
	paid       bool
	shortfalls []ShortfallLine
	reason     string
	events     []Event
}

// HandleWebhook verifies, deduplicates and applies a gateway webhook delivery
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*WebhookResult, error) {
	ctx, span := tracer.Start(ctx, "order.HandleWebhook")
	defer span.End()

	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.metrics.WebhookEvent("unknown", "rejected")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("webhook.event_id", event.ID),
		attribute.String("webhook.kind", string(event.Kind)),
	)

	result := &WebhookResult{EventID: event.ID, Kind: event.Kind, OrderNumber: event.OrderNumber}
	log := s.logger.WithFields(logrus.Fields{
		"event_id":   event.ID,
		"event_type": event.Type,
		"payment_id": event.ProviderPaymentID,
	})

	if event.ID != "" && s.guard != nil {
		seen, err := s.guard.Seen(ctx, event.ID)
		if err != nil {
			log.WithError(err).Warn("Webhook replay guard unavailable, relying on payment lock")
		} else if seen {
			result.Duplicate = true
			s.metrics.WebhookEvent(string(event.Kind), "duplicate")
			log.Info("Webhook event already processed")
			return result, nil
		}
	}

	if event.Kind == payment.EventIgnored {
		s.metrics.WebhookEvent(string(event.Kind), "ignored")
		log.Debug("Webhook event type ignored")
		return result, nil
	}

	changed, orderNumber, err := s.HandlePaymentEvent(ctx, event)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.metrics.WebhookEvent(string(event.Kind), "error")
		return nil, err
	}
	result.Changed = changed
	result.OrderNumber = orderNumber

	if event.ID != "" && s.guard != nil {
		if err := s.guard.Remember(ctx, event.ID, s.replayTTL); err != nil {
			log.WithError(err).Warn("Failed to remember webhook event")
		}
	}

	outcome := "applied"
	if !changed {
		outcome = "noop"
	}
	s.metrics.WebhookEvent(string(event.Kind), outcome)
	return result, nil
}

// HandlePaymentEvent applies a decoded payment event. Applying the same
// event twice changes nothing the second time.
func (s *Service) HandlePaymentEvent(ctx context.Context, event *payment.Event) (bool, string, error) {
	var (
		order  *Order
		result settlement
	)

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, p, err := s.lockForEvent(tx, event)
		if err != nil {
			return err
		}
		order = o

		now := s.now()
		switch event.Kind {
		case payment.EventPaid:
			if p != nil && p.Status == PaymentStatusPaid {
				return nil
			}
			if p != nil {
				p.RawPayload = string(event.Raw)
			}
			result, err = s.settlePayment(tx, o, p, event.AmountMinor, ActorWebhook, "Payment confirmed by gateway", now)
			return err

		case payment.EventFailed:
			result, err = s.applyPaymentStatus(tx, o, p, PaymentStatusFailed, ActorWebhook, "Payment failed at gateway", now)
			return err

		case payment.EventRefunded:
			result, err = s.applyPaymentStatus(tx, o, p, PaymentStatusRefunded, ActorWebhook, "Payment refunded at gateway", now)
			return err
		}
		return nil
	})
	if err != nil {
		return false, event.OrderNumber, s.wrapTxError("apply payment event", err)
	}

	s.afterCommit(ctx, order, result)
	return result.changed, order.OrderNumber, nil
}

// lockForEvent locks the order an event belongs to and returns the payment
// the event refers to. The order row lock serializes every payment write.
func (s *Service) lockForEvent(tx Tx, event *payment.Event) (*Order, *Payment, error) {
	var orderID uint
	var paymentID uint

	if event.ProviderPaymentID != "" {
		p, err := tx.FindPaymentByProviderID(event.ProviderPaymentID)
		switch {
		case err == nil:
			orderID = p.OrderID
			paymentID = p.ID
		case !errors.Is(err, ErrPaymentNotFound):
			return nil, nil, err
		}
	}

	var (
		o   *Order
		err error
	)
	switch {
	case orderID != 0:
		o, err = tx.LockOrderByID(orderID)
	case event.OrderNumber != "":
		o, err = tx.LockOrderByNumber(event.OrderNumber)
	default:
		return nil, nil, fmt.Errorf("payment %q: %w", event.ProviderPaymentID, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, nil, err
	}

	if paymentID == 0 {
		p := o.LatestPayment()
		if p == nil {
			return o, nil, nil
		}
		paymentID = p.ID
	}
	for i := range o.Payments {
		if o.Payments[i].ID == paymentID {
			return o, &o.Payments[i], nil
		}
	}
	return o, nil, nil
}

// settlePayment marks the order paid and debits stock for every item in the
// current transaction. When any item cannot be debited, every debit already
// made is put back, the order stays PENDING with paymentStatus PAID, and a
// reconciliation record is opened. A non-zero received amount that differs
// from the payment's amount is recorded as paid but opens a reconciliation
// instead of debiting stock.
func (s *Service) settlePayment(tx Tx, o *Order, p *Payment, received int64, actor, note string, now time.Time) (settlement, error) {
	var res settlement

	if p != nil && p.Status != PaymentStatusPaid {
		p.Status = PaymentStatusPaid
		p.ProcessedAt = &now
		if err := tx.UpdatePayment(p); err != nil {
			return res, err
		}
		res.changed = true
	}

	if o.PaymentStatus == PaymentStatusPaid {
		return res, nil
	}
	if !CanTransitionPayment(o.PaymentStatus, PaymentStatusPaid) {
		return res, fmt.Errorf("%w: payment status cannot change from %s to %s", apperrors.ErrConflict, o.PaymentStatus, PaymentStatusPaid)
	}

	fromStatus, fromPayment := o.Status, o.PaymentStatus
	o.PaymentStatus = PaymentStatusPaid
	o.PaidAt = &now
	res.changed = true
	res.paid = true

	if o.Status != OrderStatusPending {
		// cancelled before the money arrived; a human has to refund
		o.NeedsReconciliation = true
		res.reason = ReconciliationReasonPaidAfterClose
		if err := s.openReconciliation(tx, o, res.reason, nil); err != nil {
			return res, err
		}
	} else if expected, ok := amountMismatch(o, p, received); ok {
		o.NeedsReconciliation = true
		res.reason = ReconciliationReasonAmountMismatch
		if err := s.openReconciliation(tx, o, res.reason, nil); err != nil {
			return res, err
		}
		note = fmt.Sprintf("%s; gateway reported %d centavos, expected %d, reconciliation opened", note, received, expected)
	} else {
		shortfalls, err := s.debitItems(tx, o)
		if err != nil {
			return res, err
		}
		if len(shortfalls) == 0 {
			o.Status = OrderStatusPaid
		} else {
			o.NeedsReconciliation = true
			res.shortfalls = shortfalls
			res.reason = ReconciliationReasonStockShortfall
			if err := s.openReconciliation(tx, o, res.reason, shortfalls); err != nil {
				return res, err
			}
			note = fmt.Sprintf("%s; stock shortfall on %d item(s), reconciliation opened", note, len(shortfalls))
		}
	}

	if err := tx.UpdateOrder(o); err != nil {
		return res, err
	}
	if err := s.appendHistory(tx, o, fromStatus, fromPayment, actor, note, now); err != nil {
		return res, err
	}

	if o.Status == OrderStatusPaid {
		res.events = append(res.events, NewEvent(EventOrderPaid, o, now))
	}
	if o.NeedsReconciliation {
		ev := NewEvent(EventReconciliationRequired, o, now)
		ev.Attributes = map[string]string{"reason": res.reason}
		res.events = append(res.events, ev)
	}
	return res, nil
}

// amountMismatch reports whether the gateway confirmed an amount other than
// the one the payment was opened for
func amountMismatch(o *Order, p *Payment, received int64) (int64, bool) {
	if received <= 0 {
		return 0, false
	}
	amount := o.GrandTotal
	if p != nil {
		amount = p.Amount
	}
	expected, err := money.ToMinorUnits(amount)
	if err != nil {
		return 0, false
	}
	return expected, expected != received
}

// debitItems atomically decrements stock for each item. On any shortfall the
// successful decrements are reversed and the shortfalls returned.
func (s *Service) debitItems(tx Tx, o *Order) ([]ShortfallLine, error) {
	var (
		debited    []OrderItem
		shortfalls []ShortfallLine
	)
	for _, it := range o.Items {
		remaining, err := tx.DecrementStock(it.VariantID, it.Quantity, o.OrderNumber)
		if err != nil {
			if errors.Is(err, catalog.ErrInsufficientStock) || errors.Is(err, catalog.ErrVariantNotFound) {
				shortfalls = append(shortfalls, ShortfallLine{
					VariantID:   it.VariantID,
					ProductName: it.ProductName,
					Requested:   it.Quantity,
					Available:   remaining,
				})
				continue
			}
			return nil, fmt.Errorf("failed to decrement stock for variant %d: %w", it.VariantID, err)
		}
		debited = append(debited, it)
	}

	if len(shortfalls) == 0 {
		return nil, nil
	}
	for _, it := range debited {
		if err := tx.RestockVariant(it.VariantID, it.Quantity, o.OrderNumber); err != nil {
			return nil, fmt.Errorf("failed to revert stock for variant %d: %w", it.VariantID, err)
		}
	}
	return shortfalls, nil
}

func (s *Service) restockItems(tx Tx, o *Order) error {
	for _, it := range o.Items {
		if err := tx.RestockVariant(it.VariantID, it.Quantity, o.OrderNumber); err != nil {
			return fmt.Errorf("failed to restock variant %d: %w", it.VariantID, err)
		}
	}
	return nil
}

func (s *Service) openReconciliation(tx Tx, o *Order, reason string, lines []ShortfallLine) error {
	encoded := "[]"
	if len(lines) > 0 {
		raw, err := json.Marshal(lines)
		if err != nil {
			return fmt.Errorf("failed to encode shortfall lines: %w", err)
		}
		encoded = string(raw)
	}
	return tx.CreateReconciliation(&Reconciliation{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Reason:      reason,
		Lines:       encoded,
		Status:      ReconciliationOpen,
	})
}

// applyPaymentStatus moves the payment and the order's payment status to a
// non-PAID status when the transition is legal, and ignores it otherwise.
func (s *Service) applyPaymentStatus(tx Tx, o *Order, p *Payment, to PaymentStatus, actor, note string, now time.Time) (settlement, error) {
	var res settlement

	if p != nil && p.Status != to && CanTransitionPayment(p.Status, to) {
		p.Status = to
		p.ProcessedAt = &now
		if err := tx.UpdatePayment(p); err != nil {
			return res, err
		}
		res.changed = true
	}

	if o.PaymentStatus == to || !CanTransitionPayment(o.PaymentStatus, to) {
		if !res.changed {
			s.logger.WithFields(logrus.Fields{
				"order_number":   o.OrderNumber,
				"payment_status": o.PaymentStatus,
				"target":         to,
			}).Info("Payment event does not change the order")
		}
		return res, nil
	}

	fromStatus, fromPayment := o.Status, o.PaymentStatus
	o.PaymentStatus = to
	if err := tx.UpdateOrder(o); err != nil {
		return res, err
	}
	if err := s.appendHistory(tx, o, fromStatus, fromPayment, actor, note, now); err != nil {
		return res, err
	}
	res.changed = true

	switch to {
	case PaymentStatusFailed:
		res.events = append(res.events, NewEvent(EventPaymentFailed, o, now))
	case PaymentStatusRefunded:
		res.events = append(res.events, NewEvent(EventPaymentRefunded, o, now))
	}
	return res, nil
}

// UpdateStatus applies an admin status change with transition validation
func (s *Service) UpdateStatus(ctx context.Context, orderNumber string, upd Update) (*Order, error) {
	ctx, span := tracer.Start(ctx, "order.UpdateStatus")
	defer span.End()
	span.SetAttributes(attribute.String("order.number", orderNumber))

	if upd.Status == nil && upd.PaymentStatus == nil {
		return nil, apperrors.Validation("status", "Nothing to update")
	}
	if upd.Status != nil && !ValidStatus(*upd.Status) {
		return nil, apperrors.Validation("status", "Invalid order status %q", *upd.Status)
	}
	if upd.PaymentStatus != nil && !ValidPaymentStatus(*upd.PaymentStatus) {
		return nil, apperrors.Validation("payment_status", "Invalid payment status %q", *upd.PaymentStatus)
	}
	if upd.Actor == "" {
		upd.Actor = ActorSystem
	}
	note := strings.TrimSpace(upd.Note)

	var (
		order  *Order
		result settlement
		from   OrderStatus
	)

	err := s.store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.LockOrderByNumber(orderNumber)
		if err != nil {
			return err
		}
		order = o
		from = o.Status
		now := s.now()

		if upd.PaymentStatus != nil && *upd.PaymentStatus != o.PaymentStatus {
			to := *upd.PaymentStatus
			if !CanTransitionPayment(o.PaymentStatus, to) {
				return fmt.Errorf("%w: payment status cannot change from %s to %s", apperrors.ErrConflict, o.PaymentStatus, to)
			}
			if to == PaymentStatusPaid {
				result, err = s.settlePayment(tx, o, o.LatestPayment(), 0, upd.Actor, noteOr(note, "Payment marked as paid"), now)
			} else {
				result, err = s.applyPaymentStatus(tx, o, o.LatestPayment(), to, upd.Actor, noteOr(note, "Payment status updated"), now)
			}
			if err != nil {
				return err
			}
		}

		if upd.Status != nil && *upd.Status != o.Status {
			events, err := s.transition(tx, o, *upd.Status, upd.Actor, note, now)
			if err != nil {
				return err
			}
			result.changed = true
			result.events = append(result.events, events...)
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, s.wrapTxError("update order status", err)
	}

	if order.Status != from {
		s.metrics.OrderTransition(string(from), string(order.Status))
	}
	s.afterCommit(ctx, order, result)

	s.logger.WithFields(logrus.Fields{
		"order_number":   order.OrderNumber,
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
		"actor":          upd.Actor,
	}).Info("Order status updated")

	return s.Get(ctx, orderNumber)
}

// transition moves the fulfilment status and applies its stock side effects
func (s *Service) transition(tx Tx, o *Order, to OrderStatus, actor, note string, now time.Time) ([]Event, error) {
	if !CanTransitionStatus(o.Status, to) {
		return nil, fmt.Errorf("%w: order status cannot change from %s to %s", apperrors.ErrConflict, o.Status, to)
	}

	fromStatus, fromPayment := o.Status, o.PaymentStatus
	switch to {
	case OrderStatusPaid:
		if o.PaymentStatus != PaymentStatusPaid {
			return nil, fmt.Errorf("%w: order cannot be marked paid while payment is %s", apperrors.ErrConflict, o.PaymentStatus)
		}
		if o.NeedsReconciliation {
			return nil, fmt.Errorf("%w: order has an open reconciliation", apperrors.ErrConflict)
		}
		shortfalls, err := s.debitItems(tx, o)
		if err != nil {
			return nil, err
		}
		if len(shortfalls) > 0 {
			return nil, &apperrors.StockError{Lines: shortfalls}
		}
		if o.PaidAt == nil {
			o.PaidAt = &now
		}
	case OrderStatusCancelled:
		if o.StockDebited() {
			if err := s.restockItems(tx, o); err != nil {
				return nil, err
			}
		}
		o.CancelledAt = &now
	case OrderStatusShipped:
		o.ShippedAt = &now
	case OrderStatusCompleted:
		o.CompletedAt = &now
	}

	o.Status = to
	if err := tx.UpdateOrder(o); err != nil {
		return nil, err
	}
	if err := s.appendHistory(tx, o, fromStatus, fromPayment, actor, noteOr(note, fmt.Sprintf("Status changed to %s", to)), now); err != nil {
		return nil, err
	}

	ev := NewEvent(EventStatusChanged, o, now)
	ev.Actor = actor
	ev.Attributes = map[string]string{"from": string(fromStatus)}
	events := []Event{ev}
	if to == OrderStatusPaid {
		events = append(events, NewEvent(EventOrderPaid, o, now))
	}
	return events, nil
}

func (s *Service) appendHistory(tx Tx, o *Order, fromStatus OrderStatus, fromPayment PaymentStatus, actor, note string, now time.Time) error {
	return tx.AppendHistory(&StatusHistory{
		OrderID:     o.ID,
		FromStatus:  fromStatus,
		ToStatus:    o.Status,
		FromPayment: fromPayment,
		ToPayment:   o.PaymentStatus,
		Actor:       actor,
		Note:        note,
		CreatedAt:   now,
	})
}

// afterCommit publishes events and sends notifications. Failures here never
// undo the committed state.
func (s *Service) afterCommit(ctx context.Context, o *Order, res settlement) {
	if o == nil {
		return
	}
	log := s.logger.WithField("order_number", o.OrderNumber)

	if len(res.shortfalls) > 0 {
		for range res.shortfalls {
			s.metrics.StockShortfall()
		}
		log.WithField("lines", len(res.shortfalls)).Warn("Paid order could not be fulfilled from stock, reconciliation required")
	}

	if len(res.events) > 0 {
		if err := s.publisher.Publish(ctx, res.events...); err != nil {
			log.WithError(err).Warn("Failed to publish order events")
		}
	}

	if res.paid && o.Status == OrderStatusPaid && s.notifier != nil {
		if err := s.notifier.OrderPaid(ctx, o); err != nil {
			log.WithError(err).Warn("Failed to send order confirmation")
		}
	}
}

// Get returns an order with its full detail
func (s *Service) Get(ctx context.Context, orderNumber string) (*Order, error) {
	o, err := s.store.FindByNumber(ctx, orderNumber)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, fmt.Errorf("order %s: %w", orderNumber, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to retrieve order: %w", err)
	}
	return o, nil
}

// List returns orders with filtering and pagination
func (s *Service) List(ctx context.Context, req ListRequest) (*ListResponse, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 || req.Limit > 100 {
		req.Limit = 20
	}
	if req.Status != "" && !ValidStatus(req.Status) {
		return nil, apperrors.Validation("status", "Invalid order status %q", req.Status)
	}
	if req.PaymentStatus != "" && !ValidPaymentStatus(req.PaymentStatus) {
		return nil, apperrors.Validation("payment_status", "Invalid payment status %q", req.PaymentStatus)
	}

	orders, total, err := s.store.List(ctx, ListFilter{
		Status:              req.Status,
		PaymentStatus:       req.PaymentStatus,
		NeedsReconciliation: req.NeedsReconciliation,
		Offset:              (req.Page - 1) * req.Limit,
		Limit:               req.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve orders: %w", err)
	}

	totalPages := int((total + int64(req.Limit) - 1) / int64(req.Limit))
	return &ListResponse{
		Orders: orders,
		Pagination: Pagination{
			Page:       req.Page,
			Limit:      req.Limit,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    req.Page < totalPages,
			HasPrev:    req.Page > 1,
		},
	}, nil
}

// ListReconciliations returns reconciliation records, optionally by status
func (s *Service) ListReconciliations(ctx context.Context, status ReconciliationStatus) ([]Reconciliation, error) {
	if status != "" && status != ReconciliationOpen && status != ReconciliationResolved {
		return nil, apperrors.Validation("status", "Invalid reconciliation status %q", status)
	}
	recs, err := s.store.ListReconciliations(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliations: %w", err)
	}
	return recs, nil
}

// ResolveReconciliation closes a reconciliation record. The order's
// reconciliation flag clears once no open record remains.
func (s *Service) ResolveReconciliation(ctx context.Context, id uint, note, actor string) (*Reconciliation, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, apperrors.Validation("note", "Resolution note is required")
	}
	if actor == "" {
		actor = ActorSystem
	}

	var rec *Reconciliation
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		r, err := tx.LockReconciliation(id)
		if err != nil {
			return err
		}
		if r.Status == ReconciliationResolved {
			return fmt.Errorf("%w: reconciliation %d is already resolved", apperrors.ErrConflict, id)
		}

		o, err := tx.LockOrderByID(r.OrderID)
		if err != nil {
			return err
		}

		now := s.now()
		r.Status = ReconciliationResolved
		r.ResolutionNote = note
		r.ResolvedAt = &now
		if err := tx.UpdateReconciliation(r); err != nil {
			return err
		}
		rec = r

		open, err := tx.CountOpenReconciliations(o.ID)
		if err != nil {
			return err
		}
		if open == 0 && o.NeedsReconciliation {
			o.NeedsReconciliation = false
			if err := tx.UpdateOrder(o); err != nil {
				return err
			}
		}
		return s.appendHistory(tx, o, o.Status, o.PaymentStatus, actor, "Reconciliation resolved: "+note, now)
	})
	if err != nil {
		return nil, s.wrapTxError("resolve reconciliation", err)
	}

	s.logger.WithFields(logrus.Fields{
		"reconciliation_id": id,
		"order_number":      rec.OrderNumber,
	}).Info("Reconciliation resolved")
	return rec, nil
}

// Receipt renders the receipt document of an order
func (s *Service) Receipt(ctx context.Context, orderNumber string) ([]byte, error) {
	if s.receipts == nil {
		return nil, errors.New("receipt rendering is not configured")
	}
	o, err := s.Get(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	doc, err := s.receipts.RenderReceipt(o)
	if err != nil {
		return nil, fmt.Errorf("failed to render receipt: %w", err)
	}
	return doc, nil
}

// wrapTxError maps store sentinels onto the shared error taxonomy
func (s *Service) wrapTxError(op string, err error) error {
	switch {
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrPaymentNotFound),
		errors.Is(err, ErrReconciliationNotFound):
		return fmt.Errorf("%s: %v: %w", op, err, apperrors.ErrNotFound)
	default:
		return apperrors.Persistence(op, err)
	}
}

func noteOr(note, fallback string) string {
	if note != "" {
		return note
	}
	return fallback
}
