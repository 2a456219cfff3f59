package order_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yametee/storefront-api/internal/domain/catalog"
	"github.com/yametee/storefront-api/internal/domain/order"
	"github.com/yametee/storefront-api/internal/domain/payment"
	"github.com/yametee/storefront-api/internal/infrastructure/memory"
	"github.com/yametee/storefront-api/internal/pkg/apperrors"
	"github.com/yametee/storefront-api/internal/pkg/logger"
)

// stubGateway skips signature checks and decodes PayMongo-shaped payloads
type stubGateway struct{}

func (stubGateway) Name() string { return "STUB" }

func (stubGateway) CreateCheckoutSession(ctx context.Context, req payment.SessionRequest) (*payment.Session, error) {
	return nil, errors.New("not used")
}

func (stubGateway) ParseWebhook(payload []byte, signature string) (*payment.Event, error) {
	if signature == "bad" {
		return nil, payment.ErrInvalidSignature
	}
	return payment.DecodePayMongoEvent(payload)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []order.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...order.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *countingNotifier) OrderPaid(ctx context.Context, o *order.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return nil
}

type fixture struct {
	store     *memory.Store
	svc       *order.Service
	publisher *recordingPublisher
	notifier  *countingNotifier
	variant   uint
}

func setup(t *testing.T, stock int, guard order.EventGuard) fixture {
	t.Helper()
	store := memory.NewStore()
	product := &catalog.Product{
		Name:   "Oni Mask Tee",
		Slug:   "oni-mask-tee",
		Status: catalog.ProductStatusActive,
		Variants: []catalog.Variant{
			{SKU: "ONI-M", Size: "M", Color: "Black", Price: decimal.NewFromInt(500), StockQuantity: stock},
		},
	}
	require.NoError(t, store.Catalog().CreateProduct(context.Background(), product))

	pub := &recordingPublisher{}
	notifier := &countingNotifier{}
	svc := order.NewService(store.Orders(), stubGateway{}, order.Options{
		Guard:     guard,
		Publisher: pub,
		Notifier:  notifier,
	}, logger.Discard())

	return fixture{store: store, svc: svc, publisher: pub, notifier: notifier, variant: product.Variants[0].ID}
}

// place writes a PENDING order with one pending payment, the state checkout
// leaves behind
func (f fixture) place(t *testing.T, number string, qty int) *order.Order {
	t.Helper()
	total := decimal.NewFromInt(int64(500 * qty))
	o := &order.Order{
		OrderNumber:   number,
		Email:         "ana@example.com",
		Status:        order.OrderStatusPending,
		PaymentStatus: order.PaymentStatusPending,
		Currency:      "PHP",
		Subtotal:      total,
		DiscountTotal: decimal.Zero,
		ShippingFee:   decimal.Zero,
		GrandTotal:    total,
		Items: []order.OrderItem{{
			VariantID:   f.variant,
			ProductName: "Oni Mask Tee",
			Quantity:    qty,
			UnitPrice:   decimal.NewFromInt(500),
			TotalPrice:  total,
		}},
	}
	err := f.store.Orders().WithinTx(context.Background(), func(tx order.Tx) error {
		c := &order.Customer{Email: o.Email, Name: "Ana"}
		if err := tx.UpsertCustomer(c); err != nil {
			return err
		}
		a := &order.Address{CustomerID: &c.ID, FullName: "Ana", Line1: "1 Rizal St", City: "Manila", Province: "NCR", PostalCode: "1000", Country: "Philippines"}
		if err := tx.CreateAddress(a); err != nil {
			return err
		}
		o.CustomerID, o.AddressID = &c.ID, a.ID
		if err := tx.CreateOrder(o); err != nil {
			return err
		}
		return tx.CreatePayment(&order.Payment{
			OrderID:           o.ID,
			Provider:          "STUB",
			ProviderPaymentID: "cs_" + number,
			Amount:            total,
			Status:            order.PaymentStatusPending,
		})
	})
	require.NoError(t, err)
	return o
}

func (f fixture) stock(t *testing.T) int {
	t.Helper()
	d, err := f.store.Catalog().GetVariant(context.Background(), f.variant)
	require.NoError(t, err)
	return d.StockQuantity
}

func (f fixture) get(t *testing.T, number string) *order.Order {
	t.Helper()
	o, err := f.svc.Get(context.Background(), number)
	require.NoError(t, err)
	return o
}

func webhook(eventID, eventType, number string) []byte {
	return []byte(fmt.Sprintf(`{"data":{"id":%q,"attributes":{"type":%q,"data":{"id":%q,"attributes":{"metadata":{"order_number":%q}}}}}}`,
		eventID, eventType, "cs_"+number, number))
}

func paidWebhook(eventID, number string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"data":{"id":%q,"attributes":{"type":"checkout_session.payment.paid","data":{"id":%q,"attributes":{"payment_intent":{"attributes":{"amount":%d}},"metadata":{"order_number":%q}}}}}}`,
		eventID, "cs_"+number, amount, number))
}

func status(s order.OrderStatus) *order.OrderStatus { return &s }

func TestHandleWebhook_PaidDebitsStockOnce(t *testing.T) {
	f := setup(t, 5, memory.NewEventGuard())
	ctx := context.Background()
	f.place(t, "WEB-2026-000001", 2)

	res, err := f.svc.HandleWebhook(ctx, webhook("evt_1", "checkout_session.payment.paid", "WEB-2026-000001"), "sig")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "WEB-2026-000001", res.OrderNumber)

	o := f.get(t, "WEB-2026-000001")
	assert.Equal(t, order.OrderStatusPaid, o.Status)
	assert.Equal(t, order.PaymentStatusPaid, o.PaymentStatus)
	assert.NotNil(t, o.PaidAt)
	assert.Equal(t, order.PaymentStatusPaid, o.Payments[0].Status)
	assert.Equal(t, 3, f.stock(t))

	// same event id is caught by the guard
	res, err = f.svc.HandleWebhook(ctx, webhook("evt_1", "checkout_session.payment.paid", "WEB-2026-000001"), "sig")
	require.NoError(t, err)
	assert.True(t, res.Duplicate)

	// a second event for the same payment is a no-op under the lock
	res, err = f.svc.HandleWebhook(ctx, webhook("evt_2", "payment.paid", "WEB-2026-000001"), "sig")
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, 3, f.stock(t))

	var sales int
	for _, m := range f.store.Movements() {
		if m.Reason == catalog.ReasonSale {
			sales++
			assert.Equal(t, -2, m.Delta)
			assert.Equal(t, "WEB-2026-000001", m.Reference)
		}
	}
	assert.Equal(t, 1, sales)
	assert.Equal(t, 1, f.notifier.calls)
	assert.Contains(t, f.publisher.types(), order.EventOrderPaid)
}

func TestHandleWebhook_ReplayWithoutGuard(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	f.place(t, "WEB-2026-000002", 1)

	for i := 0; i < 3; i++ {
		_, err := f.svc.HandleWebhook(ctx, webhook("evt_same", "checkout_session.payment.paid", "WEB-2026-000002"), "sig")
		require.NoError(t, err)
	}
	assert.Equal(t, 4, f.stock(t))
	assert.Equal(t, 1, f.notifier.calls)
}

func TestHandleWebhook_ConcurrentPaymentsNeverOversell(t *testing.T) {
	f := setup(t, 1, nil)
	ctx := context.Background()
	numbers := []string{"WEB-2026-000010", "WEB-2026-000011", "WEB-2026-000012", "WEB-2026-000013"}
	for _, n := range numbers {
		f.place(t, n, 1)
	}

	var wg sync.WaitGroup
	for i, n := range numbers {
		wg.Add(1)
		go func(i int, n string) {
			defer wg.Done()
			_, err := f.svc.HandleWebhook(ctx, webhook(fmt.Sprintf("evt_%d", i), "checkout_session.payment.paid", n), "sig")
			assert.NoError(t, err)
		}(i, n)
	}
	wg.Wait()

	assert.Equal(t, 0, f.stock(t))
	paid, flagged := 0, 0
	for _, n := range numbers {
		o := f.get(t, n)
		assert.Equal(t, order.PaymentStatusPaid, o.PaymentStatus)
		switch {
		case o.Status == order.OrderStatusPaid:
			paid++
		case o.NeedsReconciliation:
			assert.Equal(t, order.OrderStatusPending, o.Status)
			flagged++
		}
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, len(numbers)-1, flagged)
}

func TestHandleWebhook_ShortfallOpensReconciliation(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	f.place(t, "WEB-2026-000020", 6)

	_, err := f.svc.HandleWebhook(ctx, webhook("evt_1", "checkout_session.payment.paid", "WEB-2026-000020"), "sig")
	require.NoError(t, err)

	o := f.get(t, "WEB-2026-000020")
	assert.Equal(t, order.OrderStatusPending, o.Status)
	assert.Equal(t, order.PaymentStatusPaid, o.PaymentStatus)
	assert.True(t, o.NeedsReconciliation)
	assert.Equal(t, 5, f.stock(t))
	assert.Zero(t, f.notifier.calls)
	assert.Contains(t, f.publisher.types(), order.EventReconciliationRequired)

	recs, err := f.svc.ListReconciliations(ctx, order.ReconciliationOpen)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, order.ReconciliationReasonStockShortfall, recs[0].Reason)

	var lines []apperrors.StockShortfall
	require.NoError(t, json.Unmarshal([]byte(recs[0].Lines), &lines))
	require.Len(t, lines, 1)
	assert.Equal(t, 6, lines[0].Requested)
	assert.Equal(t, 5, lines[0].Available)

	// marking it PAID is refused while the reconciliation is open
	_, err = f.svc.UpdateStatus(ctx, "WEB-2026-000020", order.Update{Status: status(order.OrderStatusPaid)})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = f.svc.ResolveReconciliation(ctx, recs[0].ID, "  ", "admin:ops@example.com")
	var ve *apperrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	rec, err := f.svc.ResolveReconciliation(ctx, recs[0].ID, "Refunded one unit", "admin:ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, order.ReconciliationResolved, rec.Status)
	assert.NotNil(t, rec.ResolvedAt)
	assert.False(t, f.get(t, "WEB-2026-000020").NeedsReconciliation)

	_, err = f.svc.ResolveReconciliation(ctx, recs[0].ID, "again", "admin:ops@example.com")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = f.svc.ResolveReconciliation(ctx, 9999, "note", "admin")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHandleWebhook_AmountMismatchOpensReconciliation(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	f.place(t, "WEB-2026-000040", 2)
	f.place(t, "WEB-2026-000041", 1)

	_, err := f.svc.HandleWebhook(ctx, paidWebhook("evt_1", "WEB-2026-000040", 90000), "sig")
	require.NoError(t, err)

	o := f.get(t, "WEB-2026-000040")
	assert.Equal(t, order.OrderStatusPending, o.Status)
	assert.Equal(t, order.PaymentStatusPaid, o.PaymentStatus)
	assert.True(t, o.NeedsReconciliation)
	assert.Equal(t, order.PaymentStatusPaid, o.LatestPayment().Status)
	assert.Equal(t, 5, f.stock(t))
	assert.Zero(t, f.notifier.calls)
	assert.Contains(t, f.publisher.types(), order.EventReconciliationRequired)

	recs, err := f.svc.ListReconciliations(ctx, order.ReconciliationOpen)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, order.ReconciliationReasonAmountMismatch, recs[0].Reason)
	assert.Equal(t, "WEB-2026-000040", recs[0].OrderNumber)

	// the amount the payment was opened for settles normally
	_, err = f.svc.HandleWebhook(ctx, paidWebhook("evt_2", "WEB-2026-000041", 50000), "sig")
	require.NoError(t, err)
	o = f.get(t, "WEB-2026-000041")
	assert.Equal(t, order.OrderStatusPaid, o.Status)
	assert.False(t, o.NeedsReconciliation)
	assert.Equal(t, 4, f.stock(t))
}

func TestHandleWebhook_PaidAfterCancel(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	f.place(t, "WEB-2026-000030", 1)

	_, err := f.svc.UpdateStatus(ctx, "WEB-2026-000030", order.Update{Status: status(order.OrderStatusCancelled)})
	require.NoError(t, err)

	_, err = f.svc.HandleWebhook(ctx, webhook("evt_1", "checkout_session.payment.paid", "WEB-2026-000030"), "sig")
	require.NoError(t, err)

	o := f.get(t, "WEB-2026-000030")
	assert.Equal(t, order.OrderStatusCancelled, o.Status)
	assert.Equal(t, order.PaymentStatusPaid, o.PaymentStatus)
	assert.True(t, o.NeedsReconciliation)
	assert.Equal(t, 5, f.stock(t))

	recs, err := f.svc.ListReconciliations(ctx, "")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, order.ReconciliationReasonPaidAfterClose, recs[0].Reason)
}

func TestHandleWebhook_FailedAndIgnored(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	f.place(t, "WEB-2026-000040", 1)

	res, err := f.svc.HandleWebhook(ctx, webhook("evt_1", "payment.failed", "WEB-2026-000040"), "sig")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	o := f.get(t, "WEB-2026-000040")
	assert.Equal(t, order.PaymentStatusFailed, o.PaymentStatus)
	assert.Equal(t, order.OrderStatusPending, o.Status)

	res, err = f.svc.HandleWebhook(ctx, webhook("evt_2", "source.chargeable", "WEB-2026-000040"), "sig")
	require.NoError(t, err)
	assert.Equal(t, payment.EventIgnored, res.Kind)
	assert.False(t, res.Changed)

	// a later success still settles the order
	_, err = f.svc.HandleWebhook(ctx, webhook("evt_3", "checkout_session.payment.paid", "WEB-2026-000040"), "sig")
	require.NoError(t, err)
	assert.Equal(t, order.OrderStatusPaid, f.get(t, "WEB-2026-000040").Status)
}

func TestHandleWebhook_Errors(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()

	_, err := f.svc.HandleWebhook(ctx, webhook("evt_1", "payment.paid", "WEB-2026-000050"), "bad")
	assert.ErrorIs(t, err, payment.ErrInvalidSignature)

	_, err = f.svc.HandleWebhook(ctx, []byte(`{}`), "sig")
	assert.ErrorIs(t, err, payment.ErrMalformedPayload)

	_, err = f.svc.HandleWebhook(ctx, webhook("evt_1", "payment.paid", "WEB-2026-999999"), "sig")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateStatus_Transitions(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	f.place(t, "WEB-2026-000060", 2)

	_, err := f.svc.UpdateStatus(ctx, "WEB-2026-000060", order.Update{Status: status(order.OrderStatusShipped)})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = f.svc.HandleWebhook(ctx, webhook("evt_1", "checkout_session.payment.paid", "WEB-2026-000060"), "sig")
	require.NoError(t, err)

	for _, to := range []order.OrderStatus{order.OrderStatusProcessing, order.OrderStatusShipped, order.OrderStatusCompleted} {
		o, err := f.svc.UpdateStatus(ctx, "WEB-2026-000060", order.Update{Status: status(to), Actor: "admin:ops@example.com"})
		require.NoError(t, err)
		assert.Equal(t, to, o.Status)
	}

	o := f.get(t, "WEB-2026-000060")
	assert.NotNil(t, o.ShippedAt)
	assert.NotNil(t, o.CompletedAt)
	last := o.StatusHistory[len(o.StatusHistory)-1]
	assert.Equal(t, order.OrderStatusShipped, last.FromStatus)
	assert.Equal(t, order.OrderStatusCompleted, last.ToStatus)
	assert.Equal(t, "admin:ops@example.com", last.Actor)

	_, err = f.svc.UpdateStatus(ctx, "WEB-2026-000060", order.Update{Status: status(order.OrderStatusCancelled)})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = f.svc.UpdateStatus(ctx, "WEB-2026-000060", order.Update{Status: status("LOST")})
	var ve *apperrors.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.UpdateStatus(ctx, "WEB-2026-000060", order.Update{})
	assert.ErrorAs(t, err, &ve)

	_, err = f.svc.UpdateStatus(ctx, "WEB-2026-999999", order.Update{Status: status(order.OrderStatusCancelled)})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdateStatus_CancelRestocksOnlyDebitedOrders(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	f.place(t, "WEB-2026-000070", 2)
	f.place(t, "WEB-2026-000071", 1)

	_, err := f.svc.HandleWebhook(ctx, webhook("evt_1", "checkout_session.payment.paid", "WEB-2026-000070"), "sig")
	require.NoError(t, err)
	require.Equal(t, 3, f.stock(t))

	o, err := f.svc.UpdateStatus(ctx, "WEB-2026-000070", order.Update{Status: status(order.OrderStatusCancelled), Note: "customer request"})
	require.NoError(t, err)
	assert.Equal(t, order.OrderStatusCancelled, o.Status)
	assert.NotNil(t, o.CancelledAt)
	assert.Equal(t, 5, f.stock(t))

	_, err = f.svc.UpdateStatus(ctx, "WEB-2026-000071", order.Update{Status: status(order.OrderStatusCancelled)})
	require.NoError(t, err)
	assert.Equal(t, 5, f.stock(t))

	var restocks int
	for _, m := range f.store.Movements() {
		if m.Reason == catalog.ReasonRestock {
			restocks++
			assert.Equal(t, "WEB-2026-000070", m.Reference)
		}
	}
	assert.Equal(t, 1, restocks)
}

func TestUpdateStatus_ManualPayment(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	f.place(t, "WEB-2026-000080", 2)

	paid := order.PaymentStatusPaid
	o, err := f.svc.UpdateStatus(ctx, "WEB-2026-000080", order.Update{PaymentStatus: &paid, Actor: "admin:ops@example.com"})
	require.NoError(t, err)
	assert.Equal(t, order.OrderStatusPaid, o.Status)
	assert.Equal(t, 3, f.stock(t))

	refunded := order.PaymentStatusRefunded
	o, err = f.svc.UpdateStatus(ctx, "WEB-2026-000080", order.Update{PaymentStatus: &refunded})
	require.NoError(t, err)
	assert.Equal(t, order.PaymentStatusRefunded, o.PaymentStatus)

	unpaid := order.PaymentStatusUnpaid
	_, err = f.svc.UpdateStatus(ctx, "WEB-2026-000080", order.Update{PaymentStatus: &unpaid})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestList(t *testing.T) {
	f := setup(t, 5, nil)
	ctx := context.Background()
	f.place(t, "WEB-2026-000090", 1)
	f.place(t, "WEB-2026-000091", 1)
	_, err := f.svc.HandleWebhook(ctx, webhook("evt_1", "checkout_session.payment.paid", "WEB-2026-000091"), "sig")
	require.NoError(t, err)

	res, err := f.svc.List(ctx, order.ListRequest{Page: 1, Limit: 10, Status: order.OrderStatusPaid})
	require.NoError(t, err)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, "WEB-2026-000091", res.Orders[0].OrderNumber)
	assert.Equal(t, int64(1), res.Pagination.Total)

	_, err = f.svc.List(ctx, order.ListRequest{Status: "LOST"})
	var ve *apperrors.ValidationError
	assert.ErrorAs(t, err, &ve)
}
