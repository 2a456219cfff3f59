package order

import (
	"math/rand"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionStatus(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		want     bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusPaid, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusShipped, OrderStatusCompleted, true},
		{OrderStatusCompleted, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransitionStatus(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCanTransitionPayment(t *testing.T) {
	assert.True(t, CanTransitionPayment(PaymentStatusUnpaid, PaymentStatusPending))
	assert.True(t, CanTransitionPayment(PaymentStatusFailed, PaymentStatusPaid))
	assert.True(t, CanTransitionPayment(PaymentStatusPaid, PaymentStatusRefunded))
	assert.False(t, CanTransitionPayment(PaymentStatusUnpaid, PaymentStatusPaid))
	assert.False(t, CanTransitionPayment(PaymentStatusRefunded, PaymentStatusPaid))
}

func TestGenerateOrderNumber(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	n := GenerateOrderNumber(now, rand.New(rand.NewSource(1)))
	assert.Regexp(t, regexp.MustCompile(`^WEB-2026-\d{6}$`), n)
}

func TestLatestPayment(t *testing.T) {
	t0 := time.Now()
	o := &Order{Payments: []Payment{
		{ID: 1, CreatedAt: t0},
		{ID: 3, CreatedAt: t0.Add(time.Second)},
		{ID: 2, CreatedAt: t0.Add(time.Second)},
	}}
	assert.Equal(t, uint(3), o.LatestPayment().ID)
	assert.Nil(t, (&Order{}).LatestPayment())
}
