package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsCounters(t *testing.T) {
	m := New()

	m.CheckoutOutcome("created")
	m.CheckoutOutcome("created")
	m.CheckoutOutcome("stock_error")
	m.StockShortfall()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.CheckoutOutcomes.WithLabelValues("created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CheckoutOutcomes.WithLabelValues("stock_error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StockShortfalls))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CheckoutOutcome("created")
		m.WebhookEvent("paid", "processed")
		m.StockShortfall()
	})
}

func TestMetrics_TwoInstancesDoNotCollide(t *testing.T) {
	assert.NotPanics(t, func() {
		New()
		New()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.WebhookEvent("paid", "processed")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `storefront_webhook_events_total{kind="paid",result="processed"} 1`)
}
