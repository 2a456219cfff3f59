// Package metrics exposes the Prometheus collectors for the storefront API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "storefront"

// Metrics groups every collector the services record into. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Requests            *prometheus.CounterVec
	LatencyMS           *prometheus.HistogramVec
	CheckoutOutcomes    *prometheus.CounterVec
	PromotionRejections *prometheus.CounterVec
	PromotionsApplied   *prometheus.CounterVec
	WebhookEvents       *prometheus.CounterVec
	StockShortfalls     prometheus.Counter
	GatewayLatencyMS    prometheus.Histogram
	OrderTransitions    *prometheus.CounterVec
}

// New creates the collectors on a private registry so multiple instances
// can coexist in one process.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"handler", "method", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"handler"}),
		CheckoutOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checkout",
			Name:      "outcomes_total",
			Help:      "Checkout attempts by outcome.",
		}, []string{"outcome"}),
		PromotionRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "promotion",
			Name:      "rejections_total",
			Help:      "Promotions considered but not applied, by reason.",
		}, []string{"reason"}),
		PromotionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "promotion",
			Name:      "applied_total",
			Help:      "Promotions applied during evaluation, by type.",
		}, []string{"type"}),
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Payment webhook events by kind and result.",
		}, []string{"kind", "result"}),
		StockShortfalls: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "finalization_shortfalls_total",
			Help:      "Paid orders whose stock debit failed and need reconciliation.",
		}),
		GatewayLatencyMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "request_duration_ms",
			Help:      "Payment gateway call latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 15000},
		}),
		OrderTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "order",
			Name:      "transitions_total",
			Help:      "Order status transitions.",
		}, []string{"from", "to"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Requests, m.LatencyMS, m.CheckoutOutcomes, m.PromotionRejections,
		m.PromotionsApplied, m.WebhookEvents, m.StockShortfalls,
		m.GatewayLatencyMS, m.OrderTransitions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(handler, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	m.LatencyMS.WithLabelValues(handler).Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) CheckoutOutcome(outcome string) {
	if m == nil {
		return
	}
	m.CheckoutOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PromotionRejected(reason string) {
	if m == nil {
		return
	}
	m.PromotionRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) PromotionApplied(promotionType string) {
	if m == nil {
		return
	}
	m.PromotionsApplied.WithLabelValues(promotionType).Inc()
}

func (m *Metrics) WebhookEvent(kind, result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) StockShortfall() {
	if m == nil {
		return
	}
	m.StockShortfalls.Inc()
}

func (m *Metrics) GatewayCall(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GatewayLatencyMS.Observe(float64(elapsed.Milliseconds()))
}

func (m *Metrics) OrderTransition(from, to string) {
	if m == nil {
		return
	}
	m.OrderTransitions.WithLabelValues(from, to).Inc()
}
