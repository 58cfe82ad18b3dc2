// Package metrics collects and exposes Prometheus metrics of the parking service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the Prometheus implementation of every recorder the service uses.
type Collector struct {
	entries         prometheus.Counter
	exits           *prometheus.CounterVec
	charges         *prometheus.CounterVec
	receipts        *prometheus.CounterVec
	sideEffectFails *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	realtimeClients prometheus.Gauge
	realtimeDropped prometheus.Counter
}

// NewCollector creates a Collector and registers it on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		entries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_entries_total",
			Help: "Vehicle entries recorded.",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_exits_total",
			Help: "Vehicle exits recorded, by amount type.",
		}, []string{"amount_type"}),
		charges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_charges_total",
			Help: "Charge calculations, by amount type.",
		}, []string{"amount_type"}),
		receipts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_receipts_total",
			Help: "Receipt deliveries, by provider and result.",
		}, []string{"provider", "result"}),
		sideEffectFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_side_effect_failures_total",
			Help: "Best-effort side effects that failed.",
		}, []string{"effect"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "parking_http_requests_total",
			Help: "HTTP requests, by route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "parking_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		realtimeClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "parking_realtime_clients",
			Help: "Connected dashboard websocket clients.",
		}),
		realtimeDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "parking_realtime_dropped_total",
			Help: "Realtime events dropped because a queue was full.",
		}),
	}

	reg.MustRegister(
		c.entries,
		c.exits,
		c.charges,
		c.receipts,
		c.sideEffectFails,
		c.httpRequests,
		c.httpLatency,
		c.realtimeClients,
		c.realtimeDropped,
	)
	return c
}

func (c *Collector) SessionEntered() {
	c.entries.Inc()
}

func (c *Collector) SessionExited(amountType string) {
	c.exits.WithLabelValues(labelOrNone(amountType)).Inc()
}

func (c *Collector) ChargeCalculated(amountType string) {
	c.charges.WithLabelValues(labelOrNone(amountType)).Inc()
}

func (c *Collector) SideEffectFailed(effect string) {
	c.sideEffectFails.WithLabelValues(effect).Inc()
}

// ReceiptSent records one delivery attempt.
func (c *Collector) ReceiptSent(provider string, delivered bool) {
	result := "failed"
	if delivered {
		result = "delivered"
	}
	c.receipts.WithLabelValues(labelOrNone(provider), result).Inc()
}

// ObserveHTTP records a served request. route is the chi route pattern.
func (c *Collector) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpLatency.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (c *Collector) ClientConnected() {
	c.realtimeClients.Inc()
}

func (c *Collector) ClientDisconnected() {
	c.realtimeClients.Dec()
}

func (c *Collector) EventDropped() {
	c.realtimeDropped.Inc()
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func labelOrNone(v string) string {
	if v == "" {
		return "none"
	}
	return v
}
