package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orderflow"

var durationBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000}

type ServerMetrics struct {
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
}

func NewServerMetrics(reg prometheus.Registerer, service string) *ServerMetrics {
	m := &ServerMetrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		LatencyMS: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: service,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request latency in milliseconds.",
			Buckets:   durationBuckets,
		}, []string{"route", "method"}),
	}
	reg.MustRegister(m.Requests, m.LatencyMS)
	return m
}

// Middleware records every request under its chi route pattern.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(route, r.Method).Observe(float64(time.Since(start).Milliseconds()))
	})
}

type PlacementMetrics struct {
	Placements *prometheus.CounterVec
	LatencyMS  prometheus.Histogram
}

func NewPlacementMetrics(reg prometheus.Registerer) *PlacementMetrics {
	m := &PlacementMetrics{
		Placements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placements_total",
			Help:      "CreateOrder calls by result.",
		}, []string{"result"}),
		LatencyMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "placement_duration_ms",
			Help:      "CreateOrder latency in milliseconds.",
			Buckets:   durationBuckets,
		}),
	}
	reg.MustRegister(m.Placements, m.LatencyMS)
	return m
}

func (m *PlacementMetrics) ObservePlacement(result string, d time.Duration) {
	m.Placements.WithLabelValues(result).Inc()
	m.LatencyMS.Observe(float64(d.Milliseconds()))
}

type OutboxMetrics struct {
	Dispatched *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	m := &OutboxMetrics{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "outbox",
			Name:      "dispatched_total",
			Help:      "Outbox events handed to Kafka by event type and result.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(m.Dispatched)
	return m
}

func (m *OutboxMetrics) ObserveDispatch(eventType, result string) {
	m.Dispatched.WithLabelValues(eventType, result).Inc()
}

type StockMetrics struct {
	LowStock *prometheus.CounterVec
	Consumed *prometheus.CounterVec
}

func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	m := &StockMetrics{
		LowStock: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "low_stock_alerts_total",
			Help:      "Products found at or under the low stock threshold.",
		}, []string{"product_id"}),
		Consumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "events_consumed_total",
			Help:      "Order events consumed by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.LowStock, m.Consumed)
	return m
}

func (m *StockMetrics) ObserveLowStock(productID string) {
	m.LowStock.WithLabelValues(productID).Inc()
}

func (m *StockMetrics) ObserveConsumed(result string) {
	m.Consumed.WithLabelValues(result).Inc()
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
