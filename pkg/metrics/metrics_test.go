package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewServerMetrics(reg, "order_service")

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/orders/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/orders/"+id, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Requests.WithLabelValues("/orders/{id}", "GET", "404")))
}

func TestPlacementMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPlacementMetrics(reg)

	m.ObservePlacement("placed", 3*time.Millisecond)
	m.ObservePlacement("insufficient_stock", time.Millisecond)
	m.ObservePlacement("placed", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Placements.WithLabelValues("placed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Placements.WithLabelValues("insufficient_stock")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.LatencyMS))
}

func TestHandlerExposesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewOutboxMetrics(reg).ObserveDispatch("OrderCreated", "sent")
	NewStockMetrics(reg).ObserveLowStock("P1")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `orderflow_outbox_dispatched_total{event_type="OrderCreated",result="sent"} 1`)
	assert.Contains(t, string(body), `orderflow_inventory_low_stock_alerts_total{product_id="P1"} 1`)
}
