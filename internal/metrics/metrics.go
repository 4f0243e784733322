// Package metrics provides Prometheus instrumentation for the asset engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts state-changing operations, partitioned by kind
	// and token symbol.
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_operations_total",
		Help: "Total number of state-changing operations executed",
	}, []string{"kind", "token"})

	// OperationRejections counts operations rejected before execution,
	// partitioned by reason (access, economic, paused, overflow).
	OperationRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_operation_rejections_total",
		Help: "Operations rejected before execution",
	}, []string{"reason"})

	// BlockHeight tracks the logical block height.
	BlockHeight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asset_block_height",
		Help: "Current logical block height",
	})

	// ReserveBalance tracks the controller's native reserve.
	ReserveBalance = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asset_reserve_balance",
		Help: "Controller native reserve balance in base units",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "asset_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "asset_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "asset_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
