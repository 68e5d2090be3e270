package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapgate",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapgate",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Feature-info query metrics
	QueriesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapgate",
		Subsystem: "wms",
		Name:      "queries_issued_total",
		Help:      "GetFeatureInfo queries issued per layer",
	}, []string{"layer"})

	QueryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapgate",
		Subsystem: "wms",
		Name:      "query_outcomes_total",
		Help:      "GetFeatureInfo outcomes per layer (feature, candidates, none, superseded, timeout)",
	}, []string{"layer", "outcome"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mapgate",
		Subsystem: "wms",
		Name:      "query_duration_seconds",
		Help:      "GetFeatureInfo round-trip duration",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
	}, []string{"layer"})

	// Throttler metrics
	ThrottleInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapgate",
		Subsystem: "throttle",
		Name:      "inflight",
		Help:      "Operations currently holding a throttle ticket",
	})

	ThrottleQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapgate",
		Subsystem: "throttle",
		Name:      "queued",
		Help:      "Operations waiting in the throttle queue",
	})

	ThrottleRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mapgate",
		Subsystem: "throttle",
		Name:      "rejected_total",
		Help:      "Queued operations discarded by Clear or context cancellation",
	})

	// Draft state machine metrics
	DraftTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapgate",
		Subsystem: "draft",
		Name:      "transitions_total",
		Help:      "Route draft state transitions",
	}, []string{"from", "to"})

	DraftsSaved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mapgate",
		Subsystem: "draft",
		Name:      "saved_total",
		Help:      "Route drafts persisted successfully",
	})

	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapgate",
		Subsystem: "session",
		Name:      "active",
		Help:      "Live map sessions",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mapgate",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapgate",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mapgate",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}
