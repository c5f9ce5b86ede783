package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var histogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}

type Metrics struct {
	requestTotal   *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	domainErrors   *prometheus.CounterVec
	bulkFailures   *prometheus.CounterVec
}

// NewMetrics registers on the default registry. Repeated calls reuse the
// collectors already registered.
func NewMetrics() *Metrics {
	m := &Metrics{
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenledger",
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "greenledger",
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   histogramBuckets,
		}, []string{"method", "route", "status"}),
		domainErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenledger",
			Subsystem: "game",
			Name:      "rejected_requests_total",
			Help:      "Requests rejected by the engine, by response status",
		}, []string{"status"}),
		bulkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "greenledger",
			Subsystem: "game",
			Name:      "bulk_team_failures_total",
			Help:      "Per-team failures reported by bulk operations",
		}, []string{"operation"}),
	}
	m.requestTotal = registerCounterVec(m.requestTotal)
	m.requestLatency = registerHistogramVec(m.requestLatency)
	m.domainErrors = registerCounterVec(m.domainErrors)
	m.bulkFailures = registerCounterVec(m.bulkFailures)
	return m
}

func registerCounterVec(c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := prometheus.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func registerHistogramVec(h *prometheus.HistogramVec) *prometheus.HistogramVec {
	if err := prometheus.Register(h); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing
			}
		}
	}
	return h
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware labels by chi route pattern so path parameters do not explode
// cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		labels := prometheus.Labels{
			"method": r.Method,
			"route":  route,
			"status": strconv.Itoa(status),
		}
		m.requestTotal.With(labels).Inc()
		m.requestLatency.With(labels).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) observeError(status int) {
	m.domainErrors.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) observeFailures(operation string, n int) {
	if n > 0 {
		m.bulkFailures.WithLabelValues(operation).Add(float64(n))
	}
}
