// Package metrics holds the prometheus instruments of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notebook_tasks"

// Page load outcomes.
const (
	ResultOK    = "ok"
	ResultEmpty = "empty"
	ResultStale = "stale"
	ResultError = "error"
)

type Metrics struct {
	PageLoads        *prometheus.CounterVec
	PageLoadDuration prometheus.Histogram
	Invalidations    prometheus.Counter
	CountQueries     *prometheus.CounterVec
	Reminders        prometheus.Counter
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
}

// New registers every instrument on reg. A nil reg leaves them unregistered,
// which tests use to avoid collisions on the default registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PageLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_loads_total",
			Help:      "Task page loads by result.",
		}, []string{"result"}),
		PageLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "page_load_duration_seconds",
			Help:      "Time spent reading one task page from the store.",
			Buckets:   prometheus.DefBuckets,
		}),
		Invalidations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_invalidations_total",
			Help:      "Times the cached task pages were dropped.",
		}),
		CountQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "count_queries_total",
			Help:      "Aggregate count queries by result.",
		}, []string{"result"}),
		Reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_dispatched_total",
			Help:      "Reminders handed to the scheduler.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg != nil {
		reg.MustRegister(m.PageLoads, m.PageLoadDuration, m.Invalidations,
			m.CountQueries, m.Reminders, m.HTTPRequests, m.HTTPDuration)
	}
	return m
}

// Middleware records request counts and latency keyed by the chi route pattern.
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
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
