// Package metrics owns the Prometheus registry for the API process.
// Every recording method is safe to call on a nil *Metrics so components can
// run with metrics disabled.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rbac_api"

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	CacheLookupsTotal   *prometheus.CounterVec
	MailDeliveriesTotal *prometheus.CounterVec
	RateLimitedTotal    prometheus.Counter
	TokensPurgedTotal   *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshot_cache_lookups_total",
				Help:      "Snapshot cache lookups by result (hit, miss, error)",
			},
			[]string{"driver", "result"},
		),
		MailDeliveriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "mail_deliveries_total",
				Help:      "Outbound mail deliveries by kind and status",
			},
			[]string{"kind", "status"},
		),
		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_requests_total",
				Help:      "Requests rejected by the rate limiter",
			},
		),
		TokensPurgedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expired_tokens_purged_total",
				Help:      "Expired verification and reset tokens removed by the cleanup job",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CacheLookupsTotal,
		m.MailDeliveriesTotal,
		m.RateLimitedTotal,
		m.TokensPurgedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCacheLookup(driver, result string) {
	if m == nil {
		return
	}
	m.CacheLookupsTotal.WithLabelValues(driver, result).Inc()
}

func (m *Metrics) ObserveMailDelivery(kind, status string) {
	if m == nil {
		return
	}
	m.MailDeliveriesTotal.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) ObserveRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

func (m *Metrics) ObserveTokensPurged(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.TokensPurgedTotal.WithLabelValues(kind).Add(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware labels requests by chi route pattern to keep cardinality bounded.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
