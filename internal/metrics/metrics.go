// Package metrics exposes Prometheus metrics for the API.
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

const namespace = "blog_api"

// Collector records auth events and HTTP traffic
type Collector struct {
	operations         *prometheus.CounterVec
	tokensIssued       *prometheus.CounterVec
	tokensConsumed     *prometheus.CounterVec
	notificationFailed *prometheus.CounterVec
	tokensPruned       prometheus.Counter
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_operations_total",
			Help:      "Auth operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Tokens issued by kind.",
		}, []string{"kind"}),
		tokensConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_consumed_total",
			Help:      "Single-use tokens consumed by kind.",
		}, []string{"kind"}),
		notificationFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Emails that could not be delivered, by kind.",
		}, []string{"kind"}),
		tokensPruned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_pruned_total",
			Help:      "Expired tokens removed by the cleanup job.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status_code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.operations,
		c.tokensIssued,
		c.tokensConsumed,
		c.notificationFailed,
		c.tokensPruned,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

func (c *Collector) Operation(op, outcome string) {
	c.operations.WithLabelValues(op, outcome).Inc()
}

func (c *Collector) TokenIssued(kind string) {
	c.tokensIssued.WithLabelValues(kind).Inc()
}

func (c *Collector) TokenConsumed(kind string) {
	c.tokensConsumed.WithLabelValues(kind).Inc()
}

func (c *Collector) NotificationFailed(kind string) {
	c.notificationFailed.WithLabelValues(kind).Inc()
}

func (c *Collector) TokensPruned(n int64) {
	c.tokensPruned.Add(float64(n))
}

// Middleware records request counts and latency labelled by the chi route
// pattern, so path parameters such as tokens never become label values
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the metrics in gatherer for Prometheus scraping
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
