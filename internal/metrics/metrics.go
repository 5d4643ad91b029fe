// Package metrics defines the Prometheus collectors of the analysis engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "standscan"

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route"})

	// UpstreamRequests counts calls to external services by outcome.
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total upstream service calls",
	}, []string{"service", "outcome"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Upstream service call latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"service"})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "duration_seconds",
		Help:      "Duration of a full stand analysis",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"kind"})

	AnalysisResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "analysis",
		Name:      "results_total",
		Help:      "Total analyses by result status",
	}, []string{"kind", "status"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"cache"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"cache"})

	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "upstream",
		Name:      "breaker_state",
		Help:      "Circuit breaker state per service (0 closed, 1 open, 2 half-open)",
	}, []string{"service"})
)

// ObserveUpstream records one upstream call that started at start.
func ObserveUpstream(service string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequests.WithLabelValues(service, outcome).Inc()
	UpstreamDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}

// ObserveAnalysis records a finished analysis of kind with its result status.
func ObserveAnalysis(kind, status string, start time.Time) {
	AnalysisDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	AnalysisResults.WithLabelValues(kind, status).Inc()
}

// CacheLookup records a hit or miss on cache.
func CacheLookup(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
		return
	}
	CacheMisses.WithLabelValues(cache).Inc()
}

// Middleware records request metrics keyed by the chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
