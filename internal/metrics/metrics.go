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

// Registry holds the portal's collectors.
var Registry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evaluator_portal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evaluator_portal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route"},
	)

	upstreamCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evaluator_portal",
			Subsystem: "admin_api",
			Name:      "calls_total",
			Help:      "Calls made to the upstream Admin API.",
		},
		[]string{"endpoint", "outcome"},
	)

	upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "evaluator_portal",
			Subsystem: "admin_api",
			Name:      "call_duration_seconds",
			Help:      "Duration of upstream Admin API calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
		[]string{"endpoint"},
	)

	criteriaFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evaluator_portal",
			Subsystem: "criteria",
			Name:      "fallbacks_total",
			Help:      "Times the local rubric replaced the remote one.",
		},
		[]string{"reason"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "evaluator_portal",
			Subsystem: "review",
			Name:      "submissions_total",
			Help:      "Score save attempts by status and outcome.",
		},
		[]string{"status", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		upstreamCalls,
		upstreamDuration,
		criteriaFallbacks,
		submissions,
	)
}

// Handler exposes the registry for scraping.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHTTP records request counts and durations keyed by chi route
// pattern, so ids in paths do not explode label cardinality.
func InstrumentHTTP(next http.Handler) http.Handler {
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
		httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func ObserveUpstream(endpoint, outcome string, d time.Duration) {
	upstreamCalls.WithLabelValues(endpoint, outcome).Inc()
	upstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

func CriteriaFallback(reason string) {
	criteriaFallbacks.WithLabelValues(reason).Inc()
}

func Submission(status, outcome string) {
	submissions.WithLabelValues(status, outcome).Inc()
}
