package httpx

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by service, route and status code.",
	}, []string{"service", "method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by service and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"service", "method", "route"})
)

// WithMetrics records request counts and latency. The route label is the chi
// route pattern when available so that path parameters do not explode
// cardinality. Install it with chi's Use so the pattern is resolved.
func WithMetrics(service string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusCapturingResponseWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil {
				if p := rc.RoutePattern(); p != "" {
					route = p
				}
			}
			status := sw.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequests.WithLabelValues(service, r.Method, route, strconv.Itoa(status)).Inc()
			httpDuration.WithLabelValues(service, r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
