// Package metrics holds the Prometheus collectors for the dispatch API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildInfo is set to 1 with the build labels at startup.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dispatch_build_info",
		Help: "Build information for the dispatch API",
	}, []string{"version", "commit", "date"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dispatch_http_request_duration_seconds",
		Help:    "HTTP request latency by method, path and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	// OptimizeRuns counts optimize requests by route status or "error".
	OptimizeRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_optimize_runs_total",
		Help: "Route optimization runs by outcome",
	}, []string{"status"})

	// OptimizeDuration observes wall-clock time of optimize runs.
	OptimizeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_optimize_duration_seconds",
		Help:    "Wall-clock duration of route optimization runs",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	})

	// RouteStops observes the number of stops in produced routes.
	RouteStops = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_route_stops",
		Help:    "Stops per produced route",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 35, 50},
	})

	// DistanceCacheOps counts distance cache lookups by result.
	DistanceCacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_distance_cache_ops_total",
		Help: "Distance cache operations by result (hit, miss)",
	}, []string{"result"})
)

// Middleware records request duration per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		httpRequestDuration.WithLabelValues(
			r.Method, path, strconv.Itoa(ww.Status()),
		).Observe(time.Since(start).Seconds())
	})
}
