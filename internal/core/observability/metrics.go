// Package observability holds the process-wide Prometheus collectors.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		},
		[]string{"method", "route", "status"},
	)

	tileReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mbtiles_tile_reads_total",
			Help: "Tile reads by outcome (hit, miss, out_of_bounds, error).",
		},
		[]string{"outcome"},
	)

	tileWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mbtiles_tile_writes_total",
			Help: "Tile writes by outcome (ok, unsupported_format, error).",
		},
		[]string{"outcome"},
	)

	storeOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mbtiles_store_op_duration_seconds",
			Help:    "Latency of row store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		},
		[]string{"op", "result"},
	)

	validationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mbtiles_validations_total",
			Help: "Store validations by schema version and result.",
		},
		[]string{"version", "result"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_cache_results_total",
			Help: "Tile cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOpSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tile_cache_op_duration_seconds",
			Help:    "Latency of shared cache operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "result"},
	)

	hotKeys = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tile_hot_keys",
			Help: "Tile keys currently tracked by the hotness model.",
		},
		[]string{"tier"},
	)

	tileEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tile_events_total",
			Help: "Tile events by direction (published, consumed, hit) and result.",
		},
		[]string{"direction", "result"},
	)

	hitEventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tile_hit_events_dropped_total",
			Help: "Tile hit events dropped because the publish queue was full.",
		},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func IncTileRead(outcome string) {
	tileReadsTotal.WithLabelValues(outcome).Inc()
}

func IncTileWrite(outcome string) {
	tileWritesTotal.WithLabelValues(outcome).Inc()
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	storeOpSeconds.WithLabelValues(op, result(err)).Observe(durationSeconds)
}

func ObserveValidation(version string, err error) {
	validationsTotal.WithLabelValues(version, result(err)).Inc()
}

func IncCacheHit(tier string) {
	cacheResults.WithLabelValues(tier, "hit").Inc()
}

func IncCacheMiss(tier string) {
	cacheResults.WithLabelValues(tier, "miss").Inc()
}

func AddCacheResults(tier string, hits, misses int) {
	if hits > 0 {
		cacheResults.WithLabelValues(tier, "hit").Add(float64(hits))
	}
	if misses > 0 {
		cacheResults.WithLabelValues(tier, "miss").Add(float64(misses))
	}
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	cacheOpSeconds.WithLabelValues(op, result(err)).Observe(durationSeconds)
}

func SetHotKeysGauge(tier string, n int) {
	hotKeys.WithLabelValues(tier).Set(float64(n))
}

func IncTileEvent(direction string, err error) {
	tileEventsTotal.WithLabelValues(direction, result(err)).Inc()
}

func IncHitDropped() {
	hitEventsDropped.Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
