package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var msBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000}

var (
	QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orgdir_queries_total",
		Help: "Directory queries by operation",
	}, []string{"op"})
	QueryErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orgdir_query_errors_total",
		Help: "Directory queries that failed in the store",
	}, []string{"op"})
	EmptyResultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orgdir_empty_results_total",
		Help: "Directory queries returning no rows or not found",
	}, []string{"op"})
	QueryDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orgdir_query_duration_ms",
		Help:    "Directory query duration in milliseconds",
		Buckets: msBuckets,
	}, []string{"op"})
	ClosureSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orgdir_activity_closure_size",
		Help:    "Number of activity ids in a computed closure",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64},
	})
	BuildingsScanned = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orgdir_nearby_buildings_scanned",
		Help:    "Buildings evaluated by the in-process haversine filter per call",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})
	CacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orgdir_cache_hits_total",
		Help: "Total redis cache hits",
	})
	CacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orgdir_cache_misses_total",
		Help: "Total redis cache misses",
	})
	RateLimitedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "orgdir_rate_limited_total",
		Help: "Requests rejected by the ingress limiter",
	})
	GeoIPLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orgdir_geoip_lookups_total",
		Help: "Caller IP to coordinate resolutions by outcome",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		QueriesTotal,
		QueryErrorsTotal,
		EmptyResultsTotal,
		QueryDurationMs,
		ClosureSize,
		BuildingsScanned,
		CacheHitsTotal,
		CacheMissesTotal,
		RateLimitedTotal,
		GeoIPLookupsTotal,
	)
}

// Handler: exposes the default registry for scraping
func Handler() http.Handler { return promhttp.Handler() }
