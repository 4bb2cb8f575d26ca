package metrics

import "github.com/prometheus/client_golang/prometheus"

// Index cache and object store metrics.
var (
	IndexCacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "index_cache_lookups_total",
			Help:      "Tenant index loads by the tier that served them",
		},
		[]string{"tier"}, // "memory" / "disk" / "remote" / "miss"
	)

	IndexCacheEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "index_cache_evictions_total",
			Help:      "Tenant indexes evicted from memory",
		},
	)

	IndexCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "index_cache_entries",
			Help:      "Tenant indexes currently held in memory",
		},
	)

	IndexSearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "index_search_duration_seconds",
			Help:      "Nearest-neighbour search duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
	)

	ObjectStoreUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "object_store_uploads_total",
			Help:      "Object store upload outcomes",
		},
		[]string{"status"}, // "success" / "retry" / "failure"
	)
)

var indexMetricsRegistered bool

// RegisterIndexMetrics registers index cache and object store metrics. Must be called once from main.
func RegisterIndexMetrics() {
	if indexMetricsRegistered {
		return
	}
	prometheus.MustRegister(IndexCacheLookupsTotal)
	prometheus.MustRegister(IndexCacheEvictionsTotal)
	prometheus.MustRegister(IndexCacheEntries)
	prometheus.MustRegister(IndexSearchDuration)
	prometheus.MustRegister(ObjectStoreUploadsTotal)
	indexMetricsRegistered = true
}
