package metrics

import "github.com/prometheus/client_golang/prometheus"

// Catalog, search and interaction Prometheus metrics.
var (
	CatalogCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noaalidar",
			Name:      "catalog_cache_total",
			Help:      "Catalog cache reads and writes by result",
		},
		[]string{"op", "result"}, // op: read/write/clear; result: hit/miss/expired/ok/error
	)

	CatalogRebuildItemsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noaalidar",
			Name:      "catalog_rebuild_items_total",
			Help:      "Item documents processed during catalog rebuilds",
		},
		[]string{"status"}, // ok / failed
	)

	CatalogRebuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "noaalidar",
			Name:      "catalog_rebuild_duration_seconds",
			Help:      "Catalog rebuild duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	CatalogIndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "noaalidar",
			Name:      "catalog_index_items",
			Help:      "Records in the in-memory search index",
		},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "noaalidar",
			Name:      "search_duration_seconds",
			Help:      "Spatial search duration in seconds",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	SearchMatches = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "noaalidar",
			Name:      "search_matches",
			Help:      "Matched records per spatial search before truncation",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	InteractionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "noaalidar",
			Name:      "interaction_events_total",
			Help:      "Interaction lifecycle events by kind",
		},
		[]string{"kind"},
	)
)

var catalogMetricsRegistered bool

// RegisterCatalogMetrics registers catalog Prometheus metrics. Must be called once from main.
func RegisterCatalogMetrics() {
	if catalogMetricsRegistered {
		return
	}
	prometheus.MustRegister(CatalogCacheTotal)
	prometheus.MustRegister(CatalogRebuildItemsTotal)
	prometheus.MustRegister(CatalogRebuildDuration)
	prometheus.MustRegister(CatalogIndexSize)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchMatches)
	prometheus.MustRegister(InteractionEventsTotal)
	catalogMetricsRegistered = true
}
