package cache

import "github.com/prometheus/client_golang/prometheus"

// Eviction reasons.
const (
	reasonSize    = "size"
	reasonExpired = "expired"
)

var (
	lookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_cache_lookups_total",
			Help: "Cache lookups by result (hit or miss).",
		},
		[]string{"cache", "result"},
	)

	evictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_cache_evictions_total",
			Help: "Cache evictions by reason (size or expired).",
		},
		[]string{"cache", "reason"},
	)

	computesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_cache_computes_total",
			Help: "Computations run on cache misses, by status.",
		},
		[]string{"cache", "status"},
	)

	entriesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vantage_cache_entries",
			Help: "Current number of cache entries.",
		},
		[]string{"cache"},
	)
)

func init() {
	prometheus.MustRegister(lookupsTotal)
	prometheus.MustRegister(evictionsTotal)
	prometheus.MustRegister(computesTotal)
	prometheus.MustRegister(entriesGauge)
}
