package dispatch

import "github.com/prometheus/client_golang/prometheus"

// Dispatch paths.
const (
	pathEmpty     = "empty"
	pathDirect    = "direct"
	pathComposite = "composite"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_dispatch_requests_total",
			Help: "Dispatched requests by path (empty, direct or composite).",
		},
		[]string{"path"},
	)

	callsPerRequest = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vantage_dispatch_calls_per_request",
			Help:    "Number of calls a composite request decomposed into.",
			Buckets: prometheus.ExponentialBuckets(2, 2, 8),
		},
	)

	deduplicatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vantage_dispatch_deduplicated_calls_total",
			Help: "Calls skipped because an identical call in the same request was already scheduled.",
		},
	)

	failedCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vantage_dispatch_failed_calls_total",
			Help: "Calls that returned an error.",
		},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(callsPerRequest)
	prometheus.MustRegister(deduplicatedTotal)
	prometheus.MustRegister(failedCallsTotal)
}
