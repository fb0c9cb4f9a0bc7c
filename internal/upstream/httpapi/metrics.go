package httpapi

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_upstream_requests_total",
			Help: "Requests sent to monitoring APIs, by datasource, operation and status.",
		},
		[]string{"datasource", "op", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vantage_upstream_request_duration_seconds",
			Help:    "Duration of upstream calls including retries.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"datasource", "op"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_upstream_retries_total",
			Help: "Upstream requests retried after a transient failure.",
		},
		[]string{"datasource", "op"},
	)
)

func init() {
	prometheus.MustRegister(requestsTotal)
	prometheus.MustRegister(requestDuration)
	prometheus.MustRegister(retriesTotal)
}
