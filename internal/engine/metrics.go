package engine

import "github.com/prometheus/client_golang/prometheus"

var (
	invocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_invocations_total",
			Help: "Finished invocations by mode (sync or async) and terminal status.",
		},
		[]string{"mode", "status"},
	)

	invocationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vantage_invocation_duration_seconds",
			Help:    "Time from running to a terminal status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	inflightInvocations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vantage_invocations_inflight",
			Help: "Invocations currently running.",
		},
	)
)

func init() {
	prometheus.MustRegister(invocationsTotal)
	prometheus.MustRegister(invocationDuration)
	prometheus.MustRegister(inflightInvocations)
}
