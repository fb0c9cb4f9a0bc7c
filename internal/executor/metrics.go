package executor

import "github.com/prometheus/client_golang/prometheus"

var (
	livePairs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "vantage_executor_pairs",
			Help: "Number of pool pairs currently registered.",
		},
	)

	pairsConstructed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vantage_executor_pairs_constructed_total",
			Help: "Total number of pool pairs constructed.",
		},
	)

	pairsEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vantage_executor_pairs_evicted_total",
			Help: "Total number of idle pool pairs evicted.",
		},
	)

	queuedTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vantage_executor_queued_tasks",
			Help: "Tasks waiting for a free worker.",
		},
		[]string{"role"},
	)

	activeTasks = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vantage_executor_active_tasks",
			Help: "Tasks currently holding a worker.",
		},
		[]string{"role"},
	)

	droppedTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantage_executor_dropped_tasks_total",
			Help: "Tasks dropped from the queue because their context ended.",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(livePairs)
	prometheus.MustRegister(pairsConstructed)
	prometheus.MustRegister(pairsEvicted)
	prometheus.MustRegister(queuedTasks)
	prometheus.MustRegister(activeTasks)
	prometheus.MustRegister(droppedTasks)

	for _, role := range []string{RoleFunction, RoleQuery} {
		queuedTasks.WithLabelValues(role)
		activeTasks.WithLabelValues(role)
		droppedTasks.WithLabelValues(role)
	}
}
