package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// SubmissionsTotal counts report submissions by outcome: admitted,
	// conflict, invalid or unavailable.
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "reportmap",
		Name:      "submissions_total",
		Help:      "Total number of report submissions, labeled by result.",
	}, []string{"result"})

	// AggregationsTotal counts map aggregations by the mode actually returned.
	AggregationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "reportmap",
		Name:      "aggregations_total",
		Help:      "Total number of map aggregations, labeled by mode.",
	}, []string{"mode"})

	DegradedAggregationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "reportmap",
		Name:      "degraded_aggregations_total",
		Help:      "Total number of aggregations that fell back to markers after an aggregator failure.",
	})

	RejectedReportsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "reportmap",
		Name:      "rejected_reports_total",
		Help:      "Total number of reports dropped from aggregation for invalid coordinates.",
	})

	AggregationDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cleanapp",
		Subsystem: "reportmap",
		Name:      "aggregation_duration_seconds",
		Help:      "Time to aggregate a viewport snapshot, excluding the store read.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"mode"})

	StoreDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cleanapp",
		Subsystem: "reportmap",
		Name:      "store_duration_seconds",
		Help:      "Time spent in report store calls, labeled by operation.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"op"})

	PublishErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "reportmap",
		Name:      "publish_errors_total",
		Help:      "Total number of report events that could not be published to RabbitMQ.",
	})

	LiveClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "cleanapp",
		Subsystem: "reportmap",
		Name:      "live_clients",
		Help:      "Current number of connected live map clients.",
	})

	StaleResultsDroppedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "cleanapp",
		Subsystem: "reportmap",
		Name:      "stale_results_dropped_total",
		Help:      "Total number of live map results dropped because a newer viewport arrived.",
	})
)

// Register registers report map metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionsTotal,
			AggregationsTotal,
			DegradedAggregationsTotal,
			RejectedReportsTotal,
			AggregationDurationSeconds,
			StoreDurationSeconds,
			PublishErrorsTotal,
			LiveClients,
			StaleResultsDroppedTotal,
		)
	})
}
