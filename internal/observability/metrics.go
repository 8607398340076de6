package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics, registered the way the teacher's observability.metrics.go
// registers its HTTP/job counters (spec §5.3 of SPEC_FULL.md).
var (
	// JobsAcquiredTotal counts jobs acquired from the coordinator by kind.
	JobsAcquiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishnet_jobs_acquired_total",
			Help: "Total number of jobs acquired from the coordinator, by kind.",
		},
		[]string{"kind"},
	)
	// JobsSubmittedTotal counts batches handed to a submit call, labelled
	// "ok" or "failed"; it is incremented before the request is sent, so
	// it includes submits that then fail.
	JobsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishnet_jobs_submitted_total",
			Help: "Total number of batches submitted, by kind.",
		},
		[]string{"kind"},
	)
	// JobsFailedTotal counts batches that failed, by reason.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishnet_jobs_failed_total",
			Help: "Total number of batches that failed, by reason.",
		},
		[]string{"reason"},
	)
	// JobsAbortedTotal counts un-started jobs explicitly aborted.
	JobsAbortedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fishnet_jobs_aborted_total",
			Help: "Total number of jobs aborted before a worker started them.",
		},
	)
	// EngineCrashesTotal counts engine subprocess crashes.
	EngineCrashesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fishnet_engine_crashes_total",
			Help: "Total number of engine subprocess crashes detected.",
		},
	)
	// EngineRestartBackoffSeconds observes the chosen respawn delay.
	EngineRestartBackoffSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fishnet_engine_restart_backoff_seconds",
			Help:    "Backoff delay chosen before respawning a crashed engine.",
			Buckets: []float64{1, 2, 4, 8, 16, 30, 60},
		},
	)
	// APIRequestDuration records coordinator API call durations.
	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fishnet_api_request_duration_seconds",
			Help:    "Duration of coordinator API calls, by operation and outcome.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"op", "status"},
	)
	// APIRetriesTotal counts retry attempts by operation.
	APIRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fishnet_api_retries_total",
			Help: "Total number of retried coordinator API calls, by operation.",
		},
		[]string{"op"},
	)
	// QueueDepth gauges the number of jobs currently staged in the queue.
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fishnet_queue_depth",
			Help: "Number of jobs currently staged between acquire and a free worker.",
		},
	)
	// ActiveSearches gauges concurrently running engine searches.
	ActiveSearches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "fishnet_active_searches",
			Help: "Number of engine searches currently in progress.",
		},
	)
)

// InitMetrics registers every fishnet metric with the default Prometheus
// registry. Safe to call once at process startup.
func InitMetrics() {
	prometheus.MustRegister(
		JobsAcquiredTotal,
		JobsSubmittedTotal,
		JobsFailedTotal,
		JobsAbortedTotal,
		EngineCrashesTotal,
		EngineRestartBackoffSeconds,
		APIRequestDuration,
		APIRetriesTotal,
		QueueDepth,
		ActiveSearches,
	)
}
