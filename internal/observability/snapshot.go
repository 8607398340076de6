package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Snapshot is a point-in-time readout of the counters/gauges that matter
// operationally, served by the local status endpoint so an operator can
// poll JSON without scraping Prometheus text format.
type Snapshot struct {
	JobsAcquired   float64 `json:"jobs_acquired_total"`
	JobsSubmitted  float64 `json:"jobs_submitted_total"`
	JobsFailed     float64 `json:"jobs_failed_total"`
	JobsAborted    float64 `json:"jobs_aborted_total"`
	EngineCrashes  float64 `json:"engine_crashes_total"`
	QueueDepth     float64 `json:"queue_depth"`
	ActiveSearches float64 `json:"active_searches"`
}

// TakeSnapshot reads the current value of each registered metric.
func TakeSnapshot() Snapshot {
	return Snapshot{
		JobsAcquired:   sumVec(JobsAcquiredTotal),
		JobsSubmitted:  sumVec(JobsSubmittedTotal),
		JobsFailed:     sumVec(JobsFailedTotal),
		JobsAborted:    counterValue(JobsAbortedTotal),
		EngineCrashes:  counterValue(EngineCrashesTotal),
		QueueDepth:     gaugeValue(QueueDepth),
		ActiveSearches: gaugeValue(ActiveSearches),
	}
}

func sumVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 64)
	cv.Collect(ch)
	close(ch)
	var total float64
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			continue
		}
		if c := pb.GetCounter(); c != nil {
			total += c.GetValue()
		}
	}
	return total
}

func counterValue(c prometheus.Counter) float64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		return 0
	}
	return pb.GetCounter().GetValue()
}

func gaugeValue(g prometheus.Gauge) float64 {
	var pb dto.Metric
	if err := g.Write(&pb); err != nil {
		return 0
	}
	return pb.GetGauge().GetValue()
}
