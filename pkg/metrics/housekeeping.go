package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HousekeepingMetrics records maintenance task runs.
type HousekeepingMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	removed  *prometheus.CounterVec
}

// NewHousekeepingMetrics registers the housekeeping metrics on reg.
func NewHousekeepingMetrics(reg prometheus.Registerer) *HousekeepingMetrics {
	if reg == nil {
		return &HousekeepingMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "housekeeping_task_duration_seconds",
		Help:      "Duration of housekeeping tasks in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"task"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "housekeeping_task_runs_total",
		Help:      "Housekeeping task runs by result.",
	}, []string{"task", "result"})
	removed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "housekeeping_rows_removed_total",
		Help:      "Rows deleted by housekeeping tasks.",
	}, []string{"task"})
	reg.MustRegister(duration, runs, removed)
	return &HousekeepingMetrics{duration: duration, runs: runs, removed: removed}
}

// ObserveTask records one run of task.
func (m *HousekeepingMetrics) ObserveTask(task string, elapsed time.Duration, removed int64, err error) {
	if m == nil || m.duration == nil {
		return
	}
	task = normalizeLabel(task)
	m.duration.WithLabelValues(task).Observe(elapsed.Seconds())
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.runs.WithLabelValues(task, result).Inc()
	if removed > 0 {
		m.removed.WithLabelValues(task).Add(float64(removed))
	}
}
