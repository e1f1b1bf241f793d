package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MaintenanceMetrics tracks retention sweeps.
type MaintenanceMetrics struct {
	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pruned   *prometheus.CounterVec
}

func NewMaintenanceMetrics(reg prometheus.Registerer) *MaintenanceMetrics {
	if reg == nil {
		return &MaintenanceMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_task_runs_total",
		Help: "Maintenance task runs by outcome.",
	}, []string{"task", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "maintenance_task_duration_seconds",
		Help:    "Maintenance task duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
	pruned := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maintenance_rows_pruned_total",
		Help: "Rows removed by retention tasks.",
	}, []string{"task"})
	reg.MustRegister(runs, duration, pruned)
	return &MaintenanceMetrics{runs: runs, duration: duration, pruned: pruned}
}

func (m *MaintenanceMetrics) ObserveRun(task, outcome string, d time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(task), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(task)).Observe(d.Seconds())
}

func (m *MaintenanceMetrics) AddPruned(task string, rows int64) {
	if m == nil || m.pruned == nil || rows <= 0 {
		return
	}
	m.pruned.WithLabelValues(normalizeLabel(task)).Add(float64(rows))
}
