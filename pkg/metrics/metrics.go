package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksTotal tracks the current queue size by state (queued/running).
	TasksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bastion_tasks_total",
			Help: "Current number of tasks by state",
		},
		[]string{"state"},
	)

	TasksScheduledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_tasks_scheduled_total",
			Help: "Total number of tasks scheduled, by origin (initial, routed, core-coverage)",
		},
		[]string{"origin"},
	)

	TasksCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_tasks_completed_total",
			Help: "Total number of tasks completed, by outcome (success, failed)",
		},
		[]string{"outcome"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bastion_task_duration_seconds",
			Help:    "Task execution duration in seconds, by tool",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"tool"},
	)

	ContainersRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bastion_containers_running",
			Help: "Number of containers currently running analysis tasks",
		},
	)

	ContainerStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bastion_container_start_duration_seconds",
			Help:    "Time taken to pull and start a container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RoutedTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bastion_routed_tasks_total",
			Help: "Total number of follow-up tasks produced by the router, by finding category",
		},
		[]string{"category"},
	)

	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bastion_scheduling_latency_seconds",
			Help:    "Time spent in a worker's post-execution routing/coverage step",
			Buckets: prometheus.DefBuckets,
		},
	)

	ResultDirCollisionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bastion_result_dir_collisions_total",
			Help: "Total number of result directory name collisions resolved with a _N suffix",
		},
	)

	BudgetWorkerSecondsPlanned = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bastion_budget_worker_seconds_planned",
			Help: "Worker-seconds planned by the most recent budget-phase batch",
		},
	)

	BudgetBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bastion_budget_batches_total",
			Help: "Total number of budget-phase batches executed",
		},
	)
)

func init() {
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TasksScheduledTotal)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(ContainersRunning)
	prometheus.MustRegister(ContainerStartDuration)
	prometheus.MustRegister(RoutedTasksTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(ResultDirCollisionsTotal)
	prometheus.MustRegister(BudgetWorkerSecondsPlanned)
	prometheus.MustRegister(BudgetBatchesTotal)
}

// Handler returns the Prometheus HTTP handler, for an optional --metrics-addr
// listener in cmd/bastion.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
