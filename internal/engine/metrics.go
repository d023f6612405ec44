package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/compute/internal/model"
)

// Run outcome label values.
const (
	outcomeCompleted = "completed"
	outcomeDegraded  = "degraded"
	outcomeAborted   = "aborted"
	outcomeRejected  = "rejected"
)

// Metrics exposes pool and task metrics. A nil *Metrics records nothing.
type Metrics struct {
	tasksTotal    *prometheus.CounterVec
	taskDuration  prometheus.Histogram
	workersActive prometheus.Gauge
	workerFaults  prometheus.Counter
	queueDepth    prometheus.Gauge
	runsTotal     *prometheus.CounterVec
}

// NewMetrics creates the engine metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "compute_tasks_total",
				Help: "Total number of tasks accounted for, by outcome.",
			},
			[]string{"status"},
		),
		taskDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "compute_task_duration_seconds",
				Help:    "Payload execution time of executed tasks, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
		),
		workersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "compute_workers_active",
				Help: "Number of workers alive in the current run.",
			},
		),
		workerFaults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "compute_worker_faults_total",
				Help: "Total number of workers retired after a fault.",
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "compute_queue_depth",
				Help: "Number of tasks waiting in the task queue.",
			},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "compute_runs_total",
				Help: "Total number of runs, by outcome.",
			},
			[]string{"outcome"},
		),
	}

	reg.MustRegister(m.tasksTotal, m.taskDuration, m.workersActive, m.workerFaults, m.queueDepth, m.runsTotal)

	// Pre-initialize label combinations so they are exported with value 0.
	for _, s := range []string{model.StatusSucceeded, model.StatusFailed, model.StatusNotRun} {
		m.tasksTotal.WithLabelValues(s)
	}
	for _, o := range []string{outcomeCompleted, outcomeDegraded, outcomeAborted, outcomeRejected} {
		m.runsTotal.WithLabelValues(o)
	}
	return m
}

func (m *Metrics) observeResult(r model.Result) {
	if m == nil {
		return
	}
	m.tasksTotal.WithLabelValues(r.Status).Inc()
	if r.WorkerID != model.NoWorker {
		m.taskDuration.Observe(r.Duration.Seconds())
	}
}

func (m *Metrics) setWorkers(n int) {
	if m == nil {
		return
	}
	m.workersActive.Set(float64(n))
}

func (m *Metrics) observeFault() {
	if m == nil {
		return
	}
	m.workerFaults.Inc()
}

func (m *Metrics) setQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) observeRun(outcome string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(outcome).Inc()
}
