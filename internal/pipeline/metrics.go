package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the pipeline subsystem.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	RunDuration   *prometheus.HistogramVec
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quell_pipeline_runs_total",
			Help: "Total pipeline runs by run kind and outcome.",
		}, []string{"run", "outcome"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quell_pipeline_run_duration_seconds",
			Help:    "Duration of full pipeline runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s .. ~512s
		}, []string{"run"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quell_pipeline_stage_duration_seconds",
			Help:    "Duration of individual stage runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s .. ~256s
		}, []string{"agent", "status"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quell_pipeline_stage_failures_total",
			Help: "Total stage failures by agent.",
		}, []string{"agent"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.StageDuration,
		m.StageFailures,
	)

	return m
}

func (m *Metrics) observeStage(agent, status string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(agent, status).Observe(seconds)
	if status == "error" {
		m.StageFailures.WithLabelValues(agent).Inc()
	}
}

func (m *Metrics) observeRun(run, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(run, outcome).Inc()
	m.RunDuration.WithLabelValues(run).Observe(seconds)
}
