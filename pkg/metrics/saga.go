package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SagaMetrics records outcomes of multi-step write sequences.
type SagaMetrics struct {
	duration     *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	stepFailures *prometheus.CounterVec
	compensation *prometheus.CounterVec
}

// Saga outcomes used as label values.
const (
	OutcomeCommitted   = "committed"
	OutcomeCompensated = "compensated"
	OutcomeOrphaned    = "orphaned"
)

// NewSagaMetrics registers the saga metrics on the provided registerer.
func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	if reg == nil {
		return &SagaMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "saga_duration_seconds",
		Help:    "Duration of saga runs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"saga"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_runs_total",
		Help: "Saga runs by outcome.",
	}, []string{"saga", "outcome"})
	stepFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_step_failures_total",
		Help: "Forward step failures, including tolerated ones.",
	}, []string{"saga", "step", "tolerated"})
	compensation := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "saga_compensation_failures_total",
		Help: "Compensating actions that failed and left rows behind.",
	}, []string{"saga", "step"})
	reg.MustRegister(duration, runs, stepFailures, compensation)
	return &SagaMetrics{
		duration:     duration,
		runs:         runs,
		stepFailures: stepFailures,
		compensation: compensation,
	}
}

// ObserveRun records the duration and outcome of one saga run.
func (m *SagaMetrics) ObserveRun(saga, outcome string, duration time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	saga = normalizeLabel(saga)
	m.duration.WithLabelValues(saga).Observe(duration.Seconds())
	m.runs.WithLabelValues(saga, normalizeLabel(outcome)).Inc()
}

func (m *SagaMetrics) IncStepFailure(saga, step string, tolerated bool) {
	if m == nil || m.stepFailures == nil {
		return
	}
	label := "false"
	if tolerated {
		label = "true"
	}
	m.stepFailures.WithLabelValues(normalizeLabel(saga), normalizeLabel(step), label).Inc()
}

func (m *SagaMetrics) IncCompensationFailure(saga, step string) {
	if m == nil || m.compensation == nil {
		return
	}
	m.compensation.WithLabelValues(normalizeLabel(saga), normalizeLabel(step)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
