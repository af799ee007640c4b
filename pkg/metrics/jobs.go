package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records scheduled job runs.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Duration of cron jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Cron job executions by outcome.",
	}, []string{"job", "outcome"})
	reg.MustRegister(duration, runs)
	return &CronJobMetrics{duration: duration, runs: runs}
}

func (m *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (m *CronJobMetrics) IncSuccess(job string) {
	m.inc(job, "success")
}

func (m *CronJobMetrics) IncFailure(job string) {
	m.inc(job, "failure")
}

func (m *CronJobMetrics) inc(job, outcome string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(job), outcome).Inc()
}

// OutboxMetrics counts publisher outcomes per event type.
type OutboxMetrics struct {
	events *prometheus.CounterVec
}

// Outbox publish outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_total",
		Help: "Ledger events handled by the outbox publisher, by outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &OutboxMetrics{events: events}
}

func (m *OutboxMetrics) Inc(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}
