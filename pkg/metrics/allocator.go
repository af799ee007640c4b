package metrics

import "github.com/prometheus/client_golang/prometheus"

// AllocatorMetrics counts retries and failures of max+1 number allocation.
type AllocatorMetrics struct {
	retries  *prometheus.CounterVec
	failures *prometheus.CounterVec
}

func NewAllocatorMetrics(reg prometheus.Registerer) *AllocatorMetrics {
	if reg == nil {
		return &AllocatorMetrics{}
	}
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocator_retries_total",
		Help: "Allocation attempts that collided with a concurrent writer.",
	}, []string{"sequence"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "allocator_failures_total",
		Help: "Allocations that gave up, by reason.",
	}, []string{"sequence", "reason"})
	reg.MustRegister(retries, failures)
	return &AllocatorMetrics{retries: retries, failures: failures}
}

func (m *AllocatorMetrics) IncRetry(sequence string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(sequence)).Inc()
}

func (m *AllocatorMetrics) IncFailure(sequence, reason string) {
	if m == nil || m.failures == nil {
		return
	}
	m.failures.WithLabelValues(normalizeLabel(sequence), normalizeLabel(reason)).Inc()
}
