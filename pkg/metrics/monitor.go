package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MonitorMetrics records metadata for SLA monitor cycles.
type MonitorMetrics struct {
	cycleDuration *prometheus.HistogramVec
	refunds       *prometheus.CounterVec
	cycleFailure  prometheus.Counter
}

// NewMonitorMetrics registers the SLA monitor metrics on the provided registerer.
func NewMonitorMetrics(reg prometheus.Registerer) *MonitorMetrics {
	if reg == nil {
		return &MonitorMetrics{}
	}
	cycleDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sla_cycle_duration_seconds",
		Help:    "Duration of SLA monitor cycles in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sla_breach_refunds_total",
		Help: "Automatic refunds attempted for SLA-breached entries.",
	}, []string{"outcome"})
	cycleFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sla_cycle_failures_total",
		Help: "SLA monitor cycles that ended with an error.",
	})
	reg.MustRegister(cycleDuration, refunds, cycleFailure)
	return &MonitorMetrics{
		cycleDuration: cycleDuration,
		refunds:       refunds,
		cycleFailure:  cycleFailure,
	}
}

// ObserveCycle records the duration of one monitor cycle.
func (m *MonitorMetrics) ObserveCycle(worker string, duration time.Duration) {
	if m == nil || m.cycleDuration == nil {
		return
	}
	m.cycleDuration.WithLabelValues(normalizeLabel(worker)).Observe(duration.Seconds())
}

// IncRefund counts one auto-refund attempt by outcome (ok/error).
func (m *MonitorMetrics) IncRefund(outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncCycleFailure counts a failed monitor cycle.
func (m *MonitorMetrics) IncCycleFailure() {
	if m == nil || m.cycleFailure == nil {
		return
	}
	m.cycleFailure.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
