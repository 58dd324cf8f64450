package metrics

import "github.com/prometheus/client_golang/prometheus"

// DeliveryMetrics counts orchestration outcomes per issue type.
type DeliveryMetrics struct {
	outcomes *prometheus.CounterVec
}

// NewDeliveryMetrics registers the delivery pipeline metrics.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_outcomes_total",
		Help: "Orchestration runs by terminal outcome.",
	}, []string{"outcome"})
	reg.MustRegister(outcomes)
	return &DeliveryMetrics{outcomes: outcomes}
}

// IncOutcome counts one finished orchestration run. Outcome is either
// "completed" or the issue type that sent the run to the queue.
func (d *DeliveryMetrics) IncOutcome(outcome string) {
	if d == nil || d.outcomes == nil {
		return
	}
	d.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}
