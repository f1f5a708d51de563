package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics counts publisher outcomes per event type.
type OutboxMetrics struct {
	dispatched *prometheus.CounterVec
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_events_dispatched_total",
		Help: "Outbox rows handled by the publisher by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(dispatched)
	return &OutboxMetrics{dispatched: dispatched}
}

// Observe records one dispatch outcome (published, retry or dead_letter).
func (m *OutboxMetrics) Observe(eventType, outcome string) {
	if m == nil || m.dispatched == nil {
		return
	}
	m.dispatched.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}
