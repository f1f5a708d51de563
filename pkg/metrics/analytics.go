package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AnalyticsMetrics tracks what the analytics consumer does with each message.
type AnalyticsMetrics struct {
	consumed *prometheus.CounterVec
	lag      prometheus.Histogram
}

func NewAnalyticsMetrics(reg prometheus.Registerer) *AnalyticsMetrics {
	if reg == nil {
		return &AnalyticsMetrics{}
	}
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_messages_consumed_total",
		Help: "Pub/Sub messages seen by the analytics consumer by event type and result.",
	}, []string{"event_type", "result"})
	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "analytics_event_lag_seconds",
		Help:    "Time between an event occurring and the analytics consumer handling it.",
		Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 900},
	})
	reg.MustRegister(consumed, lag)
	return &AnalyticsMetrics{consumed: consumed, lag: lag}
}

// Consumed counts one message. eventType may be empty for undecodable messages.
func (m *AnalyticsMetrics) Consumed(eventType, result string) {
	if m == nil || m.consumed == nil {
		return
	}
	m.consumed.WithLabelValues(normalizeLabel(eventType), result).Inc()
}

// ObserveLag records how long after occurredAt an event was written.
func (m *AnalyticsMetrics) ObserveLag(occurredAt, now time.Time) {
	if m == nil || m.lag == nil || occurredAt.IsZero() {
		return
	}
	m.lag.Observe(max(now.Sub(occurredAt).Seconds(), 0))
}
