package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// TableMetrics counts lifecycle operations by outcome and status cache lookups.
type TableMetrics struct {
	operations *prometheus.CounterVec
	cache      *prometheus.CounterVec
	healed     prometheus.Counter
}

// NewTableMetrics registers the table lifecycle metrics on the provided registerer.
func NewTableMetrics(reg prometheus.Registerer) *TableMetrics {
	if reg == nil {
		return &TableMetrics{}
	}
	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "table_operations_total",
		Help: "Table lifecycle operations by operation and outcome.",
	}, []string{"operation", "outcome"})
	cache := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "table_status_cache_lookups_total",
		Help: "Table status cache lookups by result.",
	}, []string{"result"})
	healed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "table_orphan_pointers_healed_total",
		Help: "Orphaned current table pointers cleared.",
	})
	reg.MustRegister(operations, cache, healed)
	return &TableMetrics{operations: operations, cache: cache, healed: healed}
}

// ObserveOperation records one lifecycle call. An empty outcome means success.
func (m *TableMetrics) ObserveOperation(operation, outcome string) {
	if m == nil || m.operations == nil {
		return
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(normalizeLabel(operation), outcome).Inc()
}

// ObserveCache records a status cache hit or miss.
func (m *TableMetrics) ObserveCache(hit bool) {
	if m == nil || m.cache == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cache.WithLabelValues(result).Inc()
}

// IncHealed counts a cleared orphan pointer.
func (m *TableMetrics) IncHealed() {
	if m == nil || m.healed == nil {
		return
	}
	m.healed.Inc()
}

// RoomMetrics tracks open room sessions and their terminal states.
type RoomMetrics struct {
	open     prometheus.Gauge
	finished *prometheus.CounterVec
}

// NewRoomMetrics registers the room session metrics on the provided registerer.
func NewRoomMetrics(reg prometheus.Registerer) *RoomMetrics {
	if reg == nil {
		return &RoomMetrics{}
	}
	open := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "room_sessions_open",
		Help: "Room sessions currently streaming.",
	})
	finished := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "room_sessions_finished_total",
		Help: "Room sessions by final state.",
	}, []string{"state"})
	reg.MustRegister(open, finished)
	return &RoomMetrics{open: open, finished: finished}
}

// Opened marks a session as started.
func (m *RoomMetrics) Opened() {
	if m == nil || m.open == nil {
		return
	}
	m.open.Inc()
}

// Finished marks a session as done in the given state.
func (m *RoomMetrics) Finished(state string) {
	if m == nil || m.open == nil {
		return
	}
	m.open.Dec()
	m.finished.WithLabelValues(normalizeLabel(state)).Inc()
}
