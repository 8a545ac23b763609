package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lounge_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lounge_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketRoomConnections is the gauge of connections per room.
	WebSocketRoomConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lounge_websocket_room_connections",
		Help: "Number of WebSocket connections per room",
	}, []string{"room_id"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lounge_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketEventsTotal counts WebSocket events by type.
	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lounge_websocket_events_total",
		Help: "Total WebSocket events by type",
	}, []string{"event_type"})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lounge_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// PresenceOperations counts presence store operations by type and outcome.
	PresenceOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lounge_presence_operations_total",
		Help: "Total presence store operations by type and outcome",
	}, []string{"operation", "outcome"})

	// GraceTimersActive is the gauge of armed disconnect grace timers.
	GraceTimersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lounge_grace_timers_active",
		Help: "Number of currently armed disconnect grace timers",
	})

	// SweepReapedTotal counts presence records reaped by the cleanup sweep.
	SweepReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lounge_sweep_reaped_total",
		Help: "Total stale presence records reaped by the cleanup sweep",
	})

	// SweepDuration records the duration of cleanup sweep passes.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lounge_sweep_duration_seconds",
		Help:    "Duration of presence cleanup sweep passes in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// ModerationActionsTotal counts moderation actions by kind.
	ModerationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lounge_moderation_actions_total",
		Help: "Total moderation actions by kind",
	}, []string{"action"})

	// TransferLockContention counts transfer lock acquisitions by outcome.
	TransferLockContention = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lounge_transfer_lock_acquisitions_total",
		Help: "Total transfer lock acquisition attempts by outcome",
	}, []string{"outcome"})

	// JoinRejectionsTotal counts join attempts rejected at the gate, by reason.
	JoinRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lounge_join_rejections_total",
		Help: "Total join attempts rejected by the admission gate, by reason",
	}, []string{"reason"})
)

// DatabaseMetrics wraps DB access for recording query latency.
type DatabaseMetrics struct {
	db *gorm.DB
}

// NewDatabaseMetrics returns a new DatabaseMetrics instance.
func NewDatabaseMetrics(db *gorm.DB) *DatabaseMetrics {
	return &DatabaseMetrics{db: db}
}

// ObserveQuery records the latency of a database query.
func (m *DatabaseMetrics) ObserveQuery(operation, table string, start time.Time) {
	latency := time.Since(start).Seconds()
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(latency)
}

// TrackQuery returns a function that records query latency when called (e.g. defer).
func (m *DatabaseMetrics) TrackQuery(operation, table string) func() {
	start := time.Now()
	return func() {
		m.ObserveQuery(operation, table, start)
	}
}

// WebSocketRoomMetrics tracks WebSocket room and connection counts.
type WebSocketRoomMetrics struct {
	roomCounts map[string]int
}

// NewWebSocketRoomMetrics returns a new WebSocketRoomMetrics instance.
func NewWebSocketRoomMetrics() *WebSocketRoomMetrics {
	return &WebSocketRoomMetrics{
		roomCounts: make(map[string]int),
	}
}

// IncrementRoom increments the connection count for the room.
func (m *WebSocketRoomMetrics) IncrementRoom(roomID string) {
	m.roomCounts[roomID]++
	WebSocketRoomConnections.WithLabelValues(roomID).Inc()
	WebSocketConnectionsTotal.Inc()
}

// DecrementRoom decrements the connection count for the room.
func (m *WebSocketRoomMetrics) DecrementRoom(roomID string) {
	if m.roomCounts[roomID] > 0 {
		m.roomCounts[roomID]--
	}
	WebSocketRoomConnections.WithLabelValues(roomID).Dec()
	WebSocketConnectionsTotal.Dec()
}

// GetRoomCount returns the current connection count for the room.
func (m *WebSocketRoomMetrics) GetRoomCount(roomID string) int {
	return m.roomCounts[roomID]
}

// RecordWebSocketEvent increments the WebSocket events counter for the event type.
func (*WebSocketRoomMetrics) RecordWebSocketEvent(eventType string) {
	WebSocketEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordPresenceOp records a presence store operation outcome.
func RecordPresenceOp(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	PresenceOperations.WithLabelValues(operation, outcome).Inc()
}

// RecordJoinRejection records a join attempt rejected at the gate.
func RecordJoinRejection(reason string) {
	JoinRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordModerationAction records a completed moderation action.
func RecordModerationAction(action string) {
	ModerationActionsTotal.WithLabelValues(action).Inc()
}
