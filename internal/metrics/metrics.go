// Package metrics exposes Prometheus instrumentation for the session
// layer: connection state, message throughput, sequence gaps, and store
// latency, scraped over the standard /metrics HTTP handler.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fix_session_state",
			Help: "Current session state as an enum value (see session.State)",
		},
		[]string{"session_id"},
	)

	sessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fix_sessions_active",
			Help: "Number of sessions currently in the Active state",
		},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fix_messages_total",
			Help: "Total messages by direction and MsgType",
		},
		[]string{"session_id", "direction", "msg_type"},
	)

	messageProcessingLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fix_message_processing_latency_milliseconds",
			Help:    "Time from frame receipt to state-machine dispatch",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		},
		[]string{"session_id"},
	)

	sequenceGapsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fix_sequence_gaps_detected_total",
			Help: "Total inbound sequence gaps detected",
		},
		[]string{"session_id"},
	)

	resendRequestsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fix_resend_requests_sent_total",
			Help: "Total ResendRequest messages emitted",
		},
		[]string{"session_id"},
	)

	sequenceResetsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fix_sequence_resets_received_total",
			Help: "Total SequenceReset messages received, by gap-fill flag",
		},
		[]string{"session_id", "gap_fill"},
	)

	sessionRejectsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fix_session_level_rejects_sent_total",
			Help: "Total Reject (MsgType 3) messages sent, by reason code",
		},
		[]string{"session_id", "reason"},
	)

	heartbeatMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fix_heartbeat_misses_total",
			Help: "Total times a TestRequest fired because no traffic arrived in time",
		},
		[]string{"session_id"},
	)

	storeAppendLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fix_store_append_latency_milliseconds",
			Help:    "Latency of MessageStore.Append calls",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 25, 50, 100, 250},
		},
		[]string{"backend"},
	)

	storeErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fix_store_errors_total",
			Help: "Total MessageStore errors, by backend and operation",
		},
		[]string{"backend", "operation"},
	)

	transportReconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fix_transport_reconnects_total",
			Help: "Total transport reconnect attempts",
		},
		[]string{"session_id"},
	)
)

// RecordSessionState publishes a session's current state and maintains the
// Active-session gauge.
func RecordSessionState(sessionID string, state int, active bool) {
	sessionState.WithLabelValues(sessionID).Set(float64(state))
	if active {
		sessionsActive.Inc()
	}
}

// RecordSessionInactive decrements the Active-session gauge when a session
// leaves the Active state.
func RecordSessionInactive() {
	sessionsActive.Dec()
}

// RecordMessage records one message crossing the wire in either direction.
func RecordMessage(sessionID, direction, msgType string) {
	messagesTotal.WithLabelValues(sessionID, direction, msgType).Inc()
}

// RecordMessageProcessingLatency records the time from frame receipt to
// state-machine dispatch.
func RecordMessageProcessingLatency(sessionID string, d time.Duration) {
	messageProcessingLatency.WithLabelValues(sessionID).Observe(float64(d.Microseconds()) / 1000)
}

// RecordSequenceGap records a detected inbound sequence gap.
func RecordSequenceGap(sessionID string) {
	sequenceGapsDetected.WithLabelValues(sessionID).Inc()
}

// RecordResendRequestSent records an emitted ResendRequest.
func RecordResendRequestSent(sessionID string) {
	resendRequestsSent.WithLabelValues(sessionID).Inc()
}

// RecordSequenceReset records a received SequenceReset, distinguishing
// gap-fill resets from hard resets.
func RecordSequenceReset(sessionID string, gapFill bool) {
	flag := "false"
	if gapFill {
		flag = "true"
	}
	sequenceResetsReceived.WithLabelValues(sessionID, flag).Inc()
}

// RecordSessionReject records an outbound session-level Reject.
func RecordSessionReject(sessionID string, reason int) {
	sessionRejectsSent.WithLabelValues(sessionID, itoa(reason)).Inc()
}

// RecordHeartbeatMiss records a TestRequest fired due to inbound silence.
func RecordHeartbeatMiss(sessionID string) {
	heartbeatMisses.WithLabelValues(sessionID).Inc()
}

// RecordStoreAppend records the latency of one MessageStore.Append call.
func RecordStoreAppend(backend string, d time.Duration) {
	storeAppendLatency.WithLabelValues(backend).Observe(float64(d.Microseconds()) / 1000)
}

// RecordStoreError records a MessageStore failure.
func RecordStoreError(backend, operation string) {
	storeErrors.WithLabelValues(backend, operation).Inc()
}

// RecordTransportReconnect records a reconnect attempt.
func RecordTransportReconnect(sessionID string) {
	transportReconnects.WithLabelValues(sessionID).Inc()
}

// Handler returns the HTTP handler serving the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
