package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "xrsync"

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	websocketSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "websocket_sessions_total",
			Help:      "Websocket sessions served, counted when they end.",
		},
		[]string{"node", "path"},
	)
	connectAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connect_attempts_total",
			Help:      "Relay connection attempts by result.",
		},
		[]string{"result"},
	)
	transportOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "open",
			Help:      "1 while the relay connection is open.",
		},
	)
	messages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "messages_total",
			Help:      "Messages by direction and kind.",
		},
		[]string{"direction", "kind"},
	)
	protocolErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "protocol_errors_total",
			Help:      "Malformed or rejected inbound data by category.",
		},
		[]string{"category"},
	)
	patchesApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "replica",
			Name:      "patch_ops_total",
			Help:      "JSON patch operations applied to the shared state.",
		},
	)
	relayPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "peers",
			Help:      "Peers that completed the handshake.",
		},
	)
	relayBroadcasts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "broadcast_frames_total",
			Help:      "Aggregated state frames sent to peers.",
		},
	)
	serializationMismatch = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "device",
			Name:      "serialization_mismatch_total",
			Help:      "Device blocks whose written size differed from the computed size.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration, websocketSessions,
			connectAttempts, transportOpen,
			messages, protocolErrors,
			patchesApplied, serializationMismatch,
			relayPeers, relayBroadcasts,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordWebsocketSession(node, path string) {
	RegisterMetrics()
	websocketSessions.WithLabelValues(node, path).Inc()
}

func RecordConnectAttempt(success bool) {
	RegisterMetrics()
	result := "failure"
	if success {
		result = "success"
	}
	connectAttempts.WithLabelValues(result).Inc()
}

func SetTransportOpen(open bool) {
	RegisterMetrics()
	if open {
		transportOpen.Set(1)
		return
	}
	transportOpen.Set(0)
}

// RecordMessage counts one message; direction is "in" or "out".
func RecordMessage(direction, kind string) {
	RegisterMetrics()
	messages.WithLabelValues(direction, kind).Inc()
}

func RecordProtocolError(category string) {
	RegisterMetrics()
	protocolErrors.WithLabelValues(category).Inc()
}

func RecordPatches(n int) {
	RegisterMetrics()
	patchesApplied.Add(float64(n))
}

func RecordSerializationMismatch() {
	RegisterMetrics()
	serializationMismatch.Inc()
}

func SetRelayPeers(n int) {
	RegisterMetrics()
	relayPeers.Set(float64(n))
}

func RecordRelayBroadcast() {
	RegisterMetrics()
	relayBroadcasts.Inc()
}
