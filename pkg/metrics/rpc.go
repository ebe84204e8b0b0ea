package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/keelfs/keelfs/pkg/rpc/sasl"
	"github.com/keelfs/keelfs/pkg/rpc/server"
)

var (
	_ sasl.HandshakeMetrics  = (*RPCMetrics)(nil)
	_ server.MetricsRecorder = (*RPCMetrics)(nil)
)

// RPCMetrics records authentication handshake outcomes and connection
// lifecycle for the RPC layer. It satisfies both sasl.HandshakeMetrics and
// the RPC server's MetricsRecorder.
type RPCMetrics struct {
	handshakeSuccess *prometheus.CounterVec
	handshakeFailure *prometheus.CounterVec
	connsAccepted    prometheus.Counter
	connsClosed      prometheus.Counter
	activeConns      prometheus.Gauge
}

// NewRPCMetrics creates a Prometheus-backed RPCMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called); all
// methods on a nil receiver are no-ops.
func NewRPCMetrics() *RPCMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &RPCMetrics{
		handshakeSuccess: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "keelfs_rpc_handshakes_total",
				Help: "Total number of successful RPC authentication handshakes by mechanism",
			},
			[]string{"mechanism"},
		),
		handshakeFailure: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "keelfs_rpc_handshake_failures_total",
				Help: "Total number of failed RPC authentication handshakes by mechanism",
			},
			[]string{"mechanism"},
		),
		connsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "keelfs_rpc_connections_accepted_total",
				Help: "Total number of accepted RPC connections",
			},
		),
		connsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "keelfs_rpc_connections_closed_total",
				Help: "Total number of closed RPC connections",
			},
		),
		activeConns: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "keelfs_rpc_active_connections",
				Help: "Current number of active RPC connections",
			},
		),
	}
}

// RecordHandshakeSuccess records a completed authentication handshake.
func (m *RPCMetrics) RecordHandshakeSuccess(mechanism string) {
	if m == nil {
		return
	}
	m.handshakeSuccess.WithLabelValues(mechanism).Inc()
}

// RecordHandshakeFailure records a rejected or aborted handshake.
func (m *RPCMetrics) RecordHandshakeFailure(mechanism string) {
	if m == nil {
		return
	}
	m.handshakeFailure.WithLabelValues(mechanism).Inc()
}

// RecordConnectionAccepted records an accepted connection.
func (m *RPCMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connsAccepted.Inc()
}

// RecordConnectionClosed records a closed connection.
func (m *RPCMetrics) RecordConnectionClosed() {
	if m == nil {
		return
	}
	m.connsClosed.Inc()
}

// SetActiveConnections updates the active connection gauge.
func (m *RPCMetrics) SetActiveConnections(count int32) {
	if m == nil {
		return
	}
	m.activeConns.Set(float64(count))
}
