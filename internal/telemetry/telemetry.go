// Package telemetry wires the core's observable counters/gauges into
// prometheus/client_golang, replacing the teacher's hand-rolled periodic
// log.Printf stats loop (metrics.go's RunMetrics) with real metrics while
// keeping a periodic slog summary at the same cadence.
package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/gauge the core emits.
type Metrics struct {
	SessionsActive       prometheus.Gauge
	BroadcastsSent       *prometheus.CounterVec
	ChatMessagesSent     prometheus.Counter
	ChatRateLimited       prometheus.Counter
	ControllerTransfers  prometheus.Counter
	DriftSamplesReceived prometheus.Counter
	ConnectionsActive    prometheus.Gauge

	connCount atomic.Int64
}

// IncConnections increments the open-connection gauge and the plain counter
// RunSummaryLog reads back (a prometheus.Gauge has no read accessor).
func (m *Metrics) IncConnections() {
	m.connCount.Add(1)
	m.ConnectionsActive.Inc()
}

// DecConnections is IncConnections's counterpart, called on disconnect.
func (m *Metrics) DecConnections() {
	m.connCount.Add(-1)
	m.ConnectionsActive.Dec()
}

// ConnectionCount returns the current open-connection count, suitable as the
// connCount argument to RunSummaryLog.
func (m *Metrics) ConnectionCount() int {
	return int(m.connCount.Load())
}

// New registers every metric against reg (pass prometheus.DefaultRegisterer
// in production, a fresh prometheus.NewRegistry() in tests).
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "syncd", Name: "sessions_active",
			Help: "Number of live synchronized-playback sessions.",
		}),
		BroadcastsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "syncd", Name: "broadcasts_sent_total",
			Help: "Adaptive broadcaster sync_state sends, by tick kind.",
		}, []string{"tick"}),
		ChatMessagesSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: "syncd", Name: "chat_messages_sent_total",
			Help: "Chat messages accepted by the router.",
		}),
		ChatRateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: "syncd", Name: "chat_rate_limited_total",
			Help: "Chat messages rejected by the per-connection rate limiter.",
		}),
		ControllerTransfers: f.NewCounter(prometheus.CounterOpts{
			Namespace: "syncd", Name: "controller_transfers_total",
			Help: "Successful controller transfers, by any protocol.",
		}),
		DriftSamplesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: "syncd", Name: "drift_samples_received_total",
			Help: "drift_report events recorded.",
		}),
		ConnectionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "syncd", Name: "connections_active",
			Help: "Open websocket connections.",
		}),
	}
}

// RunSummaryLog periodically logs a structured summary until ctx is done,
// mirroring the cadence of the teacher's metrics.go RunMetrics loop.
func RunSummaryLog(ctx context.Context, interval time.Duration, sessionCount func() int, connCount func() int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("telemetry summary", "sessions_active", sessionCount(), "connections_active", connCount())
		}
	}
}
