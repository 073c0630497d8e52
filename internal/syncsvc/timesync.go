// Package syncsvc implements the time-sync RPC responder and the adaptive
// broadcaster's two independent tickers, per spec.md §4.6/§4.7.
//
// Grounded on the teacher's metrics.go RunMetrics periodic-ticker-over-room-
// snapshot loop shape: one ticker per cadence, each snapshotting sessions
// under their own read lock without mutating state.
package syncsvc

import (
	"github.com/wavesync/syncd/internal/clock"
	"github.com/wavesync/syncd/internal/protocol"
)

// Responder answers time_sync RPCs using clk for the monotonic-plus-epoch
// guarantee spec.md §4.6 requires.
type Responder struct {
	clk clock.Clock
}

// NewResponder builds a Responder over clk.
func NewResponder(clk clock.Clock) *Responder {
	return &Responder{clk: clk}
}

// Reply answers one time_sync RPC. serverReceivedMs must be captured by the
// caller at message-receipt time (before any queueing delay); Reply itself
// supplies server_processed_ms at call time, guaranteeing
// server_processed_ms >= server_received_ms since both derive from the same
// monotonically increasing clock.
func (r *Responder) Reply(clientSent, serverReceivedMs int64) protocol.TimeSyncReply {
	return protocol.TimeSyncReply{
		ClientSent:        clientSent,
		ServerReceivedMs:  serverReceivedMs,
		ServerProcessedMs: r.clk.NowMs(),
		ServerUptimeMs:    r.clk.UptimeMs(),
		ServerTZOffsetMin: r.clk.TZOffsetMin(),
		ServerISO:         r.clk.ISO(),
	}
}
