package router

import (
	"encoding/json"
	"time"

	"github.com/wavesync/syncd/internal/apperr"
	"github.com/wavesync/syncd/internal/protocol"
)

// handleTimeSync answers the clock-offset probe described in spec.md §4.6.
// server_received_ms is stamped the instant the frame is decoded, not when
// the reply is built, so queueing delay downstream of this call doesn't leak
// into the client's RTT estimate.
func (r *Router) handleTimeSync(conn *Conn, raw json.RawMessage, now time.Time) *protocol.Envelope {
	serverReceivedMs := r.clk.NowMs()

	var p protocol.TimeSyncPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeTimeSync, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeTimeSync, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	reply := r.timesync.Reply(p.ClientSent, serverReceivedMs)
	return ackOK(protocol.TypeTimeSync, reply)
}

// handleDriftReport records a client's observed drift sample; state-only, no
// ack and no broadcast.
func (r *Router) handleDriftReport(conn *Conn, raw json.RawMessage, now time.Time) {
	var p protocol.DriftReportPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if err := r.validate.Struct(p); err != nil {
		return
	}

	s, _, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return
	}

	s.RecordDrift(p.ClientID, p, now.UnixMilli())
	if r.metrics != nil {
		r.metrics.DriftSamplesReceived.Inc()
	}
}
