package router

import (
	"encoding/json"

	"github.com/wavesync/syncd/internal/protocol"
)

// handleSignal forwards a WebRTC signaling frame to its named target verbatim.
// The server never inspects Payload.Payload; unresolvable targets drop the
// frame silently since the sender has no ack channel for it (per spec.md
// §4.9, signaling is opaque relay only).
func (r *Router) handleSignal(conn *Conn, event string, raw json.RawMessage) {
	var p protocol.SignalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok {
		return
	}

	targetConn, found := s.ConnForClient(p.To)
	if !found {
		return
	}

	s.SendTo(targetConn, protocol.Envelope{
		Event: event,
		Payload: map[string]any{
			"from":    clientID,
			"payload": p.Payload,
		},
	})
}
