package router

import (
	"encoding/json"
	"testing"

	"github.com/wavesync/syncd/internal/clock"
	"github.com/wavesync/syncd/internal/protocol"
	"github.com/wavesync/syncd/internal/registry"
	"github.com/wavesync/syncd/internal/session"
)

// fakeSender records every envelope sent to it. Mirrors internal/session's
// own fake, duplicated here since router tests must not import an internal
// test-only type from another package.
type fakeSender struct {
	connID string
	sent   []protocol.Envelope
}

func newFakeSender(connID string) *fakeSender { return &fakeSender{connID: connID} }
func (f *fakeSender) ConnID() string          { return f.connID }
func (f *fakeSender) Send(ev protocol.Envelope) {
	f.sent = append(f.sent, ev)
}

func newTestRouter() *Router {
	return New(registry.New(nil), nil, nil, clock.NewSystem(), nil)
}

func frame(event string, payload any) []byte {
	wrapped, _ := json.Marshal(struct {
		Event   string `json:"event"`
		Payload any    `json:"payload"`
	}{Event: event, Payload: payload})
	return wrapped
}

func joinConn(t *testing.T, r *Router, connID, sessionID, clientID, displayName string) (*Conn, *fakeSender) {
	t.Helper()
	fs := newFakeSender(connID)
	c := NewConn(connID, fs)
	ack := r.HandleMessage(c, frame(protocol.TypeJoinSession, protocol.JoinSessionPayload{
		SessionID: sessionID, ClientID: clientID, DisplayName: displayName,
	}))
	reply, ok := ack.Payload.(protocol.AckReply)
	if !ok || !reply.Success {
		t.Fatalf("join_session ack failed: %#v", ack)
	}
	return c, fs
}

func TestHandleMessageJoinSessionAcksSnapshot(t *testing.T) {
	r := newTestRouter()
	fs := newFakeSender("conn-1")
	c := NewConn("conn-1", fs)
	ack := r.HandleMessage(c, frame(protocol.TypeJoinSession, protocol.JoinSessionPayload{
		SessionID: "sess-1", ClientID: "client-1", DisplayName: "Alice",
	}))
	reply, ok := ack.Payload.(protocol.AckReply)
	if !ok || !reply.Success {
		t.Fatalf("join_session ack failed: %#v", ack)
	}
	snap, ok := reply.Data.(protocol.SessionSnapshot)
	if !ok {
		t.Fatalf("expected a session snapshot in the join ack, got %#v", reply.Data)
	}
	if snap.ControllerClientID != "client-1" {
		t.Fatalf("expected the first joiner as controller in the snapshot, got %q", snap.ControllerClientID)
	}
	if len(fs.sent) == 0 {
		t.Fatal("expected at least one event pushed to the joining connection (queue_update)")
	}
}

func TestHandleMessageJoinSessionRejectsBadPayload(t *testing.T) {
	r := newTestRouter()
	c := NewConn("conn-1", newFakeSender("conn-1"))
	ack := r.HandleMessage(c, frame(protocol.TypeJoinSession, protocol.JoinSessionPayload{}))
	reply := ack.Payload.(protocol.AckReply)
	if reply.Success {
		t.Fatal("expected validation failure for an empty join_session payload")
	}
}

func TestHandlePlaybackCommandDropsNonController(t *testing.T) {
	r := newTestRouter()
	_, _ = joinConn(t, r, "conn-1", "sess-1", "client-1", "Alice")
	conn2, _ := joinConn(t, r, "conn-2", "sess-1", "client-2", "Bob")

	s, _ := r.reg.Get("sess-1")
	before := s.Snapshot().SyncVersion

	ack := r.HandleMessage(conn2, frame(protocol.TypePlay, protocol.PlaybackCommandPayload{
		SessionID: "sess-1", Timestamp: 5000,
	}))
	if ack != nil {
		t.Fatalf("play must produce no ack, got %#v", ack)
	}
	if after := s.Snapshot().SyncVersion; after != before {
		t.Fatalf("a non-controller's play command must not mutate session state: version %d -> %d", before, after)
	}
}

func TestHandlePlaybackCommandAppliesForController(t *testing.T) {
	r := newTestRouter()
	conn1, fs1 := joinConn(t, r, "conn-1", "sess-1", "client-1", "Alice")

	before := len(fs1.sent)
	ack := r.HandleMessage(conn1, frame(protocol.TypePlay, protocol.PlaybackCommandPayload{
		SessionID: "sess-1", Timestamp: 5000,
	}))
	if ack != nil {
		t.Fatalf("play must produce no ack, got %#v", ack)
	}
	if len(fs1.sent) <= before {
		t.Fatal("expected a sync_state broadcast back to the controller")
	}
	last := fs1.sent[len(fs1.sent)-1]
	if last.Event != protocol.TypeSyncState {
		t.Fatalf("expected sync_state, got %q", last.Event)
	}
}

func TestHandleChatMessageRateLimited(t *testing.T) {
	r := newTestRouter()
	conn1, _ := joinConn(t, r, "conn-1", "sess-1", "client-1", "Alice")

	var lastAck *protocol.Envelope
	for i := 0; i < 10; i++ {
		lastAck = r.HandleMessage(conn1, frame(protocol.TypeChatMessage, protocol.ChatMessagePayload{
			SessionID: "sess-1", Message: "hi",
		}))
	}
	reply := lastAck.Payload.(protocol.AckReply)
	if reply.Success {
		t.Fatal("expected the chat rate limit to reject after ChatLimit messages")
	}
}

func TestHandleChatMessageNotJoinedErrors(t *testing.T) {
	r := newTestRouter()
	c := NewConn("conn-1", newFakeSender("conn-1"))
	ack := r.HandleMessage(c, frame(protocol.TypeChatMessage, protocol.ChatMessagePayload{
		SessionID: "sess-1", Message: "hi",
	}))
	reply := ack.Payload.(protocol.AckReply)
	if reply.Success {
		t.Fatal("expected an error replying to chat from an unjoined connection")
	}
}

func TestHandleRequestControllerFullLifecycle(t *testing.T) {
	r := newTestRouter()
	conn1, fs1 := joinConn(t, r, "conn-1", "sess-1", "client-1", "Alice")
	conn2, _ := joinConn(t, r, "conn-2", "sess-1", "client-2", "Bob")

	ack := r.HandleMessage(conn2, frame(protocol.TypeRequestController, protocol.ControllerRequestPayload{
		SessionID: "sess-1",
	}))
	reply := ack.Payload.(protocol.AckReply)
	if !reply.Success {
		t.Fatalf("request_controller ack failed: %#v", reply)
	}

	foundRequestReceived := false
	for _, ev := range fs1.sent {
		if ev.Event == protocol.TypeControllerRequestReceived {
			foundRequestReceived = true
		}
	}
	if !foundRequestReceived {
		t.Fatal("expected controller_request_received pushed to the current controller")
	}

	ack = r.HandleMessage(conn1, frame(protocol.TypeApproveControllerRequest, protocol.ControllerDecisionPayload{
		SessionID: "sess-1", RequesterClientID: "client-2",
	}))
	reply = ack.Payload.(protocol.AckReply)
	if !reply.Success {
		t.Fatalf("approve_controller_request ack failed: %#v", reply)
	}

	s, _ := r.reg.Get("sess-1")
	if !s.IsController("client-2") {
		t.Fatal("expected client-2 to become controller after approval")
	}
}

func TestHandleOfferControllerNotifiesBothOffererAndTarget(t *testing.T) {
	r := newTestRouter()
	conn1, fs1 := joinConn(t, r, "conn-1", "sess-1", "client-1", "Alice")
	_, fs2 := joinConn(t, r, "conn-2", "sess-1", "client-2", "Bob")

	ack := r.HandleMessage(conn1, frame(protocol.TypeOfferController, protocol.ControllerOfferPayload{
		SessionID: "sess-1", TargetClientID: "client-2",
	}))
	reply := ack.Payload.(protocol.AckReply)
	if !reply.Success {
		t.Fatalf("offer_controller ack failed: %#v", reply)
	}

	foundOfferReceived := false
	for _, ev := range fs2.sent {
		if ev.Event == protocol.TypeControllerOfferReceived {
			foundOfferReceived = true
		}
	}
	if !foundOfferReceived {
		t.Fatal("expected controller_offer_received pushed to the target")
	}

	foundOfferSent := false
	for _, ev := range fs1.sent {
		if ev.Event == protocol.TypeControllerOfferSent {
			foundOfferSent = true
		}
	}
	if !foundOfferSent {
		t.Fatal("expected controller_offer_sent pushed back to the offerer")
	}
}

func TestWithChatLimitOverridesDefaultThreshold(t *testing.T) {
	r := New(registry.New(nil), nil, nil, clock.NewSystem(), nil, WithChatLimit(1, session.ChatWindow))
	conn1, _ := joinConn(t, r, "conn-1", "sess-1", "client-1", "Alice")

	ack1 := r.HandleMessage(conn1, frame(protocol.TypeChatMessage, protocol.ChatMessagePayload{
		SessionID: "sess-1", Message: "hi",
	}))
	if !ack1.Payload.(protocol.AckReply).Success {
		t.Fatal("expected the first message under a limit of 1 to succeed")
	}

	ack2 := r.HandleMessage(conn1, frame(protocol.TypeChatMessage, protocol.ChatMessagePayload{
		SessionID: "sess-1", Message: "hi again",
	}))
	if ack2.Payload.(protocol.AckReply).Success {
		t.Fatal("expected the second message to be rejected under an overridden limit of 1")
	}
}

func TestHandleDisconnectDeletesEmptySession(t *testing.T) {
	r := newTestRouter()
	conn1, _ := joinConn(t, r, "conn-1", "sess-1", "client-1", "Alice")

	r.HandleDisconnect(conn1)
	if _, ok := r.reg.Get("sess-1"); ok {
		t.Fatal("expected the session to be deleted once its only member disconnects")
	}
}

func TestHandleDisconnectForgetsChatRateLimitState(t *testing.T) {
	r := newTestRouter()
	conn1, _ := joinConn(t, r, "conn-1", "sess-1", "client-1", "Alice")

	for i := 0; i < session.ChatLimit; i++ {
		r.HandleMessage(conn1, frame(protocol.TypeChatMessage, protocol.ChatMessagePayload{
			SessionID: "sess-1", Message: "hi",
		}))
	}
	r.HandleDisconnect(conn1)

	if _, ok := r.chatLimit.sent["conn-1"]; ok {
		t.Fatal("expected chat rate-limit state forgotten on disconnect")
	}
}

func TestHandleTimeSyncReturnsMonotonicReceivedBeforeProcessed(t *testing.T) {
	r := newTestRouter()
	c := NewConn("conn-1", newFakeSender("conn-1"))

	ack := r.HandleMessage(c, frame(protocol.TypeTimeSync, protocol.TimeSyncPayload{ClientSent: 42}))
	reply := ack.Payload.(protocol.AckReply)
	if !reply.Success {
		t.Fatalf("time_sync ack failed: %#v", reply)
	}
	data, ok := reply.Data.(protocol.TimeSyncReply)
	if !ok {
		t.Fatalf("expected a TimeSyncReply in the ack, got %#v", reply.Data)
	}
	if data.ServerProcessedMs < data.ServerReceivedMs {
		t.Fatalf("server_processed_ms %d < server_received_ms %d", data.ServerProcessedMs, data.ServerReceivedMs)
	}
	if data.ClientSent != 42 {
		t.Fatalf("expected client_sent echoed as 42, got %d", data.ClientSent)
	}
}

func TestHandleSignalForwardsToTarget(t *testing.T) {
	r := newTestRouter()
	_, _ = joinConn(t, r, "conn-1", "sess-1", "client-1", "Alice")
	conn2, fs2 := joinConn(t, r, "conn-2", "sess-1", "client-2", "Bob")
	_ = conn2

	before := len(fs2.sent)
	// peer-offer has no dedicated payload struct beyond "to"/"payload"; the
	// handler forwards opaquely, so a bare map round-trips fine.
	raw, _ := json.Marshal(map[string]any{
		"event": protocol.TypePeerOffer,
		"payload": map[string]any{
			"to":      "client-2",
			"payload": map[string]any{"sdp": "v=0"},
		},
	})
	conn1 := NewConn("conn-1", newFakeSender("conn-1"))
	conn1.bind("sess-1", "client-1")
	ack := r.HandleMessage(conn1, raw)
	if ack != nil {
		t.Fatalf("signal relay must produce no ack, got %#v", ack)
	}
	if len(fs2.sent) <= before {
		t.Fatal("expected the peer-offer forwarded to the target connection")
	}
}
