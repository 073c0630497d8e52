// Package router validates, authorizes, and dispatches inbound wire events
// per spec.md §4.8, fanning out the resulting session broadcasts and
// relaying signaling messages between named clients (§4.9).
//
// Grounded on internal/ws/handler.go's handleInbound switch-per-event-type
// dispatch, adapted from a single global channel-state to the per-session
// router this spec calls for.
package router

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/wavesync/syncd/internal/apperr"
	"github.com/wavesync/syncd/internal/clock"
	"github.com/wavesync/syncd/internal/protocol"
	"github.com/wavesync/syncd/internal/registry"
	"github.com/wavesync/syncd/internal/session"
	"github.com/wavesync/syncd/internal/syncsvc"
	"github.com/wavesync/syncd/internal/telemetry"
)

// Router dispatches one connection's inbound frames against the session
// registry.
type Router struct {
	reg       *registry.Registry
	validate  *validator.Validate
	sampleLib session.SampleLibrary
	cleanup   session.FileCleanup
	timesync  *syncsvc.Responder
	clk       clock.Clock
	metrics   *telemetry.Metrics
	chatLimit *chatLimiter
}

// Option configures a Router beyond New's defaults.
type Option func(*Router)

// WithChatLimit overrides session.ChatLimit/session.ChatWindow for this
// router's per-connection chat rate limiter.
func WithChatLimit(limit int, window time.Duration) Option {
	return func(r *Router) {
		if limit > 0 && window > 0 {
			r.chatLimit = newChatLimiter(limit, window)
		}
	}
}

// New builds a Router. sampleLib and cleanup may be nil (no seeding / no
// upload cleanup); metrics may be nil to disable counters.
func New(reg *registry.Registry, sampleLib session.SampleLibrary, cleanup session.FileCleanup, clk clock.Clock, metrics *telemetry.Metrics, opts ...Option) *Router {
	r := &Router{
		reg:       reg,
		validate:  newValidator(),
		sampleLib: sampleLib,
		cleanup:   cleanup,
		timesync:  syncsvc.NewResponder(clk),
		clk:       clk,
		metrics:   metrics,
		chatLimit: newChatLimiter(session.ChatLimit, session.ChatWindow),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type wireIn struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func ackOK(event string, data any) *protocol.Envelope {
	return &protocol.Envelope{Event: event, Payload: protocol.AckReply{Success: true, Data: data}}
}

func ackErr(event string, err error) *protocol.Envelope {
	msg := err.Error()
	if ae, ok := err.(*apperr.Error); ok {
		msg = ae.Message
	}
	return &protocol.Envelope{Event: event, Payload: protocol.AckReply{Success: false, Error: msg}}
}

// HandleMessage decodes and dispatches one raw frame. A non-nil return value
// must be written back to the sending connection only (never broadcast);
// nil means the event produced no direct reply (pure fan-out, or it was
// silently dropped per spec.md §4.8/§7).
func (r *Router) HandleMessage(conn *Conn, raw []byte) *protocol.Envelope {
	var in wireIn
	if err := json.Unmarshal(raw, &in); err != nil {
		slog.Debug("dropping malformed frame", "conn_id", conn.ID, "err", err)
		return nil
	}

	now := time.Now()
	switch in.Event {
	case protocol.TypeJoinSession:
		return r.handleJoinSession(conn, in.Payload, now)
	case protocol.TypeSyncRequest:
		return r.handleSyncRequest(conn, in.Payload)
	case protocol.TypePlay, protocol.TypePause, protocol.TypeSeek:
		r.handlePlaybackCommand(conn, in.Event, in.Payload, now)
		return nil
	case protocol.TypeTrackChange:
		r.handleTrackChange(conn, in.Payload, now)
		return nil
	case protocol.TypeAddToQueue:
		return r.handleAddToQueue(conn, in.Payload, now)
	case protocol.TypeRemoveFromQueue:
		return r.handleRemoveFromQueue(conn, in.Payload, now)
	case protocol.TypeRequestController:
		return r.handleRequestController(conn, in.Payload, now)
	case protocol.TypeCancelControllerRequest:
		return r.handleCancelControllerRequest(conn, in.Payload)
	case protocol.TypeApproveControllerRequest:
		return r.handleControllerDecision(conn, in.Payload, now, true)
	case protocol.TypeDenyControllerRequest:
		return r.handleControllerDecision(conn, in.Payload, now, false)
	case protocol.TypeOfferController:
		return r.handleOfferController(conn, in.Payload)
	case protocol.TypeAcceptControllerOffer:
		return r.handleAcceptControllerOffer(conn, in.Payload, now)
	case protocol.TypeDeclineControllerOffer:
		return r.handleDeclineControllerOffer(conn, in.Payload)
	case protocol.TypeChatMessage:
		return r.handleChatMessage(conn, in.Payload, now)
	case protocol.TypeEditMessage:
		return r.handleEditMessage(conn, in.Payload, now)
	case protocol.TypeDeleteMessage:
		return r.handleDeleteMessage(conn, in.Payload)
	case protocol.TypeEmojiReaction:
		return r.handleReaction(conn, in.Payload, true)
	case protocol.TypeRemoveEmojiReaction:
		return r.handleReaction(conn, in.Payload, false)
	case protocol.TypeTyping:
		r.handleTyping(conn, in.Payload, protocol.TypeUserTyping)
		return nil
	case protocol.TypeStopTyping:
		r.handleTyping(conn, in.Payload, protocol.TypeUserStopTyping)
		return nil
	case protocol.TypeTimeSync:
		return r.handleTimeSync(conn, in.Payload, now)
	case protocol.TypeDriftReport:
		r.handleDriftReport(conn, in.Payload, now)
		return nil
	case protocol.TypePeerOffer, protocol.TypePeerAnswer, protocol.TypePeerIceCandidate:
		r.handleSignal(conn, in.Event, in.Payload)
		return nil
	default:
		slog.Debug("dropping unknown event", "event", in.Event, "conn_id", conn.ID)
		return nil
	}
}

// HandleDisconnect runs the disconnect path: leave the bound session (if
// any), forget rate-limit state, and delete the session immediately if it is
// now empty.
func (r *Router) HandleDisconnect(conn *Conn) {
	r.chatLimit.Forget(conn.ID)

	sessionID, _, ok := conn.Binding()
	if !ok {
		return
	}
	s, ok := r.reg.Get(sessionID)
	if !ok {
		return
	}

	now := time.Now()
	result := s.Leave(conn.ID, r.clk.NowMs())
	s.BroadcastClientsUpdate()
	if result.ControllerChanged {
		s.Broadcast(result.ControllerChange)
		s.Broadcast(result.SyncState)
	}
	if result.Empty {
		r.reg.DeleteIfEmpty(sessionID, now, r.cleanup)
	}
}

func (r *Router) sessionFor(conn *Conn) (*session.Session, string, bool) {
	sessionID, clientID, ok := conn.Binding()
	if !ok {
		return nil, "", false
	}
	s, ok := r.reg.Get(sessionID)
	if !ok {
		return nil, clientID, false
	}
	return s, clientID, true
}
