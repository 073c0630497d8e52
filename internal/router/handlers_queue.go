package router

import (
	"encoding/json"
	"time"

	"github.com/wavesync/syncd/internal/apperr"
	"github.com/wavesync/syncd/internal/protocol"
)

// handleAddToQueue: any member may add, per spec.md §4.4.
func (r *Router) handleAddToQueue(conn *Conn, raw json.RawMessage, now time.Time) *protocol.Envelope {
	var p protocol.AddToQueuePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeAddToQueue, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeAddToQueue, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, _, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(protocol.TypeAddToQueue, apperr.New(apperr.NotFound, "not joined to this session"))
	}

	result, err := s.AddToQueue(p.URL, p.Title, p.Meta, now.UnixMilli())
	if err != nil {
		return ackErr(protocol.TypeAddToQueue, err)
	}

	s.Broadcast(result.QueueUpdate)
	if result.TrackChange != nil {
		s.Broadcast(*result.TrackChange)
	}
	r.reg.Touch(p.SessionID)
	return ackOK(protocol.TypeAddToQueue, nil)
}

// handleRemoveFromQueue: controller-only, per spec.md §4.4/§4.8.
func (r *Router) handleRemoveFromQueue(conn *Conn, raw json.RawMessage, now time.Time) *protocol.Envelope {
	var p protocol.RemoveFromQueuePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeRemoveFromQueue, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeRemoveFromQueue, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(protocol.TypeRemoveFromQueue, apperr.New(apperr.NotFound, "not joined to this session"))
	}
	if !s.IsController(clientID) {
		return ackErr(protocol.TypeRemoveFromQueue, apperr.New(apperr.Unauthorized, "only the controller may remove tracks"))
	}

	result, err := s.RemoveFromQueue(p.Index, p.TrackID, r.cleanup, now.UnixMilli())
	if err != nil {
		return ackErr(protocol.TypeRemoveFromQueue, err)
	}

	s.Broadcast(result.QueueUpdate)
	if result.TrackChange != nil {
		s.Broadcast(*result.TrackChange)
	}
	r.reg.Touch(p.SessionID)
	return ackOK(protocol.TypeRemoveFromQueue, nil)
}
