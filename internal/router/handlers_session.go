package router

import (
	"encoding/json"
	"time"

	"github.com/wavesync/syncd/internal/apperr"
	"github.com/wavesync/syncd/internal/protocol"
)

func (r *Router) handleJoinSession(conn *Conn, raw json.RawMessage, now time.Time) *protocol.Envelope {
	var p protocol.JoinSessionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeJoinSession, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeJoinSession, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, created := r.reg.CreateIfAbsent(p.SessionID)
	var lib = r.sampleLib
	if !created {
		lib = nil
	}

	clientsUpdate, joinResult := s.Join(conn.ID, p.ClientID, p.DisplayName, p.DeviceInfo, conn.Sender, lib)
	conn.bind(p.SessionID, p.ClientID)
	r.reg.Touch(p.SessionID)

	s.Broadcast(clientsUpdate)
	if joinResult.ControllerChanged {
		s.Broadcast(s.ControllerChangeEvent())
	}

	queue, selectedIdx := s.QueueSnapshot()
	s.SendTo(conn.ID, protocol.Envelope{
		Event:   protocol.TypeQueueUpdate,
		Payload: protocol.QueueUpdatePayload{Queue: queue, SelectedIdx: selectedIdx},
	})
	for _, id := range s.AllMessageIDs() {
		reactions := s.ReactionsForMessage(id)
		if len(reactions) == 0 {
			continue
		}
		s.SendTo(conn.ID, protocol.Envelope{
			Event:   protocol.TypeMessageReactionsUpdated,
			Payload: map[string]any{"message_id": id, "reactions": reactions},
		})
	}

	return ackOK(protocol.TypeJoinSession, s.Snapshot())
}

func (r *Router) handleSyncRequest(conn *Conn, raw json.RawMessage) *protocol.Envelope {
	var p protocol.SyncRequestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeSyncRequest, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeSyncRequest, apperr.New(apperr.InvalidArgument, "%v", err))
	}
	s, ok := r.reg.Get(p.SessionID)
	if !ok {
		return ackErr(protocol.TypeSyncRequest, apperr.New(apperr.NotFound, "unknown session"))
	}
	return ackOK(protocol.TypeSyncRequest, s.Snapshot())
}
