package router

import (
	"encoding/json"
	"time"

	"github.com/wavesync/syncd/internal/apperr"
	"github.com/wavesync/syncd/internal/protocol"
)

func (r *Router) handleChatMessage(conn *Conn, raw json.RawMessage, now time.Time) *protocol.Envelope {
	var p protocol.ChatMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeChatMessage, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeChatMessage, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(protocol.TypeChatMessage, apperr.New(apperr.NotFound, "not joined to this session"))
	}

	if !r.chatLimit.Allow(conn.ID, now) {
		if r.metrics != nil {
			r.metrics.ChatRateLimited.Inc()
		}
		return ackErr(protocol.TypeChatMessage, apperr.New(apperr.RateLimited, "slow down, you are sending messages too quickly"))
	}

	displayName := s.DisplayName(conn.ID)
	ev, err := s.PostChatMessage(clientID, displayName, p.Message, now)
	if err != nil {
		return ackErr(protocol.TypeChatMessage, err)
	}

	s.Broadcast(ev)
	if r.metrics != nil {
		r.metrics.ChatMessagesSent.Inc()
	}
	return ackOK(protocol.TypeChatMessage, nil)
}

func (r *Router) handleEditMessage(conn *Conn, raw json.RawMessage, now time.Time) *protocol.Envelope {
	var p protocol.EditMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeEditMessage, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeEditMessage, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(protocol.TypeEditMessage, apperr.New(apperr.NotFound, "not joined to this session"))
	}

	ev, err := s.EditMessage(clientID, p.MessageID, p.Message, now)
	if err != nil {
		return ackErr(protocol.TypeEditMessage, err)
	}

	s.Broadcast(ev)
	return ackOK(protocol.TypeEditMessage, nil)
}

func (r *Router) handleDeleteMessage(conn *Conn, raw json.RawMessage) *protocol.Envelope {
	var p protocol.DeleteMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeDeleteMessage, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeDeleteMessage, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(protocol.TypeDeleteMessage, apperr.New(apperr.NotFound, "not joined to this session"))
	}

	ev, err := s.DeleteMessage(clientID, p.MessageID)
	if err != nil {
		return ackErr(protocol.TypeDeleteMessage, err)
	}

	s.Broadcast(ev)
	return ackOK(protocol.TypeDeleteMessage, nil)
}

// handleReaction serves both emoji_reaction (isAdd) and remove_emoji_reaction.
func (r *Router) handleReaction(conn *Conn, raw json.RawMessage, isAdd bool) *protocol.Envelope {
	event := protocol.TypeRemoveEmojiReaction
	if isAdd {
		event = protocol.TypeEmojiReaction
	}

	var p protocol.ReactionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(event, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(event, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, _, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(event, apperr.New(apperr.NotFound, "not joined to this session"))
	}

	var ev protocol.Envelope
	var err error
	if isAdd {
		ev, err = s.AddReaction(p.MessageID, p.Emoji, p.ClientID)
	} else {
		ev, err = s.RemoveReaction(p.MessageID, p.Emoji, p.ClientID)
	}
	if err != nil {
		return ackErr(event, err)
	}

	s.Broadcast(ev)
	return ackOK(event, nil)
}

// handleTyping fans typing/stop_typing out to every other member; no ack, no
// session mutation.
func (r *Router) handleTyping(conn *Conn, raw json.RawMessage, outEvent string) {
	var p protocol.TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}

	s, _, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return
	}

	s.BroadcastExcept(protocol.Envelope{
		Event:   outEvent,
		Payload: protocol.TypingPayload{SessionID: p.SessionID, ClientID: p.ClientID},
	}, conn.ID)
}
