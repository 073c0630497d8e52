package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/wavesync/syncd/internal/apperr"
	"github.com/wavesync/syncd/internal/protocol"
)

func (m *ChatMessage) view() protocol.ChatMessageView {
	return protocol.ChatMessageView{
		MessageID:      m.MessageID,
		SenderClientID: m.SenderClientID,
		DisplayName:    m.DisplayName,
		Message:        m.Message,
		CreatedAt:      m.CreatedAt,
		Edited:         m.Edited,
		EditedAt:       m.EditedAt,
		Deleted:        m.Deleted,
	}
}

// PostChatMessage stores and returns the chat_message envelope to broadcast.
func (s *Session) PostChatMessage(senderClientID, displayName, text string, now time.Time) (protocol.Envelope, error) {
	clean := sanitize(text, MaxMessageLen)
	if clean == "" {
		return protocol.Envelope{}, apperr.New(apperr.InvalidArgument, "message must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &ChatMessage{
		MessageID:      uuid.NewString(),
		SenderClientID: senderClientID,
		DisplayName:    displayName,
		Message:        clean,
		CreatedAt:      now.UnixMilli(),
	}
	s.messages = append(s.messages, msg)
	s.msgByID[msg.MessageID] = msg
	if len(s.messages) > MaxMessages {
		oldest := s.messages[0]
		s.messages = s.messages[1:]
		delete(s.msgByID, oldest.MessageID)
		delete(s.reactions, oldest.MessageID)
	}

	return protocol.Envelope{Event: protocol.TypeChatMessage, Payload: msg.view()}, nil
}

// EditMessage updates the text of an existing, non-deleted message authored
// by senderClientID.
func (s *Session) EditMessage(senderClientID, messageID, text string, now time.Time) (protocol.Envelope, error) {
	clean := sanitize(text, MaxMessageLen)
	if clean == "" {
		return protocol.Envelope{}, apperr.New(apperr.InvalidArgument, "message must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.msgByID[messageID]
	if !ok || msg.Deleted {
		return protocol.Envelope{}, apperr.New(apperr.NotFound, "message not found")
	}
	if msg.SenderClientID != senderClientID {
		return protocol.Envelope{}, apperr.New(apperr.Unauthorized, "only the sender may edit this message")
	}

	msg.Message = clean
	msg.Edited = true
	msg.EditedAt = now.UnixMilli()

	return protocol.Envelope{Event: protocol.TypeMessageEdited, Payload: msg.view()}, nil
}

// DeleteMessage soft-deletes a message authored by senderClientID.
func (s *Session) DeleteMessage(senderClientID, messageID string) (protocol.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.msgByID[messageID]
	if !ok || msg.Deleted {
		return protocol.Envelope{}, apperr.New(apperr.NotFound, "message not found")
	}
	if msg.SenderClientID != senderClientID {
		return protocol.Envelope{}, apperr.New(apperr.Unauthorized, "only the sender may delete this message")
	}

	msg.Deleted = true
	msg.Message = ""

	return protocol.Envelope{Event: protocol.TypeMessageDeleted, Payload: map[string]string{"message_id": messageID}}, nil
}

func (s *Session) reactionsSummaryLocked(messageID string) []protocol.ReactionSummary {
	byEmoji, ok := s.reactions[messageID]
	if !ok {
		return nil
	}
	out := make([]protocol.ReactionSummary, 0, len(byEmoji))
	for emoji, clients := range byEmoji {
		ids := make([]string, 0, len(clients))
		for c := range clients {
			ids = append(ids, c)
		}
		out = append(out, protocol.ReactionSummary{Emoji: emoji, ClientIDs: ids, Count: len(ids)})
	}
	return out
}

func (s *Session) reactionsUpdateEnvelope(messageID string) protocol.Envelope {
	return protocol.Envelope{
		Event: protocol.TypeMessageReactionsUpdated,
		Payload: map[string]any{
			"message_id": messageID,
			"reactions":  s.reactionsSummaryLocked(messageID),
		},
	}
}

// AddReaction records clientID's emoji reaction on messageID.
func (s *Session) AddReaction(messageID, emoji, clientID string) (protocol.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.msgByID[messageID]; !ok {
		return protocol.Envelope{}, apperr.New(apperr.NotFound, "message not found")
	}
	byEmoji, ok := s.reactions[messageID]
	if !ok {
		byEmoji = make(map[string]map[string]bool)
		s.reactions[messageID] = byEmoji
	}
	clients, ok := byEmoji[emoji]
	if !ok {
		clients = make(map[string]bool)
		byEmoji[emoji] = clients
	}
	clients[clientID] = true

	return s.reactionsUpdateEnvelope(messageID), nil
}

// RemoveReaction removes clientID's emoji reaction from messageID.
func (s *Session) RemoveReaction(messageID, emoji, clientID string) (protocol.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.msgByID[messageID]; !ok {
		return protocol.Envelope{}, apperr.New(apperr.NotFound, "message not found")
	}
	if byEmoji, ok := s.reactions[messageID]; ok {
		if clients, ok := byEmoji[emoji]; ok {
			delete(clients, clientID)
			if len(clients) == 0 {
				delete(byEmoji, emoji)
			}
		}
	}

	return s.reactionsUpdateEnvelope(messageID), nil
}
