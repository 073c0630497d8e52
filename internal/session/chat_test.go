package session

import (
	"testing"
	"time"

	"github.com/wavesync/syncd/internal/protocol"
)

func TestPostChatMessageSanitizesAndStores(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")

	ev, err := s.PostChatMessage("client-1", "Alice", "  hello <b>world</b>  ", time.Now())
	if err != nil {
		t.Fatalf("PostChatMessage: %v", err)
	}
	payload := ev.Payload.(protocol.ChatMessageView)
	if payload.Message != "hello &lt;b&gt;world&lt;/b&gt;" {
		t.Fatalf("Message: got %q", payload.Message)
	}
	if payload.MessageID == "" {
		t.Fatal("expected a generated message id")
	}
}

func TestPostChatMessageRejectsEmpty(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")

	_, err := s.PostChatMessage("client-1", "Alice", "    ", time.Now())
	if err == nil {
		t.Fatal("expected an error for a blank message")
	}
}

func TestEditMessageOnlyBySender(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")
	ev, _ := s.PostChatMessage("client-1", "Alice", "original", time.Now())
	msgID := ev.Payload.(protocol.ChatMessageView).MessageID

	_, err := s.EditMessage("client-2", msgID, "hijacked", time.Now())
	if err == nil {
		t.Fatal("expected an error editing another client's message")
	}

	editEv, err := s.EditMessage("client-1", msgID, "edited text", time.Now())
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	payload := editEv.Payload.(protocol.ChatMessageView)
	if payload.Message != "edited text" || !payload.Edited {
		t.Fatalf("expected edited message, got %#v", payload)
	}
}

func TestEditMessageRejectsUnknownID(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")

	_, err := s.EditMessage("client-1", "ghost-id", "text", time.Now())
	if err == nil {
		t.Fatal("expected an error editing an unknown message id")
	}
}

func TestDeleteMessageSoftDeletes(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")
	ev, _ := s.PostChatMessage("client-1", "Alice", "to delete", time.Now())
	msgID := ev.Payload.(protocol.ChatMessageView).MessageID

	if _, err := s.DeleteMessage("client-1", msgID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	// A second delete of an already-deleted message must error.
	if _, err := s.DeleteMessage("client-1", msgID); err == nil {
		t.Fatal("expected an error deleting an already-deleted message")
	}
	// Edits must also be rejected once deleted.
	if _, err := s.EditMessage("client-1", msgID, "resurrect", time.Now()); err == nil {
		t.Fatal("expected an error editing a deleted message")
	}
}

func TestDeleteMessageOnlyBySender(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")
	ev, _ := s.PostChatMessage("client-1", "Alice", "mine", time.Now())
	msgID := ev.Payload.(protocol.ChatMessageView).MessageID

	if _, err := s.DeleteMessage("client-2", msgID); err == nil {
		t.Fatal("expected an error deleting another client's message")
	}
}

func TestMessageHistoryIsBounded(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")

	var firstID string
	for i := 0; i < MaxMessages+5; i++ {
		ev, err := s.PostChatMessage("client-1", "Alice", "msg", time.Now())
		if err != nil {
			t.Fatalf("PostChatMessage: %v", err)
		}
		if i == 0 {
			firstID = ev.Payload.(protocol.ChatMessageView).MessageID
		}
	}
	if len(s.messages) != MaxMessages {
		t.Fatalf("message history length: got %d, want %d", len(s.messages), MaxMessages)
	}
	if _, err := s.EditMessage("client-1", firstID, "too late", time.Now()); err == nil {
		t.Fatal("expected the evicted oldest message to be gone")
	}
}

func TestAddReactionAccumulatesAndSummarizes(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")
	join(s, "conn-2", "client-2", "Bob")
	ev, _ := s.PostChatMessage("client-1", "Alice", "react to me", time.Now())
	msgID := ev.Payload.(protocol.ChatMessageView).MessageID

	if _, err := s.AddReaction(msgID, "ok_icon", "client-1"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}
	if _, err := s.AddReaction(msgID, "ok_icon", "client-2"); err != nil {
		t.Fatalf("AddReaction: %v", err)
	}

	summary := s.ReactionsForMessage(msgID)
	if len(summary) != 1 || summary[0].Count != 2 {
		t.Fatalf("expected one emoji with count 2, got %#v", summary)
	}
}

func TestAddReactionRejectsUnknownMessage(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")

	_, err := s.AddReaction("ghost-id", "ok_icon", "client-1")
	if err == nil {
		t.Fatal("expected an error reacting to an unknown message")
	}
}

func TestRemoveReactionDropsEmoji(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")
	ev, _ := s.PostChatMessage("client-1", "Alice", "react to me", time.Now())
	msgID := ev.Payload.(protocol.ChatMessageView).MessageID

	s.AddReaction(msgID, "ok_icon", "client-1")
	if _, err := s.RemoveReaction(msgID, "ok_icon", "client-1"); err != nil {
		t.Fatalf("RemoveReaction: %v", err)
	}
	summary := s.ReactionsForMessage(msgID)
	if len(summary) != 0 {
		t.Fatalf("expected no reactions left, got %#v", summary)
	}
}
