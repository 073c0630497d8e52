package session

import (
	"testing"

	"github.com/wavesync/syncd/internal/protocol"
)

func TestPlaySetsPlayingAndBumpsVersion(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")

	before := s.Snapshot().SyncVersion
	ev := s.Play(5000, 10_000)

	payload, ok := ev.Payload.(protocol.SyncStatePayload)
	if !ok {
		t.Fatalf("expected SyncStatePayload, got %#v", ev.Payload)
	}
	if !payload.IsPlaying {
		t.Fatal("expected is_playing true after Play")
	}
	if payload.TimestampMs != 5000 {
		t.Fatalf("TimestampMs: got %d, want 5000", payload.TimestampMs)
	}
	if after := s.Snapshot().SyncVersion; after != before+1 {
		t.Fatalf("SyncVersion: got %d, want %d", after, before+1)
	}
}

func TestPauseKeepsPositionAndClearsPlaying(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")
	s.Play(1000, 1000)

	ev := s.Pause(4000, 2000)
	payload := ev.Payload.(protocol.SyncStatePayload)
	if payload.IsPlaying {
		t.Fatal("expected is_playing false after Pause")
	}
	if payload.TimestampMs != 4000 {
		t.Fatalf("TimestampMs: got %d, want 4000", payload.TimestampMs)
	}
}

func TestSeekPreservesPlayingState(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")
	s.Play(0, 1000)

	ev := s.Seek(9000, 2000)
	payload := ev.Payload.(protocol.SyncStatePayload)
	if !payload.IsPlaying {
		t.Fatal("Seek must not change is_playing while already playing")
	}
	if payload.TimestampMs != 9000 {
		t.Fatalf("TimestampMs: got %d, want 9000", payload.TimestampMs)
	}

	s.Pause(9000, 2000)
	ev = s.Seek(1000, 3000)
	payload = ev.Payload.(protocol.SyncStatePayload)
	if payload.IsPlaying {
		t.Fatal("Seek must not start playback when paused")
	}
}

func TestSmoothedPositionAveragesHistory(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")

	s.Play(1000, 1000)
	s.Seek(2000, 1001)
	s.Seek(3000, 1002)

	snap := s.Snapshot()
	want := int64((1000 + 2000 + 3000) / 3)
	if snap.Timestamp != want {
		t.Fatalf("smoothed position: got %d, want %d", snap.Timestamp, want)
	}
}

func TestPositionHistoryIsBounded(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")

	for i := int64(1); i <= int64(PositionHistorySize)+3; i++ {
		s.Seek(i*1000, 1000+i)
	}
	if len(s.posHistory) != PositionHistorySize {
		t.Fatalf("posHistory length: got %d, want %d", len(s.posHistory), PositionHistorySize)
	}
}

func TestTrackChangeByIndexClampsOutOfRange(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")
	s.AddToQueue("https://example.com/a.mp3", "A", nil, 1000)
	s.AddToQueue("https://example.com/b.mp3", "B", nil, 1001)

	idx := 99
	result := s.TrackChange(&idx, nil, 2000)
	payload := result.TrackChange.Payload.(protocol.TrackChangeEventPayload)
	if payload.Idx == nil || *payload.Idx != 1 {
		t.Fatalf("expected clamp to last index 1, got %#v", payload.Idx)
	}
	if payload.Track == nil || payload.Track.URL != "https://example.com/b.mp3" {
		t.Fatalf("expected track B selected, got %#v", payload.Track)
	}
}

func TestTrackChangeWithCustomTrackAppendsAndEmitsQueueUpdate(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")

	track := &protocol.Track{URL: "https://example.com/new.mp3", Title: "New"}
	result := s.TrackChange(nil, track, 1000)

	if result.QueueUpdate == nil {
		t.Fatal("expected a queue_update envelope when appending a new custom track")
	}
	payload := result.TrackChange.Payload.(protocol.TrackChangeEventPayload)
	if payload.Track == nil || payload.Track.URL != track.URL {
		t.Fatalf("expected the new track selected, got %#v", payload.Track)
	}
}

func TestTrackChangeWithDuplicateURLDoesNotAppend(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")
	s.AddToQueue("https://example.com/a.mp3", "A", nil, 1000)

	track := &protocol.Track{URL: "https://example.com/a.mp3", Title: "A dup"}
	result := s.TrackChange(nil, track, 2000)

	if result.QueueUpdate != nil {
		t.Fatal("must not emit queue_update when the track already exists")
	}
	queue, _ := s.QueueSnapshot()
	if len(queue) != 1 {
		t.Fatalf("expected queue to stay at 1 track, got %d", len(queue))
	}
}

func TestTrackChangeOnEmptyQueueSelectsNothing(t *testing.T) {
	s := New("sess-1")
	join(s, "conn-1", "client-1", "Alice")

	result := s.TrackChange(nil, nil, 1000)
	payload := result.TrackChange.Payload.(protocol.TrackChangeEventPayload)
	if payload.Track != nil {
		t.Fatalf("expected nil current track on empty queue, got %#v", payload.Track)
	}
}
