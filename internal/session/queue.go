package session

import (
	"strings"

	"github.com/wavesync/syncd/internal/apperr"
	"github.com/wavesync/syncd/internal/protocol"
)

// FileCleanup is invoked when a user-uploaded track leaves the queue, or
// when a session expires with user uploads still present. External
// collaborator per spec.md §4.4/lifecycle; pass nil to disable.
type FileCleanup interface {
	Remove(path string)
}

// AddResult bundles the envelopes to fan out after a successful add.
type AddResult struct {
	QueueUpdate protocol.Envelope
	TrackChange *protocol.Envelope // set only when the queue was empty before this add
}

// AddToQueue appends a track, rejecting exact-URL duplicates. When the queue
// was empty before the add it also produces a track_change{idx:0} envelope.
func (s *Session) AddToQueue(url, title string, meta map[string]any, nowMs int64) (AddResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if url == "" {
		return AddResult{}, apperr.New(apperr.InvalidArgument, "url is required")
	}
	if _, found := s.findTrackByURLLocked(url); found {
		return AddResult{}, apperr.New(apperr.Conflict, "Track already in queue")
	}

	wasEmpty := len(s.queue) == 0
	s.queue = append(s.queue, protocol.Track{
		URL:      url,
		Title:    sanitize(title, MaxTitleLen),
		Metadata: meta,
	})

	var tc *protocol.Envelope
	if wasEmpty {
		s.selectedIdx = 0
		idx := 0
		ev := protocol.Envelope{
			Event: protocol.TypeTrackChange,
			Payload: protocol.TrackChangeEventPayload{
				Idx:    &idx,
				Track:  s.currentTrackLocked(),
				Reason: "first_track_added",
			},
		}
		tc = &ev
	}

	s.bumpVersion(nowMs)
	return AddResult{QueueUpdate: s.queueUpdateLocked(), TrackChange: tc}, nil
}

// RemoveResult bundles the envelopes to fan out after a successful removal.
type RemoveResult struct {
	QueueUpdate protocol.Envelope
	TrackChange *protocol.Envelope
}

// RemoveFromQueue removes by index or by track URL (used as the track id in
// this implementation, since Track carries no separate synthetic id).
// Controller-only; callers must check IsController before calling.
func (s *Session) RemoveFromQueue(index *int, trackURL string, cleanup FileCleanup, nowMs int64) (RemoveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	switch {
	case index != nil:
		idx = *index
	case trackURL != "":
		idx, _ = s.findTrackByURLLocked(trackURL)
	}
	if idx < 0 || idx >= len(s.queue) {
		return RemoveResult{}, apperr.New(apperr.NotFound, "track index out of range")
	}

	removed := s.queue[idx]
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)

	if cleanup != nil && strings.HasPrefix(removed.URL, UploadPrefix) && !strings.HasPrefix(removed.URL, SamplePrefix) {
		cleanup.Remove(removed.URL)
	}

	var tc *protocol.Envelope
	switch {
	case idx == s.selectedIdx:
		if len(s.queue) == 0 {
			s.selectedIdx = 0
			ev := protocol.Envelope{
				Event:   protocol.TypeTrackChange,
				Payload: protocol.TrackChangeEventPayload{Idx: nil, Track: nil, Reason: "track_removed_queue_empty"},
			}
			tc = &ev
		} else {
			newIdx := idx
			if newIdx > len(s.queue)-1 {
				newIdx = len(s.queue) - 1
			}
			s.selectedIdx = newIdx
			v := newIdx
			ev := protocol.Envelope{
				Event: protocol.TypeTrackChange,
				Payload: protocol.TrackChangeEventPayload{
					Idx:    &v,
					Track:  s.currentTrackLocked(),
					Reason: "current_track_removed",
				},
			}
			tc = &ev
		}
	case idx < s.selectedIdx:
		s.selectedIdx--
		if s.selectedIdx < 0 {
			s.selectedIdx = 0
		}
	}

	s.bumpVersion(nowMs)
	return RemoveResult{QueueUpdate: s.queueUpdateLocked(), TrackChange: tc}, nil
}
