package session

import "github.com/wavesync/syncd/internal/protocol"

// Play transitions to Playing(position_ms), bumps sync_version, and returns
// the sync_state envelope to broadcast. Callers must have already verified
// the caller is controller; non-controller calls are not exposed here.
func (s *Session) Play(positionMs int64, nowMs int64) protocol.Envelope {
	s.mu.Lock()
	s.isPlaying = true
	s.positionMs = positionMs
	s.pushPosition(positionMs)
	s.bumpVersion(nowMs)
	s.mu.Unlock()
	return s.SyncStateEvent(nowMs)
}

// Pause transitions to Paused(position_ms).
func (s *Session) Pause(positionMs int64, nowMs int64) protocol.Envelope {
	s.mu.Lock()
	s.isPlaying = false
	s.positionMs = positionMs
	s.pushPosition(positionMs)
	s.bumpVersion(nowMs)
	s.mu.Unlock()
	return s.SyncStateEvent(nowMs)
}

// Seek keeps is_playing as-is and relocates position_ms.
func (s *Session) Seek(positionMs int64, nowMs int64) protocol.Envelope {
	s.mu.Lock()
	s.positionMs = positionMs
	s.pushPosition(positionMs)
	s.bumpVersion(nowMs)
	s.mu.Unlock()
	return s.SyncStateEvent(nowMs)
}

// TrackChangeResult carries the envelopes the router must fan out after a
// track_change (and the queue_update it implies when a custom track was
// appended).
type TrackChangeResult struct {
	TrackChange protocol.Envelope
	QueueUpdate *protocol.Envelope // non-nil only if a custom track was appended
}

// TrackChange selects idx (clamped) or appends+selects a custom track,
// resets position_ms to 0, and bumps sync_version.
func (s *Session) TrackChange(idx *int, track *protocol.Track, nowMs int64) TrackChangeResult {
	s.mu.Lock()

	var appended bool
	if track != nil {
		if _, found := s.findTrackByURLLocked(track.URL); !found {
			t := *track
			t.Title = sanitize(t.Title, MaxTitleLen)
			s.queue = append(s.queue, t)
			idxv := len(s.queue) - 1
			idx = &idxv
			appended = true
		}
	}

	if len(s.queue) == 0 {
		s.selectedIdx = 0
	} else if idx != nil {
		clamped := *idx
		if clamped < 0 {
			clamped = 0
		}
		if clamped > len(s.queue)-1 {
			clamped = len(s.queue) - 1
		}
		s.selectedIdx = clamped
	}

	s.positionMs = 0
	s.posHistory = s.posHistory[:0]
	s.bumpVersion(nowMs)

	cur := s.currentTrackLocked()
	var outIdx *int
	if cur != nil {
		v := s.selectedIdx
		outIdx = &v
	}
	ev := protocol.Envelope{
		Event: protocol.TypeTrackChange,
		Payload: protocol.TrackChangeEventPayload{
			Idx:    outIdx,
			Track:  cur,
			Reason: "track_change",
		},
	}

	var qu *protocol.Envelope
	if appended {
		e := s.queueUpdateLocked()
		qu = &e
	}

	s.mu.Unlock()
	return TrackChangeResult{TrackChange: ev, QueueUpdate: qu}
}

func (s *Session) findTrackByURLLocked(url string) (int, bool) {
	for i, t := range s.queue {
		if t.URL == url {
			return i, true
		}
	}
	return -1, false
}

func (s *Session) queueUpdateLocked() protocol.Envelope {
	return protocol.Envelope{
		Event: protocol.TypeQueueUpdate,
		Payload: protocol.QueueUpdatePayload{
			Queue:       append([]protocol.Track(nil), s.queue...),
			SelectedIdx: s.selectedIdx,
		},
	}
}
