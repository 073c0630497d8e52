package router

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/wavesync/syncd/internal/protocol"
)

// handlePlaybackCommand dispatches play/pause/seek. Non-controller callers
// are silently dropped per spec.md §4.3 ("not an error").
func (r *Router) handlePlaybackCommand(conn *Conn, event string, raw json.RawMessage, now time.Time) {
	var p protocol.PlaybackCommandPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if err := r.validate.Struct(p); err != nil {
		return
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID || !s.IsController(clientID) {
		return
	}

	nowMs := now.UnixMilli()
	var ev protocol.Envelope
	switch event {
	case protocol.TypePlay:
		ev = s.Play(p.Timestamp, nowMs)
	case protocol.TypePause:
		ev = s.Pause(p.Timestamp, nowMs)
	case protocol.TypeSeek:
		ev = s.Seek(p.Timestamp, nowMs)
	default:
		slog.Error("unreachable playback event", "event", event)
		return
	}

	s.Broadcast(ev)
	r.reg.Touch(p.SessionID)
}

func (r *Router) handleTrackChange(conn *Conn, raw json.RawMessage, now time.Time) {
	var p protocol.TrackChangePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return
	}
	if err := r.validate.Struct(p); err != nil {
		return
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID || !s.IsController(clientID) {
		return
	}

	nowMs := now.UnixMilli()
	result := s.TrackChange(p.Idx, p.Track, nowMs)
	s.Broadcast(result.TrackChange)
	if result.QueueUpdate != nil {
		s.Broadcast(*result.QueueUpdate)
	}
	s.Broadcast(s.SyncStateEvent(nowMs))
	r.reg.Touch(p.SessionID)
}
