// Package session implements one synchronized-playback session: member
// table, playback state machine, queue, controller arbiter, chat/reactions,
// and drift accounting, all guarded by a single per-session mutex.
//
// Grounded on the teacher's Room/ChannelState shape: one coarse mutex over a
// connection map plus a handful of auxiliary slices/maps, snapshot-for-read
// methods, and non-blocking per-connection sends.
package session

import (
	"sync"
	"time"

	"github.com/wavesync/syncd/internal/protocol"
)

// Sender is the per-connection outbound queue the transport adapter
// implements. Send must be non-blocking: a full queue is the transport's
// problem (drop-and-disconnect), never the session's.
type Sender interface {
	ConnID() string
	Send(ev protocol.Envelope)
}

// Member is one entry of the session's member table.
type Member struct {
	ConnID      string
	ClientID    string
	DisplayName string
	DeviceInfo  map[string]any
	Sender      Sender
	JoinedAt    time.Time
}

// pendingRequest is one outstanding request_controller entry.
type pendingRequest struct {
	requesterName string
	requestTime   time.Time
}

// driftState is the per-client drift sample accounting.
type driftState struct {
	ring          [DriftAvgWindow]float64
	wallMs        [DriftAvgWindow]int64
	count         int
	next          int
	manualHistory []protocol.DriftReportPayload
	lastReportMs  int64
}

// Session is one synchronized-playback room. All mutable state is guarded by
// mu; callers must hold it for the duration of any mutation and for any
// enqueue-to-send-queue derived from that mutation, per the single
// acquire-per-message rule.
type Session struct {
	ID string

	mu sync.RWMutex

	// Playback state.
	isPlaying   bool
	positionMs  int64
	lastUpdated int64 // wall_ms
	syncVersion uint64
	posHistory  []int64

	// Queue.
	queue       []protocol.Track
	selectedIdx int

	// Controller.
	controllerClient string
	controllerConn   string
	pending          map[string]*pendingRequest

	// Members.
	members map[string]*Member // conn_id -> member
	byClient map[string]string // client_id -> conn_id

	// Chat + reactions.
	messages  []*ChatMessage
	msgByID   map[string]*ChatMessage
	reactions map[string]map[string]map[string]bool // message_id -> emoji -> client_id set

	// Drift.
	drift map[string]*driftState

	createdAt time.Time

	// controllerRequestTTL overrides ControllerRequestTTL when set by the
	// registry at construction time; zero means use the package default.
	controllerRequestTTL time.Duration
}

// SetControllerRequestTTL overrides ControllerRequestTTL for this session's
// pending controller requests. Zero (the default) leaves ControllerRequestTTL
// in effect.
func (s *Session) SetControllerRequestTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controllerRequestTTL = d
}

// ChatMessage is one stored chat message.
type ChatMessage struct {
	MessageID      string
	SenderClientID string
	DisplayName    string
	Message        string
	CreatedAt      int64
	Edited         bool
	EditedAt       int64
	Deleted        bool
}

// New constructs an empty session with the given id.
func New(id string) *Session {
	return &Session{
		ID:          id,
		selectedIdx: 0,
		pending:     make(map[string]*pendingRequest),
		members:     make(map[string]*Member),
		byClient:    make(map[string]string),
		msgByID:     make(map[string]*ChatMessage),
		reactions:   make(map[string]map[string]map[string]bool),
		drift:       make(map[string]*driftState),
		createdAt:   time.Now(),
	}
}

// nowMs is overridable in tests; production code always uses wall time here
// because session state itself only needs wall-clock ordering, not the
// monotonic guarantee internal/clock provides for the sync RPC.
var nowMs = func() int64 { return time.Now().UnixMilli() }

// Lock/Unlock/RLock/RUnlock expose the session mutex to the registry for the
// expiry reaper's touch-without-mutation path and to the router for the
// single acquire-per-message rule; callers must not nest session locks.

func (s *Session) Lock()    { s.mu.Lock() }
func (s *Session) Unlock()  { s.mu.Unlock() }
func (s *Session) RLock()   { s.mu.RLock() }
func (s *Session) RUnlock() { s.mu.RUnlock() }

// LastUpdated returns the wall-clock millis of the last authoritative
// mutation, used by the registry's expiry heap. Caller must hold at least
// RLock, or call LastUpdatedAtomic for a lock-free read.
func (s *Session) LastUpdated() int64 {
	return s.lastUpdated
}

// LastUpdatedAtomic reads last_updated under a short read lock, for the
// registry's touch/reap path which must not assume the caller already holds
// the session lock.
func (s *Session) LastUpdatedAtomic() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// MemberCount reports the number of connected members.
func (s *Session) MemberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// IsEmpty reports whether the session has zero members (eligible for
// immediate destruction rather than waiting out the TTL).
func (s *Session) IsEmpty() bool {
	return s.MemberCount() == 0
}

// effectivePositionMs computes is_playing ? position_ms + (now-last_updated) : position_ms.
// Caller must hold at least a read lock.
func (s *Session) effectivePositionMs(nowMs int64) int64 {
	if !s.isPlaying {
		return s.positionMs
	}
	return s.positionMs + (nowMs - s.lastUpdated)
}

// smoothedPositionMs returns the arithmetic mean of the position FIFO.
// Caller must hold at least a read lock.
func (s *Session) smoothedPositionMs() int64 {
	if len(s.posHistory) == 0 {
		return s.positionMs
	}
	var sum int64
	for _, v := range s.posHistory {
		sum += v
	}
	return sum / int64(len(s.posHistory))
}

// pushPosition appends to the bounded FIFO, evicting the oldest sample.
func (s *Session) pushPosition(v int64) {
	s.posHistory = append(s.posHistory, v)
	if len(s.posHistory) > PositionHistorySize {
		s.posHistory = s.posHistory[len(s.posHistory)-PositionHistorySize:]
	}
}

// bumpVersion stamps last_updated and increments sync_version. Caller must
// hold the write lock.
func (s *Session) bumpVersion(at int64) {
	s.lastUpdated = at
	s.syncVersion++
}

// SyncStateEvent builds the outbound sync_state envelope under a read lock.
func (s *Session) SyncStateEvent(serverTimeMs int64) protocol.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return protocol.Envelope{
		Event: protocol.TypeSyncState,
		Payload: protocol.SyncStatePayload{
			IsPlaying:        s.isPlaying,
			TimestampMs:      s.smoothedPositionMs(),
			LastUpdatedMs:    s.lastUpdated,
			ControllerConnID: s.controllerConn,
			ServerTimeMs:     serverTimeMs,
			SyncVersion:      s.syncVersion,
		},
	}
}

// BroadcastSyncState builds and fans out a sync_state snapshot under a
// single read lock, for the adaptive broadcaster's periodic ticks.
func (s *Session) BroadcastSyncState(serverTimeMs int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.broadcastLocked(protocol.Envelope{
		Event: protocol.TypeSyncState,
		Payload: protocol.SyncStatePayload{
			IsPlaying:        s.isPlaying,
			TimestampMs:      s.smoothedPositionMs(),
			LastUpdatedMs:    s.lastUpdated,
			ControllerConnID: s.controllerConn,
			ServerTimeMs:     serverTimeMs,
			SyncVersion:      s.syncVersion,
		},
	})
}

// IsPlayingLaggy reports whether the session is playing but has not had an
// authoritative update in longer than maxLag, for the broadcaster's
// controller-device lag heuristic.
func (s *Session) IsPlayingLaggy(nowMs int64, maxLagMs int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isPlaying && nowMs-s.lastUpdated > maxLagMs
}

// broadcastLocked enqueues ev to every member's send queue. Caller must hold
// at least the write lock (or read lock for read-only broadcasts like
// sync_state snapshots from the adaptive broadcaster).
func (s *Session) broadcastLocked(ev protocol.Envelope) {
	for _, m := range s.members {
		m.Sender.Send(ev)
	}
}

// broadcastExceptLocked enqueues ev to every member except the one with
// excludeConnID.
func (s *Session) broadcastExceptLocked(ev protocol.Envelope, excludeConnID string) {
	for connID, m := range s.members {
		if connID == excludeConnID {
			continue
		}
		m.Sender.Send(ev)
	}
}

// sendToLocked enqueues ev to one member by conn_id, if present.
func (s *Session) sendToLocked(connID string, ev protocol.Envelope) {
	if m, ok := s.members[connID]; ok {
		m.Sender.Send(ev)
	}
}

// clientsUpdateLocked builds the clients_update envelope. Caller holds lock.
func (s *Session) clientsUpdateLocked() protocol.Envelope {
	out := make([]protocol.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, protocol.Member{
			ConnID:      m.ConnID,
			ClientID:    m.ClientID,
			DisplayName: m.DisplayName,
			DeviceInfo:  m.DeviceInfo,
		})
	}
	return protocol.Envelope{Event: protocol.TypeClientsUpdate, Payload: protocol.ClientsUpdatePayload{Members: out}}
}

// currentTrackLocked returns the selected track, or nil if the queue is empty.
func (s *Session) currentTrackLocked() *protocol.Track {
	if len(s.queue) == 0 || s.selectedIdx < 0 || s.selectedIdx >= len(s.queue) {
		return nil
	}
	t := s.queue[s.selectedIdx]
	return &t
}

// Snapshot builds the session-sync-snapshot ack payload (§6).
func (s *Session) Snapshot() protocol.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return protocol.SessionSnapshot{
		IsPlaying:          s.isPlaying,
		Timestamp:          s.smoothedPositionMs(),
		LastUpdated:        s.lastUpdated,
		ControllerConnID:   s.controllerConn,
		ControllerClientID: s.controllerClient,
		Queue:              append([]protocol.Track(nil), s.queue...),
		SelectedIdx:        s.selectedIdx,
		CurrentTrack:       s.currentTrackLocked(),
		Drift:              s.driftSnapshotLocked(),
		SyncVersion:        s.syncVersion,
	}
}
