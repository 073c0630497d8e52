package session

import "github.com/wavesync/syncd/internal/protocol"

// SampleLibrary enumerates seed tracks for an empty, newly created session.
// It is an external collaborator per spec.md §4.2; callers may pass nil to
// leave new sessions empty.
type SampleLibrary interface {
	SeedTracks() []protocol.Track
}

// JoinResult reports what changed so the caller (router) knows which events
// to additionally fan out beyond the always-sent clients_update.
type JoinResult struct {
	ControllerChanged bool
	Reconnected       bool
}

// Join installs a member entry keyed by connID. If the client_id already has
// a conn_id bound (reconnect), the old entry is replaced and, if that client
// was controller, controllerConn is rebound to the new connection. If the
// session has no controller at all, this member becomes controller.
//
// lib, when non-nil, is asked for seed tracks (session lock held) if the
// queue is still empty; callers pass nil to skip seeding.
func (s *Session) Join(connID, clientID, displayName string, deviceInfo map[string]any, sender Sender, lib SampleLibrary) (protocol.Envelope, JoinResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	displayName = sanitize(displayName, MaxDisplayNameLen)

	if lib != nil && len(s.queue) == 0 {
		for _, t := range lib.SeedTracks() {
			t.Title = sanitize(t.Title, MaxTitleLen)
			s.queue = append(s.queue, t)
		}
	}

	var result JoinResult

	if oldConn, ok := s.byClient[clientID]; ok && oldConn != connID {
		delete(s.members, oldConn)
		result.Reconnected = true
	}

	s.members[connID] = &Member{
		ConnID:      connID,
		ClientID:    clientID,
		DisplayName: displayName,
		DeviceInfo:  deviceInfo,
		Sender:      sender,
	}
	s.byClient[clientID] = connID

	switch {
	case s.controllerClient == "":
		s.controllerClient = clientID
		s.controllerConn = connID
		result.ControllerChanged = true
	case s.controllerClient == clientID:
		if s.controllerConn != connID {
			s.controllerConn = connID
			result.ControllerChanged = true
		}
	}

	ev := s.clientsUpdateLocked()
	return ev, result
}

// LeaveResult reports what a disconnect changed so the router/transport
// knows which events still need a fan-out after the member is gone.
type LeaveResult struct {
	Empty             bool
	ControllerChanged bool
	ControllerChange  protocol.Envelope
	SyncState         protocol.Envelope
}

// Leave removes the member bound to connID. If that member was controller,
// controllerConn is rebound if the client is already present under another
// conn_id, otherwise cleared, per §4.5's disconnect rule.
func (s *Session) Leave(connID string, nowMs int64) LeaveResult {
	s.mu.Lock()

	m, ok := s.members[connID]
	if !ok {
		empty := len(s.members) == 0
		s.mu.Unlock()
		return LeaveResult{Empty: empty}
	}
	delete(s.members, connID)
	if s.byClient[m.ClientID] == connID {
		delete(s.byClient, m.ClientID)
	}

	var controllerChanged bool
	if s.controllerConn == connID {
		if newConn, ok := s.byClient[s.controllerClient]; ok {
			s.controllerConn = newConn
		} else {
			s.controllerConn = ""
		}
		controllerChanged = true
		s.bumpVersion(nowMs)
	}

	empty := len(s.members) == 0
	cc := protocol.Envelope{Event: protocol.TypeControllerChange, Payload: protocol.ControllerChangePayload{ControllerConnID: s.controllerConn}}
	s.mu.Unlock()

	result := LeaveResult{Empty: empty, ControllerChanged: controllerChanged, ControllerChange: cc}
	if controllerChanged {
		result.SyncState = s.SyncStateEvent(nowMs)
	}
	return result
}

// BroadcastClientsUpdate fans out the current member list.
func (s *Session) BroadcastClientsUpdate() {
	s.mu.RLock()
	ev := s.clientsUpdateLocked()
	s.mu.RUnlock()
	s.mu.RLock()
	s.broadcastLocked(ev)
	s.mu.RUnlock()
}

// Broadcast is a small exported helper the router uses to fan out prebuilt
// envelopes (e.g. after Join/Leave) without re-deriving session internals.
func (s *Session) Broadcast(ev protocol.Envelope) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.broadcastLocked(ev)
}

// BroadcastExcept fans out ev to every member except excludeConnID.
func (s *Session) BroadcastExcept(ev protocol.Envelope, excludeConnID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.broadcastExceptLocked(ev, excludeConnID)
}

// SendTo delivers ev to a single connection, if still a member.
func (s *Session) SendTo(connID string, ev protocol.Envelope) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.sendToLocked(connID, ev)
}

// ConnForClient resolves a client_id's current conn_id, for the signaling
// relay and controller offer/accept lookups.
func (s *Session) ConnForClient(clientID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byClient[clientID]
	return c, ok
}

// DisplayName returns the display name bound to connID, if any.
func (s *Session) DisplayName(connID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.members[connID]; ok {
		return m.DisplayName
	}
	return ""
}

// ControllerChangeEvent builds the controller_change envelope under a read lock.
func (s *Session) ControllerChangeEvent() protocol.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return protocol.Envelope{
		Event:   protocol.TypeControllerChange,
		Payload: protocol.ControllerChangePayload{ControllerConnID: s.controllerConn},
	}
}

// ControllerClientChangeEvent builds the controller_client_change envelope.
func (s *Session) ControllerClientChangeEvent() protocol.Envelope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return protocol.Envelope{
		Event:   protocol.TypeControllerClientChange,
		Payload: protocol.ControllerClientChangePayload{ControllerClientID: s.controllerClient},
	}
}

// ReactionsForMessage returns the aggregated reaction summary for one
// message, used to replay reactions to a newly joined client.
func (s *Session) ReactionsForMessage(messageID string) []protocol.ReactionSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reactionsSummaryLocked(messageID)
}

// AllMessageIDs returns every stored message id, for replaying reactions on join.
func (s *Session) AllMessageIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.msgByID))
	for id := range s.msgByID {
		ids = append(ids, id)
	}
	return ids
}

// QueueSnapshot returns a copy of the current queue and selected index.
func (s *Session) QueueSnapshot() ([]protocol.Track, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.Track(nil), s.queue...), s.selectedIdx
}

// IsController reports whether clientID currently holds the controller role.
func (s *Session) IsController(clientID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controllerClient != "" && s.controllerClient == clientID
}
