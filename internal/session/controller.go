package session

import (
	"time"

	"github.com/wavesync/syncd/internal/apperr"
	"github.com/wavesync/syncd/internal/protocol"
)

// pendingRequestsUpdateLocked builds the controller_requests_update envelope.
func (s *Session) pendingRequestsUpdateLocked() protocol.Envelope {
	out := make([]protocol.PendingControllerRequest, 0, len(s.pending))
	for clientID, p := range s.pending {
		out = append(out, protocol.PendingControllerRequest{
			ClientID:      clientID,
			RequesterName: p.requesterName,
			RequestTimeMs: p.requestTime.UnixMilli(),
		})
	}
	return protocol.Envelope{Event: protocol.TypeControllerRequestsUpdate, Payload: protocol.ControllerRequestsUpdatePayload{Requests: out}}
}

// ControllerRequestResult bundles the events the router fans out after a
// successful request_controller.
type ControllerRequestResult struct {
	RequestsUpdate  protocol.Envelope
	ToController    protocol.Envelope
	ControllerConn  string
}

// RequestController records a pending request from a non-controller member.
func (s *Session) RequestController(clientID, requesterName string, now time.Time) (ControllerRequestResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if clientID == s.controllerClient {
		return ControllerRequestResult{}, apperr.New(apperr.Conflict, "already controller")
	}
	if _, exists := s.pending[clientID]; exists {
		return ControllerRequestResult{}, apperr.New(apperr.Conflict, "duplicate pending request")
	}

	s.pending[clientID] = &pendingRequest{requesterName: requesterName, requestTime: now}

	return ControllerRequestResult{
		RequestsUpdate: s.pendingRequestsUpdateLocked(),
		ToController: protocol.Envelope{
			Event: protocol.TypeControllerRequestReceived,
			Payload: protocol.PendingControllerRequest{
				ClientID:      clientID,
				RequesterName: requesterName,
				RequestTimeMs: now.UnixMilli(),
			},
		},
		ControllerConn: s.controllerConn,
	}, nil
}

// CancelControllerRequest removes a client's own pending request.
func (s *Session) CancelControllerRequest(clientID string) (protocol.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[clientID]; !exists {
		return protocol.Envelope{}, apperr.New(apperr.ExpiredOrGone, "no pending request")
	}
	delete(s.pending, clientID)
	return s.pendingRequestsUpdateLocked(), nil
}

// ControllerDecisionResult bundles the events a successful approve fans out.
type ControllerDecisionResult struct {
	ControllerChange       protocol.Envelope
	ControllerClientChange protocol.Envelope
	RequestsUpdate         protocol.Envelope
	SyncState              protocol.Envelope
}

// ApproveControllerRequest transfers controller to requesterClientID.
func (s *Session) ApproveControllerRequest(requesterClientID string, nowMs int64) (ControllerDecisionResult, error) {
	s.mu.Lock()

	if _, exists := s.pending[requesterClientID]; !exists {
		s.mu.Unlock()
		return ControllerDecisionResult{}, apperr.New(apperr.ExpiredOrGone, "request no longer pending")
	}
	delete(s.pending, requesterClientID)

	s.controllerClient = requesterClientID
	s.controllerConn = s.byClient[requesterClientID]
	s.bumpVersion(nowMs)

	cc := protocol.Envelope{Event: protocol.TypeControllerChange, Payload: protocol.ControllerChangePayload{ControllerConnID: s.controllerConn}}
	ccc := protocol.Envelope{Event: protocol.TypeControllerClientChange, Payload: protocol.ControllerClientChangePayload{ControllerClientID: s.controllerClient}}
	ru := s.pendingRequestsUpdateLocked()
	s.mu.Unlock()

	return ControllerDecisionResult{
		ControllerChange:       cc,
		ControllerClientChange: ccc,
		RequestsUpdate:         ru,
		SyncState:              s.SyncStateEvent(nowMs),
	}, nil
}

// DenyControllerRequest removes a pending request without transferring control.
func (s *Session) DenyControllerRequest(requesterClientID string) (protocol.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[requesterClientID]; !exists {
		return protocol.Envelope{}, apperr.New(apperr.ExpiredOrGone, "request no longer pending")
	}
	delete(s.pending, requesterClientID)
	return s.pendingRequestsUpdateLocked(), nil
}

// OfferController validates that offererClientID is still controller and
// that targetClientID is a present member, returning the target's conn_id
// for the router to deliver controller_offer_received to.
func (s *Session) OfferController(offererClientID, targetClientID string) (targetConn string, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.controllerClient != offererClientID {
		return "", apperr.New(apperr.Unauthorized, "only the controller may offer control")
	}
	conn, ok := s.byClient[targetClientID]
	if !ok {
		return "", apperr.New(apperr.NotFound, "target client not present")
	}
	return conn, nil
}

// AcceptControllerOffer transfers controller to accepterClientID, provided
// offererClientID is still the controller of record.
func (s *Session) AcceptControllerOffer(accepterClientID, offererClientID string, nowMs int64) (ControllerDecisionResult, error) {
	s.mu.Lock()

	if s.controllerClient != offererClientID {
		s.mu.Unlock()
		return ControllerDecisionResult{}, apperr.New(apperr.ExpiredOrGone, "offer no longer valid")
	}

	s.controllerClient = accepterClientID
	s.controllerConn = s.byClient[accepterClientID]
	s.bumpVersion(nowMs)

	cc := protocol.Envelope{Event: protocol.TypeControllerChange, Payload: protocol.ControllerChangePayload{ControllerConnID: s.controllerConn}}
	ccc := protocol.Envelope{Event: protocol.TypeControllerClientChange, Payload: protocol.ControllerClientChangePayload{ControllerClientID: s.controllerClient}}
	s.mu.Unlock()

	return ControllerDecisionResult{
		ControllerChange:       cc,
		ControllerClientChange: ccc,
		SyncState:              s.SyncStateEvent(nowMs),
	}, nil
}

// SweepExpiredRequests removes pending requests older than
// ControllerRequestTTL and reports whether anything was removed (so the
// caller knows to rebroadcast controller_requests_update).
func (s *Session) SweepExpiredRequests(now time.Time) (protocol.Envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ttl := s.controllerRequestTTL
	if ttl <= 0 {
		ttl = ControllerRequestTTL
	}

	var removed bool
	for clientID, p := range s.pending {
		if now.Sub(p.requestTime) > ttl {
			delete(s.pending, clientID)
			removed = true
		}
	}
	if !removed {
		return protocol.Envelope{}, false
	}
	return s.pendingRequestsUpdateLocked(), true
}
