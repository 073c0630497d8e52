package router

import (
	"encoding/json"
	"time"

	"github.com/wavesync/syncd/internal/apperr"
	"github.com/wavesync/syncd/internal/protocol"
)

func (r *Router) handleRequestController(conn *Conn, raw json.RawMessage, now time.Time) *protocol.Envelope {
	var p protocol.ControllerRequestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeRequestController, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeRequestController, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(protocol.TypeRequestController, apperr.New(apperr.NotFound, "not joined to this session"))
	}

	requesterName := s.DisplayName(conn.ID)
	result, err := s.RequestController(clientID, requesterName, now)
	if err != nil {
		return ackErr(protocol.TypeRequestController, err)
	}

	s.Broadcast(result.RequestsUpdate)
	if result.ControllerConn != "" {
		s.SendTo(result.ControllerConn, result.ToController)
	}
	return ackOK(protocol.TypeRequestController, nil)
}

func (r *Router) handleCancelControllerRequest(conn *Conn, raw json.RawMessage) *protocol.Envelope {
	var p protocol.ControllerRequestPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeCancelControllerRequest, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(protocol.TypeCancelControllerRequest, apperr.New(apperr.NotFound, "not joined to this session"))
	}

	ev, err := s.CancelControllerRequest(clientID)
	if err != nil {
		return ackErr(protocol.TypeCancelControllerRequest, err)
	}
	s.Broadcast(ev)
	return ackOK(protocol.TypeCancelControllerRequest, nil)
}

// handleControllerDecision serves both approve_controller_request and
// deny_controller_request; approve==true selects the former.
func (r *Router) handleControllerDecision(conn *Conn, raw json.RawMessage, now time.Time, approve bool) *protocol.Envelope {
	event := protocol.TypeDenyControllerRequest
	if approve {
		event = protocol.TypeApproveControllerRequest
	}

	var p protocol.ControllerDecisionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(event, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(event, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(event, apperr.New(apperr.NotFound, "not joined to this session"))
	}
	if !s.IsController(clientID) {
		return ackErr(event, apperr.New(apperr.Unauthorized, "only the controller may decide this request"))
	}

	if !approve {
		ev, err := s.DenyControllerRequest(p.RequesterClientID)
		if err != nil {
			return ackErr(event, err)
		}
		s.Broadcast(ev)
		return ackOK(event, nil)
	}

	result, err := s.ApproveControllerRequest(p.RequesterClientID, now.UnixMilli())
	if err != nil {
		return ackErr(event, err)
	}
	s.Broadcast(result.ControllerChange)
	s.Broadcast(result.ControllerClientChange)
	s.Broadcast(result.RequestsUpdate)
	s.Broadcast(result.SyncState)
	if r.metrics != nil {
		r.metrics.ControllerTransfers.Inc()
	}
	return ackOK(event, nil)
}

func (r *Router) handleOfferController(conn *Conn, raw json.RawMessage) *protocol.Envelope {
	var p protocol.ControllerOfferPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeOfferController, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeOfferController, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(protocol.TypeOfferController, apperr.New(apperr.NotFound, "not joined to this session"))
	}

	targetConn, err := s.OfferController(clientID, p.TargetClientID)
	if err != nil {
		return ackErr(protocol.TypeOfferController, err)
	}

	s.SendTo(targetConn, protocol.Envelope{
		Event:   protocol.TypeControllerOfferReceived,
		Payload: map[string]string{"offerer_client_id": clientID},
	})
	s.SendTo(conn.ID, protocol.Envelope{
		Event:   protocol.TypeControllerOfferSent,
		Payload: map[string]string{"target_client_id": p.TargetClientID},
	})
	return ackOK(protocol.TypeOfferController, map[string]string{"target_client_id": p.TargetClientID})
}

func (r *Router) handleAcceptControllerOffer(conn *Conn, raw json.RawMessage, now time.Time) *protocol.Envelope {
	var p protocol.ControllerOfferResponsePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeAcceptControllerOffer, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}
	if err := r.validate.Struct(p); err != nil {
		return ackErr(protocol.TypeAcceptControllerOffer, apperr.New(apperr.InvalidArgument, "%v", err))
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(protocol.TypeAcceptControllerOffer, apperr.New(apperr.NotFound, "not joined to this session"))
	}

	result, err := s.AcceptControllerOffer(clientID, p.OffererClientID, now.UnixMilli())
	if err != nil {
		return ackErr(protocol.TypeAcceptControllerOffer, err)
	}

	s.Broadcast(result.ControllerChange)
	s.Broadcast(result.ControllerClientChange)
	s.Broadcast(result.SyncState)
	if r.metrics != nil {
		r.metrics.ControllerTransfers.Inc()
	}
	return ackOK(protocol.TypeAcceptControllerOffer, nil)
}

func (r *Router) handleDeclineControllerOffer(conn *Conn, raw json.RawMessage) *protocol.Envelope {
	var p protocol.ControllerOfferResponsePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return ackErr(protocol.TypeDeclineControllerOffer, apperr.New(apperr.InvalidArgument, "malformed payload"))
	}

	s, clientID, ok := r.sessionFor(conn)
	if !ok || s.ID != p.SessionID {
		return ackErr(protocol.TypeDeclineControllerOffer, apperr.New(apperr.NotFound, "not joined to this session"))
	}

	offererConn, found := s.ConnForClient(p.OffererClientID)
	if !found {
		return ackErr(protocol.TypeDeclineControllerOffer, apperr.New(apperr.NotFound, "offerer no longer present"))
	}

	s.SendTo(offererConn, protocol.Envelope{
		Event:   protocol.TypeControllerOfferDeclined,
		Payload: map[string]string{"decliner_client_id": clientID},
	})
	return ackOK(protocol.TypeDeclineControllerOffer, nil)
}
