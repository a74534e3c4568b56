package openid4ci

import (
	"context"

	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

// Events reported to the issuer's notification endpoint.
const (
	EventCredentialAccepted = "credential_accepted"
	EventCredentialDeleted  = "credential_deleted"
	EventCredentialFailure  = "credential_failure"
)

// notification is what the issuer needs to match an acknowledgment to the issued credential.
type notification struct {
	id          string
	endpoint    string
	accessToken string
}

type notificationRequest struct {
	NotificationID   string `json:"notification_id"`
	Event            string `json:"event"`
	EventDescription string `json:"event_description,omitempty"`
}

// RequiresAcknowledgment reports whether the issuer asked to be told what became of the delivered credential and
// has not been told yet.
func (s *Session) RequiresAcknowledgment() bool {
	return s.notification != nil
}

// Acknowledge tells the issuer whether the user kept the delivered credential. It is only allowed once the
// session finished: a Completed session reports credential_accepted or credential_deleted, an Errored one
// credential_failure whatever accepted says. The session state is never changed; a failed acknowledgment can
// be sent again.
func (s *Session) Acknowledge(ctx context.Context, accepted bool) error {
	state := s.State()
	if !state.Terminal() {
		return walleterror.Newf(walleterror.InvalidState, "Acknowledge requires a finished session, session is %s", state)
	}
	if s.notification == nil {
		return walleterror.New(walleterror.InvalidState, "issuer asked for no acknowledgment or it was already sent")
	}

	req := notificationRequest{NotificationID: s.notification.id, Event: EventCredentialFailure}
	switch {
	case state == StateCompleted && accepted:
		req.Event = EventCredentialAccepted
	case state == StateCompleted:
		req.Event = EventCredentialDeleted
	}

	ctx, span := s.tracer.Start(ctx, "Session.Acknowledge")
	defer span.End()
	if err := s.client.postJSON(ctx, "Issuer.Notification", s.notification.endpoint, s.notification.accessToken, req, nil); err != nil {
		return err
	}
	s.logger().WithField("event", req.Event).Info("issuer acknowledged")
	s.notification = nil
	return nil
}
