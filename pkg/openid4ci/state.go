package openid4ci

import (
	"golang.org/x/oauth2"

	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

// State is the position of a Session in the issuance flow.
type State int

const (
	StateCreated State = iota
	StateAuthorized
	StateCredentialRequested
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateAuthorized:
		return "Authorized"
	case StateCredentialRequested:
		return "CredentialRequested"
	case StateCompleted:
		return "Completed"
	case StateErrored:
		return "Errored"
	}
	return "Unknown"
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// sessionState is the tagged variant holding the data of the current state.
type sessionState interface {
	state() State
}

type createdState struct{}

// authorizedState is reached through one of the two grants. For the pre-authorized code grant code is the
// offer's code; for the authorization code grant the OAuth2 config, PKCE verifier and state are kept until the
// code comes back on the redirect.
type authorizedState struct {
	grant string
	code  string
	pin   string

	oauth       *oauth2.Config
	verifier    string
	authState   string
	authURL     string
	issuerState string
}

type credentialRequestedState struct {
	from       *authorizedState
	credential []byte
}

type completedState struct {
	credential []byte
}

// erroredState keeps the delivered credential, if any, so a rejection can still be reported to the issuer.
type erroredState struct {
	from       State
	cause      error
	credential []byte
}

func (createdState) state() State             { return StateCreated }
func (authorizedState) state() State          { return StateAuthorized }
func (credentialRequestedState) state() State { return StateCredentialRequested }
func (completedState) state() State           { return StateCompleted }
func (erroredState) state() State             { return StateErrored }

// transitions lists the edges of the state machine. Errored is reachable from every non-terminal state.
var transitions = map[State][]State{
	StateCreated:             {StateAuthorized, StateErrored},
	StateAuthorized:          {StateCredentialRequested, StateErrored},
	StateCredentialRequested: {StateCompleted, StateErrored},
}

// transition moves the session to next. It is the only place the session state is written.
func (s *Session) transition(next sessionState) error {
	from := s.state.state()
	for _, allowed := range transitions[from] {
		if allowed == next.state() {
			s.state = next
			s.logger().Debugf("issuance session %s -> %s", from, next.state())
			return nil
		}
	}
	return walleterror.Newf(walleterror.InvalidState, "cannot move from %s to %s", from, next.state())
}

// fail moves the session to Errored and returns cause.
func (s *Session) fail(cause *walleterror.Error) error {
	next := erroredState{from: s.state.state(), cause: cause}
	if requested, ok := s.state.(*credentialRequestedState); ok {
		next.credential = requested.credential
	}
	if err := s.transition(next); err != nil {
		return err
	}
	return cause
}

func (s *Session) requireState(want State, op string) error {
	if got := s.state.state(); got != want {
		return walleterror.Newf(walleterror.InvalidState, "%s requires state %s, session is %s", op, want, got)
	}
	return nil
}
