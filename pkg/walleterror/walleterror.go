// Package walleterror defines the structured error model shared by the verifier, the issuance session and the
// presentation-exchange matcher. Every failure surfaced by those components is an *Error carrying a Kind callers
// can branch on.
package walleterror

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Kind classifies a failure.
type Kind string

const (
	MalformedInput     Kind = "MalformedInput"
	NotFound           Kind = "NotFound"
	UnknownKey         Kind = "UnknownKey"
	InvalidSignature   Kind = "InvalidSignature"
	InvalidHolderProof Kind = "InvalidHolderProof"
	NotTemporallyValid Kind = "NotTemporallyValid"
	// Revoked marks a credential whose status list bit is set, for either the revocation or suspension purpose.
	Revoked            Kind = "Revoked"
	GrantTypeMismatch  Kind = "GrantTypeMismatch"
	InvalidState       Kind = "InvalidState"
	IssuanceRejected   Kind = "IssuanceRejected"
	Unsatisfiable      Kind = "Unsatisfiable"
	CollaboratorError  Kind = "CollaboratorError"
)

func (k Kind) String() string {
	return string(k)
}

// Error is a failure with a kind, a human-readable message and an optional nested cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Call and ID are set on CollaboratorError and NotFound to name the capability call and the
	// identifier it was made with.
	Call string
	ID   string

	// ServerCode and ServerMessage carry the error returned by a remote issuer, if any.
	ServerCode    string
	ServerMessage string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Call != "" {
		fmt.Fprintf(&b, "(%s", e.Call)
		if e.ID != "" {
			fmt.Fprintf(&b, " %s", e.ID)
		}
		b.WriteString(")")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.ServerCode != "" {
		fmt.Fprintf(&b, " [server: %s", e.ServerCode)
		if e.ServerMessage != "" {
			fmt.Fprintf(&b, " %s", e.ServerMessage)
		}
		b.WriteString("]")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, so errors.Is(err, walleterror.New(kind, "")) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf creates an error of the given kind around a cause with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Collaborator wraps a failure surfaced by a capability. call names the capability operation
// (e.g. "DIDResolver.Resolve") and id the identifier it was invoked with.
func Collaborator(call, id string, cause error) *Error {
	return &Error{Kind: CollaboratorError, Call: call, ID: id, Cause: cause}
}

// NotFoundIn reports a lookup miss in a capability.
func NotFoundIn(call, id string, cause error) *Error {
	return &Error{Kind: NotFound, Call: call, ID: id, Message: "not found", Cause: cause}
}

// WithServerError attaches a remote error code and description.
func (e *Error) WithServerError(code, message string) *Error {
	e.ServerCode = code
	e.ServerMessage = message
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or the empty kind.
func KindOf(err error) Kind {
	var we *Error
	if errors.As(err, &we) {
		return we.Kind
	}
	return ""
}

// IsKind reports whether err's chain contains an *Error of kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}
