package verifier

import (
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

// VerifyOpts names what to verify. Exactly one source is used, chosen by Target.
type VerifyOpts struct {
	// CredentialID is looked up through the CredentialReader.
	CredentialID string
	// RawCredential is a VC-JWT or a JSON credential.
	RawCredential []byte
	// RawPresentation is a VP-JWT or a JSON presentation.
	RawPresentation []byte
}

type TargetKind int

const (
	TargetNone TargetKind = iota
	TargetCredentialID
	TargetRawCredential
	TargetRawPresentation
)

// Target is the single source selected from VerifyOpts.
type Target struct {
	Kind         TargetKind
	CredentialID string
	Raw          []byte
}

// Target applies the precedence CredentialID > RawCredential > RawPresentation. Every entry point that reads
// VerifyOpts goes through here.
func (o VerifyOpts) Target() Target {
	switch {
	case o.CredentialID != "":
		return Target{Kind: TargetCredentialID, CredentialID: o.CredentialID}
	case len(o.RawCredential) > 0:
		return Target{Kind: TargetRawCredential, Raw: o.RawCredential}
	case len(o.RawPresentation) > 0:
		return Target{Kind: TargetRawPresentation, Raw: o.RawPresentation}
	}
	return Target{Kind: TargetNone}
}

type CheckName string

const (
	CheckProof       CheckName = "proof"
	CheckValidPeriod CheckName = "validity-period"
	CheckHolderProof CheckName = "holder-proof"
	CheckStatus      CheckName = "status"
)

// Check is the outcome of one verification step.
type Check struct {
	Name   CheckName          `json:"name"`
	Passed bool               `json:"passed"`
	Error  *walleterror.Error `json:"-"`
	// Message is Error rendered for serialized reports.
	Message string `json:"message,omitempty"`
}

func passed(name CheckName) Check {
	return Check{Name: name, Passed: true}
}

func failed(name CheckName, err *walleterror.Error) Check {
	return Check{Name: name, Error: err, Message: err.Error()}
}

// CredentialResult reports on a single credential.
type CredentialResult struct {
	ID      string            `json:"id,omitempty"`
	Issuer  string            `json:"issuer"`
	Subject string            `json:"subject,omitempty"`
	Format  credential.Format `json:"format"`
	Checks  []Check           `json:"checks"`
}

// Valid reports whether every check passed.
func (r CredentialResult) Valid() bool {
	return firstFailure(r.Checks) == nil
}

// Report is the outcome of a Verify call. For a presentation it has one result per embedded credential, in
// document order, and the holder proof check.
type Report struct {
	Credentials []CredentialResult `json:"credentials"`
	Holder      string             `json:"holder,omitempty"`
	HolderProof *Check             `json:"holderProof,omitempty"`
}

// Valid reports whether every credential and the holder proof passed.
func (r *Report) Valid() bool {
	return r.firstFailure() == nil
}

func (r *Report) firstFailure() *walleterror.Error {
	for _, c := range r.Credentials {
		if err := firstFailure(c.Checks); err != nil {
			return err
		}
	}
	if r.HolderProof != nil && !r.HolderProof.Passed {
		return r.HolderProof.Error
	}
	return nil
}

func firstFailure(checks []Check) *walleterror.Error {
	for _, c := range checks {
		if !c.Passed {
			return c.Error
		}
	}
	return nil
}
