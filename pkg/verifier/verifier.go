// Package verifier checks the proofs, validity periods and revocation status of credentials and presentations. A Verifier holds only
// its capabilities and is safe for concurrent use.
package verifier

import (
	"context"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/api"
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/did"
	"github.com/tbd54566975/ssi-wallet/pkg/httpclient"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

const tracerName = "github.com/tbd54566975/ssi-wallet/pkg/verifier"

type Verifier struct {
	crypto     api.Crypto
	resolver   api.DIDResolver
	credReader api.CredentialReader
	keyReader  api.KeyHandleReader
	httpClient *http.Client

	clock  clock.Clock
	tracer trace.Tracer
}

type Option func(*Verifier)

// WithClock sets the clock validity periods are checked against.
func WithClock(c clock.Clock) Option {
	return func(v *Verifier) {
		v.clock = c
	}
}

// WithHTTPClient sets the client status lists are fetched with.
func WithHTTPClient(c *http.Client) Option {
	return func(v *Verifier) {
		v.httpClient = c
	}
}

// WithTracerProvider sets the provider spans are created with. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(v *Verifier) {
		v.tracer = tp.Tracer(tracerName)
	}
}

// New creates a Verifier. crypto and resolver are required. credReader is only needed to verify by credential id
// and keyReader only for VerifyOwnership.
func New(crypto api.Crypto, resolver api.DIDResolver, credReader api.CredentialReader, keyReader api.KeyHandleReader, opts ...Option) (*Verifier, error) {
	if crypto == nil {
		return nil, walleterror.New(walleterror.MalformedInput, "crypto is required")
	}
	if resolver == nil {
		return nil, walleterror.New(walleterror.MalformedInput, "did resolver is required")
	}
	v := &Verifier{
		crypto:     crypto,
		resolver:   resolver,
		credReader: credReader,
		keyReader:  keyReader,
		clock:      clock.New(),
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.httpClient == nil {
		v.httpClient = httpclient.New(httpclient.Config{MaxRetries: httpclient.DefaultMaxRetries})
	}
	return v, nil
}

// Verify verifies the target selected by opts.Target(). Whenever the input parses, the returned report is
// complete; the error is nil only if every check passed and otherwise carries the kind of the first failed check.
func (v *Verifier) Verify(ctx context.Context, opts VerifyOpts) (*Report, error) {
	ctx, span := v.tracer.Start(ctx, "Verifier.Verify")
	defer span.End()

	report, err := v.verify(ctx, opts.Target())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		logrus.WithContext(ctx).WithField("kind", walleterror.KindOf(err)).Debug("verification failed")
	}
	return report, err
}

func (v *Verifier) verify(ctx context.Context, target Target) (*Report, error) {
	var raw []byte
	switch target.Kind {
	case TargetNone:
		return nil, walleterror.New(walleterror.MalformedInput, "one of credential id, raw credential or raw presentation is required")
	case TargetCredentialID:
		var err error
		if raw, err = v.readCredential(ctx, target.CredentialID); err != nil {
			return nil, err
		}
	case TargetRawCredential, TargetRawPresentation:
		raw = target.Raw
	}

	if target.Kind == TargetRawPresentation {
		pres, err := credential.ParsePresentation(raw)
		if err != nil {
			return nil, walleterror.Wrap(walleterror.MalformedInput, err, "parsing presentation")
		}
		return v.verifyPresentation(ctx, pres)
	}

	cred, err := credential.ParseCredential(raw)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.MalformedInput, err, "parsing credential")
	}
	report := &Report{Credentials: []CredentialResult{v.checkCredential(ctx, cred)}}
	if werr := report.firstFailure(); werr != nil {
		return report, werr
	}
	return report, nil
}

func (v *Verifier) readCredential(ctx context.Context, id string) ([]byte, error) {
	if v.credReader == nil {
		return nil, walleterror.New(walleterror.MalformedInput, "no credential reader configured")
	}
	ctx, span := v.tracer.Start(ctx, "CredentialReader.Get", trace.WithAttributes(attribute.String("credential.id", id)))
	defer span.End()

	raw, err := v.credReader.Get(ctx, id)
	switch {
	case errors.Is(err, api.ErrNotFound):
		return nil, walleterror.NotFoundIn("CredentialReader.Get", id, err)
	case err != nil:
		span.SetStatus(codes.Error, err.Error())
		return nil, walleterror.Collaborator("CredentialReader.Get", id, err)
	case len(raw) == 0:
		return nil, walleterror.NotFoundIn("CredentialReader.Get", id, nil)
	}
	return raw, nil
}

func (v *Verifier) verifyPresentation(ctx context.Context, pres *credential.Presentation) (*Report, error) {
	report := &Report{Holder: pres.Holder, Credentials: make([]CredentialResult, 0, len(pres.Credentials))}
	for _, cred := range pres.Credentials {
		report.Credentials = append(report.Credentials, v.checkCredential(ctx, cred))
	}
	holderCheck := v.checkHolderProof(ctx, pres)
	report.HolderProof = &holderCheck

	if werr := report.firstFailure(); werr != nil {
		return report, werr
	}
	return report, nil
}

func (v *Verifier) checkCredential(ctx context.Context, cred *credential.Credential) CredentialResult {
	result := CredentialResult{
		ID:      cred.ID,
		Issuer:  cred.Issuer,
		Subject: cred.Subject,
		Format:  cred.Format,
	}

	if werr := v.checkCredentialProof(ctx, cred); werr != nil {
		result.Checks = append(result.Checks, failed(CheckProof, werr))
	} else {
		result.Checks = append(result.Checks, passed(CheckProof))
	}

	if werr := v.checkValidityPeriod(cred); werr != nil {
		result.Checks = append(result.Checks, failed(CheckValidPeriod, werr))
	} else {
		result.Checks = append(result.Checks, passed(CheckValidPeriod))
	}

	if checked, werr := v.checkStatus(ctx, cred); werr != nil {
		result.Checks = append(result.Checks, failed(CheckStatus, werr))
	} else if checked {
		result.Checks = append(result.Checks, passed(CheckStatus))
	}
	return result
}

func (v *Verifier) checkCredentialProof(ctx context.Context, cred *credential.Credential) *walleterror.Error {
	if cred.Proof == nil {
		return walleterror.Newf(walleterror.InvalidSignature, "credential %s has no proof", cred.ID)
	}
	keyID := cred.Proof.KeyID
	if keyID == "" || util.DIDFromKeyID(keyID) != cred.Issuer {
		return walleterror.Newf(walleterror.UnknownKey, "proof key %q is not a key of issuer %s", keyID, cred.Issuer)
	}
	return v.verifyProof(ctx, cred.Issuer, cred.Proof, walleterror.UnknownKey, walleterror.InvalidSignature)
}

func (v *Verifier) checkHolderProof(ctx context.Context, pres *credential.Presentation) Check {
	if pres.Proof == nil {
		return failed(CheckHolderProof, walleterror.New(walleterror.InvalidHolderProof, "presentation has no proof"))
	}
	keyID := pres.Proof.KeyID
	holder := pres.Holder
	if holder == "" {
		holder = util.DIDFromKeyID(keyID)
	}
	if keyID == "" || util.DIDFromKeyID(keyID) != holder {
		return failed(CheckHolderProof, walleterror.Newf(walleterror.InvalidHolderProof, "proof key %q is not a key of holder %s", keyID, holder))
	}
	if werr := v.verifyProof(ctx, holder, pres.Proof, walleterror.InvalidHolderProof, walleterror.InvalidHolderProof); werr != nil {
		return failed(CheckHolderProof, werr)
	}
	return passed(CheckHolderProof)
}

// verifyProof resolves controller, finds the proof's verification method in its document and checks the signature.
func (v *Verifier) verifyProof(ctx context.Context, controller string, proof *credential.Proof, unknownKey, badSignature walleterror.Kind) *walleterror.Error {
	doc, werr := v.resolve(ctx, controller)
	if werr != nil {
		return werr
	}

	key, err := doc.PublicKeyJWK(proof.KeyID)
	if err != nil {
		if errors.Is(err, did.ErrKeyNotFound) {
			return walleterror.Wrapf(unknownKey, err, "key %s not found in document of %s", proof.KeyID, controller)
		}
		return walleterror.Wrapf(unknownKey, err, "key %s is unusable", proof.KeyID)
	}
	if keyAlg := key.Algorithm().String(); keyAlg != "" && keyAlg != proof.Algorithm.String() {
		return walleterror.Newf(badSignature, "proof algorithm %s does not match key algorithm %s", proof.Algorithm, keyAlg)
	}

	ctx, span := v.tracer.Start(ctx, "Crypto.Verify", trace.WithAttributes(attribute.String("key.id", proof.KeyID)))
	defer span.End()
	ok, err := v.crypto.Verify(ctx, &api.PublicKey{ID: proof.KeyID, Algorithm: proof.Algorithm, JWK: key}, proof.SigningInput, proof.Signature)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return walleterror.Collaborator("Crypto.Verify", proof.KeyID, err)
	}
	if !ok {
		return walleterror.Newf(badSignature, "signature does not verify with key %s", proof.KeyID)
	}
	return nil
}

func (v *Verifier) resolve(ctx context.Context, id string) (*did.Document, *walleterror.Error) {
	ctx, span := v.tracer.Start(ctx, "DIDResolver.Resolve", trace.WithAttributes(attribute.String("did", id)))
	defer span.End()

	logrus.WithContext(ctx).WithField("did", util.SanitizeLog(id)).Debug("resolving did")
	doc, err := v.resolver.Resolve(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, walleterror.Collaborator("DIDResolver.Resolve", id, err)
	}
	if doc.IsEmpty() {
		return nil, walleterror.Collaborator("DIDResolver.Resolve", id, errors.New("empty did document"))
	}
	return doc, nil
}

func (v *Verifier) checkValidityPeriod(cred *credential.Credential) *walleterror.Error {
	now := v.clock.Now()
	if cred.ValidFrom != nil && now.Before(*cred.ValidFrom) {
		return walleterror.Newf(walleterror.NotTemporallyValid, "credential is not valid before %s", cred.ValidFrom.UTC())
	}
	if cred.ValidUntil != nil && now.After(*cred.ValidUntil) {
		return walleterror.Newf(walleterror.NotTemporallyValid, "credential expired at %s", cred.ValidUntil.UTC())
	}
	return nil
}

// VerifyOwnership checks that raw, a presentation, carries a valid holder proof made with keyID and that keyID is
// a key this wallet holds.
func (v *Verifier) VerifyOwnership(ctx context.Context, raw []byte, keyID string) error {
	if v.keyReader == nil {
		return walleterror.New(walleterror.MalformedInput, "no key handle reader configured")
	}
	ctx, span := v.tracer.Start(ctx, "Verifier.VerifyOwnership")
	defer span.End()

	if _, err := v.keyReader.Get(ctx, keyID); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return walleterror.NotFoundIn("KeyHandleReader.Get", keyID, err)
		}
		return walleterror.Collaborator("KeyHandleReader.Get", keyID, err)
	}

	pres, err := credential.ParsePresentation(raw)
	if err != nil {
		return walleterror.Wrap(walleterror.MalformedInput, err, "parsing presentation")
	}
	if pres.Proof == nil || pres.Proof.KeyID != keyID {
		return walleterror.Newf(walleterror.InvalidHolderProof, "presentation is not signed with key %s", keyID)
	}
	check := v.checkHolderProof(ctx, pres)
	if !check.Passed {
		return check.Error
	}
	return nil
}
