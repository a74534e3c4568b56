// Package openid4ci runs the wallet side of OpenID for Verifiable Credential Issuance. A Session is created from
// a credential offer, authorized with the offer's grant and then exchanges a proof of possession for the
// credential. A Session must be driven by one goroutine at a time.
package openid4ci

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/tbd54566975/ssi-wallet/internal/keyaccess"
	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/api"
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/httpclient"
	"github.com/tbd54566975/ssi-wallet/pkg/verifier"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

const (
	// ProofJWTType is the typ header of the proof of possession sent with a credential request.
	ProofJWTType = "openid4vci-proof+jwt"

	attestJWTClientAuthType = "attest_jwt_client_auth"
	openIDCredentialType    = "openid_credential"
	tracerName              = "github.com/tbd54566975/ssi-wallet/pkg/openid4ci"
)

// Config carries the capabilities and settings of a Session.
type Config struct {
	CredentialReader api.CredentialReader
	KeyHandleReader  api.KeyHandleReader
	DIDResolver      api.DIDResolver
	Crypto           api.Crypto

	// HTTPClient reaches the issuer; a retrying client from pkg/httpclient when nil.
	HTTPClient *http.Client
	// ClientID identifies the wallet to the authorization server. Required for the authorization code grant.
	ClientID string
	Clock    clock.Clock
	// DisableVCProofChecks skips verifying the received credential.
	DisableVCProofChecks bool
	TracerProvider       trace.TracerProvider
}

// AuthorizeResult is returned by Authorize. AuthorizationURL is empty for pre-authorized offers; otherwise the
// user must be sent there and the code returned on the redirect passed to RequestCredential.
type AuthorizeResult struct {
	AuthorizationURL string
	PINRequired      bool
}

// Session is one run of the issuance flow for one offered credential.
type Session struct {
	format  string
	offer   *Offer
	offered *OfferedCredential
	grant   string
	cfg     Config

	client   issuerClient
	verifier *verifier.Verifier
	tracer   trace.Tracer

	state             sessionState
	authorizationCode string
	notification      *notification
	metadata          *IssuerMetadata
	openIDConfig      *OpenIDConfiguration
}

// NewSession parses offer and creates a session in state Created for the offered credential of the given format.
// When the offer carries both grants the pre-authorized code grant is used.
func NewSession(offer []byte, format string, cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, walleterror.New(walleterror.MalformedInput, "config is required")
	}
	switch {
	case cfg.CredentialReader == nil:
		return nil, walleterror.New(walleterror.MalformedInput, "credential reader is required")
	case cfg.KeyHandleReader == nil:
		return nil, walleterror.New(walleterror.MalformedInput, "key handle reader is required")
	case cfg.DIDResolver == nil:
		return nil, walleterror.New(walleterror.MalformedInput, "did resolver is required")
	case cfg.Crypto == nil:
		return nil, walleterror.New(walleterror.MalformedInput, "crypto is required")
	case format == "":
		return nil, walleterror.New(walleterror.MalformedInput, "credential format is required")
	}

	parsed, err := ParseOffer(offer)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.MalformedInput, err, "parsing credential offer")
	}
	offered, ok := parsed.credentialFor(format)
	if !ok {
		return nil, walleterror.Newf(walleterror.MalformedInput, "offer from %s has no %s credential", parsed.CredentialIssuer, format)
	}

	c := *cfg
	if c.HTTPClient == nil {
		c.HTTPClient = httpclient.New(httpclient.Config{MaxRetries: httpclient.DefaultMaxRetries})
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
	v, err := verifier.New(c.Crypto, c.DIDResolver, c.CredentialReader, c.KeyHandleReader,
		verifier.WithClock(c.Clock), verifier.WithTracerProvider(c.TracerProvider), verifier.WithHTTPClient(c.HTTPClient))
	if err != nil {
		return nil, err
	}

	grant := AuthorizationCodeGrantType
	if parsed.preAuthorized != nil {
		grant = PreAuthorizedCodeGrantType
	}
	tracer := c.TracerProvider.Tracer(tracerName)
	return &Session{
		format:   format,
		offer:    parsed,
		offered:  offered,
		grant:    grant,
		cfg:      c,
		client:   issuerClient{http: c.HTTPClient, tracer: tracer},
		verifier: v,
		tracer:   tracer,
		state:    createdState{},
	}, nil
}

func (s *Session) logger() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{"issuer": s.offer.CredentialIssuer, "format": s.format})
}

// State returns the current state.
func (s *Session) State() State {
	return s.state.state()
}

// Format returns the requested credential format.
func (s *Session) Format() string {
	return s.format
}

// Offer returns the parsed offer.
func (s *Session) Offer() *Offer {
	return s.offer
}

// GrantType returns the grant the session uses.
func (s *Session) GrantType() string {
	return s.grant
}

// AuthorizationCode returns the recorded authorization code, empty until authorization completed.
func (s *Session) AuthorizationCode() string {
	return s.authorizationCode
}

// PreAuthorizedCodeGrant returns the offer's pre-authorized code grant, or nil.
func (s *Session) PreAuthorizedCodeGrant() *PreAuthorizedCodeGrant {
	return s.offer.preAuthorized
}

// ReceivedCredential returns the credential delivered by the issuer once the session reached
// CredentialRequested, whether or not it has been verified yet.
func (s *Session) ReceivedCredential() []byte {
	switch st := s.state.(type) {
	case *credentialRequestedState:
		return st.credential
	case completedState:
		return st.credential
	case erroredState:
		return st.credential
	}
	return nil
}

// Credential returns the issued credential once the session is Completed.
func (s *Session) Credential() []byte {
	if done, ok := s.state.(completedState); ok {
		return done.credential
	}
	return nil
}

// Err returns the failure that moved the session to Errored.
func (s *Session) Err() error {
	if failed, ok := s.state.(erroredState); ok {
		return failed.cause
	}
	return nil
}

// Authorize completes the authorization step of the offer's grant. For a pre-authorized offer preAuthCode is
// empty or the offer's code, redirectEndpoint must be empty and nothing is sent over the network. For an
// authorization code offer preAuthCode must be empty and the returned AuthorizationURL must be visited.
func (s *Session) Authorize(ctx context.Context, preAuthCode, redirectEndpoint string, opts ...AuthorizeOption) (*AuthorizeResult, error) {
	if err := s.requireState(StateCreated, "Authorize"); err != nil {
		return nil, err
	}
	var o authorizeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if s.grant == PreAuthorizedCodeGrantType {
		return s.authorizePreAuthorized(preAuthCode, redirectEndpoint, o)
	}
	return s.authorizeWithCode(ctx, preAuthCode, redirectEndpoint, o)
}

func (s *Session) authorizePreAuthorized(preAuthCode, redirectEndpoint string, o authorizeOptions) (*AuthorizeResult, error) {
	if redirectEndpoint != "" {
		return nil, walleterror.New(walleterror.GrantTypeMismatch, "offer uses the pre-authorized code grant, which has no redirect")
	}
	grant := s.offer.preAuthorized
	if preAuthCode != "" && preAuthCode != grant.Code {
		return nil, walleterror.New(walleterror.MalformedInput, "pre-authorized code does not match the offer")
	}
	if grant.PINRequired() {
		if o.pin == "" {
			return nil, walleterror.New(walleterror.MalformedInput, "issuer requires a transaction code")
		}
		if grant.TxCode != nil && grant.TxCode.Length > 0 && len(o.pin) != grant.TxCode.Length {
			return nil, walleterror.Newf(walleterror.MalformedInput, "transaction code must have %d characters", grant.TxCode.Length)
		}
	}

	if err := s.transition(&authorizedState{grant: PreAuthorizedCodeGrantType, code: grant.Code, pin: o.pin}); err != nil {
		return nil, err
	}
	s.authorizationCode = grant.Code
	return &AuthorizeResult{PINRequired: grant.PINRequired()}, nil
}

type authorizationDetail struct {
	Type                 string                `json:"type"`
	Format               string                `json:"format"`
	Types                []string              `json:"types,omitempty"`
	CredentialDefinition *CredentialDefinition `json:"credential_definition,omitempty"`
	Locations            []string              `json:"locations,omitempty"`
}

func (s *Session) authorizeWithCode(ctx context.Context, preAuthCode, redirectEndpoint string, o authorizeOptions) (*AuthorizeResult, error) {
	if preAuthCode != "" {
		return nil, walleterror.New(walleterror.GrantTypeMismatch, "offer uses the authorization code grant, a pre-authorized code cannot be used")
	}
	if redirectEndpoint == "" {
		return nil, walleterror.New(walleterror.MalformedInput, "redirect endpoint is required for the authorization code grant")
	}
	if s.cfg.ClientID == "" {
		return nil, walleterror.New(walleterror.MalformedInput, "client id is required for the authorization code grant")
	}
	issuerState := s.offer.authorization.IssuerState
	if o.issuerState != "" {
		if issuerState != "" && issuerState != o.issuerState {
			return nil, walleterror.New(walleterror.MalformedInput, "issuer state conflicts with the one in the offer")
		}
		issuerState = o.issuerState
	}

	ctx, span := s.tracer.Start(ctx, "Session.Authorize")
	defer span.End()

	md, err := s.IssuerMetadata(ctx)
	if err != nil {
		return nil, err
	}
	oidcConfig, err := s.openIDConfiguration(ctx, md)
	if err != nil {
		return nil, err
	}
	if oidcConfig.AuthorizationEndpoint == "" {
		return nil, walleterror.Collaborator("Issuer.OpenIDConfiguration", md.authorizationServer(), errors.New("no authorization_endpoint"))
	}
	tokenEndpoint, err := s.tokenEndpoint(ctx, md)
	if err != nil {
		return nil, err
	}

	detail := authorizationDetail{
		Type:                 openIDCredentialType,
		Format:               s.format,
		Types:                s.offered.Types,
		CredentialDefinition: s.offered.CredentialDefinition,
	}
	if md.authorizationServer() != s.offer.CredentialIssuer {
		detail.Locations = []string{s.offer.CredentialIssuer}
	}
	details, err := json.Marshal([]authorizationDetail{detail})
	if err != nil {
		return nil, walleterror.Wrap(walleterror.MalformedInput, err, "encoding authorization details")
	}

	conf := &oauth2.Config{
		ClientID:    s.cfg.ClientID,
		RedirectURL: redirectEndpoint,
		Scopes:      o.scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   oidcConfig.AuthorizationEndpoint,
			TokenURL:  tokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	codeVerifier := oauth2.GenerateVerifier()
	authState := uuid.NewString()
	authOpts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(codeVerifier),
		oauth2.SetAuthURLParam("authorization_details", string(details)),
	}
	if issuerState != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("issuer_state", issuerState))
	}
	authURL := conf.AuthCodeURL(authState, authOpts...)

	next := &authorizedState{
		grant:       AuthorizationCodeGrantType,
		oauth:       conf,
		verifier:    codeVerifier,
		authState:   authState,
		authURL:     authURL,
		issuerState: issuerState,
	}
	if err = s.transition(next); err != nil {
		return nil, err
	}
	return &AuthorizeResult{AuthorizationURL: authURL}, nil
}

// ParseRedirect extracts the authorization code from the URI the authorization server redirected to and records
// it. The state parameter must be the one sent in the authorization URL. An error redirect ends the session.
func (s *Session) ParseRedirect(redirectURI string) (string, error) {
	if err := s.requireState(StateAuthorized, "ParseRedirect"); err != nil {
		return "", err
	}
	auth := s.state.(*authorizedState)
	if auth.grant != AuthorizationCodeGrantType {
		return "", walleterror.New(walleterror.GrantTypeMismatch, "pre-authorized sessions have no redirect")
	}

	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", walleterror.Wrap(walleterror.MalformedInput, err, "parsing redirect uri")
	}
	query := u.Query()
	if code := query.Get("error"); code != "" {
		return "", s.fail(walleterror.New(walleterror.IssuanceRejected, "authorization was denied").
			WithServerError(code, query.Get("error_description")))
	}
	if query.Get("state") != auth.authState {
		return "", walleterror.New(walleterror.MalformedInput, "state in redirect uri does not match the authorization request")
	}
	code := query.Get("code")
	if code == "" {
		return "", walleterror.New(walleterror.MalformedInput, "redirect uri has no authorization code")
	}
	s.authorizationCode = code
	return code, nil
}

// RequestCredential obtains an access token, proves possession of keyID and returns the issued credential.
// For a pre-authorized session authCode is empty or the recorded code; for an authorization code session it is
// the code from the redirect, or empty if ParseRedirect recorded it. Rejections by the issuer end the session;
// transport and capability failures leave it Authorized so the call can be retried. A capability failure while
// checking the delivered credential leaves it CredentialRequested, to be finished with VerifyReceived.
func (s *Session) RequestCredential(ctx context.Context, authCode, keyID string, opts ...RequestOption) ([]byte, error) {
	if err := s.requireState(StateAuthorized, "RequestCredential"); err != nil {
		return nil, err
	}
	auth := s.state.(*authorizedState)
	var o requestOptions
	for _, opt := range opts {
		opt(&o)
	}

	switch auth.grant {
	case PreAuthorizedCodeGrantType:
		if authCode != "" && authCode != auth.code {
			return nil, walleterror.New(walleterror.MalformedInput, "authorization code does not match the recorded pre-authorized code")
		}
	case AuthorizationCodeGrantType:
		if authCode == "" {
			authCode = s.authorizationCode
		}
		if authCode == "" {
			return nil, walleterror.New(walleterror.MalformedInput, "authorization code is required")
		}
	}
	if keyID == "" || !strings.Contains(keyID, "#") {
		return nil, walleterror.Newf(walleterror.MalformedInput, "key id %q is not a DID URL", keyID)
	}

	ctx, span := s.tracer.Start(ctx, "Session.RequestCredential", trace.WithAttributes(attribute.String("key.id", keyID)))
	defer span.End()

	ka, err := s.keyAccess(ctx, keyID)
	if err != nil {
		return nil, err
	}
	md, err := s.IssuerMetadata(ctx)
	if err != nil {
		return nil, err
	}

	var token *tokenResponse
	if auth.grant == PreAuthorizedCodeGrantType {
		token, err = s.preAuthorizedToken(ctx, md, auth, ka, o)
	} else {
		token, err = s.exchangeCode(ctx, auth, authCode, ka, o)
	}
	if err != nil {
		return nil, s.exchangeFailed(span, err)
	}

	proof, err := s.proofJWT(ctx, ka, auth, token.CNonce)
	if err != nil {
		return nil, err
	}
	req := credentialRequest{
		Format:               s.format,
		Types:                s.offered.Types,
		CredentialDefinition: s.offered.CredentialDefinition,
		Proof:                &proofParameter{ProofType: "jwt", JWT: proof},
	}
	var resp credentialResponse
	if err = s.client.postJSON(ctx, "Issuer.Credential", md.CredentialEndpoint, token.AccessToken, req, &resp); err != nil {
		return nil, s.exchangeFailed(span, err)
	}
	raw, err := resp.bytes()
	if err != nil {
		return nil, s.fail(walleterror.Wrap(walleterror.IssuanceRejected, err, "reading credential response"))
	}
	if resp.NotificationID != "" && md.notificationEndpoint() != "" {
		s.notification = &notification{id: resp.NotificationID, endpoint: md.notificationEndpoint(), accessToken: token.AccessToken}
	}
	if err = s.transition(&credentialRequestedState{from: auth, credential: raw}); err != nil {
		return nil, err
	}
	return s.acceptReceived(ctx, span)
}

// VerifyReceived checks the credential the issuer already delivered again and completes the session. It is used
// after RequestCredential failed with a CollaboratorError while checking the credential.
func (s *Session) VerifyReceived(ctx context.Context) ([]byte, error) {
	if err := s.requireState(StateCredentialRequested, "VerifyReceived"); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "Session.VerifyReceived")
	defer span.End()
	return s.acceptReceived(ctx, span)
}

// acceptReceived verifies the received credential. A capability failure keeps the session in
// CredentialRequested; any other failed check rejects the credential.
func (s *Session) acceptReceived(ctx context.Context, span trace.Span) ([]byte, error) {
	raw := s.state.(*credentialRequestedState).credential
	if !s.cfg.DisableVCProofChecks {
		if _, err := s.verifier.Verify(ctx, verifier.VerifyOpts{RawCredential: raw}); err != nil {
			span.SetStatus(codes.Error, err.Error())
			if walleterror.IsKind(err, walleterror.CollaboratorError) {
				s.logger().WithError(err).Warn("issued credential could not be checked")
				return nil, err
			}
			return nil, s.fail(walleterror.Wrap(walleterror.IssuanceRejected, err, "issued credential did not verify"))
		}
	}
	if err := s.transition(completedState{credential: raw}); err != nil {
		return nil, err
	}
	s.logger().Info("credential issued")
	return raw, nil
}

// exchangeFailed ends the session when the issuer rejected the exchange and passes every other error through.
func (s *Session) exchangeFailed(span trace.Span, err error) error {
	span.SetStatus(codes.Error, err.Error())
	var werr *walleterror.Error
	if errors.As(err, &werr) && werr.Kind == walleterror.IssuanceRejected {
		return s.fail(werr)
	}
	return err
}

func (s *Session) keyAccess(ctx context.Context, keyID string) (*keyaccess.CryptoKeyAccess, error) {
	handle, err := s.cfg.KeyHandleReader.Get(ctx, keyID)
	switch {
	case errors.Is(err, api.ErrNotFound):
		return nil, walleterror.NotFoundIn("KeyHandleReader.Get", keyID, err)
	case err != nil:
		return nil, walleterror.Collaborator("KeyHandleReader.Get", keyID, err)
	case handle == nil:
		return nil, walleterror.NotFoundIn("KeyHandleReader.Get", keyID, nil)
	}
	ka, err := keyaccess.NewCryptoKeyAccess(s.cfg.Crypto, handle)
	if err != nil {
		return nil, walleterror.Collaborator("KeyHandleReader.Get", keyID, err)
	}
	return ka, nil
}

func (s *Session) preAuthorizedToken(ctx context.Context, md *IssuerMetadata, auth *authorizedState, ka *keyaccess.CryptoKeyAccess, o requestOptions) (*tokenResponse, error) {
	endpoint, err := s.tokenEndpoint(ctx, md)
	if err != nil {
		return nil, err
	}
	form := url.Values{
		"grant_type":          {PreAuthorizedCodeGrantType},
		"pre-authorized_code": {auth.code},
	}
	if auth.pin != "" {
		form.Set("tx_code", auth.pin)
	}
	if s.cfg.ClientID != "" {
		form.Set("client_id", s.cfg.ClientID)
	}
	if o.attestationCredentialID != "" {
		assertion, err := s.attestation(ctx, ka, o.attestationCredentialID, auth.code)
		if err != nil {
			return nil, err
		}
		form.Set("client_assertion_type", attestJWTClientAuthType)
		form.Set("client_assertion", assertion)
	}

	var token tokenResponse
	if err = s.client.postForm(ctx, "Issuer.Token", endpoint, form, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *Session) exchangeCode(ctx context.Context, auth *authorizedState, code string, ka *keyaccess.CryptoKeyAccess, o requestOptions) (*tokenResponse, error) {
	opts := []oauth2.AuthCodeOption{oauth2.VerifierOption(auth.verifier)}
	if o.attestationCredentialID != "" {
		assertion, err := s.attestation(ctx, ka, o.attestationCredentialID, "")
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			oauth2.SetAuthURLParam("client_assertion_type", attestJWTClientAuthType),
			oauth2.SetAuthURLParam("client_assertion", assertion))
	}

	ctx, span := s.tracer.Start(ctx, "Issuer.Token")
	defer span.End()
	tok, err := auth.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, s.cfg.HTTPClient), code, opts...)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && util.Is4xxResponse(retrieveErr.Response.StatusCode) {
			return nil, walleterror.Wrap(walleterror.IssuanceRejected, err, "token request rejected").
				WithServerError(retrieveErr.ErrorCode, retrieveErr.ErrorDescription)
		}
		return nil, walleterror.Collaborator("Issuer.Token", auth.oauth.Endpoint.TokenURL, err)
	}
	s.authorizationCode = code
	nonce, _ := tok.Extra("c_nonce").(string)
	return &tokenResponse{AccessToken: tok.AccessToken, TokenType: tok.TokenType, CNonce: nonce}, nil
}

// attestation wraps the stored wallet attestation credential in a presentation signed with the binding key.
func (s *Session) attestation(ctx context.Context, ka *keyaccess.CryptoKeyAccess, id, nonce string) (string, error) {
	raw, err := s.cfg.CredentialReader.Get(ctx, id)
	switch {
	case errors.Is(err, api.ErrNotFound):
		return "", walleterror.NotFoundIn("CredentialReader.Get", id, err)
	case err != nil:
		return "", walleterror.Collaborator("CredentialReader.Get", id, err)
	case len(raw) == 0:
		return "", walleterror.NotFoundIn("CredentialReader.Get", id, nil)
	}
	vp, err := credential.SignJWTPresentation(ctx, ka, [][]byte{raw}, credential.PresentationOptions{
		Holder:   util.DIDFromKeyID(ka.KeyID()),
		Audience: s.offer.CredentialIssuer,
		Nonce:    nonce,
	})
	if err != nil {
		return "", walleterror.Collaborator("Crypto.Sign", ka.KeyID(), err)
	}
	return string(vp), nil
}

func (s *Session) proofJWT(ctx context.Context, ka *keyaccess.CryptoKeyAccess, auth *authorizedState, nonce string) (string, error) {
	claims := map[string]any{
		"aud": s.offer.CredentialIssuer,
		"iat": s.cfg.Clock.Now().Unix(),
	}
	if nonce != "" {
		claims["nonce"] = nonce
	}
	if auth.grant == AuthorizationCodeGrantType {
		claims["iss"] = s.cfg.ClientID
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", walleterror.Wrap(walleterror.MalformedInput, err, "encoding proof claims")
	}
	token, err := ka.SignJWS(ctx, ProofJWTType, nil, payload)
	if err != nil {
		return "", walleterror.Collaborator("Crypto.Sign", ka.KeyID(), err)
	}
	return token.String(), nil
}

// IssuerMetadata fetches the issuer's metadata once per session.
func (s *Session) IssuerMetadata(ctx context.Context) (*IssuerMetadata, error) {
	if s.metadata != nil {
		return s.metadata, nil
	}
	target := s.offer.CredentialIssuer + issuerMetadataPath
	var md IssuerMetadata
	if err := s.client.getJSON(ctx, "Issuer.Metadata", target, &md); err != nil {
		return nil, asCollaborator("Issuer.Metadata", target, err)
	}
	if strings.TrimSuffix(md.CredentialIssuer, "/") != s.offer.CredentialIssuer {
		return nil, walleterror.Collaborator("Issuer.Metadata", target,
			errors.Errorf("metadata is for issuer %s, offer is from %s", md.CredentialIssuer, s.offer.CredentialIssuer))
	}
	s.metadata = &md
	return s.metadata, nil
}

func (s *Session) openIDConfiguration(ctx context.Context, md *IssuerMetadata) (*OpenIDConfiguration, error) {
	if s.openIDConfig != nil {
		return s.openIDConfig, nil
	}
	target := md.authorizationServer() + openIDConfigPath
	var oidcConfig OpenIDConfiguration
	if err := s.client.getJSON(ctx, "Issuer.OpenIDConfiguration", target, &oidcConfig); err != nil {
		return nil, asCollaborator("Issuer.OpenIDConfiguration", target, err)
	}
	s.openIDConfig = &oidcConfig
	return s.openIDConfig, nil
}

func (s *Session) tokenEndpoint(ctx context.Context, md *IssuerMetadata) (string, error) {
	if md.TokenEndpoint != "" {
		return md.TokenEndpoint, nil
	}
	oidcConfig, err := s.openIDConfiguration(ctx, md)
	if err != nil {
		return "", err
	}
	if oidcConfig.TokenEndpoint == "" {
		return "", walleterror.Collaborator("Issuer.OpenIDConfiguration", md.authorizationServer(), errors.New("no token_endpoint"))
	}
	return oidcConfig.TokenEndpoint, nil
}

// asCollaborator reports discovery failures as collaborator errors; a missing metadata document does not
// reject the issuance itself.
func asCollaborator(call, target string, err error) error {
	if walleterror.IsKind(err, walleterror.CollaboratorError) {
		return err
	}
	return walleterror.Collaborator(call, target, err)
}
