// Package issuer runs an in-process OpenID4VCI credential issuer for tests. It supports the pre-authorized code
// and the authorization code (with PKCE) grants, checks proofs of possession and issues jwt_vc_json or ldp_vc
// credentials signed with its own did:key. It also takes notifications and can serve a revocation status list.
package issuer

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	credsdk "github.com/TBD54566975/ssi-sdk/credential"
	statussdk "github.com/TBD54566975/ssi-sdk/credential/status"
	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/tbd54566975/ssi-wallet/internal/keyaccess"
	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/api"
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/did"
	"github.com/tbd54566975/ssi-wallet/pkg/localkms"
	"github.com/tbd54566975/ssi-wallet/pkg/testutil"
)

const (
	ProofJWTType = "openid4vci-proof+jwt"

	InvalidOrMissingProof = "invalid_or_missing_proof"
	InvalidGrant          = "invalid_grant"
	InvalidRequest        = "invalid_request"
	InvalidToken          = "invalid_token"
	UnsupportedFormat     = "unsupported_credential_format"

	attestJWTClientAuthType = "attest_jwt_client_auth"
)

// Endpoint names the issuer endpoints failures can be injected into.
type Endpoint string

const (
	MetadataEndpoint     Endpoint = "/.well-known/openid-credential-issuer"
	OpenIDEndpoint       Endpoint = "/.well-known/openid-configuration"
	AuthorizeEndpoint    Endpoint = "/authorize"
	TokenEndpoint        Endpoint = "/token"
	CredentialEndpoint   Endpoint = "/credential"
	NotificationEndpoint Endpoint = "/notification"
	StatusListEndpoint   Endpoint = "/status"
)

// CredentialError is the error body of the token and credential endpoints.
type CredentialError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	CNonce           string `json:"c_nonce,omitempty"`
	CNonceExpiresIn  int    `json:"c_nonce_expires_in,omitempty"`
}

type failure struct {
	status int
	body   CredentialError
}

type preAuthorization struct {
	txCode string
}

type authorization struct {
	clientID    string
	redirectURI string
	challenge   string
	issuerState string
}

type accessToken struct {
	nonce    string
	clientID string
}

// Notification is an acknowledgment received by the notification endpoint.
type Notification struct {
	ID    string `json:"notification_id"`
	Event string `json:"event"`
}

// Issuer is a mock credential issuer served over httptest.
type Issuer struct {
	server *httptest.Server
	kms    *localkms.LocalKMS
	key    testutil.Party
	clock  clock.Clock

	mu               sync.Mutex
	preAuthorized    map[string]preAuthorization
	authorizations   map[string]authorization
	tokens           map[string]accessToken
	failures         map[Endpoint]failure
	requests         map[Endpoint]int
	clientAssertions []string
	proofs           []string
	notificationIDs  map[string]string
	notifications    []Notification
	revoked          []credsdk.VerifiableCredential
	statusIndex      int

	requireAttestation bool
	issueUnverifiable  bool
	omitTokenEndpoint  bool
	omitNotifications  bool
	statusList         bool
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock sets the clock used for issuance dates.
func WithClock(c clock.Clock) Option {
	return func(i *Issuer) {
		i.clock = c
	}
}

// WithAttestationRequired makes the token endpoint require a wallet attestation client assertion.
func WithAttestationRequired() Option {
	return func(i *Issuer) {
		i.requireAttestation = true
	}
}

// WithTokenEndpointInOpenIDConfigOnly leaves token_endpoint out of the issuer metadata.
func WithTokenEndpointInOpenIDConfigOnly() Option {
	return func(i *Issuer) {
		i.omitTokenEndpoint = true
	}
}

// WithoutNotifications leaves notification_endpoint out of the issuer metadata.
func WithoutNotifications() Option {
	return func(i *Issuer) {
		i.omitNotifications = true
	}
}

// WithStatusList gives every issued credential a StatusList2021 revocation entry served by the issuer.
func WithStatusList() Option {
	return func(i *Issuer) {
		i.statusList = true
	}
}

// New starts an issuer that is closed when the test ends.
func New(t *testing.T, opts ...Option) *Issuer {
	gin.SetMode(gin.TestMode)
	i := &Issuer{
		kms:             testutil.NewKMS(t),
		clock:           clock.New(),
		preAuthorized:   make(map[string]preAuthorization),
		authorizations:  make(map[string]authorization),
		tokens:          make(map[string]accessToken),
		failures:        make(map[Endpoint]failure),
		requests:        make(map[Endpoint]int),
		notificationIDs: make(map[string]string),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.key = testutil.NewParty(t, i.kms, localkms.Ed25519)

	engine := gin.New()
	engine.Use(gin.Recovery(), otelgin.Middleware("mock-issuer"), i.count, i.inject)
	engine.GET(string(MetadataEndpoint), i.metadata)
	engine.GET(string(OpenIDEndpoint), i.openIDConfiguration)
	engine.GET(string(AuthorizeEndpoint), i.authorize)
	engine.POST(string(TokenEndpoint), i.token)
	engine.POST(string(CredentialEndpoint), i.credential)
	engine.POST(string(NotificationEndpoint), i.notification)
	engine.GET(string(StatusListEndpoint), i.statusListCredential)

	i.server = httptest.NewServer(engine)
	t.Cleanup(i.server.Close)
	return i
}

// URL is the credential issuer identifier.
func (i *Issuer) URL() string {
	return i.server.URL
}

// Client returns an HTTP client for the issuer's server.
func (i *Issuer) Client() *http.Client {
	return i.server.Client()
}

// DID is the DID credentials are issued under.
func (i *Issuer) DID() string {
	return i.key.DID
}

// Fail makes every request to endpoint answer with status and the given OAuth error code until Reset.
func (i *Issuer) Fail(endpoint Endpoint, status int, code, description string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failures[endpoint] = failure{status: status, body: CredentialError{Error: code, ErrorDescription: description}}
}

// Reset clears injected failures.
func (i *Issuer) Reset() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.failures = make(map[Endpoint]failure)
	i.issueUnverifiable = false
}

// IssueUnverifiable makes the issuer sign credentials with a key of a DID other than the credential's issuer.
func (i *Issuer) IssueUnverifiable() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.issueUnverifiable = true
}

// Requests returns how many requests endpoint received.
func (i *Issuer) Requests(endpoint Endpoint) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.requests[endpoint]
}

// ClientAssertions returns the client assertions received by the token endpoint.
func (i *Issuer) ClientAssertions() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.clientAssertions...)
}

// Proofs returns the proof JWTs received by the credential endpoint.
func (i *Issuer) Proofs() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.proofs...)
}

// Notifications returns the acknowledgments received by the notification endpoint.
func (i *Issuer) Notifications() []Notification {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]Notification(nil), i.notifications...)
}

// Revoke sets the status list bit of an issued credential.
func (i *Issuer) Revoke(t *testing.T, raw []byte) {
	parsed, err := credential.ParseCredential(raw)
	require.NoError(t, err)
	data, err := json.Marshal(parsed.Document())
	require.NoError(t, err)
	var vc credsdk.VerifiableCredential
	require.NoError(t, json.Unmarshal(data, &vc))
	i.mu.Lock()
	defer i.mu.Unlock()
	i.revoked = append(i.revoked, vc)
}

// PreAuthorizedOffer registers a pre-authorized code and returns an offer for one credential of format. A
// non-empty txCode must be presented at the token endpoint.
func (i *Issuer) PreAuthorizedOffer(format string, types []string, txCode string) []byte {
	code := uuid.NewString()
	i.mu.Lock()
	i.preAuthorized[code] = preAuthorization{txCode: txCode}
	i.mu.Unlock()

	grant := map[string]any{"pre-authorized_code": code}
	if txCode != "" {
		grant["tx_code"] = map[string]any{"input_mode": "numeric", "length": len(txCode)}
	}
	return i.offer(format, types, map[string]any{
		"urn:ietf:params:oauth:grant-type:pre-authorized_code": grant,
	})
}

// AuthorizationCodeOffer returns an offer using the authorization code grant.
func (i *Issuer) AuthorizationCodeOffer(format string, types []string, issuerState string) []byte {
	grant := map[string]any{}
	if issuerState != "" {
		grant["issuer_state"] = issuerState
	}
	return i.offer(format, types, map[string]any{"authorization_code": grant})
}

func (i *Issuer) offer(format string, types []string, grants map[string]any) []byte {
	offer, _ := json.Marshal(map[string]any{
		"credential_issuer": i.URL(),
		"credentials":       []any{map[string]any{"format": format, "types": types}},
		"grants":            grants,
	})
	return offer
}

func (i *Issuer) count(c *gin.Context) {
	i.mu.Lock()
	i.requests[Endpoint(c.FullPath())]++
	i.mu.Unlock()
	c.Next()
}

func (i *Issuer) inject(c *gin.Context) {
	i.mu.Lock()
	f, ok := i.failures[Endpoint(c.FullPath())]
	i.mu.Unlock()
	if ok {
		c.AbortWithStatusJSON(f.status, f.body)
		return
	}
	c.Next()
}

func (i *Issuer) metadata(c *gin.Context) {
	md := gin.H{
		"credential_issuer":   i.URL(),
		"credential_endpoint": i.URL() + string(CredentialEndpoint),
		"credentials_supported": []gin.H{
			{"format": string(credential.JWTVCJSON), "cryptographic_binding_methods_supported": []string{"did:key"}},
			{"format": string(credential.LDPVC), "cryptographic_binding_methods_supported": []string{"did:key"}},
		},
		"display": []gin.H{{"name": "Mock Issuer", "locale": "en-US"}},
	}
	if !i.omitTokenEndpoint {
		md["token_endpoint"] = i.URL() + string(TokenEndpoint)
	}
	if !i.omitNotifications {
		md["notification_endpoint"] = i.URL() + string(NotificationEndpoint)
	}
	c.JSON(http.StatusOK, md)
}

func (i *Issuer) openIDConfiguration(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"issuer":                   i.URL(),
		"authorization_endpoint":   i.URL() + string(AuthorizeEndpoint),
		"token_endpoint":           i.URL() + string(TokenEndpoint),
		"response_types_supported": []string{"code"},
	})
}

// authorize grants every well formed request and redirects with a fresh code.
func (i *Issuer) authorize(c *gin.Context) {
	query := c.Request.URL.Query()
	redirectURI := query.Get("redirect_uri")
	if redirectURI == "" || query.Get("client_id") == "" || query.Get("response_type") != "code" {
		c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidRequest})
		return
	}
	if query.Get("code_challenge_method") != "S256" || query.Get("code_challenge") == "" {
		c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidRequest, ErrorDescription: "pkce with S256 is required"})
		return
	}
	if details := query.Get("authorization_details"); details != "" {
		var parsed []map[string]any
		if err := json.Unmarshal([]byte(details), &parsed); err != nil || len(parsed) == 0 {
			c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidRequest, ErrorDescription: "invalid authorization_details"})
			return
		}
	}

	code := uuid.NewString()
	i.mu.Lock()
	i.authorizations[code] = authorization{
		clientID:    query.Get("client_id"),
		redirectURI: redirectURI,
		challenge:   query.Get("code_challenge"),
		issuerState: query.Get("issuer_state"),
	}
	i.mu.Unlock()

	target, err := url.Parse(redirectURI)
	if err != nil {
		c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidRequest, ErrorDescription: err.Error()})
		return
	}
	params := target.Query()
	params.Set("code", code)
	params.Set("state", query.Get("state"))
	target.RawQuery = params.Encode()
	c.Redirect(http.StatusFound, target.String())
}

func (i *Issuer) token(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidRequest, ErrorDescription: err.Error()})
		return
	}
	form := c.Request.PostForm

	var clientID string
	switch form.Get("grant_type") {
	case "urn:ietf:params:oauth:grant-type:pre-authorized_code":
		i.mu.Lock()
		grant, ok := i.preAuthorized[form.Get("pre-authorized_code")]
		i.mu.Unlock()
		if !ok {
			c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidGrant, ErrorDescription: "unknown pre-authorized code"})
			return
		}
		if grant.txCode != "" && form.Get("tx_code") != grant.txCode {
			c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidGrant, ErrorDescription: "transaction code does not match"})
			return
		}
		clientID = form.Get("client_id")
	case "authorization_code":
		i.mu.Lock()
		auth, ok := i.authorizations[form.Get("code")]
		i.mu.Unlock()
		if !ok {
			c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidGrant, ErrorDescription: "unknown authorization code"})
			return
		}
		sum := sha256.Sum256([]byte(form.Get("code_verifier")))
		if base64.RawURLEncoding.EncodeToString(sum[:]) != auth.challenge {
			c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidGrant, ErrorDescription: "code verifier does not match"})
			return
		}
		if form.Get("redirect_uri") != auth.redirectURI || form.Get("client_id") != auth.clientID {
			c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidGrant, ErrorDescription: "client does not match the authorization"})
			return
		}
		clientID = auth.clientID
	default:
		c.JSON(http.StatusBadRequest, CredentialError{Error: "unsupported_grant_type"})
		return
	}

	if assertion := form.Get("client_assertion"); assertion != "" || i.requireAttestation {
		if form.Get("client_assertion_type") != attestJWTClientAuthType {
			c.JSON(http.StatusUnauthorized, CredentialError{Error: "invalid_client", ErrorDescription: "wallet attestation is required"})
			return
		}
		if _, err := i.verifyJWT(c, assertion); err != nil {
			c.JSON(http.StatusUnauthorized, CredentialError{Error: "invalid_client", ErrorDescription: err.Error()})
			return
		}
		i.mu.Lock()
		i.clientAssertions = append(i.clientAssertions, assertion)
		i.mu.Unlock()
	}

	token, nonce := uuid.NewString(), uuid.NewString()
	i.mu.Lock()
	i.tokens[token] = accessToken{nonce: nonce, clientID: clientID}
	i.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"access_token":       token,
		"token_type":         "bearer",
		"expires_in":         300,
		"c_nonce":            nonce,
		"c_nonce_expires_in": 300,
	})
}

type credentialRequest struct {
	Format               string   `json:"format"`
	Types                []string `json:"types"`
	CredentialDefinition *struct {
		Type []string `json:"type"`
	} `json:"credential_definition"`
	Proof *struct {
		ProofType string `json:"proof_type"`
		JWT       string `json:"jwt"`
	} `json:"proof"`
}

func (i *Issuer) credential(c *gin.Context) {
	bearer := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	i.mu.Lock()
	token, ok := i.tokens[bearer]
	i.mu.Unlock()
	if !ok {
		c.JSON(http.StatusUnauthorized, CredentialError{Error: InvalidToken})
		return
	}

	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidRequest, ErrorDescription: err.Error()})
		return
	}
	if req.Format != string(credential.JWTVCJSON) && req.Format != string(credential.LDPVC) {
		c.JSON(http.StatusBadRequest, CredentialError{Error: UnsupportedFormat})
		return
	}
	if req.Proof == nil || req.Proof.ProofType != "jwt" {
		c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidOrMissingProof, ErrorDescription: "jwt proof is required"})
		return
	}
	i.mu.Lock()
	i.proofs = append(i.proofs, req.Proof.JWT)
	i.mu.Unlock()

	holderKID, err := i.processProof(c, req.Proof.JWT, token)
	if err != nil {
		c.JSON(http.StatusBadRequest, CredentialError{
			Error:            InvalidOrMissingProof,
			ErrorDescription: err.Error(),
			CNonce:           token.nonce,
			CNonceExpiresIn:  300,
		})
		return
	}

	types := req.Types
	if len(types) == 0 && req.CredentialDefinition != nil {
		types = req.CredentialDefinition.Type
	}
	raw, err := i.issue(c, req.Format, types, util.DIDFromKeyID(holderKID))
	if err != nil {
		logrus.WithError(err).Error("mock issuer could not sign credential")
		c.JSON(http.StatusInternalServerError, CredentialError{Error: "server_error"})
		return
	}

	var issued any = string(raw)
	if req.Format == string(credential.LDPVC) {
		issued = json.RawMessage(raw)
	}
	notificationID := uuid.NewString()
	i.mu.Lock()
	i.notificationIDs[notificationID] = bearer
	i.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"format":          req.Format,
		"credential":      issued,
		"c_nonce":         uuid.NewString(),
		"notification_id": notificationID,
	})
}

func (i *Issuer) notification(c *gin.Context) {
	bearer := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	var n Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, CredentialError{Error: InvalidRequest, ErrorDescription: err.Error()})
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	token, ok := i.notificationIDs[n.ID]
	switch {
	case !ok:
		c.JSON(http.StatusBadRequest, CredentialError{Error: "invalid_notification_id"})
		return
	case token != bearer:
		c.JSON(http.StatusUnauthorized, CredentialError{Error: InvalidToken})
		return
	}
	switch n.Event {
	case "credential_accepted", "credential_deleted", "credential_failure":
	default:
		c.JSON(http.StatusBadRequest, CredentialError{Error: "invalid_notification_request"})
		return
	}
	delete(i.notificationIDs, n.ID)
	i.notifications = append(i.notifications, n)
	c.Status(http.StatusNoContent)
}

// statusListCredential serves the revocation list as a VC-JWT.
func (i *Issuer) statusListCredential(c *gin.Context) {
	i.mu.Lock()
	revoked := append([]credsdk.VerifiableCredential(nil), i.revoked...)
	i.mu.Unlock()

	list, err := statussdk.GenerateStatusList2021Credential(i.statusListURL(), i.key.DID, statussdk.StatusRevocation, revoked)
	if err != nil {
		logrus.WithError(err).Error("mock issuer could not build status list")
		c.JSON(http.StatusInternalServerError, CredentialError{Error: "server_error"})
		return
	}
	raw, err := credential.SignJWT(c, i.key.KA, credential.Template{
		ID:        list.ID,
		Issuer:    i.key.DID,
		Types:     []string{"StatusList2021Credential"},
		Subject:   list.CredentialSubject,
		ValidFrom: i.clock.Now().UTC().Add(-time.Minute),
	})
	if err != nil {
		logrus.WithError(err).Error("mock issuer could not sign status list")
		c.JSON(http.StatusInternalServerError, CredentialError{Error: "server_error"})
		return
	}
	c.Data(http.StatusOK, "application/jwt", raw)
}

func (i *Issuer) statusListURL() string {
	return i.URL() + string(StatusListEndpoint)
}

// processProof checks the proof JWT and returns the key it is bound to.
func (i *Issuer) processProof(ctx context.Context, proof string, token accessToken) (string, error) {
	headers, claims, err := util.ParseUnverifiedJWT(proof)
	if err != nil {
		return "", errors.Wrap(err, "parsing proof")
	}
	if headers.Type() != ProofJWTType {
		return "", errors.Errorf("typ must be set to %q", ProofJWTType)
	}
	if nonce, _ := claims.PrivateClaims()["nonce"].(string); nonce != token.nonce {
		return "", errors.New("nonce different from expected")
	}
	if aud := claims.Audience(); len(aud) != 1 || aud[0] != i.URL() {
		return "", errors.Errorf("aud must be %s", i.URL())
	}
	if claims.IssuedAt().IsZero() {
		return "", errors.New("iat is required")
	}
	if token.clientID != "" && claims.Issuer() != "" && claims.Issuer() != token.clientID {
		return "", errors.New("iss does not match the client")
	}
	return i.verifyJWT(ctx, proof)
}

// verifyJWT checks a compact JWS signed with a did:key and returns its kid.
func (i *Issuer) verifyJWT(ctx context.Context, token string) (string, error) {
	parsed, err := keyaccess.ParseCompactJWS(token)
	if err != nil {
		return "", err
	}
	kid := parsed.Headers.KeyID()
	if kid == "" {
		return "", errors.New("kid is required")
	}
	doc, err := did.KeyResolver{}.Resolve(ctx, util.DIDFromKeyID(kid))
	if err != nil {
		return "", errors.Wrap(err, "resolving kid")
	}
	key, err := doc.PublicKeyJWK(kid)
	if err != nil {
		return "", err
	}
	valid, err := localkms.VerifySignature(&api.PublicKey{ID: kid, Algorithm: parsed.Headers.Algorithm(), JWK: key}, parsed.SigningInput, parsed.Signature)
	if err != nil {
		return "", err
	}
	if !valid {
		return "", errors.New("signature does not verify")
	}
	return kid, nil
}

func (i *Issuer) issue(ctx context.Context, format string, types []string, subject string) ([]byte, error) {
	now := i.clock.Now().UTC().Truncate(time.Second)
	validUntil := now.AddDate(1, 0, 0)
	tmpl := credential.Template{
		Issuer:     i.key.DID,
		Types:      types,
		Subject:    map[string]any{"id": subject, "issuedBy": "mock issuer"},
		ValidFrom:  now.Add(-time.Minute),
		ValidUntil: &validUntil,
	}
	if i.statusList {
		i.mu.Lock()
		i.statusIndex++
		index := strconv.Itoa(i.statusIndex)
		i.mu.Unlock()
		tmpl.Status = statussdk.StatusList2021Entry{
			ID:                   i.statusListURL() + "#" + index,
			Type:                 statussdk.StatusList2021EntryType,
			StatusPurpose:        statussdk.StatusRevocation,
			StatusListIndex:      index,
			StatusListCredential: i.statusListURL(),
		}
	}

	ka := i.key.KA
	i.mu.Lock()
	unverifiable := i.issueUnverifiable
	i.mu.Unlock()
	if unverifiable {
		created, err := i.kms.CreateKey(ctx, localkms.Ed25519)
		if err != nil {
			return nil, err
		}
		handle, err := i.kms.Get(ctx, created.ID)
		if err != nil {
			return nil, err
		}
		if ka, err = keyaccess.NewCryptoKeyAccess(i.kms, handle); err != nil {
			return nil, err
		}
	}

	if format == string(credential.LDPVC) {
		return credential.SignLD(ctx, ka, tmpl)
	}
	return credential.SignJWT(ctx, ka, tmpl)
}

// FollowAuthorization requests authURL without following the redirect and returns the redirect location.
func (i *Issuer) FollowAuthorization(t *testing.T, authURL string) string {
	client := &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(authURL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusFound, resp.StatusCode)
	return resp.Header.Get("Location")
}
