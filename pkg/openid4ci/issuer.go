package openid4ci

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

const (
	issuerMetadataPath = "/.well-known/openid-credential-issuer"
	openIDConfigPath   = "/.well-known/openid-configuration"
)

// IssuerMetadata is the credential issuer metadata published at /.well-known/openid-credential-issuer.
type IssuerMetadata struct {
	CredentialIssuer        string          `json:"credential_issuer" validate:"required"`
	AuthorizationServer     string          `json:"authorization_server,omitempty"`
	AuthorizationServers    []string        `json:"authorization_servers,omitempty"`
	CredentialEndpoint      string          `json:"credential_endpoint" validate:"required"`
	TokenEndpoint           string          `json:"token_endpoint,omitempty"`
	BatchCredentialEndpoint string          `json:"batch_credential_endpoint,omitempty"`
	NotificationEndpoint    string          `json:"notification_endpoint,omitempty"`
	CredentialAckEndpoint   string          `json:"credential_ack_endpoint,omitempty"`
	CredentialsSupported    json.RawMessage `json:"credentials_supported,omitempty"`
	Display                 []IssuerDisplay `json:"display,omitempty"`
}

type IssuerDisplay struct {
	Name   string `json:"name,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// authorizationServer returns the base URL of the OAuth authorization server, the issuer itself by default.
func (m *IssuerMetadata) authorizationServer() string {
	switch {
	case m.AuthorizationServer != "":
		return strings.TrimSuffix(m.AuthorizationServer, "/")
	case len(m.AuthorizationServers) > 0:
		return strings.TrimSuffix(m.AuthorizationServers[0], "/")
	}
	return strings.TrimSuffix(m.CredentialIssuer, "/")
}

// notificationEndpoint returns where acknowledgments are sent, empty if the issuer takes none.
func (m *IssuerMetadata) notificationEndpoint() string {
	if m.NotificationEndpoint != "" {
		return m.NotificationEndpoint
	}
	return m.CredentialAckEndpoint
}

// OpenIDConfiguration is the subset of OAuth authorization server metadata the wallet uses.
type OpenIDConfiguration struct {
	Issuer                 string   `json:"issuer,omitempty"`
	AuthorizationEndpoint  string   `json:"authorization_endpoint,omitempty"`
	TokenEndpoint          string   `json:"token_endpoint,omitempty"`
	RegistrationEndpoint   string   `json:"registration_endpoint,omitempty"`
	ResponseTypesSupported []string `json:"response_types_supported,omitempty"`
}

type tokenResponse struct {
	AccessToken     string `json:"access_token" validate:"required"`
	TokenType       string `json:"token_type,omitempty"`
	ExpiresIn       int    `json:"expires_in,omitempty"`
	CNonce          string `json:"c_nonce,omitempty"`
	CNonceExpiresIn int    `json:"c_nonce_expires_in,omitempty"`
}

type credentialRequest struct {
	Format               string                `json:"format"`
	Types                []string              `json:"types,omitempty"`
	CredentialDefinition *CredentialDefinition `json:"credential_definition,omitempty"`
	Proof                *proofParameter       `json:"proof,omitempty"`
}

type proofParameter struct {
	ProofType string `json:"proof_type"`
	JWT       string `json:"jwt"`
}

type credentialResponse struct {
	Format         string          `json:"format,omitempty"`
	Credential     json.RawMessage `json:"credential"`
	CNonce         string          `json:"c_nonce,omitempty"`
	NotificationID string          `json:"notification_id,omitempty"`
}

// bytes returns the credential as delivered: a JWT string is unquoted, a JSON credential is kept as is.
func (r credentialResponse) bytes() ([]byte, error) {
	raw := bytes.TrimSpace(r.Credential)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, errors.New("credential response has no credential")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.Wrap(err, "decoding credential string")
		}
		return []byte(s), nil
	}
	return raw, nil
}

// errorResponse is an OAuth 2.0 / OpenID4VCI error body.
type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// issuerClient performs the HTTP exchanges with an issuer. 4xx answers become IssuanceRejected errors carrying
// the issuer's error code; everything else that fails is a CollaboratorError.
type issuerClient struct {
	http   *http.Client
	tracer trace.Tracer
}

func (c issuerClient) getJSON(ctx context.Context, call, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return walleterror.Wrapf(walleterror.MalformedInput, err, "building request for %s", target)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(ctx, call, req, out)
}

func (c issuerClient) postForm(ctx context.Context, call, target string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return walleterror.Wrapf(walleterror.MalformedInput, err, "building request for %s", target)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(ctx, call, req, out)
}

func (c issuerClient) postJSON(ctx context.Context, call, target, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return walleterror.Wrap(walleterror.MalformedInput, err, "encoding request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return walleterror.Wrapf(walleterror.MalformedInput, err, "building request for %s", target)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.do(ctx, call, req, out)
}

func (c issuerClient) do(ctx context.Context, call string, req *http.Request, out any) error {
	ctx, span := c.tracer.Start(ctx, call, trace.WithAttributes(attribute.String("http.url", req.URL.String())))
	defer span.End()

	target := req.URL.String()
	logrus.WithContext(ctx).Debugf("%s: %s %s", call, req.Method, util.SanitizeLog(target))
	resp, err := c.http.Do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return walleterror.Collaborator(call, target, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return walleterror.Collaborator(call, target, err)
	}

	switch {
	case util.Is2xxResponse(resp.StatusCode):
	case util.Is4xxResponse(resp.StatusCode):
		span.SetStatus(codes.Error, resp.Status)
		return rejection(call, resp.StatusCode, body)
	default:
		span.SetStatus(codes.Error, resp.Status)
		return walleterror.Collaborator(call, target, errors.Errorf("status %d: %s", resp.StatusCode, body))
	}

	if out == nil {
		return nil
	}
	if err = json.Unmarshal(body, out); err != nil {
		return walleterror.Wrapf(walleterror.IssuanceRejected, err, "%s returned an unreadable response", call)
	}
	if util.IsStructPtr(out) {
		if err = util.IsValidStruct(out); err != nil {
			return walleterror.Wrapf(walleterror.IssuanceRejected, err, "%s returned an invalid response", call)
		}
	}
	return nil
}

func rejection(call string, status int, body []byte) *walleterror.Error {
	var errResp errorResponse
	_ = json.Unmarshal(body, &errResp)
	werr := walleterror.Newf(walleterror.IssuanceRejected, "%s answered with status %d", call, status)
	if errResp.Error != "" {
		werr = werr.WithServerError(errResp.Error, errResp.ErrorDescription)
	}
	return werr
}
