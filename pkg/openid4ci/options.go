package openid4ci

type authorizeOptions struct {
	pin         string
	scopes      []string
	issuerState string
}

// AuthorizeOption tunes Authorize.
type AuthorizeOption func(*authorizeOptions)

// WithPIN supplies the transaction code the issuer sent out of band for a pre-authorized offer.
func WithPIN(pin string) AuthorizeOption {
	return func(o *authorizeOptions) {
		o.pin = pin
	}
}

// WithScopes sets the OAuth2 scopes requested in the authorization code flow.
func WithScopes(scopes ...string) AuthorizeOption {
	return func(o *authorizeOptions) {
		o.scopes = scopes
	}
}

// WithIssuerState sets the issuer_state sent in the authorization request when the offer carries none. It must
// match the offer's value if the offer has one.
func WithIssuerState(state string) AuthorizeOption {
	return func(o *authorizeOptions) {
		o.issuerState = state
	}
}

type requestOptions struct {
	attestationCredentialID string
}

// RequestOption tunes RequestCredential.
type RequestOption func(*requestOptions)

// WithAttestationCredentialID authenticates the wallet at the token endpoint with the wallet attestation
// credential stored under id.
func WithAttestationCredentialID(id string) RequestOption {
	return func(o *requestOptions) {
		o.attestationCredentialID = id
	}
}
