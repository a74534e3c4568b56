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

	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

const (
	PreAuthorizedCodeGrantType = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
	AuthorizationCodeGrantType = "authorization_code"

	// OfferScheme is the URI scheme of credential offers handed to the wallet by QR code or deep link.
	OfferScheme = "openid-credential-offer"

	offerParam    = "credential_offer"
	offerURIParam = "credential_offer_uri"
)

// Offer is an OpenID4VCI credential offer.
type Offer struct {
	CredentialIssuer string                     `json:"credential_issuer" validate:"required,url"`
	Credentials      []OfferedCredential        `json:"credentials" validate:"required,min=1"`
	Grants           map[string]json.RawMessage `json:"grants" validate:"required"`

	preAuthorized *PreAuthorizedCodeGrant
	authorization *AuthorizationCodeGrant
}

// OfferedCredential is one entry of an offer's credentials array. Entries given as a bare string name a
// configuration in the issuer's metadata and only carry ConfigurationID.
type OfferedCredential struct {
	Format               string                `json:"format,omitempty"`
	Types                []string              `json:"types,omitempty"`
	CredentialDefinition *CredentialDefinition `json:"credential_definition,omitempty"`
	ConfigurationID      string                `json:"-"`
}

type CredentialDefinition struct {
	Context []string `json:"@context,omitempty"`
	Type    []string `json:"type,omitempty"`
}

func (o *OfferedCredential) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &o.ConfigurationID)
	}
	type alias OfferedCredential
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*o = OfferedCredential(a)
	return nil
}

// TypeList returns the credential types, whichever member the issuer used for them.
func (o OfferedCredential) TypeList() []string {
	if len(o.Types) > 0 {
		return o.Types
	}
	if o.CredentialDefinition != nil {
		return o.CredentialDefinition.Type
	}
	return nil
}

// PreAuthorizedCodeGrant holds the parameters of the pre-authorized code grant.
type PreAuthorizedCodeGrant struct {
	Code string `json:"pre-authorized_code" validate:"required"`
	// TxCode is set when the issuer sent a transaction code (PIN) out of band that must accompany the code.
	TxCode *TxCode `json:"tx_code,omitempty"`
	// UserPINRequired is the older spelling of a transaction code requirement.
	UserPINRequired bool `json:"user_pin_required,omitempty"`
}

type TxCode struct {
	InputMode   string `json:"input_mode,omitempty"`
	Length      int    `json:"length,omitempty"`
	Description string `json:"description,omitempty"`
}

// PINRequired reports whether the token request must carry a transaction code.
func (g *PreAuthorizedCodeGrant) PINRequired() bool {
	return g != nil && (g.TxCode != nil || g.UserPINRequired)
}

// AuthorizationCodeGrant holds the parameters of the authorization code grant.
type AuthorizationCodeGrant struct {
	IssuerState string `json:"issuer_state,omitempty"`
}

// PreAuthorizedCodeGrant returns the offer's pre-authorized code grant, or nil.
func (o *Offer) PreAuthorizedCodeGrant() *PreAuthorizedCodeGrant {
	return o.preAuthorized
}

// AuthorizationCodeGrant returns the offer's authorization code grant, or nil.
func (o *Offer) AuthorizationCodeGrant() *AuthorizationCodeGrant {
	return o.authorization
}

// credentialFor returns the first offered credential of the given format.
func (o *Offer) credentialFor(format string) (*OfferedCredential, bool) {
	for i := range o.Credentials {
		if o.Credentials[i].Format == format {
			return &o.Credentials[i], true
		}
	}
	return nil, false
}

// ParseOffer parses a credential offer given as JSON or as an openid-credential-offer URI carrying the offer by
// value. Offers passed by reference must be fetched with FetchOffer first.
func ParseOffer(data []byte) (*Offer, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("empty credential offer")
	}
	if data[0] != '{' {
		var err error
		if data, err = offerFromURI(string(data)); err != nil {
			return nil, err
		}
	}

	var offer Offer
	if err := json.Unmarshal(data, &offer); err != nil {
		return nil, errors.Wrap(err, "decoding credential offer")
	}
	if err := util.IsValidStruct(&offer); err != nil {
		return nil, errors.Wrap(err, "invalid credential offer")
	}
	offer.CredentialIssuer = strings.TrimSuffix(offer.CredentialIssuer, "/")

	if raw, ok := offer.Grants[PreAuthorizedCodeGrantType]; ok {
		offer.preAuthorized = new(PreAuthorizedCodeGrant)
		if err := json.Unmarshal(raw, offer.preAuthorized); err != nil {
			return nil, errors.Wrap(err, "decoding pre-authorized code grant")
		}
		if err := util.IsValidStruct(offer.preAuthorized); err != nil {
			return nil, errors.Wrap(err, "invalid pre-authorized code grant")
		}
	}
	if raw, ok := offer.Grants[AuthorizationCodeGrantType]; ok {
		offer.authorization = new(AuthorizationCodeGrant)
		if err := json.Unmarshal(raw, offer.authorization); err != nil {
			return nil, errors.Wrap(err, "decoding authorization code grant")
		}
	}
	if offer.preAuthorized == nil && offer.authorization == nil {
		return nil, errors.New("credential offer has no supported grant")
	}
	return &offer, nil
}

func offerFromURI(raw string) ([]byte, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing credential offer uri")
	}
	query := u.Query()
	switch {
	case query.Has(offerParam):
		return []byte(query.Get(offerParam)), nil
	case query.Has(offerURIParam):
		return nil, errors.Errorf("credential offer is passed by reference, fetch %s first", offerURIParam)
	}
	return nil, errors.Errorf("credential offer uri has neither %s nor %s", offerParam, offerURIParam)
}

// FetchOffer retrieves an offer passed by reference. uri is either the credential_offer_uri itself or an
// openid-credential-offer URI carrying it. An offer URI that carries the offer by value is returned as is.
func FetchOffer(ctx context.Context, client *http.Client, uri string) ([]byte, error) {
	u, err := url.Parse(strings.TrimSpace(uri))
	if err != nil {
		return nil, walleterror.Wrap(walleterror.MalformedInput, err, "parsing credential offer uri")
	}
	target := u.String()
	if u.Scheme == OfferScheme || u.Query().Has(offerURIParam) || u.Query().Has(offerParam) {
		query := u.Query()
		if query.Has(offerParam) {
			return []byte(query.Get(offerParam)), nil
		}
		if target = query.Get(offerURIParam); target == "" {
			return nil, walleterror.Newf(walleterror.MalformedInput, "credential offer uri has no %s", offerURIParam)
		}
	}
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.MalformedInput, err, "building credential offer request")
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, walleterror.Collaborator("HTTP GET", target, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, walleterror.Collaborator("HTTP GET", target, err)
	}
	if !util.Is2xxResponse(resp.StatusCode) {
		return nil, walleterror.Collaborator("HTTP GET", target, errors.Errorf("status %d: %s", resp.StatusCode, body))
	}
	return body, nil
}
