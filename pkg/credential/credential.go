// Package credential parses verifiable credentials and presentations in the JWT (VC-JWT) and JSON-LD data
// integrity encodings into a single immutable representation.
package credential

import (
	"bytes"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-wallet/internal/keyaccess"
)

// Format is a credential or presentation format identifier as used in OpenID4VCI and DIF Presentation Exchange.
type Format string

const (
	JWTVCJSON Format = "jwt_vc_json"
	LDPVC     Format = "ldp_vc"
	JWTVP     Format = "jwt_vp"
	LDPVP     Format = "ldp_vp"
)

const (
	VerifiableCredentialType   = "VerifiableCredential"
	VerifiablePresentationType = "VerifiablePresentation"

	JWTProofType = "JWT"

	vcClaim = "vc"
	vpClaim = "vp"
)

// Proof is the unverified proof carried by a credential or presentation.
type Proof struct {
	// KeyID is the DID URL of the verification method the proof claims to be made with.
	KeyID     string
	Type      string
	Algorithm jwa.SignatureAlgorithm
	Purpose   string
	Challenge string
	Domain    string
	// Signature is the raw signature and SigningInput the exact bytes it must verify over.
	Signature    []byte
	SigningInput []byte
}

// Credential is a parsed verifiable credential. It must not be modified after parsing.
type Credential struct {
	ID         string
	Issuer     string
	Subject    string
	Types      []string
	Claims     map[string]any
	ValidFrom  *time.Time
	ValidUntil *time.Time
	// Status is the credentialStatus entry, nil when the credential carries none.
	Status map[string]any
	Proof  *Proof
	Raw        []byte
	Format     Format

	document  map[string]any
	jwtClaims map[string]any
}

// Document returns the credential in the W3C data model. For JWT credentials this is the vc claim with the
// registered claims folded in. Callers must treat it as read-only.
func (c *Credential) Document() map[string]any {
	return c.document
}

// JWTClaims returns the full claim set of a JWT credential, or nil for other formats.
func (c *Credential) JWTClaims() map[string]any {
	return c.jwtClaims
}

// HasType reports whether the credential declares the given type.
func (c *Credential) HasType(t string) bool {
	for _, typ := range c.Types {
		if typ == t {
			return true
		}
	}
	return false
}

// IsJWT reports whether raw is a compact JWS rather than a JSON document.
func IsJWT(raw []byte) bool {
	return keyaccess.IsCompactJWS(raw)
}

// ParseCredential parses a VC-JWT or a JSON credential with an optional data integrity proof.
func ParseCredential(raw []byte) (*Credential, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty credential")
	}
	if raw[0] == '"' {
		// a JWT embedded as a JSON string
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, errors.Wrap(err, "decoding credential string")
		}
		raw = []byte(s)
	}
	if IsJWT(raw) {
		return parseJWTCredential(raw)
	}
	return parseLDCredential(raw)
}

func parseJWTCredential(raw []byte) (*Credential, error) {
	compact, err := keyaccess.ParseCompactJWS(string(raw))
	if err != nil {
		return nil, err
	}
	token, err := jwt.ParseInsecure(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing jwt claims")
	}
	var claims map[string]any
	if err = json.Unmarshal(compact.Payload, &claims); err != nil {
		return nil, errors.Wrap(err, "decoding jwt claims")
	}
	vc, ok := claims[vcClaim].(map[string]any)
	if !ok {
		return nil, errors.New("jwt has no vc claim")
	}

	doc := copyMap(vc)
	if iss := token.Issuer(); iss != "" {
		doc["issuer"] = iss
	}
	if jti := token.JwtID(); jti != "" {
		doc["id"] = jti
	}
	if nbf := token.NotBefore(); !nbf.IsZero() {
		doc["issuanceDate"] = nbf.UTC().Format(time.RFC3339)
	}
	if exp := token.Expiration(); !exp.IsZero() {
		doc["expirationDate"] = exp.UTC().Format(time.RFC3339)
	}
	if sub := token.Subject(); sub != "" {
		if subject, isMap := doc["credentialSubject"].(map[string]any); isMap {
			subject = copyMap(subject)
			subject["id"] = sub
			doc["credentialSubject"] = subject
		}
	}

	cred, err := fromDocument(doc)
	if err != nil {
		return nil, err
	}
	cred.Raw = raw
	cred.Format = JWTVCJSON
	cred.jwtClaims = claims
	cred.Proof = &Proof{
		KeyID:        absoluteKeyID(compact.Headers.KeyID(), cred.Issuer),
		Type:         JWTProofType,
		Algorithm:    compact.Headers.Algorithm(),
		Purpose:      keyaccess.AssertionMethod,
		Signature:    compact.Signature,
		SigningInput: compact.SigningInput,
	}
	return cred, nil
}

func parseLDCredential(raw []byte) (*Credential, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "credential is neither a jwt nor a json object")
	}
	cred, err := fromDocument(doc)
	if err != nil {
		return nil, err
	}
	cred.Raw = raw
	cred.Format = LDPVC
	if _, hasProof := doc["proof"]; hasProof {
		if cred.Proof, err = parseLDProof(raw); err != nil {
			return nil, err
		}
	}
	return cred, nil
}

func parseLDProof(raw []byte) (*Proof, error) {
	p, err := keyaccess.ParseDataIntegrityProof(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing proof")
	}
	return &Proof{
		KeyID:        p.Proof.VerificationMethod,
		Type:         p.Proof.Type,
		Algorithm:    p.Algorithm,
		Purpose:      p.Proof.ProofPurpose,
		Challenge:    p.Proof.Challenge,
		Domain:       p.Proof.Domain,
		Signature:    p.Signature,
		SigningInput: p.SigningInput,
	}, nil
}

func fromDocument(doc map[string]any) (*Credential, error) {
	types := stringOrArray(doc["type"])
	cred := &Credential{
		Types:    types,
		document: doc,
	}
	if !cred.HasType(VerifiableCredentialType) {
		return nil, errors.Errorf("credential type must include %s", VerifiableCredentialType)
	}
	cred.ID, _ = doc["id"].(string)
	cred.Status, _ = doc["credentialStatus"].(map[string]any)

	cred.Issuer = idOf(doc["issuer"])
	if cred.Issuer == "" {
		return nil, errors.New("credential has no issuer")
	}

	switch subject := doc["credentialSubject"].(type) {
	case map[string]any:
		cred.Claims = subject
		cred.Subject, _ = subject["id"].(string)
	case []any:
		if len(subject) > 0 {
			if first, ok := subject[0].(map[string]any); ok {
				cred.Claims = first
				cred.Subject, _ = first["id"].(string)
			}
		}
	default:
		return nil, errors.New("credential has no credentialSubject")
	}

	var err error
	if cred.ValidFrom, err = firstTime(doc, "validFrom", "issuanceDate"); err != nil {
		return nil, err
	}
	if cred.ValidUntil, err = firstTime(doc, "validUntil", "expirationDate"); err != nil {
		return nil, err
	}
	return cred, nil
}

// absoluteKeyID turns a relative kid (#key-1) into a DID URL of the issuer.
func absoluteKeyID(kid, issuer string) string {
	if strings.HasPrefix(kid, "#") {
		return issuer + kid
	}
	return kid
}

func idOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		id, _ := t["id"].(string)
		return id
	}
	return ""
}

func stringOrArray(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func firstTime(doc map[string]any, keys ...string) (*time.Time, error) {
	for _, k := range keys {
		s, ok := doc[k].(string)
		if !ok || s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %s", k)
		}
		return &t, nil
	}
	return nil, nil
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
