package credential

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-wallet/internal/keyaccess"
)

// Presentation is a parsed verifiable presentation. It must not be modified after parsing.
type Presentation struct {
	ID          string
	Holder      string
	Types       []string
	Credentials []*Credential
	// Audience and Nonce come from the aud/nonce claims of a JWT presentation or the proof domain/challenge.
	Audience []string
	Nonce    string
	Proof    *Proof
	Raw      []byte
	Format   Format
}

// IsPresentation reports whether raw holds a presentation rather than a credential.
func IsPresentation(raw []byte) bool {
	raw = bytes.TrimSpace(raw)
	if IsJWT(raw) {
		compact, err := keyaccess.ParseCompactJWS(string(raw))
		if err != nil {
			return false
		}
		var claims map[string]json.RawMessage
		if err = json.Unmarshal(compact.Payload, &claims); err != nil {
			return false
		}
		_, ok := claims[vpClaim]
		return ok
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false
	}
	for _, t := range stringOrArray(doc["type"]) {
		if t == VerifiablePresentationType {
			return true
		}
	}
	return false
}

// ParsePresentation parses a VP-JWT or a JSON presentation. Every embedded credential is parsed; an embedded
// credential that cannot be parsed fails the whole presentation.
func ParsePresentation(raw []byte) (*Presentation, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty presentation")
	}
	if IsJWT(raw) {
		return parseJWTPresentation(raw)
	}
	return parseLDPresentation(raw)
}

func parseJWTPresentation(raw []byte) (*Presentation, error) {
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
	vp, ok := claims[vpClaim].(map[string]any)
	if !ok {
		return nil, errors.New("jwt has no vp claim")
	}
	pres, err := presentationFromDocument(vp)
	if err != nil {
		return nil, err
	}
	if iss := token.Issuer(); iss != "" {
		pres.Holder = iss
	}
	if jti := token.JwtID(); jti != "" {
		pres.ID = jti
	}
	pres.Audience = token.Audience()
	pres.Nonce, _ = claims["nonce"].(string)
	pres.Raw = raw
	pres.Format = JWTVP
	pres.Proof = &Proof{
		KeyID:        absoluteKeyID(compact.Headers.KeyID(), pres.Holder),
		Type:         JWTProofType,
		Algorithm:    compact.Headers.Algorithm(),
		Purpose:      keyaccess.Authentication,
		Challenge:    pres.Nonce,
		Signature:    compact.Signature,
		SigningInput: compact.SigningInput,
	}
	return pres, nil
}

func parseLDPresentation(raw []byte) (*Presentation, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "presentation is neither a jwt nor a json object")
	}
	pres, err := presentationFromDocument(doc)
	if err != nil {
		return nil, err
	}
	pres.Raw = raw
	pres.Format = LDPVP
	if _, hasProof := doc["proof"]; hasProof {
		if pres.Proof, err = parseLDProof(raw); err != nil {
			return nil, err
		}
		pres.Nonce = pres.Proof.Challenge
		if pres.Proof.Domain != "" {
			pres.Audience = []string{pres.Proof.Domain}
		}
	}
	return pres, nil
}

func presentationFromDocument(doc map[string]any) (*Presentation, error) {
	pres := &Presentation{Types: stringOrArray(doc["type"])}
	isVP := false
	for _, t := range pres.Types {
		isVP = isVP || t == VerifiablePresentationType
	}
	if !isVP {
		return nil, errors.Errorf("presentation type must include %s", VerifiablePresentationType)
	}
	pres.ID, _ = doc["id"].(string)
	pres.Holder = idOf(doc["holder"])

	var entries []any
	switch vcs := doc["verifiableCredential"].(type) {
	case nil:
	case []any:
		entries = vcs
	default:
		entries = []any{vcs}
	}
	for i, entry := range entries {
		var credBytes []byte
		switch e := entry.(type) {
		case string:
			credBytes = []byte(e)
		case map[string]any:
			b, err := json.Marshal(e)
			if err != nil {
				return nil, err
			}
			credBytes = b
		default:
			return nil, errors.Errorf("verifiableCredential[%d] is neither a jwt nor an object", i)
		}
		cred, err := ParseCredential(credBytes)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing verifiableCredential[%d]", i)
		}
		pres.Credentials = append(pres.Credentials, cred)
	}
	return pres, nil
}
