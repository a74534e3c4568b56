package credential

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-wallet/internal/keyaccess"
)

const (
	CredentialsContext = "https://www.w3.org/2018/credentials/v1"

	JWTVCType = "JWT"
)

// Template describes a credential to be signed.
type Template struct {
	ID       string
	Contexts []string
	Issuer   string
	Types    []string
	Subject  map[string]any
	// Status becomes the credentialStatus entry.
	Status     any
	ValidFrom  time.Time
	ValidUntil *time.Time
}

func (t Template) document() (map[string]any, error) {
	if t.Issuer == "" {
		return nil, errors.New("issuer is required")
	}
	if len(t.Subject) == 0 {
		return nil, errors.New("credential subject is required")
	}
	id := t.ID
	if id == "" {
		id = "urn:uuid:" + uuid.NewString()
	}
	types := []any{VerifiableCredentialType}
	for _, typ := range t.Types {
		if typ != VerifiableCredentialType {
			types = append(types, typ)
		}
	}
	validFrom := t.ValidFrom
	if validFrom.IsZero() {
		validFrom = time.Now()
	}
	contexts := []any{CredentialsContext}
	for _, c := range t.Contexts {
		if c != CredentialsContext {
			contexts = append(contexts, c)
		}
	}
	doc := map[string]any{
		"@context":          contexts,
		"id":                id,
		"type":              types,
		"issuer":            t.Issuer,
		"issuanceDate":      validFrom.UTC().Format(time.RFC3339),
		"credentialSubject": t.Subject,
	}
	if t.Status != nil {
		doc["credentialStatus"] = t.Status
	}
	if t.ValidUntil != nil {
		doc["expirationDate"] = t.ValidUntil.UTC().Format(time.RFC3339)
	}
	return doc, nil
}

// SignJWT issues the template as a VC-JWT signed with ka.
func SignJWT(ctx context.Context, ka *keyaccess.CryptoKeyAccess, t Template) ([]byte, error) {
	doc, err := t.document()
	if err != nil {
		return nil, err
	}
	builder := jwt.NewBuilder().
		Issuer(t.Issuer).
		JwtID(doc["id"].(string)).
		IssuedAt(time.Now()).
		Claim(vcClaim, doc)
	if validFrom, ok := doc["issuanceDate"].(string); ok {
		nbf, _ := time.Parse(time.RFC3339, validFrom)
		builder = builder.NotBefore(nbf)
	}
	if t.ValidUntil != nil {
		builder = builder.Expiration(*t.ValidUntil)
	}
	if sub, ok := t.Subject["id"].(string); ok {
		builder = builder.Subject(sub)
	}
	token, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building jwt")
	}
	signed, err := ka.SignJSON(ctx, JWTVCType, token)
	if err != nil {
		return nil, err
	}
	return []byte(signed.String()), nil
}

// SignLD issues the template as a JSON credential with a JsonWebSignature2020 proof.
func SignLD(ctx context.Context, ka *keyaccess.CryptoKeyAccess, t Template) ([]byte, error) {
	doc, err := t.document()
	if err != nil {
		return nil, err
	}
	docBytes, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return ka.SignDataIntegrity(ctx, docBytes, keyaccess.ProofOptions{Purpose: keyaccess.AssertionMethod, Created: t.ValidFrom})
}

// PresentationOptions bind a presentation to a verifier.
type PresentationOptions struct {
	Holder   string
	Audience string
	Nonce    string
}

// SignJWTPresentation wraps credentials in a VP-JWT signed by the holder.
func SignJWTPresentation(ctx context.Context, ka *keyaccess.CryptoKeyAccess, credentials [][]byte, opts PresentationOptions) ([]byte, error) {
	if opts.Holder == "" {
		return nil, errors.New("holder is required")
	}
	vp := presentationDocument(credentials, opts.Holder)
	builder := jwt.NewBuilder().
		Issuer(opts.Holder).
		JwtID(vp["id"].(string)).
		IssuedAt(time.Now()).
		Claim(vpClaim, vp)
	if opts.Audience != "" {
		builder = builder.Audience([]string{opts.Audience})
	}
	if opts.Nonce != "" {
		builder = builder.Claim("nonce", opts.Nonce)
	}
	token, err := builder.Build()
	if err != nil {
		return nil, errors.Wrap(err, "building jwt")
	}
	signed, err := ka.SignJSON(ctx, JWTVCType, token)
	if err != nil {
		return nil, err
	}
	return []byte(signed.String()), nil
}

// SignLDPresentation wraps credentials in a JSON presentation with an authentication proof by the holder.
func SignLDPresentation(ctx context.Context, ka *keyaccess.CryptoKeyAccess, credentials [][]byte, opts PresentationOptions) ([]byte, error) {
	if opts.Holder == "" {
		return nil, errors.New("holder is required")
	}
	vp := presentationDocument(credentials, opts.Holder)
	vpBytes, err := json.Marshal(vp)
	if err != nil {
		return nil, err
	}
	return ka.SignDataIntegrity(ctx, vpBytes, keyaccess.ProofOptions{
		Purpose:   keyaccess.Authentication,
		Challenge: opts.Nonce,
		Domain:    opts.Audience,
	})
}

func presentationDocument(credentials [][]byte, holder string) map[string]any {
	entries := make([]any, 0, len(credentials))
	for _, c := range credentials {
		if IsJWT(c) {
			entries = append(entries, string(c))
			continue
		}
		entries = append(entries, json.RawMessage(c))
	}
	return map[string]any{
		"@context":             []any{CredentialsContext},
		"id":                   "urn:uuid:" + uuid.NewString(),
		"type":                 []any{VerifiablePresentationType},
		"holder":               holder,
		"verifiableCredential": entries,
	}
}
