package did

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"
)

const (
	JWKMethod = "jwk"
	jwkPrefix = "did:jwk:"
)

// CreateDIDJWK encodes a public JWK as a did:jwk https://github.com/quartzjer/did-jwk/blob/main/spec.md
func CreateDIDJWK(key jwk.Key) (string, error) {
	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		return "", errors.Wrap(err, "getting public key")
	}
	vm, err := jsonWebKeyMethod("", "", pub)
	if err != nil {
		return "", err
	}
	keyBytes, err := json.Marshal(vm.PublicKeyJWK)
	if err != nil {
		return "", err
	}
	return jwkPrefix + base64.RawURLEncoding.EncodeToString(keyBytes), nil
}

// JWKResolver expands did:jwk identifiers locally.
type JWKResolver struct{}

func (JWKResolver) Method() string {
	return JWKMethod
}

func (JWKResolver) Resolve(_ context.Context, id string) (*Document, error) {
	if !strings.HasPrefix(id, jwkPrefix) {
		return nil, errors.Errorf("not a did:jwk: %s", id)
	}
	keyBytes, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(id, jwkPrefix))
	if err != nil {
		return nil, errors.Wrapf(err, "decoding did:jwk %s", id)
	}
	key, err := jwk.ParseKey(keyBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing did:jwk %s", id)
	}
	if _, ok := key.(jwk.SymmetricKey); ok {
		return nil, errors.Errorf("did:jwk %s holds a symmetric key", id)
	}
	pub, err := jwk.PublicKeyOf(key)
	if err != nil {
		return nil, errors.Wrapf(err, "did:jwk %s", id)
	}
	vm, err := jsonWebKeyMethod(id, id+"#0", pub)
	if err != nil {
		return nil, err
	}
	return singleKeyDocument(id, *vm), nil
}
