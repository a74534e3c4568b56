package did

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"strings"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
)

const (
	KeyMethod = "key"
	keyPrefix = "did:key:"
)

// CreateDIDKey encodes an Ed25519 or P-256 public key as a did:key https://w3c-ccg.github.io/did-method-key/
func CreateDIDKey(pub crypto.PublicKey) (string, error) {
	var codec uint64
	var keyBytes []byte
	switch k := pub.(type) {
	case ed25519.PublicKey:
		codec, keyBytes = Ed25519MultiCodec, k
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return "", errors.Errorf("unsupported curve for did:key: %s", k.Curve.Params().Name)
		}
		codec, keyBytes = P256MultiCodec, elliptic.MarshalCompressed(k.Curve, k.X, k.Y)
	default:
		return "", errors.Errorf("unsupported key type for did:key: %T", pub)
	}

	data := append(varint.ToUvarint(codec), keyBytes...)
	encoded, err := multibase.Encode(multibase.Base58BTC, data)
	if err != nil {
		return "", errors.Wrap(err, "multibase encoding key")
	}
	return keyPrefix + encoded, nil
}

// KeyIDForDIDKey returns the verification method id of a did:key, which repeats the fingerprint as fragment.
func KeyIDForDIDKey(didKey string) string {
	return didKey + "#" + strings.TrimPrefix(didKey, keyPrefix)
}

// KeyResolver expands did:key identifiers locally.
type KeyResolver struct{}

func (KeyResolver) Method() string {
	return KeyMethod
}

func (KeyResolver) Resolve(_ context.Context, id string) (*Document, error) {
	if !strings.HasPrefix(id, keyPrefix) {
		return nil, errors.Errorf("not a did:key: %s", id)
	}
	fingerprint := strings.TrimPrefix(id, keyPrefix)
	codec, keyBytes, err := decodeMultibaseKey(fingerprint)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding did:key %s", id)
	}
	if codec == 0 {
		return nil, errors.Errorf("unsupported multicodec in did:key %s", id)
	}
	key, err := keyFromBytes(codec, "", keyBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding did:key %s", id)
	}
	vm, err := jsonWebKeyMethod(id, id+"#"+fingerprint, key)
	if err != nil {
		return nil, err
	}
	return singleKeyDocument(id, *vm), nil
}

func jsonWebKeyMethod(controller, id string, key jwk.Key) (*VerificationMethod, error) {
	keyBytes, err := json.Marshal(key)
	if err != nil {
		return nil, errors.Wrap(err, "marshalling jwk")
	}
	var keyMap map[string]any
	if err = json.Unmarshal(keyBytes, &keyMap); err != nil {
		return nil, errors.Wrap(err, "unmarshalling jwk")
	}
	delete(keyMap, jwk.KeyIDKey)
	return &VerificationMethod{
		ID:           id,
		Type:         JSONWebKey2020Type,
		Controller:   controller,
		PublicKeyJWK: keyMap,
	}, nil
}
