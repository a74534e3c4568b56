// Package localkms is a software key store. It creates Ed25519 and P-256 keys, identifies them by did:key
// verification method ids and signs through the same capability interfaces a platform key store would implement.
package localkms

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"math/big"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/api"
	"github.com/tbd54566975/ssi-wallet/pkg/did"
	"github.com/tbd54566975/ssi-wallet/pkg/storage"
)

// LocalKMS implements api.KeyHandleReader and api.Crypto over keys held in storage.
type LocalKMS struct {
	storage *Storage
	clock   clock.Clock
}

func New(db storage.ServiceStorage, c clock.Clock) (*LocalKMS, error) {
	s, err := NewKeyStoreStorage(db)
	if err != nil {
		return nil, err
	}
	if c == nil {
		c = clock.New()
	}
	return &LocalKMS{storage: s, clock: c}, nil
}

// CreatedKey describes a newly created key.
type CreatedKey struct {
	KeyDetails
	DID       string
	PublicKey jwk.Key
}

// CreateKey generates a key of the given type and stores it under its did:key verification method id.
func (k *LocalKMS) CreateKey(ctx context.Context, keyType KeyType) (*CreatedKey, error) {
	var pub any
	var privBytes []byte
	var alg jwa.SignatureAlgorithm
	switch keyType {
	case Ed25519:
		edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, "generating ed25519 key")
		}
		pub, privBytes, alg = edPub, edPriv, jwa.EdDSA
	case P256:
		ecPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, "generating p-256 key")
		}
		pub, privBytes, alg = &ecPriv.PublicKey, ecPriv.D.FillBytes(make([]byte, 32)), jwa.ES256
	default:
		return nil, errors.Errorf("unsupported key type: %s", keyType)
	}

	didKey, err := did.CreateDIDKey(pub)
	if err != nil {
		return nil, errors.Wrap(err, "creating did:key")
	}
	stored := StoredKey{
		ID:         did.KeyIDForDIDKey(didKey),
		Controller: didKey,
		KeyType:    keyType,
		Algorithm:  alg,
		Base58Key:  base58.Encode(privBytes),
		CreatedAt:  k.clock.Now().UTC().Format(time.RFC3339),
	}
	if err = k.storage.StoreKey(ctx, stored); err != nil {
		return nil, errors.Wrap(err, "storing key")
	}
	publicKey, err := jwk.FromRaw(pub)
	if err != nil {
		return nil, err
	}
	if err = publicKey.Set(jwk.KeyIDKey, stored.ID); err != nil {
		return nil, err
	}
	logrus.WithContext(ctx).WithField("kid", stored.ID).Debug("created key")
	return &CreatedKey{KeyDetails: *stored.details(), DID: didKey, PublicKey: publicKey}, nil
}

// Get implements api.KeyHandleReader.
func (k *LocalKMS) Get(ctx context.Context, keyID string) (*api.KeyHandle, error) {
	details, err := k.storage.GetKeyDetails(ctx, keyID)
	if err != nil {
		return nil, err
	}
	return &api.KeyHandle{ID: details.ID, Algorithm: details.Algorithm}, nil
}

// ListKeys returns the details of every held key.
func (k *LocalKMS) ListKeys(ctx context.Context) ([]KeyDetails, error) {
	return k.storage.ListKeys(ctx)
}

// DeleteKey removes a key.
func (k *LocalKMS) DeleteKey(ctx context.Context, keyID string) error {
	return k.storage.DeleteKey(ctx, keyID)
}

// PublicKey returns the public JWK of a held key.
func (k *LocalKMS) PublicKey(ctx context.Context, keyID string) (jwk.Key, error) {
	priv, _, err := k.privateKey(ctx, keyID)
	if err != nil {
		return nil, err
	}
	privJWK, err := jwk.FromRaw(priv)
	if err != nil {
		return nil, err
	}
	pub, err := jwk.PublicKeyOf(privJWK)
	if err != nil {
		return nil, err
	}
	if err = pub.Set(jwk.KeyIDKey, keyID); err != nil {
		return nil, err
	}
	return pub, nil
}

// Sign implements api.Crypto. The signature is in JWS form for the handle's algorithm.
func (k *LocalKMS) Sign(ctx context.Context, key *api.KeyHandle, payload []byte) ([]byte, error) {
	if key == nil {
		return nil, errors.New("key handle cannot be nil")
	}
	priv, alg, err := k.privateKey(ctx, key.ID)
	if err != nil {
		return nil, err
	}
	if key.Algorithm != "" && key.Algorithm != alg {
		return nil, errors.Errorf("key<%s> signs with %s, not %s", key.ID, alg, key.Algorithm)
	}
	signer, err := jws.NewSigner(alg)
	if err != nil {
		return nil, errors.Wrapf(err, "creating signer for %s", alg)
	}
	signature, err := signer.Sign(payload, priv)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "signing with key<%s>", key.ID)
	}
	return signature, nil
}

// Verify implements api.Crypto. A signature that does not verify yields false and no error.
func (k *LocalKMS) Verify(_ context.Context, key *api.PublicKey, payload, signature []byte) (bool, error) {
	return VerifySignature(key, payload, signature)
}

// VerifySignature checks a JWS-form signature with a public key.
func VerifySignature(key *api.PublicKey, payload, signature []byte) (bool, error) {
	if key == nil || key.JWK == nil {
		return false, errors.New("public key cannot be nil")
	}
	alg := key.Algorithm
	if alg == "" {
		var err error
		if alg, err = did.AlgorithmForKey(key.JWK); err != nil {
			return false, err
		}
	}
	verifier, err := jws.NewVerifier(alg)
	if err != nil {
		return false, errors.Wrapf(err, "creating verifier for %s", alg)
	}
	var raw any
	if err = key.JWK.Raw(&raw); err != nil {
		return false, errors.Wrap(err, "extracting raw public key")
	}
	if err = verifier.Verify(payload, signature, raw); err != nil {
		logrus.WithError(err).Debugf("signature did not verify with key<%s>", key.ID)
		return false, nil
	}
	return true, nil
}

func (k *LocalKMS) privateKey(ctx context.Context, keyID string) (any, jwa.SignatureAlgorithm, error) {
	stored, err := k.storage.GetKey(ctx, keyID)
	if err != nil {
		return nil, "", err
	}
	keyBytes, err := base58.Decode(stored.Base58Key)
	if err != nil {
		return nil, "", errors.Wrapf(err, "decoding key<%s>", keyID)
	}
	switch stored.KeyType {
	case Ed25519:
		if len(keyBytes) != ed25519.PrivateKeySize {
			return nil, "", errors.Errorf("key<%s> has invalid ed25519 length", keyID)
		}
		return ed25519.PrivateKey(keyBytes), stored.Algorithm, nil
	case P256:
		curve := elliptic.P256()
		priv := &ecdsa.PrivateKey{D: new(big.Int).SetBytes(keyBytes)}
		priv.PublicKey.Curve = curve
		priv.PublicKey.X, priv.PublicKey.Y = curve.ScalarBaseMult(keyBytes)
		return priv, stored.Algorithm, nil
	}
	return nil, "", errors.Errorf("key<%s> has unsupported type %s", keyID, stored.KeyType)
}

var (
	_ api.KeyHandleReader = (*LocalKMS)(nil)
	_ api.Crypto          = (*LocalKMS)(nil)
)
