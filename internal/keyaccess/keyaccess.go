// Package keyaccess produces and takes apart the two proof encodings the wallet handles: compact JWS (for JWT
// credentials, presentations and OpenID4VCI proofs) and JsonWebSignature2020 data integrity proofs. Signing goes
// through an api.Crypto so private key material never leaves the key store.
package keyaccess

import (
	"context"
	"encoding/base64"

	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-wallet/pkg/api"
)

// CryptoKeyAccess signs with a key handle held by a Crypto implementation.
type CryptoKeyAccess struct {
	crypto api.Crypto
	key    *api.KeyHandle
}

// NewCryptoKeyAccess creates a CryptoKeyAccess for the given handle.
func NewCryptoKeyAccess(crypto api.Crypto, key *api.KeyHandle) (*CryptoKeyAccess, error) {
	if crypto == nil {
		return nil, errors.New("crypto cannot be nil")
	}
	if key == nil {
		return nil, errors.New("key cannot be nil")
	}
	if key.ID == "" {
		return nil, errors.New("key id cannot be empty")
	}
	if key.Algorithm == "" {
		return nil, errors.Errorf("key<%s> has no algorithm", key.ID)
	}
	return &CryptoKeyAccess{crypto: crypto, key: key}, nil
}

// KeyID returns the id of the key this object signs with.
func (ka CryptoKeyAccess) KeyID() string {
	return ka.key.ID
}

func (ka CryptoKeyAccess) sign(ctx context.Context, signingInput []byte) ([]byte, error) {
	signature, err := ka.crypto.Sign(ctx, ka.key, signingInput)
	if err != nil {
		return nil, errors.Wrapf(err, "signing with key<%s>", ka.key.ID)
	}
	if len(signature) == 0 {
		return nil, errors.Errorf("empty signature from key<%s>", ka.key.ID)
	}
	return signature, nil
}

func b64(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
