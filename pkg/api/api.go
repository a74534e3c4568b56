// Package api defines the capabilities the wallet core consumes. Each capability is a small interface so that
// platform key stores, credential databases and network resolvers can be swapped for deterministic fakes.
package api

//go:generate mockgen -source=api.go -destination=mocks/mocks.go -package=mocks CredentialReader,KeyHandleReader,DIDResolver,Crypto

import (
	"context"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-wallet/pkg/did"
)

// ErrNotFound is returned (optionally wrapped) by readers when a lookup misses.
var ErrNotFound = errors.New("not found")

// KeyHandle is an opaque reference to private key material held by a key store. It never carries key bytes.
type KeyHandle struct {
	// ID is the key identifier, usually a DID URL such as did:key:z6Mk...#z6Mk...
	ID string `json:"id"`
	// Algorithm is the JWS algorithm the key signs with.
	Algorithm jwa.SignatureAlgorithm `json:"alg"`
}

// PublicKey is verification key material taken from a DID Document.
type PublicKey struct {
	ID        string
	Algorithm jwa.SignatureAlgorithm
	JWK       jwk.Key
}

// CredentialReader reads stored credentials by id.
type CredentialReader interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

// KeyHandleReader resolves a key identifier to a handle usable with Crypto.
type KeyHandleReader interface {
	Get(ctx context.Context, keyID string) (*KeyHandle, error)
}

// DIDResolver resolves a DID to its document.
type DIDResolver interface {
	Resolve(ctx context.Context, id string) (*did.Document, error)
}

// Crypto provides signing and verification primitives.
type Crypto interface {
	Sign(ctx context.Context, key *KeyHandle, payload []byte) ([]byte, error)
	Verify(ctx context.Context, key *PublicKey, payload, signature []byte) (bool, error)
}
