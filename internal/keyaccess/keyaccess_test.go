package keyaccess

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-wallet/pkg/api"
)

type ed25519Crypto struct {
	priv ed25519.PrivateKey
}

func (c ed25519Crypto) Sign(_ context.Context, _ *api.KeyHandle, payload []byte) ([]byte, error) {
	return ed25519.Sign(c.priv, payload), nil
}

func (c ed25519Crypto) Verify(_ context.Context, _ *api.PublicKey, payload, signature []byte) (bool, error) {
	return ed25519.Verify(c.priv.Public().(ed25519.PublicKey), payload, signature), nil
}

type failingCrypto struct{}

func (failingCrypto) Sign(context.Context, *api.KeyHandle, []byte) ([]byte, error) {
	return nil, errors.New("hsm unavailable")
}

func (failingCrypto) Verify(context.Context, *api.PublicKey, []byte, []byte) (bool, error) {
	return false, errors.New("hsm unavailable")
}

func newTestKeyAccess(t *testing.T) (*CryptoKeyAccess, ed25519.PublicKey) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	ka, err := NewCryptoKeyAccess(ed25519Crypto{priv: priv}, &api.KeyHandle{ID: "did:example:123#key-1", Algorithm: jwa.EdDSA})
	require.NoError(t, err)
	return ka, pub
}

func TestNewCryptoKeyAccess(t *testing.T) {
	_, err := NewCryptoKeyAccess(nil, &api.KeyHandle{ID: "k", Algorithm: jwa.EdDSA})
	assert.ErrorContains(t, err, "crypto cannot be nil")

	_, err = NewCryptoKeyAccess(failingCrypto{}, nil)
	assert.ErrorContains(t, err, "key cannot be nil")

	_, err = NewCryptoKeyAccess(failingCrypto{}, &api.KeyHandle{Algorithm: jwa.EdDSA})
	assert.ErrorContains(t, err, "key id cannot be empty")

	_, err = NewCryptoKeyAccess(failingCrypto{}, &api.KeyHandle{ID: "k"})
	assert.ErrorContains(t, err, "has no algorithm")
}

func TestSignJWS(t *testing.T) {
	ka, pub := newTestKeyAccess(t)

	token, err := ka.SignJSON(context.Background(), "openid4vci-proof+jwt", map[string]any{"nonce": "abc"})
	require.NoError(t, err)
	assert.True(t, IsCompactJWS([]byte(token.String())))

	// a standard JWS library must accept what we produce
	_, err = jws.Verify([]byte(token.String()), jws.WithKey(jwa.EdDSA, pub))
	assert.NoError(t, err)

	parsed, err := ParseCompactJWS(token.String())
	require.NoError(t, err)
	assert.Equal(t, jwa.EdDSA, parsed.Headers.Algorithm())
	assert.Equal(t, "did:example:123#key-1", parsed.Headers.KeyID())
	assert.Equal(t, "openid4vci-proof+jwt", parsed.Headers.Type())
	assert.True(t, ed25519.Verify(pub, parsed.SigningInput, parsed.Signature))

	var claims map[string]any
	require.NoError(t, json.Unmarshal(parsed.Payload, &claims))
	assert.Equal(t, "abc", claims["nonce"])

	t.Run("crypto failure", func(tt *testing.T) {
		failing, err := NewCryptoKeyAccess(failingCrypto{}, &api.KeyHandle{ID: "k", Algorithm: jwa.EdDSA})
		require.NoError(tt, err)
		_, err = failing.SignJWS(context.Background(), "", nil, []byte("{}"))
		assert.ErrorContains(tt, err, "hsm unavailable")
	})
}

func TestParseCompactJWS(t *testing.T) {
	tests := []string{
		"",
		"a.b",
		"not.a.jws",
		`{"alg":"EdDSA"}`,
	}
	for _, token := range tests {
		_, err := ParseCompactJWS(token)
		assert.Error(t, err, token)
	}
	assert.False(t, IsCompactJWS([]byte(`{"a": "b.c.d"}`)))
}

func TestDataIntegrity(t *testing.T) {
	ka, pub := newTestKeyAccess(t)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	document := []byte(`{"@context":["https://www.w3.org/2018/credentials/v1"],"type":["VerifiableCredential"],"issuer":"did:example:123","credentialSubject":{"id":"did:example:456","degree":"BSc"}}`)
	signed, err := ka.SignDataIntegrity(context.Background(), document, ProofOptions{Created: created})
	require.NoError(t, err)

	proof, err := ParseDataIntegrityProof(signed)
	require.NoError(t, err)
	assert.Equal(t, "did:example:123#key-1", proof.Proof.VerificationMethod)
	assert.Equal(t, AssertionMethod, proof.Proof.ProofPurpose)
	assert.Equal(t, "2024-01-01T00:00:00Z", proof.Proof.Created)
	assert.Equal(t, jwa.EdDSA, proof.Algorithm)
	assert.True(t, ed25519.Verify(pub, proof.SigningInput, proof.Signature))

	t.Run("key order does not matter", func(tt *testing.T) {
		var doc map[string]any
		require.NoError(tt, json.Unmarshal(signed, &doc))
		reordered, err := json.MarshalIndent(doc, "", "  ")
		require.NoError(tt, err)

		again, err := ParseDataIntegrityProof(reordered)
		require.NoError(tt, err)
		assert.Equal(tt, proof.SigningInput, again.SigningInput)
	})

	t.Run("tampered document", func(tt *testing.T) {
		var doc map[string]any
		require.NoError(tt, json.Unmarshal(signed, &doc))
		doc["credentialSubject"].(map[string]any)["degree"] = "PhD"
		tampered, err := json.Marshal(doc)
		require.NoError(tt, err)

		parsed, err := ParseDataIntegrityProof(tampered)
		require.NoError(tt, err)
		assert.False(tt, ed25519.Verify(pub, parsed.SigningInput, parsed.Signature))
	})

	t.Run("malformed proofs", func(tt *testing.T) {
		_, err := ParseDataIntegrityProof([]byte(`{"id":"x"}`))
		assert.ErrorContains(tt, err, "no proof")

		_, err = ParseDataIntegrityProof([]byte(`{"proof":{"type":"Ed25519Signature2018","verificationMethod":"k","jws":"a..b"}}`))
		assert.ErrorContains(tt, err, "unsupported proof type")

		_, err = ParseDataIntegrityProof([]byte(`{"proof":{"type":"JsonWebSignature2020","verificationMethod":"k","jws":"a.b.c"}}`))
		assert.ErrorContains(tt, err, "detached")

		_, err = ParseDataIntegrityProof([]byte(`not json`))
		assert.Error(tt, err)
	})
}
