package did

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/tbd54566975/ssi-wallet/pkg/storage"
)

func TestDIDKey(t *testing.T) {
	t.Run("ed25519", func(tt *testing.T) {
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(tt, err)

		didKey, err := CreateDIDKey(pub)
		require.NoError(tt, err)
		assert.True(tt, strings.HasPrefix(didKey, "did:key:z6Mk"))

		doc, err := KeyResolver{}.Resolve(context.Background(), didKey)
		require.NoError(tt, err)
		assert.Equal(tt, didKey, doc.ID)
		require.Len(tt, doc.VerificationMethod, 1)
		assert.Equal(tt, KeyIDForDIDKey(didKey), doc.VerificationMethod[0].ID)
		assert.Equal(tt, doc.VerificationMethod[0].ID, doc.AssertionMethod[0].ID)

		key, err := doc.PublicKeyJWK(KeyIDForDIDKey(didKey))
		require.NoError(tt, err)
		assert.Equal(tt, KeyIDForDIDKey(didKey), key.KeyID())

		var raw ed25519.PublicKey
		require.NoError(tt, key.Raw(&raw))
		assert.Equal(tt, pub, raw)

		alg, err := AlgorithmForKey(key)
		require.NoError(tt, err)
		assert.Equal(tt, jwa.EdDSA, alg)
	})

	t.Run("p-256", func(tt *testing.T) {
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(tt, err)

		didKey, err := CreateDIDKey(&priv.PublicKey)
		require.NoError(tt, err)
		assert.True(tt, strings.HasPrefix(didKey, "did:key:zDn"))

		doc, err := KeyResolver{}.Resolve(context.Background(), didKey)
		require.NoError(tt, err)

		key, err := doc.PublicKeyJWK(KeyIDForDIDKey(didKey))
		require.NoError(tt, err)

		var raw ecdsa.PublicKey
		require.NoError(tt, key.Raw(&raw))
		assert.True(tt, priv.PublicKey.Equal(&raw))

		alg, err := AlgorithmForKey(key)
		require.NoError(tt, err)
		assert.Equal(tt, jwa.ES256, alg)
	})

	t.Run("unsupported key", func(tt *testing.T) {
		priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(tt, err)
		_, err = CreateDIDKey(&priv.PublicKey)
		assert.ErrorContains(tt, err, "unsupported curve")
	})

	t.Run("malformed", func(tt *testing.T) {
		_, err := KeyResolver{}.Resolve(context.Background(), "did:key:notmultibase")
		assert.Error(tt, err)

		_, err = KeyResolver{}.Resolve(context.Background(), "did:web:example.com")
		assert.ErrorContains(tt, err, "not a did:key")
	})
}

func TestDIDJWK(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	key, err := jwk.FromRaw(pub)
	require.NoError(t, err)

	didJWK, err := CreateDIDJWK(key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(didJWK, "did:jwk:"))

	doc, err := JWKResolver{}.Resolve(context.Background(), didJWK)
	require.NoError(t, err)

	resolved, err := doc.PublicKeyJWK("#0")
	require.NoError(t, err)
	assert.Equal(t, didJWK+"#0", resolved.KeyID())

	var raw ed25519.PublicKey
	require.NoError(t, resolved.Raw(&raw))
	assert.Equal(t, pub, raw)

	_, err = JWKResolver{}.Resolve(context.Background(), "did:jwk:!!!")
	assert.Error(t, err)
}

func TestVerificationMethodEncodings(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	multibaseKey, err := multibase.Encode(multibase.Base58BTC, append(varint.ToUvarint(Ed25519MultiCodec), pub...))
	require.NoError(t, err)

	doc := Document{
		ID: "did:example:123",
		VerificationMethod: []VerificationMethod{
			{
				ID:                 "#key-1",
				Type:               Ed25519VerificationKey2020Type,
				Controller:         "did:example:123",
				PublicKeyMultibase: multibaseKey,
			},
			{
				ID:              "did:example:123#key-2",
				Type:            Ed25519VerificationKey2018Type,
				Controller:      "did:example:123",
				PublicKeyBase58: base58.Encode(pub),
			},
		},
		AssertionMethod: []VerificationMethodRef{{
			ID: "did:example:123#key-3",
			Embedded: &VerificationMethod{
				ID:              "did:example:123#key-3",
				Type:            Ed25519VerificationKey2018Type,
				PublicKeyBase58: base58.Encode(pub),
			},
		}},
	}

	for _, keyID := range []string{"did:example:123#key-1", "#key-2", "did:example:123#key-3"} {
		t.Run(keyID, func(tt *testing.T) {
			key, err := doc.PublicKeyJWK(keyID)
			require.NoError(tt, err)
			var raw ed25519.PublicKey
			require.NoError(tt, key.Raw(&raw))
			assert.Equal(tt, pub, raw)
		})
	}

	_, err = doc.PublicKeyJWK("did:example:123#missing")
	assert.True(t, errors.Is(err, ErrKeyNotFound))

	assert.Equal(t, []string{"did:example:123#key-1", "did:example:123#key-2"}, doc.VerificationMethodIDs())
}

func TestVerificationMethodRefJSON(t *testing.T) {
	var doc Document
	err := jsonUnmarshal(`{
		"id": "did:example:123",
		"authentication": ["did:example:123#key-1", {"id": "did:example:123#key-2", "type": "JsonWebKey2020", "publicKeyJwk": {"kty": "OKP", "crv": "Ed25519", "x": "11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo"}}]
	}`, &doc)
	require.NoError(t, err)
	require.Len(t, doc.Authentication, 2)
	assert.Equal(t, "did:example:123#key-1", doc.Authentication[0].ID)
	assert.Nil(t, doc.Authentication[0].Embedded)
	assert.NotNil(t, doc.Authentication[1].Embedded)

	_, err = doc.PublicKeyJWK("did:example:123#key-2")
	assert.NoError(t, err)
}

func TestDocumentURL(t *testing.T) {
	tests := []struct {
		id      string
		want    string
		wantErr bool
	}{
		{id: "did:web:example.com", want: "https://example.com/.well-known/did.json"},
		{id: "did:web:example.com:user:alice", want: "https://example.com/user/alice/did.json"},
		{id: "did:web:localhost%3A8443", want: "https://localhost:8443/.well-known/did.json"},
		{id: "did:key:z6Mk", wantErr: true},
		{id: "did:web:", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.id, func(tt *testing.T) {
			got, err := DocumentURL(test.id)
			if test.wantErr {
				assert.Error(tt, err)
				return
			}
			require.NoError(tt, err)
			assert.Equal(tt, test.want, got)
		})
	}
}

func TestWebResolver(t *testing.T) {
	defer gock.Off()

	doc := map[string]any{
		"id": "did:web:issuer.example",
		"verificationMethod": []map[string]any{{
			"id":           "did:web:issuer.example#key-1",
			"type":         "JsonWebKey2020",
			"controller":   "did:web:issuer.example",
			"publicKeyJwk": map[string]any{"kty": "OKP", "crv": "Ed25519", "x": "11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo"},
		}},
	}
	gock.New("https://issuer.example").
		Get("/.well-known/did.json").
		Reply(200).
		JSON(doc)
	gock.New("https://missing.example").
		Get("/.well-known/did.json").
		Reply(404)
	gock.New("https://mismatch.example").
		Get("/.well-known/did.json").
		Reply(200).
		JSON(doc)

	resolver := WebResolver{Client: &http.Client{}}

	resolved, err := resolver.Resolve(context.Background(), "did:web:issuer.example")
	require.NoError(t, err)
	assert.Equal(t, "did:web:issuer.example", resolved.ID)
	_, err = resolved.PublicKeyJWK("did:web:issuer.example#key-1")
	assert.NoError(t, err)

	_, err = resolver.Resolve(context.Background(), "did:web:missing.example")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = resolver.Resolve(context.Background(), "did:web:mismatch.example")
	assert.ErrorContains(t, err, "does not match")
}

func TestMultiMethodResolver(t *testing.T) {
	resolver, err := BuildMultiMethodResolver([]string{"key", "jwk", "peer"}, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"key", "jwk"}, resolver.Methods())

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	didKey, err := CreateDIDKey(pub)
	require.NoError(t, err)

	// key ids resolve to their DID's document
	doc, err := resolver.Resolve(context.Background(), KeyIDForDIDKey(didKey))
	require.NoError(t, err)
	assert.Equal(t, didKey, doc.ID)

	_, err = resolver.Resolve(context.Background(), "did:web:example.com")
	assert.True(t, errors.Is(err, ErrUnsupportedMethod))

	_, err = resolver.Resolve(context.Background(), "not-a-did")
	assert.Error(t, err)

	_, err = BuildMultiMethodResolver(nil, nil)
	assert.Error(t, err)
	_, err = BuildMultiMethodResolver([]string{"peer"}, nil)
	assert.ErrorContains(t, err, "no resolvers created")
}

type countingResolver struct {
	calls int
	err   error
}

func (c *countingResolver) Resolve(_ context.Context, id string) (*Document, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return &Document{ID: id}, nil
}

func TestCachingResolver(t *testing.T) {
	db, err := storage.NewStorage(storage.Memory)
	require.NoError(t, err)
	mockClock := clock.NewMock()
	inner := new(countingResolver)

	resolver, err := NewCachingResolver(inner, db, time.Minute, mockClock)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		doc, err := resolver.Resolve(ctx, "did:example:123#key-1")
		require.NoError(t, err)
		assert.Equal(t, "did:example:123", doc.ID)
	}
	assert.Equal(t, 1, inner.calls)

	mockClock.Add(2 * time.Minute)
	_, err = resolver.Resolve(ctx, "did:example:123")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)

	require.NoError(t, resolver.Evict(ctx, "did:example:123"))
	_, err = resolver.Resolve(ctx, "did:example:123")
	require.NoError(t, err)
	assert.Equal(t, 3, inner.calls)

	inner.err = errors.New("boom")
	_, err = resolver.Resolve(ctx, "did:example:456")
	assert.ErrorContains(t, err, "boom")

	_, err = NewCachingResolver(nil, db, 0, nil)
	assert.Error(t, err)
}
