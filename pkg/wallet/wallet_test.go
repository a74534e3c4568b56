package wallet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-wallet/config"
	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/credentialstore"
	"github.com/tbd54566975/ssi-wallet/pkg/encryption"
	"github.com/tbd54566975/ssi-wallet/pkg/localkms"
	"github.com/tbd54566975/ssi-wallet/pkg/openid4ci"
	"github.com/tbd54566975/ssi-wallet/pkg/storage"
	"github.com/tbd54566975/ssi-wallet/pkg/testutil"
	"github.com/tbd54566975/ssi-wallet/pkg/testutil/issuer"
	"github.com/tbd54566975/ssi-wallet/pkg/verifier"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

var degreeTypes = []string{credential.VerifiableCredentialType, "UniversityDegreeCredential"}

const degreeDefinition = `{
	"id": "degree-check",
	"input_descriptors": [{
		"id": "degree",
		"constraints": {
			"fields": [
				{"path": ["$.type"], "filter": {"type": "array", "contains": {"const": "UniversityDegreeCredential"}}},
				{"path": ["$.credentialSubject.issuedBy"], "filter": {"type": "string", "const": "mock issuer"}}
			]
		}
	}]
}`

func testConfig(password string) config.WalletConfig {
	return config.WalletConfig{
		Wallet:  config.WalletSection{ClientID: "test-wallet"},
		Storage: config.StorageConfig{Provider: string(storage.Memory), EncryptionPassword: password},
		DID:     config.DIDConfig{ResolutionMethods: []string{"key", "jwk"}, CacheTTL: time.Minute},
	}
}

func memoryDB(t *testing.T) storage.ServiceStorage {
	db, err := storage.NewStorage(storage.Memory)
	require.NoError(t, err)
	return db
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	t.Run("configured storage", func(tt *testing.T) {
		cfg := testConfig("")
		w, err := New(ctx, cfg)
		require.NoError(tt, err)
		assert.NotNil(tt, w.KMS())
		assert.NotNil(tt, w.Credentials())
		assert.NotNil(tt, w.Resolver())
		assert.NotNil(tt, w.Verifier())
		assert.NotNil(tt, w.Matcher())
		assert.NoError(tt, w.Close())
	})

	t.Run("unknown provider", func(tt *testing.T) {
		cfg := testConfig("")
		cfg.Storage.Provider = "postgres"
		_, err := New(ctx, cfg)
		assert.ErrorContains(tt, err, "unsupported storage provider")
	})

	t.Run("unknown resolution method", func(tt *testing.T) {
		cfg := testConfig("")
		cfg.DID.ResolutionMethods = []string{"ion"}
		_, err := New(ctx, cfg, WithStorage(memoryDB(tt)))
		assert.Error(tt, err)
	})
}

func TestEncryptedStorage(t *testing.T) {
	for _, test := range testutil.TestDatabases {
		t.Run(test.Name, func(tt *testing.T) {
			ctx := context.Background()
			db := test.ServiceStorage(tt)

			w, err := New(ctx, testConfig("correct horse"), WithStorage(db))
			require.NoError(tt, err)
			keyID, err := w.BindingKey(ctx)
			require.NoError(tt, err)

			party := testutil.NewParty(tt, w.KMS(), localkms.Ed25519)
			raw, err := credential.SignJWT(ctx, party.KA, credential.Template{
				Issuer:  party.DID,
				Types:   degreeTypes,
				Subject: map[string]any{"id": util.DIDFromKeyID(keyID), "degree": "secret-degree"},
			})
			require.NoError(tt, err)
			stored, err := w.Credentials().Add(ctx, raw)
			require.NoError(tt, err)

			// nothing readable reaches the underlying store
			all, err := db.ReadAll(ctx, "credential")
			require.NoError(tt, err)
			require.Len(tt, all, 1)
			for _, v := range all {
				assert.NotContains(tt, string(v), party.DID)
			}

			reopened, err := New(ctx, testConfig("correct horse"), WithStorage(db))
			require.NoError(tt, err)
			again, err := reopened.BindingKey(ctx)
			require.NoError(tt, err)
			assert.Equal(tt, keyID, again)
			got, err := reopened.Credentials().Get(ctx, stored.ID)
			require.NoError(tt, err)
			assert.Equal(tt, raw, got)

			_, err = New(ctx, testConfig("wrong password"), WithStorage(db))
			assert.ErrorIs(tt, err, encryption.ErrWrongPassword)
		})
	}
}

func TestBindingKey(t *testing.T) {
	ctx := context.Background()

	t.Run("creates then reuses", func(tt *testing.T) {
		w, err := New(ctx, testConfig(""), WithStorage(memoryDB(tt)))
		require.NoError(tt, err)
		first, err := w.BindingKey(ctx)
		require.NoError(tt, err)
		second, err := w.BindingKey(ctx)
		require.NoError(tt, err)
		assert.Equal(tt, first, second)
		keys, err := w.KMS().ListKeys(ctx)
		require.NoError(tt, err)
		assert.Len(tt, keys, 1)
	})

	t.Run("configured key", func(tt *testing.T) {
		db := memoryDB(tt)
		w, err := New(ctx, testConfig(""), WithStorage(db))
		require.NoError(tt, err)
		_, err = w.BindingKey(ctx)
		require.NoError(tt, err)
		created, err := w.KMS().CreateKey(ctx, localkms.Ed25519)
		require.NoError(tt, err)

		cfg := testConfig("")
		cfg.Wallet.KeyID = created.ID
		w, err = New(ctx, cfg, WithStorage(db))
		require.NoError(tt, err)
		got, err := w.BindingKey(ctx)
		require.NoError(tt, err)
		assert.Equal(tt, created.ID, got)

		cfg.Wallet.KeyID = "did:key:z6Mkmissing#z6Mkmissing"
		w, err = New(ctx, cfg, WithStorage(db))
		require.NoError(tt, err)
		_, err = w.BindingKey(ctx)
		assert.ErrorContains(tt, err, "configured key")
	})
}

func TestAcceptOfferAndPresent(t *testing.T) {
	ctx := context.Background()
	iss := issuer.New(t)

	w, err := New(ctx, testConfig("pw"), WithStorage(memoryDB(t)), WithHTTPClient(iss.Client()))
	require.NoError(t, err)

	for _, format := range []credential.Format{credential.JWTVCJSON, credential.LDPVC} {
		stored, err := w.AcceptOffer(ctx, iss.PreAuthorizedOffer(string(format), degreeTypes, "493536"), string(format), "493536")
		require.NoError(t, err, format)
		assert.Equal(t, iss.DID(), stored.Issuer)
		assert.Equal(t, format, stored.Format)
	}
	notifications := iss.Notifications()
	require.Len(t, notifications, 2)
	for _, n := range notifications {
		assert.Equal(t, openid4ci.EventCredentialAccepted, n.Event)
	}

	keyID, err := w.BindingKey(ctx)
	require.NoError(t, err)
	held, err := w.Credentials().List(ctx, credentialstore.Filter{Subject: util.DIDFromKeyID(keyID)})
	require.NoError(t, err)
	assert.Len(t, held, 2)

	vp, err := w.Present(ctx, []byte(degreeDefinition), "https://verifier.example.com", "n-0S6_WzA2Mj")
	require.NoError(t, err)

	report, err := w.Verifier().Verify(ctx, verifier.VerifyOpts{RawPresentation: vp})
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.Len(t, report.Credentials, 2)
	assert.Equal(t, util.DIDFromKeyID(keyID), report.Holder)

	pres, err := credential.ParsePresentation(vp)
	require.NoError(t, err)
	assert.Equal(t, "n-0S6_WzA2Mj", pres.Nonce)

	t.Run("unsatisfiable definition", func(tt *testing.T) {
		_, err := w.Present(ctx, []byte(`{"id": "x", "input_descriptors": [{"id": "license", "constraints": {"fields": [{"path": ["$.credentialSubject.licenseClass"]}]}}]}`), "", "")
		assert.True(tt, walleterror.IsKind(err, walleterror.Unsatisfiable), err)
	})

	t.Run("malformed definition", func(tt *testing.T) {
		_, err := w.Present(ctx, []byte("not json"), "", "")
		assert.True(tt, walleterror.IsKind(err, walleterror.MalformedInput), err)
	})

	t.Run("issuer rejection is not stored", func(tt *testing.T) {
		_, err := w.AcceptOffer(ctx, iss.PreAuthorizedOffer(string(credential.JWTVCJSON), degreeTypes, "1234"), string(credential.JWTVCJSON), "9999")
		assert.True(tt, walleterror.IsKind(err, walleterror.IssuanceRejected), err)
		all, err := w.Credentials().List(ctx, credentialstore.Filter{})
		require.NoError(tt, err)
		assert.Len(tt, all, 2)
	})
}

func TestRevokedCredential(t *testing.T) {
	ctx := context.Background()
	iss := issuer.New(t, issuer.WithStatusList())

	w, err := New(ctx, testConfig(""), WithStorage(memoryDB(t)), WithHTTPClient(iss.Client()))
	require.NoError(t, err)

	kept, err := w.AcceptOffer(ctx, iss.PreAuthorizedOffer(string(credential.JWTVCJSON), degreeTypes, ""), string(credential.JWTVCJSON), "")
	require.NoError(t, err)
	revoked, err := w.AcceptOffer(ctx, iss.PreAuthorizedOffer(string(credential.JWTVCJSON), degreeTypes, ""), string(credential.JWTVCJSON), "")
	require.NoError(t, err)

	iss.Revoke(t, revoked.Credential)

	report, err := w.Verifier().Verify(ctx, verifier.VerifyOpts{RawCredential: kept.Credential})
	require.NoError(t, err)
	assert.True(t, report.Valid())

	report, err = w.Verifier().Verify(ctx, verifier.VerifyOpts{RawCredential: revoked.Credential})
	assert.True(t, walleterror.IsKind(err, walleterror.Revoked), err)
	assert.False(t, report.Valid())
}
