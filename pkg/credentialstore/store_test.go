package credentialstore

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-wallet/pkg/api"
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/localkms"
	"github.com/tbd54566975/ssi-wallet/pkg/testutil"
)

func issue(t *testing.T, issuer testutil.Party, id string, types []string, ld bool) []byte {
	tmpl := credential.Template{
		ID:        id,
		Issuer:    issuer.DID,
		Types:     types,
		Subject:   map[string]any{"id": "did:example:holder", "name": "Alice"},
		ValidFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	sign := credential.SignJWT
	if ld {
		sign = credential.SignLD
	}
	raw, err := sign(context.Background(), issuer.KA, tmpl)
	require.NoError(t, err)
	return raw
}

func TestStore(t *testing.T) {
	for _, test := range testutil.TestDatabases {
		t.Run(test.Name, func(t *testing.T) {
			ctx := context.Background()
			mock := clock.NewMock()
			mock.Set(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
			store, err := NewStore(test.ServiceStorage(t), mock)
			require.NoError(t, err)

			kms := testutil.NewKMS(t)
			university := testutil.NewParty(t, kms, localkms.Ed25519)
			dmv := testutil.NewParty(t, kms, localkms.P256)

			degree := issue(t, university, "urn:uuid:degree", []string{"UniversityDegreeCredential"}, false)
			license := issue(t, dmv, "urn:uuid:license", []string{"DriversLicense"}, true)
			anonymous := issue(t, university, "", []string{"AlumniCredential"}, false)

			stored, err := store.Add(ctx, degree)
			require.NoError(t, err)
			assert.Equal(t, "urn:uuid:degree", stored.ID)
			assert.Equal(t, university.DID, stored.Issuer)
			assert.Equal(t, credential.JWTVCJSON, stored.Format)

			mock.Add(time.Minute)
			_, err = store.Add(ctx, license)
			require.NoError(t, err)

			mock.Add(time.Minute)
			anon, err := store.Add(ctx, anonymous)
			require.NoError(t, err)
			assert.Regexp(t, "^urn:uuid:", anon.ID)

			_, err = store.Add(ctx, degree)
			assert.True(t, errors.Is(err, ErrAlreadyExists))

			_, err = store.Add(ctx, []byte("not a credential"))
			assert.Error(t, err)

			raw, err := store.Get(ctx, "urn:uuid:license")
			require.NoError(t, err)
			assert.JSONEq(t, string(license), string(raw))

			_, err = store.Get(ctx, "urn:uuid:missing")
			assert.True(t, errors.Is(err, api.ErrNotFound))

			all, err := store.List(ctx, Filter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{"urn:uuid:degree", "urn:uuid:license", anon.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

			fromUniversity, err := store.List(ctx, Filter{Issuer: university.DID})
			require.NoError(t, err)
			assert.Len(t, fromUniversity, 2)

			licenses, err := store.Raw(ctx, Filter{Type: "DriversLicense"})
			require.NoError(t, err)
			require.Len(t, licenses, 1)
			assert.JSONEq(t, string(license), string(licenses[0]))

			bySubject, err := store.List(ctx, Filter{Subject: "did:example:holder"})
			require.NoError(t, err)
			assert.Len(t, bySubject, 3)

			require.NoError(t, store.Delete(ctx, "urn:uuid:degree"))
			assert.True(t, errors.Is(store.Delete(ctx, "urn:uuid:degree"), api.ErrNotFound))
			all, err = store.List(ctx, Filter{})
			require.NoError(t, err)
			assert.Len(t, all, 2)
		})
	}
}

func TestNewStore(t *testing.T) {
	_, err := NewStore(nil, nil)
	assert.Error(t, err)
}
