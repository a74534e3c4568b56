package verifier

import (
	"context"
	"testing"

	credsdk "github.com/TBD54566975/ssi-sdk/credential"
	statussdk "github.com/TBD54566975/ssi-sdk/credential/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/h2non/gock.v1"

	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

const statusListURL = "https://status.example/lists/1"

func statusEntry(index string) statussdk.StatusList2021Entry {
	return statussdk.StatusList2021Entry{
		ID:                   statusListURL + "#" + index,
		Type:                 statussdk.StatusList2021EntryType,
		StatusPurpose:        statussdk.StatusRevocation,
		StatusListIndex:      index,
		StatusListCredential: statusListURL,
	}
}

// statusList signs a revocation list with p in which the given credentials are set.
func statusList(t *testing.T, p party, revoked ...[]byte) []byte {
	creds := make([]credsdk.VerifiableCredential, 0, len(revoked))
	for _, raw := range revoked {
		parsed, err := credential.ParseCredential(raw)
		require.NoError(t, err)
		var vc credsdk.VerifiableCredential
		require.NoError(t, remarshal(parsed.Document(), &vc))
		creds = append(creds, vc)
	}
	generated, err := statussdk.GenerateStatusList2021Credential(statusListURL, p.did, statussdk.StatusRevocation, creds)
	require.NoError(t, err)
	return signJWT(t, p, credential.Template{
		ID:      generated.ID,
		Issuer:  p.did,
		Types:   []string{"StatusList2021Credential"},
		Subject: generated.CredentialSubject,
	})
}

func TestVerifyStatus(t *testing.T) {
	defer gock.Off()

	f := newFixture(t)
	v := f.verifier(t, nil)
	ctx := context.Background()

	withStatus := func(id, index string) []byte {
		tmpl := template(id, f.issuer.did)
		tmpl.Status = statusEntry(index)
		return signJWT(t, f.issuer, tmpl)
	}
	active := withStatus("urn:uuid:active", "7")
	revoked := withStatus("urn:uuid:revoked", "42")

	t.Run("credential not in list", func(tt *testing.T) {
		gock.New("https://status.example").Get("/lists/1").Reply(200).BodyString(string(statusList(tt, f.issuer, revoked)))

		report, err := v.Verify(ctx, VerifyOpts{RawCredential: active})
		require.NoError(tt, err)
		assert.Equal(tt, []Check{passed(CheckProof), passed(CheckValidPeriod), passed(CheckStatus)}, report.Credentials[0].Checks)
	})

	t.Run("revoked credential", func(tt *testing.T) {
		gock.New("https://status.example").Get("/lists/1").Reply(200).BodyString(string(statusList(tt, f.issuer, revoked)))

		report, err := v.Verify(ctx, VerifyOpts{RawCredential: revoked})
		assert.True(tt, walleterror.IsKind(err, walleterror.Revoked))
		checks := report.Credentials[0].Checks
		require.Len(tt, checks, 3)
		assert.True(tt, checks[0].Passed)
		assert.Equal(tt, CheckStatus, checks[2].Name)
		assert.False(tt, checks[2].Passed)
	})

	t.Run("status list unavailable", func(tt *testing.T) {
		gock.New("https://status.example").Get("/lists/1").Reply(404)

		_, err := v.Verify(ctx, VerifyOpts{RawCredential: active})
		var werr *walleterror.Error
		require.ErrorAs(tt, err, &werr)
		assert.Equal(tt, walleterror.CollaboratorError, werr.Kind)
		assert.Equal(tt, "StatusList.Get", werr.Call)
		assert.Equal(tt, statusListURL, werr.ID)
	})

	t.Run("tampered status list", func(tt *testing.T) {
		forged := tamper(tt, statusList(tt, f.issuer))
		gock.New("https://status.example").Get("/lists/1").Reply(200).BodyString(string(forged))

		_, err := v.Verify(ctx, VerifyOpts{RawCredential: active})
		assert.True(tt, walleterror.IsKind(err, walleterror.InvalidSignature))
	})

	t.Run("unsupported status type is not checked", func(tt *testing.T) {
		tmpl := template("urn:uuid:other", f.issuer.did)
		tmpl.Status = map[string]any{"id": "https://status.example/other#1", "type": "CredentialStatusList2017"}
		report, err := v.Verify(ctx, VerifyOpts{RawCredential: signJWT(tt, f.issuer, tmpl)})
		require.NoError(tt, err)
		assert.Equal(tt, []Check{passed(CheckProof), passed(CheckValidPeriod)}, report.Credentials[0].Checks)
	})

	assert.True(t, gock.IsDone())
}
