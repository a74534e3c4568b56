// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/tbd54566975/ssi-wallet/internal/keyaccess"
	"github.com/tbd54566975/ssi-wallet/pkg/localkms"
	"github.com/tbd54566975/ssi-wallet/pkg/storage"
)

// TestDatabases lists every storage backend tests should run against.
var TestDatabases = []struct {
	Name           string
	ServiceStorage func(t *testing.T) storage.ServiceStorage
}{
	{
		Name:           "Test with Bolt DB",
		ServiceStorage: setupBoltTestDB,
	},
	{
		Name:           "Test with Redis DB",
		ServiceStorage: setupRedisTestDB,
	},
	{
		Name:           "Test with Memory DB",
		ServiceStorage: setupMemoryTestDB,
	},
}

func setupBoltTestDB(t *testing.T) storage.ServiceStorage {
	s, err := storage.NewStorage(storage.Bolt, storage.Option{
		ID:     storage.BoltDBFilePathOption,
		Option: filepath.Join(t.TempDir(), "bolt.db"),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func setupRedisTestDB(t *testing.T) storage.ServiceStorage {
	server := miniredis.RunT(t)
	server.RequireAuth("test-password")
	options := []storage.Option{
		{
			ID:     storage.RedisAddressOption,
			Option: server.Addr(),
		},
		{
			ID:     storage.PasswordOption,
			Option: "test-password",
		},
	}
	s, err := storage.NewStorage(storage.Redis, options...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func setupMemoryTestDB(t *testing.T) storage.ServiceStorage {
	s, err := storage.NewStorage(storage.Memory)
	require.NoError(t, err)
	return s
}

// Party is a DID controlling one key held by a LocalKMS.
type Party struct {
	DID   string
	KeyID string
	KA    *keyaccess.CryptoKeyAccess
}

// NewParty creates a key of type kt in kms.
func NewParty(t *testing.T, kms *localkms.LocalKMS, kt localkms.KeyType) Party {
	ctx := context.Background()
	created, err := kms.CreateKey(ctx, kt)
	require.NoError(t, err)
	handle, err := kms.Get(ctx, created.ID)
	require.NoError(t, err)
	ka, err := keyaccess.NewCryptoKeyAccess(kms, handle)
	require.NoError(t, err)
	return Party{DID: created.DID, KeyID: created.ID, KA: ka}
}

// NewKMS returns a LocalKMS over in-memory storage.
func NewKMS(t *testing.T) *localkms.LocalKMS {
	kms, err := localkms.New(setupMemoryTestDB(t), nil)
	require.NoError(t, err)
	return kms
}
