package localkms

import (
	"context"
	"sort"

	"github.com/goccy/go-json"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/api"
	"github.com/tbd54566975/ssi-wallet/pkg/storage"
)

// KeyType names the kind of key material held.
type KeyType string

const (
	Ed25519 KeyType = "Ed25519"
	P256    KeyType = "P-256"
)

// StoredKey represents a common data model to store data on all key types
type StoredKey struct {
	ID         string                 `json:"id"`
	Controller string                 `json:"controller"`
	KeyType    KeyType                `json:"keyType"`
	Algorithm  jwa.SignatureAlgorithm `json:"alg"`
	Base58Key  string                 `json:"key"`
	CreatedAt  string                 `json:"createdAt"`
}

// KeyDetails represents a common data model to get information about a key, without revealing the key itself
type KeyDetails struct {
	ID         string                 `json:"id"`
	Controller string                 `json:"controller"`
	KeyType    KeyType                `json:"keyType"`
	Algorithm  jwa.SignatureAlgorithm `json:"alg"`
	CreatedAt  string                 `json:"createdAt"`
}

const (
	namespace = "keystore"
)

// Storage persists keys. The underlying db is expected to encrypt values at rest.
type Storage struct {
	db storage.ServiceStorage
}

func NewKeyStoreStorage(db storage.ServiceStorage) (*Storage, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &Storage{db: db}, nil
}

func (kss *Storage) StoreKey(ctx context.Context, key StoredKey) error {
	id := key.ID
	if id == "" {
		return util.LoggingNewError("could not store key without an ID")
	}
	keyBytes, err := json.Marshal(key)
	if err != nil {
		return util.LoggingErrorMsgf(err, "could not store key: %s", id)
	}
	return kss.db.Write(ctx, namespace, id, keyBytes)
}

func (kss *Storage) GetKey(ctx context.Context, id string) (*StoredKey, error) {
	storedKeyBytes, err := kss.db.Read(ctx, namespace, id)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not get key details for key: %s", id)
	}
	if len(storedKeyBytes) == 0 {
		return nil, errors.Wrapf(api.ErrNotFound, "key<%s>", id)
	}
	var stored StoredKey
	if err = json.Unmarshal(storedKeyBytes, &stored); err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not unmarshal stored key: %s", id)
	}
	return &stored, nil
}

func (kss *Storage) GetKeyDetails(ctx context.Context, id string) (*KeyDetails, error) {
	stored, err := kss.GetKey(ctx, id)
	if err != nil {
		return nil, err
	}
	return stored.details(), nil
}

// ListKeys returns details of every stored key ordered by id
func (kss *Storage) ListKeys(ctx context.Context) ([]KeyDetails, error) {
	all, err := kss.db.ReadAll(ctx, namespace)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not list keys")
	}
	details := make([]KeyDetails, 0, len(all))
	for id, keyBytes := range all {
		var stored StoredKey
		if err = json.Unmarshal(keyBytes, &stored); err != nil {
			return nil, util.LoggingErrorMsgf(err, "could not unmarshal stored key: %s", id)
		}
		details = append(details, *stored.details())
	}
	sort.Slice(details, func(i, j int) bool { return details[i].ID < details[j].ID })
	return details, nil
}

func (kss *Storage) DeleteKey(ctx context.Context, id string) error {
	exists, err := kss.db.Exists(ctx, namespace, id)
	if err != nil {
		return err
	}
	if !exists {
		return errors.Wrapf(api.ErrNotFound, "key<%s>", id)
	}
	return kss.db.Delete(ctx, namespace, id)
}

func (k StoredKey) details() *KeyDetails {
	return &KeyDetails{
		ID:         k.ID,
		Controller: k.Controller,
		KeyType:    k.KeyType,
		Algorithm:  k.Algorithm,
		CreatedAt:  k.CreatedAt,
	}
}
