package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-wallet/pkg/encryption"
)

// EncryptedWrapper encrypts values before they reach the wrapped storage. Every value is bound to its namespace
// and key, so a ciphertext copied to another record fails to decrypt. Namespaces and keys stay in the clear.
type EncryptedWrapper struct {
	ServiceStorage
	aead encryption.AEAD
}

func NewEncryptedWrapper(s ServiceStorage, aead encryption.AEAD) *EncryptedWrapper {
	return &EncryptedWrapper{ServiceStorage: s, aead: aead}
}

func recordID(namespace, key string) []byte {
	return []byte(namespace + "\x00" + key)
}

func (e *EncryptedWrapper) Write(ctx context.Context, namespace, key string, value []byte) error {
	sealed, err := e.aead.Encrypt(ctx, value, recordID(namespace, key))
	if err != nil {
		return errors.Wrapf(err, "encrypting %s/%s", namespace, key)
	}
	return e.ServiceStorage.Write(ctx, namespace, key, sealed)
}

func (e *EncryptedWrapper) Read(ctx context.Context, namespace, key string) ([]byte, error) {
	sealed, err := e.ServiceStorage.Read(ctx, namespace, key)
	if err != nil || sealed == nil {
		return nil, err
	}
	return e.open(ctx, namespace, key, sealed)
}

func (e *EncryptedWrapper) ReadAll(ctx context.Context, namespace string) (map[string][]byte, error) {
	sealed, err := e.ServiceStorage.ReadAll(ctx, namespace)
	if err != nil {
		return nil, err
	}
	return e.openAll(ctx, namespace, sealed)
}

func (e *EncryptedWrapper) ReadPrefix(ctx context.Context, namespace, prefix string) (map[string][]byte, error) {
	sealed, err := e.ServiceStorage.ReadPrefix(ctx, namespace, prefix)
	if err != nil {
		return nil, err
	}
	return e.openAll(ctx, namespace, sealed)
}

func (e *EncryptedWrapper) open(ctx context.Context, namespace, key string, sealed []byte) ([]byte, error) {
	value, err := e.aead.Decrypt(ctx, sealed, recordID(namespace, key))
	if err != nil {
		return nil, errors.Wrapf(err, "decrypting %s/%s", namespace, key)
	}
	return value, nil
}

func (e *EncryptedWrapper) openAll(ctx context.Context, namespace string, sealed map[string][]byte) (map[string][]byte, error) {
	values := make(map[string][]byte, len(sealed))
	for key, s := range sealed {
		value, err := e.open(ctx, namespace, key, s)
		if err != nil {
			return nil, err
		}
		values[key] = value
	}
	return values, nil
}

var _ ServiceStorage = (*EncryptedWrapper)(nil)
