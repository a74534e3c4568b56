// Package encryption provides the authenticated encryption used for wallet data at rest. Data is encrypted with a
// tink XChaCha20-Poly1305 keyset, and the keyset is in turn encrypted with a key derived from the wallet password.
package encryption

import (
	"bytes"
	"context"

	"github.com/google/tink/go/aead"
	"github.com/google/tink/go/keyset"
	"github.com/google/tink/go/tink"
	"github.com/pkg/errors"

	"github.com/tbd54566975/ssi-wallet/internal/util"
)

// ErrWrongPassword is returned when a stored keyset cannot be opened with the given password.
var ErrWrongPassword = errors.New("keyset cannot be decrypted with this password")

// AEAD encrypts and decrypts values bound to associated data, typically the record's location.
type AEAD interface {
	Encrypt(ctx context.Context, plaintext, associatedData []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext, associatedData []byte) ([]byte, error)
}

// StaticKeyAEAD is XChaCha20-Poly1305 under a fixed 32 byte key.
type StaticKeyAEAD struct {
	key []byte
}

func NewStaticKeyAEAD(key []byte) *StaticKeyAEAD {
	return &StaticKeyAEAD{key: key}
}

func (s StaticKeyAEAD) Encrypt(_ context.Context, plaintext, associatedData []byte) ([]byte, error) {
	sealed, err := util.SealXChaCha20Poly1305(s.key, plaintext, associatedData)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not encrypt data")
	}
	return sealed, nil
}

func (s StaticKeyAEAD) Decrypt(_ context.Context, ciphertext, associatedData []byte) ([]byte, error) {
	opened, err := util.OpenXChaCha20Poly1305(s.key, ciphertext, associatedData)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not decrypt data")
	}
	return opened, nil
}

// tink keyset writers want the context-free interface
func (s StaticKeyAEAD) tink() tink.AEAD {
	return tinkAdapter{s}
}

type tinkAdapter struct {
	s StaticKeyAEAD
}

func (t tinkAdapter) Encrypt(plaintext, associatedData []byte) ([]byte, error) {
	return util.SealXChaCha20Poly1305(t.s.key, plaintext, associatedData)
}

func (t tinkAdapter) Decrypt(ciphertext, associatedData []byte) ([]byte, error) {
	return util.OpenXChaCha20Poly1305(t.s.key, ciphertext, associatedData)
}

// Keyset is an AEAD over a tink keyset together with the keyset's encrypted form.
type Keyset struct {
	primitive tink.AEAD
	encrypted []byte
}

func (k *Keyset) Encrypt(_ context.Context, plaintext, associatedData []byte) ([]byte, error) {
	return k.primitive.Encrypt(plaintext, associatedData)
}

func (k *Keyset) Decrypt(_ context.Context, ciphertext, associatedData []byte) ([]byte, error) {
	return k.primitive.Decrypt(ciphertext, associatedData)
}

// Encrypted returns the keyset encrypted under the master key. It is what must be persisted to open the keyset
// again.
func (k *Keyset) Encrypted() []byte {
	return k.encrypted
}

// OpenKeyset decrypts encryptedKeyset with masterKey, or generates a new keyset when encryptedKeyset is empty.
func OpenKeyset(masterKey, encryptedKeyset []byte) (*Keyset, error) {
	master := NewStaticKeyAEAD(masterKey).tink()

	var kh *keyset.Handle
	var err error
	if len(encryptedKeyset) == 0 {
		if kh, err = keyset.NewHandle(aead.XChaCha20Poly1305KeyTemplate()); err != nil {
			return nil, errors.Wrap(err, "creating keyset")
		}
		buf := new(bytes.Buffer)
		if err = kh.Write(keyset.NewBinaryWriter(buf), master); err != nil {
			return nil, errors.Wrap(err, "encrypting keyset")
		}
		encryptedKeyset = buf.Bytes()
	} else if kh, err = keyset.Read(keyset.NewBinaryReader(bytes.NewReader(encryptedKeyset)), master); err != nil {
		return nil, errors.Wrap(ErrWrongPassword, err.Error())
	}

	primitive, err := aead.New(kh)
	if err != nil {
		return nil, errors.Wrap(err, "creating aead from keyset")
	}
	return &Keyset{primitive: primitive, encrypted: encryptedKeyset}, nil
}

// OpenPasswordKeyset derives the master key from password and salt with Argon2id and opens the keyset.
func OpenPasswordKeyset(password string, salt, encryptedKeyset []byte) (*Keyset, error) {
	masterKey, err := util.DeriveEncryptionKey(password, salt)
	if err != nil {
		return nil, errors.Wrap(err, "deriving master key")
	}
	return OpenKeyset(masterKey, encryptedKeyset)
}

var (
	_ AEAD = (*StaticKeyAEAD)(nil)
	_ AEAD = (*Keyset)(nil)
)
