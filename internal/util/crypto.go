package util

import (
	"crypto/rand"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// SaltSize is the salt length used for password key derivation.
const SaltSize = 16

// KeyDerivation holds Argon2id cost parameters. Memory is in KiB.
type KeyDerivation struct {
	Time    uint32
	Memory  uint32
	Threads uint8
}

// DefaultKeyDerivation follows the golang.org/x/crypto/argon2 recommendation for interactive use.
var DefaultKeyDerivation = KeyDerivation{Time: 1, Memory: 64 * 1024, Threads: 4}

// DeriveKey stretches password into a keyLen byte key.
func (kd KeyDerivation) DeriveKey(password string, salt []byte, keyLen int) ([]byte, error) {
	switch {
	case password == "":
		return nil, errors.New("password cannot be empty")
	case len(salt) == 0:
		return nil, errors.New("salt cannot be empty")
	case keyLen <= 0:
		return nil, errors.Errorf("invalid key length: %d", keyLen)
	}
	return argon2.IDKey([]byte(password), salt, kd.Time, kd.Memory, kd.Threads, uint32(keyLen)), nil
}

// DeriveEncryptionKey derives an XChaCha20-Poly1305 key from password with the default cost.
func DeriveEncryptionKey(password string, salt []byte) ([]byte, error) {
	return DefaultKeyDerivation.DeriveKey(password, salt, chacha20poly1305.KeySize)
}

// SealXChaCha20Poly1305 encrypts plaintext bound to additionalData. The output is nonce || ciphertext.
func SealXChaCha20Poly1305(key, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating aead")
	}
	out := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err = rand.Read(out); err != nil {
		return nil, errors.Wrap(err, "generating nonce")
	}
	return aead.Seal(out, out, plaintext, additionalData), nil
}

// OpenXChaCha20Poly1305 reverses SealXChaCha20Poly1305.
func OpenXChaCha20Poly1305(key, sealed, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating aead")
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, errors.Wrap(err, "decrypting")
	}
	return plaintext, nil
}

func GenerateSalt(size int) ([]byte, error) {
	if size <= 0 {
		return nil, errors.Errorf("invalid salt size: %d", size)
	}
	salt := make([]byte, size)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.Wrap(err, "reading random bytes")
	}
	return salt, nil
}
