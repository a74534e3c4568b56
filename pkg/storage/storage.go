package storage

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Type string

const (
	Bolt   Type = "bolt"
	Redis  Type = "redis"
	Memory Type = "memory"
)

// OptionKey uniquely identifies an option
type OptionKey string

const (
	BoltDBFilePathOption OptionKey = "bolt-db-filepath-option"
	RedisAddressOption   OptionKey = "redis-address-option"
	PasswordOption       OptionKey = "storage-password-option"
)

// Option represents a single option that may be required for a storage provider
type Option struct {
	ID     OptionKey `json:"id,omitempty"`
	Option any       `json:"option,omitempty"`
}

// ServiceStorage describes the api for storage independent of DB providers.
// Reading a key that does not exist returns a nil value and no error.
type ServiceStorage interface {
	Init(opts ...Option) error
	Type() Type
	URI() string
	IsOpen() bool
	Close() error
	Write(ctx context.Context, namespace, key string, value []byte) error
	Read(ctx context.Context, namespace, key string) ([]byte, error)
	Exists(ctx context.Context, namespace, key string) (bool, error)
	ReadAll(ctx context.Context, namespace string) (map[string][]byte, error)
	ReadAllKeys(ctx context.Context, namespace string) ([]string, error)
	ReadPrefix(ctx context.Context, namespace, prefix string) (map[string][]byte, error)
	Delete(ctx context.Context, namespace, key string) error
	DeleteNamespace(ctx context.Context, namespace string) error
}

var availableStorages = make(map[Type]func() ServiceStorage)

// RegisterStorage registers a constructor for a storage type. Called from init by each implementation.
func RegisterStorage(t Type, constructor func() ServiceStorage) error {
	if _, ok := availableStorages[t]; ok {
		return errors.Errorf("storage<%s> already registered", t)
	}
	availableStorages[t] = constructor
	logrus.Debugf("storage<%s> registered", t)
	return nil
}

// IsStorageAvailable reports whether a storage type has been registered
func IsStorageAvailable(t Type) bool {
	_, ok := availableStorages[t]
	return ok
}

// NewStorage creates and initializes a storage of the given type
func NewStorage(t Type, opts ...Option) (ServiceStorage, error) {
	constructor, ok := availableStorages[t]
	if !ok {
		return nil, errors.Errorf("unsupported storage type: %s", t)
	}
	s := constructor()
	if err := s.Init(opts...); err != nil {
		return nil, errors.Wrapf(err, "initializing storage<%s>", t)
	}
	return s, nil
}

// MakeNamespace takes a set of possible namespace values and combines them as a convention
func MakeNamespace(ns ...string) string {
	return strings.Join(ns, "-")
}

func optionValue(opts []Option, id OptionKey) (any, bool) {
	for _, opt := range opts {
		if opt.ID == id {
			return opt.Option, true
		}
	}
	return nil, false
}

func stringOption(opts []Option, id OptionKey) (string, error) {
	v, ok := optionValue(opts, id)
	if !ok {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("option<%s> must be a string", id)
	}
	return s, nil
}
