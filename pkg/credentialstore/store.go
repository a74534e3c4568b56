// Package credentialstore keeps the credentials held by the wallet. It is the default CredentialReader.
package credentialstore

import (
	"context"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/api"
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/storage"
)

const namespace = "credential"

var ErrAlreadyExists = errors.New("credential already stored")

// StoredCredential is a credential as kept in storage, denormalized for listing.
type StoredCredential struct {
	ID         string            `json:"id"`
	Issuer     string            `json:"issuer"`
	Subject    string            `json:"subject,omitempty"`
	Types      []string          `json:"types"`
	Format     credential.Format `json:"format"`
	ValidUntil *time.Time        `json:"validUntil,omitempty"`
	AddedAt    time.Time         `json:"addedAt"`
	// Credential is the credential exactly as received.
	Credential []byte `json:"credential"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Issuer  string
	Subject string
	Type    string
}

func (f Filter) matches(c StoredCredential) bool {
	if f.Issuer != "" && c.Issuer != f.Issuer {
		return false
	}
	if f.Subject != "" && c.Subject != f.Subject {
		return false
	}
	if f.Type == "" {
		return true
	}
	for _, t := range c.Types {
		if t == f.Type {
			return true
		}
	}
	return false
}

type Store struct {
	db    storage.ServiceStorage
	clock clock.Clock
}

var _ api.CredentialReader = (*Store)(nil)

func NewStore(db storage.ServiceStorage, c clock.Clock) (*Store, error) {
	if db == nil {
		return nil, errors.New("db reference is nil")
	}
	if c == nil {
		c = clock.New()
	}
	return &Store{db: db, clock: c}, nil
}

// Add parses and stores raw. The credential id is its own id, or a fresh urn:uuid when it has none.
func (s *Store) Add(ctx context.Context, raw []byte) (*StoredCredential, error) {
	cred, err := credential.ParseCredential(raw)
	if err != nil {
		return nil, errors.Wrap(err, "parsing credential")
	}
	id := cred.ID
	if id == "" {
		id = "urn:uuid:" + uuid.NewString()
	}
	exists, err := s.db.Exists(ctx, namespace, id)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "checking for credential %s", id)
	}
	if exists {
		return nil, errors.Wrapf(ErrAlreadyExists, "credential<%s>", id)
	}

	stored := StoredCredential{
		ID:         id,
		Issuer:     cred.Issuer,
		Subject:    cred.Subject,
		Types:      cred.Types,
		Format:     cred.Format,
		ValidUntil: cred.ValidUntil,
		AddedAt:    s.clock.Now().UTC(),
		Credential: cred.Raw,
	}
	storedBytes, err := json.Marshal(stored)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not marshal credential %s", id)
	}
	if err = s.db.Write(ctx, namespace, id, storedBytes); err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not store credential %s", id)
	}
	logrus.WithContext(ctx).WithField("id", util.SanitizeLog(id)).Debug("stored credential")
	return &stored, nil
}

// Get implements api.CredentialReader.
func (s *Store) Get(ctx context.Context, id string) ([]byte, error) {
	stored, err := s.GetStored(ctx, id)
	if err != nil {
		return nil, err
	}
	return stored.Credential, nil
}

func (s *Store) GetStored(ctx context.Context, id string) (*StoredCredential, error) {
	storedBytes, err := s.db.Read(ctx, namespace, id)
	if err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not get credential %s", id)
	}
	if len(storedBytes) == 0 {
		return nil, errors.Wrapf(api.ErrNotFound, "credential<%s>", id)
	}
	var stored StoredCredential
	if err = json.Unmarshal(storedBytes, &stored); err != nil {
		return nil, util.LoggingErrorMsgf(err, "could not unmarshal stored credential %s", id)
	}
	return &stored, nil
}

// List returns the stored credentials matching filter, oldest first. Entries that cannot be decoded are logged
// and skipped.
func (s *Store) List(ctx context.Context, filter Filter) ([]StoredCredential, error) {
	all, err := s.db.ReadAll(ctx, namespace)
	if err != nil {
		return nil, util.LoggingErrorMsg(err, "could not read credentials")
	}
	creds := make([]StoredCredential, 0, len(all))
	for key, storedBytes := range all {
		var stored StoredCredential
		if err = json.Unmarshal(storedBytes, &stored); err != nil {
			logrus.WithError(err).Errorf("could not unmarshal credential with key: %s", key)
			continue
		}
		if filter.matches(stored) {
			creds = append(creds, stored)
		}
	}
	sort.Slice(creds, func(i, j int) bool {
		if creds[i].AddedAt.Equal(creds[j].AddedAt) {
			return creds[i].ID < creds[j].ID
		}
		return creds[i].AddedAt.Before(creds[j].AddedAt)
	})
	return creds, nil
}

// Raw returns the credentials matching filter as received, in List order.
func (s *Store) Raw(ctx context.Context, filter Filter) ([][]byte, error) {
	creds, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	raw := make([][]byte, 0, len(creds))
	for _, c := range creds {
		raw = append(raw, c.Credential)
	}
	return raw, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	exists, err := s.db.Exists(ctx, namespace, id)
	if err != nil {
		return util.LoggingErrorMsgf(err, "checking for credential %s", id)
	}
	if !exists {
		return errors.Wrapf(api.ErrNotFound, "credential<%s>", id)
	}
	if err = s.db.Delete(ctx, namespace, id); err != nil {
		return util.LoggingErrorMsgf(err, "could not delete credential %s", id)
	}
	return nil
}
