// Package wallet assembles the wallet from its configuration: encrypted storage, the local key store, the
// credential store, DID resolution, the verifier, the presentation-exchange matcher and issuance sessions.
package wallet

import (
	"context"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbd54566975/ssi-wallet/config"
	"github.com/tbd54566975/ssi-wallet/internal/keyaccess"
	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/credential"
	"github.com/tbd54566975/ssi-wallet/pkg/credentialstore"
	"github.com/tbd54566975/ssi-wallet/pkg/did"
	"github.com/tbd54566975/ssi-wallet/pkg/encryption"
	"github.com/tbd54566975/ssi-wallet/pkg/httpclient"
	"github.com/tbd54566975/ssi-wallet/pkg/localkms"
	"github.com/tbd54566975/ssi-wallet/pkg/openid4ci"
	"github.com/tbd54566975/ssi-wallet/pkg/presexch"
	"github.com/tbd54566975/ssi-wallet/pkg/storage"
	"github.com/tbd54566975/ssi-wallet/pkg/verifier"
	"github.com/tbd54566975/ssi-wallet/pkg/walleterror"
)

const (
	metaNamespace = "wallet-meta"
	saltKey       = "salt"
	keysetKey     = "keyset"
)

type Wallet struct {
	cfg config.WalletConfig

	db          storage.ServiceStorage
	kms         *localkms.LocalKMS
	credentials *credentialstore.Store
	resolver    *did.CachingResolver
	httpClient  *http.Client
	verifier    *verifier.Verifier
	matcher     *presexch.Matcher

	clock          clock.Clock
	tracerProvider trace.TracerProvider
}

type Option func(*Wallet)

func WithClock(c clock.Clock) Option {
	return func(w *Wallet) {
		w.clock = c
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(w *Wallet) {
		w.tracerProvider = tp
	}
}

// WithStorage uses db instead of opening the configured storage provider.
func WithStorage(db storage.ServiceStorage) Option {
	return func(w *Wallet) {
		w.db = db
	}
}

func WithHTTPClient(client *http.Client) Option {
	return func(w *Wallet) {
		w.httpClient = client
	}
}

// New opens the wallet described by cfg. Values are encrypted at rest when an encryption password is configured;
// the key is derived from the password with a salt kept next to the data.
func New(ctx context.Context, cfg config.WalletConfig, opts ...Option) (*Wallet, error) {
	w := &Wallet{cfg: cfg}
	for _, opt := range opts {
		opt(w)
	}
	if w.clock == nil {
		w.clock = clock.New()
	}
	if w.tracerProvider == nil {
		w.tracerProvider = otel.GetTracerProvider()
	}
	if w.db == nil {
		db, err := openStorage(cfg.Storage)
		if err != nil {
			return nil, err
		}
		w.db = db
	}

	secured, err := w.secureStorage(ctx)
	if err != nil {
		return nil, err
	}
	if w.kms, err = localkms.New(secured, w.clock); err != nil {
		return nil, errors.Wrap(err, "creating key store")
	}
	if w.credentials, err = credentialstore.NewStore(secured, w.clock); err != nil {
		return nil, errors.Wrap(err, "creating credential store")
	}

	if w.httpClient == nil {
		w.httpClient = httpclient.New(httpclient.Config{Timeout: cfg.HTTP.Timeout, MaxRetries: cfg.HTTP.MaxRetries})
	}
	methods := cfg.DID.ResolutionMethods
	if len(methods) == 0 {
		methods = []string{did.KeyMethod, did.JWKMethod, did.WebMethod}
	}
	resolver, err := did.BuildMultiMethodResolver(methods, w.httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "building did resolver")
	}
	// DID documents are public, so the cache lives in the unencrypted store.
	if w.resolver, err = did.NewCachingResolver(resolver, w.db, cfg.DID.CacheTTL, w.clock); err != nil {
		return nil, errors.Wrap(err, "creating did cache")
	}

	w.verifier, err = verifier.New(w.kms, w.resolver, w.credentials, w.kms,
		verifier.WithClock(w.clock), verifier.WithTracerProvider(w.tracerProvider), verifier.WithHTTPClient(w.httpClient))
	if err != nil {
		return nil, err
	}
	w.matcher = presexch.NewMatcher()

	logrus.WithContext(ctx).WithFields(logrus.Fields{
		"storage":   w.db.Type(),
		"encrypted": cfg.Storage.EncryptionPassword != "",
		"methods":   methods,
	}).Info("wallet opened")
	return w, nil
}

func openStorage(cfg config.StorageConfig) (storage.ServiceStorage, error) {
	var opts []storage.Option
	switch storage.Type(cfg.Provider) {
	case storage.Bolt:
		opts = append(opts, storage.Option{ID: storage.BoltDBFilePathOption, Option: cfg.BoltPath})
	case storage.Redis:
		opts = append(opts,
			storage.Option{ID: storage.RedisAddressOption, Option: cfg.RedisAddress},
			storage.Option{ID: storage.PasswordOption, Option: cfg.RedisPassword})
	case storage.Memory:
	default:
		return nil, errors.Errorf("unsupported storage provider: %s", cfg.Provider)
	}
	db, err := storage.NewStorage(storage.Type(cfg.Provider), opts...)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s storage", cfg.Provider)
	}
	return db, nil
}

// secureStorage wraps the store with a tink AEAD whose keyset is encrypted under the password derived key.
func (w *Wallet) secureStorage(ctx context.Context) (storage.ServiceStorage, error) {
	password := w.cfg.Storage.EncryptionPassword
	if password == "" {
		logrus.WithContext(ctx).Warn("no encryption password configured, wallet data is stored in the clear")
		return w.db, nil
	}

	salt, err := w.db.Read(ctx, metaNamespace, saltKey)
	if err != nil {
		return nil, errors.Wrap(err, "reading salt")
	}
	if len(salt) == 0 {
		if salt, err = util.GenerateSalt(util.SaltSize); err != nil {
			return nil, errors.Wrap(err, "generating salt")
		}
		if err = w.db.Write(ctx, metaNamespace, saltKey, salt); err != nil {
			return nil, errors.Wrap(err, "storing salt")
		}
	}
	storedKeyset, err := w.db.Read(ctx, metaNamespace, keysetKey)
	if err != nil {
		return nil, errors.Wrap(err, "reading keyset")
	}
	ks, err := encryption.OpenPasswordKeyset(password, salt, storedKeyset)
	if err != nil {
		return nil, err
	}
	if len(storedKeyset) == 0 {
		if err = w.db.Write(ctx, metaNamespace, keysetKey, ks.Encrypted()); err != nil {
			return nil, errors.Wrap(err, "storing keyset")
		}
	}
	return storage.NewEncryptedWrapper(w.db, ks), nil
}

func (w *Wallet) Close() error {
	return w.db.Close()
}

func (w *Wallet) KMS() *localkms.LocalKMS {
	return w.kms
}

func (w *Wallet) Credentials() *credentialstore.Store {
	return w.credentials
}

func (w *Wallet) Resolver() *did.CachingResolver {
	return w.resolver
}

func (w *Wallet) Verifier() *verifier.Verifier {
	return w.verifier
}

func (w *Wallet) Matcher() *presexch.Matcher {
	return w.matcher
}

func (w *Wallet) HTTPClient() *http.Client {
	return w.httpClient
}

// NewIssuanceSession starts an issuance session for offer backed by the wallet's capabilities.
func (w *Wallet) NewIssuanceSession(offer []byte, format string) (*openid4ci.Session, error) {
	return openid4ci.NewSession(offer, format, &openid4ci.Config{
		CredentialReader:     w.credentials,
		KeyHandleReader:      w.kms,
		DIDResolver:          w.resolver,
		Crypto:               w.kms,
		HTTPClient:           w.httpClient,
		ClientID:             w.cfg.Wallet.ClientID,
		Clock:                w.clock,
		DisableVCProofChecks: w.cfg.Wallet.DisableVCProofChecks,
		TracerProvider:       w.tracerProvider,
	})
}

// BindingKey returns the key issued credentials are bound to: the configured key, else the oldest held key,
// else a new P-256 key.
func (w *Wallet) BindingKey(ctx context.Context) (string, error) {
	if id := w.cfg.Wallet.KeyID; id != "" {
		if _, err := w.kms.Get(ctx, id); err != nil {
			return "", errors.Wrapf(err, "configured key %s", id)
		}
		return id, nil
	}
	keys, err := w.kms.ListKeys(ctx)
	if err != nil {
		return "", errors.Wrap(err, "listing keys")
	}
	if len(keys) > 0 {
		oldest := keys[0]
		for _, k := range keys[1:] {
			if k.CreatedAt < oldest.CreatedAt {
				oldest = k
			}
		}
		return oldest.ID, nil
	}
	created, err := w.kms.CreateKey(ctx, localkms.P256)
	if err != nil {
		return "", errors.Wrap(err, "creating binding key")
	}
	return created.ID, nil
}

// AcceptOffer runs a pre-authorized offer to completion, stores the issued credential and tells the issuer the
// outcome if it asked for an acknowledgment.
func (w *Wallet) AcceptOffer(ctx context.Context, offer []byte, format, pin string) (*credentialstore.StoredCredential, error) {
	session, err := w.NewIssuanceSession(offer, format)
	if err != nil {
		return nil, err
	}
	var authOpts []openid4ci.AuthorizeOption
	if pin != "" {
		authOpts = append(authOpts, openid4ci.WithPIN(pin))
	}
	if _, err = session.Authorize(ctx, "", "", authOpts...); err != nil {
		return nil, err
	}
	keyID, err := w.BindingKey(ctx)
	if err != nil {
		return nil, err
	}
	if _, err = session.RequestCredential(ctx, "", keyID); err != nil && !session.State().Terminal() {
		return nil, err
	}
	return w.CompleteIssuance(ctx, session)
}

// CompleteIssuance finishes a session RequestCredential ended. The credential of a Completed session is stored;
// an Errored session returns its failure. Either way the issuer is told the outcome if it asked for an
// acknowledgment.
func (w *Wallet) CompleteIssuance(ctx context.Context, session *openid4ci.Session) (*credentialstore.StoredCredential, error) {
	switch session.State() {
	case openid4ci.StateCompleted:
		stored, err := w.credentials.Add(ctx, session.Credential())
		w.acknowledge(ctx, session, err == nil)
		return stored, err
	case openid4ci.StateErrored:
		w.acknowledge(ctx, session, false)
		return nil, session.Err()
	}
	return nil, walleterror.Newf(walleterror.InvalidState, "issuance session is %s, not finished", session.State())
}

// acknowledge reports the outcome of a finished issuance when the issuer asked for it. Failures only get logged.
func (w *Wallet) acknowledge(ctx context.Context, session *openid4ci.Session, accepted bool) {
	if !session.RequiresAcknowledgment() {
		return
	}
	if err := session.Acknowledge(ctx, accepted); err != nil {
		logrus.WithContext(ctx).WithError(err).Warn("could not acknowledge issuer")
	}
}

// Present selects stored credentials for the presentation definition and wraps them in a VP-JWT signed with the
// binding key.
func (w *Wallet) Present(ctx context.Context, definition []byte, audience, nonce string) ([]byte, error) {
	def, err := presexch.ParseDefinition(definition)
	if err != nil {
		return nil, walleterror.Wrap(walleterror.MalformedInput, err, "parsing presentation definition")
	}
	stored, err := w.credentials.List(ctx, credentialstore.Filter{})
	if err != nil {
		return nil, err
	}
	candidates := make([]*credential.Credential, 0, len(stored))
	for _, s := range stored {
		cred, err := credential.ParseCredential(s.Credential)
		if err != nil {
			logrus.WithContext(ctx).WithError(err).Warnf("skipping unreadable credential %s", s.ID)
			continue
		}
		candidates = append(candidates, cred)
	}
	selected, err := w.matcher.Match(def, candidates, presexch.MatchOptions{})
	if err != nil {
		return nil, err
	}

	keyID, err := w.BindingKey(ctx)
	if err != nil {
		return nil, err
	}
	handle, err := w.kms.Get(ctx, keyID)
	if err != nil {
		return nil, err
	}
	ka, err := keyaccess.NewCryptoKeyAccess(w.kms, handle)
	if err != nil {
		return nil, err
	}
	raws := make([][]byte, 0, len(selected))
	for _, c := range selected {
		raws = append(raws, c.Raw)
	}
	return credential.SignJWTPresentation(ctx, ka, raws, credential.PresentationOptions{
		Holder:   util.DIDFromKeyID(keyID),
		Audience: audience,
		Nonce:    nonce,
	})
}
