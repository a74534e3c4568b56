package did

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tbd54566975/ssi-wallet/internal/util"
	"github.com/tbd54566975/ssi-wallet/pkg/storage"
)

const (
	cacheNamespace  = "did-resolution-cache"
	DefaultCacheTTL = 15 * time.Minute
)

type cachedDocument struct {
	Document Document  `json:"document"`
	CachedAt time.Time `json:"cachedAt"`
}

// CachingResolver memoizes documents from another resolver in storage for a fixed time to live. Failed resolutions
// are not cached.
type CachingResolver struct {
	resolver Resolver
	db       storage.ServiceStorage
	ttl      time.Duration
	clock    clock.Clock
}

func NewCachingResolver(resolver Resolver, db storage.ServiceStorage, ttl time.Duration, c clock.Clock) (*CachingResolver, error) {
	if resolver == nil {
		return nil, errors.New("resolver cannot be nil")
	}
	if db == nil {
		return nil, errors.New("storage cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if c == nil {
		c = clock.New()
	}
	return &CachingResolver{resolver: resolver, db: db, ttl: ttl, clock: c}, nil
}

func (r *CachingResolver) Resolve(ctx context.Context, id string) (*Document, error) {
	id = util.DIDFromKeyID(id)
	cachedBytes, err := r.db.Read(ctx, cacheNamespace, id)
	if err != nil {
		logrus.WithContext(ctx).WithError(err).Warn("reading did resolution cache")
	}
	if len(cachedBytes) > 0 {
		var cached cachedDocument
		if err = json.Unmarshal(cachedBytes, &cached); err == nil && r.clock.Since(cached.CachedAt) < r.ttl {
			return &cached.Document, nil
		}
	}

	doc, err := r.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	entry, err := json.Marshal(cachedDocument{Document: *doc, CachedAt: r.clock.Now()})
	if err != nil {
		return nil, errors.Wrap(err, "marshalling cached document")
	}
	if err = r.db.Write(ctx, cacheNamespace, id, entry); err != nil {
		logrus.WithContext(ctx).WithError(err).Warnf("caching did document for %s", util.SanitizeLog(id))
	}
	return doc, nil
}

// Evict removes a DID from the cache
func (r *CachingResolver) Evict(ctx context.Context, id string) error {
	return r.db.Delete(ctx, cacheNamespace, util.DIDFromKeyID(id))
}
