package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/redis"
)

// notFoundMarker is cached for SKUs the catalog does not know, so repeated
// imports of the same unknown SKU do not hit the catalog every time.
const notFoundMarker = "-"

// Cache is the subset of the redis client the cached enricher needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	CatalogKey(sku string) string
}

// Cached serves lookups from redis before asking the wrapped enricher.
type Cached struct {
	inner Enricher
	cache Cache
	ttl   time.Duration
	logg  *logger.Logger
}

// NewCached wraps inner with a redis-backed cache.
func NewCached(inner Enricher, cache Cache, ttl time.Duration, logg *logger.Logger) (*Cached, error) {
	if inner == nil {
		return nil, errors.New("inner enricher required")
	}
	if cache == nil {
		return nil, errors.New("cache required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &Cached{inner: inner, cache: cache, ttl: ttl, logg: logg}, nil
}

func (c *Cached) Lookup(ctx context.Context, sku string) (*Enrichment, error) {
	key := c.cache.CatalogKey(sku)
	raw, err := c.cache.Get(ctx, key)
	switch {
	case err == nil && raw == notFoundMarker:
		return nil, ErrNotFound
	case err == nil:
		var hit Enrichment
		if jsonErr := json.Unmarshal([]byte(raw), &hit); jsonErr == nil {
			return &hit, nil
		}
	case !redis.IsMiss(err):
		c.logg.Warn(c.logg.WithField(ctx, "sku", sku), "catalog cache read failed: "+err.Error())
	}

	found, err := c.inner.Lookup(ctx, sku)
	if errors.Is(err, ErrNotFound) {
		c.store(ctx, key, notFoundMarker)
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(found)
	if err == nil {
		c.store(ctx, key, string(payload))
	}
	return found, nil
}

func (c *Cached) store(ctx context.Context, key, value string) {
	if err := c.cache.Set(ctx, key, value, c.ttl); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "cache_key", key), "catalog cache write failed: "+err.Error())
	}
}
