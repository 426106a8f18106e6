package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storeledger/internal/core/id"
	"storeledger/internal/domain/catalogs"
	"storeledger/pkg/logger"
)

// Entity kinds, also used as NOTIFY payload prefixes.
const (
	KindStore    = "store"
	KindProduct  = "product"
	KindSupplier = "supplier"
	KindClient   = "client"
	KindMember   = "member"
)

// DefaultTTL bounds how stale a cached catalog entry may get when an
// invalidation is missed.
const DefaultTTL = 5 * time.Minute

// ResultObserver is told about every cache lookup (hit or miss).
type ResultObserver func(kind string, hit bool)

// CatalogCache is a read-through catalogs.Lookup. Backend failures are
// logged and the lookup falls through to the wrapped source.
type CatalogCache struct {
	next    catalogs.Lookup
	store   Store
	ttl     time.Duration
	prefix  string
	observe ResultObserver
}

// Option configures a CatalogCache.
type Option func(*CatalogCache)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *CatalogCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithObserver reports hits and misses, e.g. to metrics.
func WithObserver(fn ResultObserver) Option {
	return func(c *CatalogCache) { c.observe = fn }
}

// NewCatalogCache wraps next with a cache in store.
func NewCatalogCache(next catalogs.Lookup, store Store, opts ...Option) *CatalogCache {
	c := &CatalogCache{
		next:    next,
		store:   store,
		ttl:     DefaultTTL,
		prefix:  "storeledger:catalog:",
		observe: func(string, bool) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key returns the cache key of one entity.
func (c *CatalogCache) Key(kind, ref string) string {
	return c.prefix + kind + ":" + ref
}

func memberRef(clientID, storeID id.ID) string {
	return clientID.String() + ":" + storeID.String()
}

// readThrough serves a value from the cache or fills the cache from load.
func readThrough[T any](ctx context.Context, c *CatalogCache, kind, ref string, load func() (T, error)) (T, error) {
	key := c.Key(kind, ref)

	data, err := c.store.Get(ctx, key)
	if err == nil {
		var v T
		if err := json.Unmarshal(data, &v); err == nil {
			c.observe(kind, true)
			return v, nil
		}
		logger.Warn(ctx, "dropping corrupt catalog cache entry", "key", key)
		_ = c.store.Del(ctx, key)
	} else if !errors.Is(err, ErrMiss) {
		logger.Warn(ctx, "catalog cache read failed", "key", key, "error", err)
	}
	c.observe(kind, false)

	v, err := load()
	if err != nil {
		return v, err
	}

	if data, err := json.Marshal(v); err == nil {
		if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
			logger.Warn(ctx, "catalog cache write failed", "key", key, "error", err)
		}
	}
	return v, nil
}

func (c *CatalogCache) Store(ctx context.Context, storeID id.ID) (*catalogs.Store, error) {
	return readThrough(ctx, c, KindStore, storeID.String(), func() (*catalogs.Store, error) {
		return c.next.Store(ctx, storeID)
	})
}

func (c *CatalogCache) Product(ctx context.Context, productID id.ID) (*catalogs.Product, error) {
	return readThrough(ctx, c, KindProduct, productID.String(), func() (*catalogs.Product, error) {
		return c.next.Product(ctx, productID)
	})
}

func (c *CatalogCache) Supplier(ctx context.Context, supplierID id.ID) (*catalogs.Supplier, error) {
	return readThrough(ctx, c, KindSupplier, supplierID.String(), func() (*catalogs.Supplier, error) {
		return c.next.Supplier(ctx, supplierID)
	})
}

func (c *CatalogCache) Client(ctx context.Context, clientID id.ID) (*catalogs.Client, error) {
	return readThrough(ctx, c, KindClient, clientID.String(), func() (*catalogs.Client, error) {
		return c.next.Client(ctx, clientID)
	})
}

// IsApprovedMember caches approvals only; a pending membership is always
// re-read so an approval takes effect immediately.
func (c *CatalogCache) IsApprovedMember(ctx context.Context, clientID, storeID id.ID) (bool, error) {
	key := c.Key(KindMember, memberRef(clientID, storeID))
	if _, err := c.store.Get(ctx, key); err == nil {
		c.observe(KindMember, true)
		return true, nil
	}
	c.observe(KindMember, false)

	ok, err := c.next.IsApprovedMember(ctx, clientID, storeID)
	if err != nil || !ok {
		return ok, err
	}
	if err := c.store.Set(ctx, key, []byte("1"), c.ttl); err != nil {
		logger.Warn(ctx, "catalog cache write failed", "key", key, "error", err)
	}
	return true, nil
}

// Invalidate drops one entry. ref is an entity id, or "clientID:storeID"
// for memberships.
func (c *CatalogCache) Invalidate(ctx context.Context, kind, ref string) error {
	switch kind {
	case KindStore, KindProduct, KindSupplier, KindClient, KindMember:
	default:
		return fmt.Errorf("unknown catalog kind %q", kind)
	}
	return c.store.Del(ctx, c.Key(kind, ref))
}

var _ catalogs.Lookup = (*CatalogCache)(nil)
