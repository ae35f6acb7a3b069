// Package cache implements the tagged, tenant-namespaced cache layer on top
// of the shared key-value store.
//
// Caching here is a pure optimization: every read path retains a correct
// non-cached fallback, and a store outage degrades to direct reads rather
// than failing the request.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/kv"
	"github.com/storefront/backend/internal/infrastructure/tenantns"
)

const (
	keyPrefix = "cache:"
	tagPrefix = "cache:tag:"

	// tagSetTTL bounds the life of tag bookkeeping. It is refreshed whenever
	// a member is added, so a tag set outlives its members' shorter TTLs but
	// never outlives real use by more than a day.
	tagSetTTL = 24 * time.Hour

	// scanBatch is the cursor step for pattern invalidation
	scanBatch = 200
)

// Options control a single Set or GetOrSet call
type Options struct {
	// TTL of the entry; zero means remembered until invalidated
	TTL time.Duration
	// TenantID namespaces the key to one tenant; uuid.Nil targets the
	// shared namespace
	TenantID uuid.UUID
	// Tags the entry belongs to, for group invalidation
	Tags []string
}

// TaggedCache adds tenant namespacing and tag-based invalidation on top of
// a kv.Store
type TaggedCache struct {
	store  kv.Store
	logger *zap.Logger
}

// NewTaggedCache creates a tagged cache on the given store
func NewTaggedCache(store kv.Store, logger *zap.Logger) *TaggedCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaggedCache{store: store, logger: logger}
}

// Key returns the effective store key for a logical key in a tenant's
// namespace. Exposed so operational tooling agrees with the layer.
func Key(tenantID uuid.UUID, key string) string {
	if tenantID == uuid.Nil {
		return keyPrefix + key
	}
	return keyPrefix + tenantns.CacheKeyPrefix(tenantID) + key
}

func tagKey(tenantID uuid.UUID, tag string) string {
	if tenantID == uuid.Nil {
		return tagPrefix + tag
	}
	return tagPrefix + tenantns.CacheKeyPrefix(tenantID) + tag
}

// Get loads the entry at key into dest. Returns shared.ErrNotFound on a
// miss and shared.ErrStoreUnavailable when the store is unreachable.
func (c *TaggedCache) Get(ctx context.Context, tenantID uuid.UUID, key string, dest any) error {
	raw, err := c.store.Get(ctx, Key(tenantID, key))
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decode cached value at %q: %w", key, err)
	}
	return nil
}

// Set stores value under key, registering it with each tag in opts.Tags.
// Tag membership is written after the value, so an entry is never reachable
// through a tag before it exists.
func (c *TaggedCache) Set(ctx context.Context, key string, value any, opts Options) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", key, err)
	}

	effKey := Key(opts.TenantID, key)
	if err := c.store.Set(ctx, effKey, string(raw), opts.TTL); err != nil {
		return err
	}

	for _, tag := range opts.Tags {
		tk := tagKey(opts.TenantID, tag)
		if err := c.store.SAdd(ctx, tk, effKey); err != nil {
			return err
		}
		if _, err := c.store.Expire(ctx, tk, tagSetTTL); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the entry at key. Tag membership is left to age out with
// the tag set; deletes of absent members are idempotent.
func (c *TaggedCache) Delete(ctx context.Context, tenantID uuid.UUID, key string) error {
	return c.store.Delete(ctx, Key(tenantID, key))
}

// GetOrSet is the cache-aside helper: a hit is returned directly; a miss
// computes factory and stores the result before returning it. Factory
// failures are returned and never cached. When the store is unreachable the
// call degrades to computing factory directly.
//
// Concurrent identical misses may race and each run factory; last writer
// wins, which is safe because factory results for the same key are expected
// to be equivalent.
func GetOrSet[T any](ctx context.Context, c *TaggedCache, key string, opts Options, factory func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	err := c.Get(ctx, opts.TenantID, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !kv.IsNotFound(err) {
		c.logger.Warn("cache read degraded to direct load",
			zap.String("key", key),
			zap.Error(err))
		return factory(ctx)
	}

	value, err := factory(ctx)
	if err != nil {
		var zero T
		return zero, err
	}

	if err := c.Set(ctx, key, value, opts); err != nil {
		c.logger.Warn("cache store after miss failed",
			zap.String("key", key),
			zap.Error(err))
	}
	return value, nil
}

// InvalidateTag deletes every member of the tag, then the tag set itself.
// A key tagged mid-invalidation may survive this pass; its membership dies
// with the tag set, so it can never become permanently undeletable.
func (c *TaggedCache) InvalidateTag(ctx context.Context, tenantID uuid.UUID, tag string) error {
	tk := tagKey(tenantID, tag)

	members, err := c.store.SMembers(ctx, tk)
	if err != nil {
		return err
	}
	if len(members) > 0 {
		if err := c.store.Delete(ctx, members...); err != nil {
			return err
		}
	}
	return c.store.Delete(ctx, tk)
}

// InvalidatePattern bulk-deletes entries whose logical key matches the glob
// pattern within the tenant's namespace, using the cursor scan so large
// keyspaces never block the store.
func (c *TaggedCache) InvalidatePattern(ctx context.Context, tenantID uuid.UUID, pattern string) error {
	match := Key(tenantID, pattern)
	return kv.ScanAll(ctx, c.store, match, scanBatch, func(keys []string) error {
		return c.store.Delete(ctx, keys...)
	})
}

// ClearTenant drops every cache entry and tag set in a tenant's namespace
func (c *TaggedCache) ClearTenant(ctx context.Context, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return shared.ErrValidation.WithMessage("tenant id required to clear a tenant cache")
	}
	if err := c.InvalidatePattern(ctx, tenantID, "*"); err != nil {
		return err
	}
	return kv.ScanAll(ctx, c.store, tagPrefix+tenantns.CacheKeyPrefix(tenantID)+"*", scanBatch, func(keys []string) error {
		return c.store.Delete(ctx, keys...)
	})
}
