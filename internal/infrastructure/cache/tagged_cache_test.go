package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/kv"
)

// unavailableStore simulates a store outage on reads and writes
type unavailableStore struct {
	kv.Store
}

func (u *unavailableStore) Get(ctx context.Context, key string) (string, error) {
	return "", shared.ErrStoreUnavailable
}

func (u *unavailableStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return shared.ErrStoreUnavailable
}

func TestTaggedCache_GetSet(t *testing.T) {
	store := kv.NewMemoryStore()
	defer store.Close()
	c := NewTaggedCache(store, nil)
	ctx := context.Background()
	tenant := uuid.New()

	t.Run("round trips structured values", func(t *testing.T) {
		type product struct {
			Name  string `json:"name"`
			Price int    `json:"price"`
		}
		require.NoError(t, c.Set(ctx, "product:1", product{Name: "mug", Price: 900}, Options{TenantID: tenant}))

		var got product
		require.NoError(t, c.Get(ctx, tenant, "product:1", &got))
		assert.Equal(t, product{Name: "mug", Price: 900}, got)
	})

	t.Run("miss returns not found", func(t *testing.T) {
		var got string
		err := c.Get(ctx, tenant, "missing", &got)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("tenants do not observe each other's entries", func(t *testing.T) {
		other := uuid.New()
		require.NoError(t, c.Set(ctx, "shared-name", "tenant-a", Options{TenantID: tenant}))
		require.NoError(t, c.Set(ctx, "shared-name", "tenant-b", Options{TenantID: other}))

		var got string
		require.NoError(t, c.Get(ctx, tenant, "shared-name", &got))
		assert.Equal(t, "tenant-a", got)

		require.NoError(t, c.Get(ctx, other, "shared-name", &got))
		assert.Equal(t, "tenant-b", got)
	})

	t.Run("nil tenant uses the shared namespace", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "global", "value", Options{}))

		var got string
		require.NoError(t, c.Get(ctx, uuid.Nil, "global", &got))
		assert.Equal(t, "value", got)

		err := c.Get(ctx, tenant, "global", &got)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestTaggedCache_GetOrSet(t *testing.T) {
	ctx := context.Background()

	t.Run("computes once for sequential calls", func(t *testing.T) {
		store := kv.NewMemoryStore()
		defer store.Close()
		c := NewTaggedCache(store, nil)

		counter := 0
		factory := func(ctx context.Context) (int, error) {
			counter++
			return counter, nil
		}

		first, err := GetOrSet(ctx, c, "k", Options{}, factory)
		require.NoError(t, err)
		second, err := GetOrSet(ctx, c, "k", Options{}, factory)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, 1, counter, "factory must run exactly once")
	})

	t.Run("factory failures are not cached", func(t *testing.T) {
		store := kv.NewMemoryStore()
		defer store.Close()
		c := NewTaggedCache(store, nil)

		calls := 0
		_, err := GetOrSet(ctx, c, "fail", Options{}, func(ctx context.Context) (string, error) {
			calls++
			return "", errors.New("upstream down")
		})
		require.Error(t, err)

		got, err := GetOrSet(ctx, c, "fail", Options{}, func(ctx context.Context) (string, error) {
			calls++
			return "recovered", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "recovered", got)
		assert.Equal(t, 2, calls)
	})

	t.Run("store outage degrades to the factory", func(t *testing.T) {
		base := kv.NewMemoryStore()
		defer base.Close()
		c := NewTaggedCache(&unavailableStore{Store: base}, nil)

		got, err := GetOrSet(ctx, c, "k", Options{}, func(ctx context.Context) (string, error) {
			return "direct", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "direct", got)
	})
}

func TestTaggedCache_InvalidateTag(t *testing.T) {
	store := kv.NewMemoryStore()
	defer store.Close()
	c := NewTaggedCache(store, nil)
	ctx := context.Background()
	tenant := uuid.New()

	t.Run("deletes every member of the tag", func(t *testing.T) {
		opts := Options{TenantID: tenant, Tags: []string{"t"}}
		require.NoError(t, c.Set(ctx, "a", "v", opts))
		require.NoError(t, c.Set(ctx, "b", "v", opts))

		require.NoError(t, c.InvalidateTag(ctx, tenant, "t"))

		var got string
		assert.ErrorIs(t, c.Get(ctx, tenant, "a", &got), shared.ErrNotFound)
		assert.ErrorIs(t, c.Get(ctx, tenant, "b", &got), shared.ErrNotFound)
	})

	t.Run("drops the tag set itself", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "x", "v", Options{TenantID: tenant, Tags: []string{"gone"}}))
		require.NoError(t, c.InvalidateTag(ctx, tenant, "gone"))

		members, err := store.SMembers(ctx, tagKey(tenant, "gone"))
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("leaves untagged and other-tag entries intact", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "keep", "v", Options{TenantID: tenant, Tags: []string{"other"}}))
		require.NoError(t, c.Set(ctx, "plain", "v", Options{TenantID: tenant}))
		require.NoError(t, c.Set(ctx, "victim", "v", Options{TenantID: tenant, Tags: []string{"doomed"}}))

		require.NoError(t, c.InvalidateTag(ctx, tenant, "doomed"))

		var got string
		assert.NoError(t, c.Get(ctx, tenant, "keep", &got))
		assert.NoError(t, c.Get(ctx, tenant, "plain", &got))
	})

	t.Run("invalidating an empty tag is a no-op", func(t *testing.T) {
		assert.NoError(t, c.InvalidateTag(ctx, tenant, "never-used"))
	})

	t.Run("entries can carry several tags", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, "multi", "v", Options{TenantID: tenant, Tags: []string{"t1", "t2"}}))

		require.NoError(t, c.InvalidateTag(ctx, tenant, "t1"))

		var got string
		assert.ErrorIs(t, c.Get(ctx, tenant, "multi", &got), shared.ErrNotFound)
		// second tag's invalidation still succeeds even though the member is gone
		assert.NoError(t, c.InvalidateTag(ctx, tenant, "t2"))
	})
}

func TestTaggedCache_InvalidatePattern(t *testing.T) {
	store := kv.NewMemoryStore()
	defer store.Close()
	c := NewTaggedCache(store, nil)
	ctx := context.Background()
	tenant := uuid.New()
	other := uuid.New()

	for i := 0; i < 5; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("product:%d", i), i, Options{TenantID: tenant}))
	}
	require.NoError(t, c.Set(ctx, "order:1", "keep", Options{TenantID: tenant}))
	require.NoError(t, c.Set(ctx, "product:0", "other tenant", Options{TenantID: other}))

	require.NoError(t, c.InvalidatePattern(ctx, tenant, "product:*"))

	var got string
	for i := 0; i < 5; i++ {
		err := c.Get(ctx, tenant, fmt.Sprintf("product:%d", i), &got)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	}
	assert.NoError(t, c.Get(ctx, tenant, "order:1", &got))
	assert.NoError(t, c.Get(ctx, other, "product:0", &got), "other tenant's entries must survive")
}

func TestTaggedCache_ClearTenant(t *testing.T) {
	store := kv.NewMemoryStore()
	defer store.Close()
	c := NewTaggedCache(store, nil)
	ctx := context.Background()
	tenant := uuid.New()
	other := uuid.New()

	require.NoError(t, c.Set(ctx, "a", "v", Options{TenantID: tenant, Tags: []string{"t"}}))
	require.NoError(t, c.Set(ctx, "b", "v", Options{TenantID: tenant}))
	require.NoError(t, c.Set(ctx, "a", "v", Options{TenantID: other}))

	require.NoError(t, c.ClearTenant(ctx, tenant))

	var got string
	assert.ErrorIs(t, c.Get(ctx, tenant, "a", &got), shared.ErrNotFound)
	assert.ErrorIs(t, c.Get(ctx, tenant, "b", &got), shared.ErrNotFound)
	assert.NoError(t, c.Get(ctx, other, "a", &got))

	t.Run("requires a tenant id", func(t *testing.T) {
		assert.ErrorIs(t, c.ClearTenant(ctx, uuid.Nil), shared.ErrValidation)
	})

	t.Run("clears namespaces spanning several scan batches", func(t *testing.T) {
		for i := 0; i < scanBatch*2+100; i++ {
			require.NoError(t, c.Set(ctx, fmt.Sprintf("product:%04d", i), "v", Options{TenantID: tenant}))
		}

		require.NoError(t, c.ClearTenant(ctx, tenant))

		left := 0
		require.NoError(t, kv.ScanAll(ctx, store, Key(tenant, "*"), int64(scanBatch), func(keys []string) error {
			left += len(keys)
			return nil
		}))
		assert.Zero(t, left)
	})
}
