package kv

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/domain/shared"
)

func TestMemoryStore_GetSet(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("returns not found for absent key", func(t *testing.T) {
		_, err := store.Get(ctx, "missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("round trips a value", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "k", "v", 0))
		val, err := store.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "v", val)
	})

	t.Run("expires values after ttl", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "short", "v", 10*time.Millisecond))
		time.Sleep(20 * time.Millisecond)
		_, err := store.Get(ctx, "short")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "d", "v", 0))
		require.NoError(t, store.Delete(ctx, "d"))
		require.NoError(t, store.Delete(ctx, "d"))
		exists, err := store.Exists(ctx, "d")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestMemoryStore_TTL(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("not found for absent key", func(t *testing.T) {
		_, err := store.TTL(ctx, "missing")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("no expiry sentinel for persistent key", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "p", "v", 0))
		ttl, err := store.TTL(ctx, "p")
		require.NoError(t, err)
		assert.Equal(t, NoExpiry, ttl)
	})

	t.Run("remaining ttl for expiring key", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "e", "v", time.Minute))
		ttl, err := store.TTL(ctx, "e")
		require.NoError(t, err)
		assert.Greater(t, ttl, 50*time.Second)
		assert.LessOrEqual(t, ttl, time.Minute)
	})

	t.Run("expire arms ttl on existing key only", func(t *testing.T) {
		ok, err := store.Expire(ctx, "missing", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, store.Set(ctx, "arm", "v", 0))
		ok, err = store.Expire(ctx, "arm", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func TestMemoryStore_SetNXAndCompareAndDelete(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	t.Run("setnx sets only when absent", func(t *testing.T) {
		ok, err := store.SetNX(ctx, "nx", "first", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.SetNX(ctx, "nx", "second", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		val, err := store.Get(ctx, "nx")
		require.NoError(t, err)
		assert.Equal(t, "first", val)
	})

	t.Run("compare and delete requires matching value", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "cad", "owner-a", 0))

		ok, err := store.CompareAndDelete(ctx, "cad", "owner-b")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.CompareAndDelete(ctx, "cad", "owner-a")
		require.NoError(t, err)
		assert.True(t, ok)

		exists, err := store.Exists(ctx, "cad")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestMemoryStore_Counters(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	n, err := store.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.Incr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.Decr(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestMemoryStore_Sets(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SAdd(ctx, "tags", "a", "b"))
	require.NoError(t, store.SAdd(ctx, "tags", "b", "c"))

	members, err := store.SMembers(ctx, "tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, members)

	ok, err := store.SIsMember(ctx, "tags", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, store.SRem(ctx, "tags", "b"))
	ok, err = store.SIsMember(ctx, "tags", "b")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_Lists(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.LPush(ctx, "events", "first"))
	require.NoError(t, store.LPush(ctx, "events", "second"))

	n, err := store.LLen(ctx, "events")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	vals, err := store.LRange(ctx, "events", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"second", "first"}, vals)
}

func TestMemoryStore_Scan(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	for _, k := range []string{"cache:a:1", "cache:a:2", "cache:b:1", "other:1"} {
		require.NoError(t, store.Set(ctx, k, "v", 0))
	}

	t.Run("cursor scan finds all matches across batches", func(t *testing.T) {
		var found []string
		err := ScanAll(ctx, store, "cache:a:*", 1, func(keys []string) error {
			found = append(found, keys...)
			return nil
		})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"cache:a:1", "cache:a:2"}, found)
	})

	t.Run("deleting returned batches does not skip keys", func(t *testing.T) {
		store := NewMemoryStore()
		defer store.Close()

		for i := 0; i < 500; i++ {
			require.NoError(t, store.Set(ctx, fmt.Sprintf("cache:t1:item:%03d", i), "v", 0))
		}

		deleted := 0
		err := ScanAll(ctx, store, "cache:t1:*", 100, func(keys []string) error {
			deleted += len(keys)
			return store.Delete(ctx, keys...)
		})
		require.NoError(t, err)
		assert.Equal(t, 500, deleted)

		var left []string
		require.NoError(t, ScanAll(ctx, store, "cache:t1:*", 100, func(keys []string) error {
			left = append(left, keys...)
			return nil
		}))
		assert.Empty(t, left)
	})

	t.Run("no matches returns empty without error", func(t *testing.T) {
		var found []string
		err := ScanAll(ctx, store, "nope:*", 10, func(keys []string) error {
			found = append(found, keys...)
			return nil
		})
		require.NoError(t, err)
		assert.Empty(t, found)
	})
}

func TestMemoryStore_PubSub(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	sub, err := store.Subscribe(ctx, "invalidation")
	require.NoError(t, err)
	defer sub.Close()

	require.NoError(t, store.Publish(ctx, "invalidation", "hello"))

	select {
	case msg := <-sub.Channel():
		assert.Equal(t, "invalidation", msg.Channel)
		assert.Equal(t, "hello", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}
