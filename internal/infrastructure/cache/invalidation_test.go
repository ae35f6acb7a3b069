package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/infrastructure/kv"
)

func TestInvalidationBus(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers published events to the handler", func(t *testing.T) {
		store := kv.NewMemoryStore()
		defer store.Close()
		bus := NewInvalidationBus(store, nil)

		var mu sync.Mutex
		var received []InvalidationMessage
		require.NoError(t, bus.Start(ctx, func(msg InvalidationMessage) {
			mu.Lock()
			received = append(received, msg)
			mu.Unlock()
		}))
		defer bus.Stop()

		tenant := uuid.New()
		require.NoError(t, bus.Publish(ctx, InvalidationMessage{TenantID: tenant, Tag: "products"}))

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(received) == 1
		}, time.Second, 10*time.Millisecond)

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, tenant, received[0].TenantID)
		assert.Equal(t, "products", received[0].Tag)
		assert.NotZero(t, received[0].Timestamp)
	})

	t.Run("apply mirrors events into the local cache", func(t *testing.T) {
		store := kv.NewMemoryStore()
		defer store.Close()
		c := NewTaggedCache(store, nil)
		tenant := uuid.New()

		require.NoError(t, c.Set(ctx, "product:1", "v", Options{TenantID: tenant, Tags: []string{"products"}}))
		require.NoError(t, c.Set(ctx, "order:1", "v", Options{TenantID: tenant}))

		require.NoError(t, c.Apply(ctx, InvalidationMessage{TenantID: tenant, Tag: "products"}))
		var got string
		assert.Error(t, c.Get(ctx, tenant, "product:1", &got))
		assert.NoError(t, c.Get(ctx, tenant, "order:1", &got))

		require.NoError(t, c.Apply(ctx, InvalidationMessage{TenantID: tenant}))
		assert.Error(t, c.Get(ctx, tenant, "order:1", &got))

		// an event carrying neither tag, pattern nor tenant is a no-op
		require.NoError(t, c.Apply(ctx, InvalidationMessage{}))
	})

	t.Run("malformed payloads are skipped", func(t *testing.T) {
		store := kv.NewMemoryStore()
		defer store.Close()
		bus := NewInvalidationBus(store, nil)

		var mu sync.Mutex
		count := 0
		require.NoError(t, bus.Start(ctx, func(msg InvalidationMessage) {
			mu.Lock()
			count++
			mu.Unlock()
		}))
		defer bus.Stop()

		require.NoError(t, store.Publish(ctx, DefaultInvalidationChannel, "{not json"))
		require.NoError(t, bus.Publish(ctx, InvalidationMessage{Pattern: "product:*"}))

		assert.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return count == 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("double start is rejected", func(t *testing.T) {
		store := kv.NewMemoryStore()
		defer store.Close()
		bus := NewInvalidationBus(store, nil)

		require.NoError(t, bus.Start(ctx, func(InvalidationMessage) {}))
		defer bus.Stop()

		assert.Error(t, bus.Start(ctx, func(InvalidationMessage) {}))
	})

	t.Run("stop drains the handler loop", func(t *testing.T) {
		store := kv.NewMemoryStore()
		defer store.Close()
		bus := NewInvalidationBus(store, nil)

		require.NoError(t, bus.Start(ctx, func(InvalidationMessage) {}))
		bus.Stop()
		// stopping again is harmless
		bus.Stop()
	})
}
