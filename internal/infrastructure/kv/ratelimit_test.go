package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_FixedWindow(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	limiter := NewRateLimiter(store)
	ctx := context.Background()

	t.Run("allows up to the limit then blocks", func(t *testing.T) {
		expected := []bool{true, true, true, false}
		for i, want := range expected {
			res, err := limiter.Check(ctx, "x", 3, time.Minute)
			require.NoError(t, err)
			assert.Equal(t, want, res.Allowed, "call %d", i+1)
		}
	})

	t.Run("remaining counts down to zero", func(t *testing.T) {
		res, err := limiter.Check(ctx, "remaining", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Remaining)

		res, err = limiter.Check(ctx, "remaining", 2, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 0, res.Remaining)

		// over the limit, remaining stays at zero
		res, err = limiter.Check(ctx, "remaining", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, res.Allowed)
		assert.Equal(t, 0, res.Remaining)
	})

	t.Run("window elapse resets the counter", func(t *testing.T) {
		for i := 0; i < 4; i++ {
			_, err := limiter.Check(ctx, "reset", 3, 20*time.Millisecond)
			require.NoError(t, err)
		}

		time.Sleep(30 * time.Millisecond)

		res, err := limiter.Check(ctx, "reset", 3, 20*time.Millisecond)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "fresh window should allow again")
		assert.Equal(t, 2, res.Remaining)
	})

	t.Run("resetAt tracks the first increment", func(t *testing.T) {
		first, err := limiter.Check(ctx, "resetat", 10, time.Minute)
		require.NoError(t, err)

		time.Sleep(20 * time.Millisecond)

		second, err := limiter.Check(ctx, "resetat", 10, time.Minute)
		require.NoError(t, err)

		// the second call must not push the reset point forward
		assert.False(t, second.ResetAt.After(first.ResetAt.Add(10*time.Millisecond)),
			"burst increments must not extend the window")
	})

	t.Run("independent keys have independent windows", func(t *testing.T) {
		resA, err := limiter.Check(ctx, "tenant-a", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, resA.Allowed)

		resB, err := limiter.Check(ctx, "tenant-b", 1, time.Minute)
		require.NoError(t, err)
		assert.True(t, resB.Allowed)
	})
}
