package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Locker hands out single-owner mutual-exclusion locks backed by the store.
// It is the only cross-instance mutual-exclusion mechanism; an in-process
// mutex cannot substitute for it when multiple instances run.
type Locker struct {
	store  Store
	prefix string
}

// NewLocker creates a locker on the given store
func NewLocker(store Store) *Locker {
	return &Locker{store: store, prefix: "lock:"}
}

// Lock is a held lock. Release verifies ownership, so releasing a lock that
// already expired and was re-acquired by another owner is a no-op for them.
type Lock struct {
	store Store
	key   string
	token string
}

// Acquire attempts to take the lock. It returns (nil, false, nil) when the
// lock is currently held by another owner.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, bool, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	ok, err := l.store.SetNX(ctx, fullKey, token, ttl)
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %q: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	return &Lock{store: l.store, key: fullKey, token: token}, true, nil
}

// Release frees the lock if the caller still owns it. Returns false when the
// lock had already expired or was taken over by another owner.
func (lk *Lock) Release(ctx context.Context) (bool, error) {
	ok, err := lk.store.CompareAndDelete(ctx, lk.key, lk.token)
	if err != nil {
		return false, fmt.Errorf("release lock %q: %w", lk.key, err)
	}
	return ok, nil
}

// Token returns the opaque owner token (for diagnostics)
func (lk *Lock) Token() string {
	return lk.token
}
