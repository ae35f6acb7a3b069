// Package kv provides the shared key-value store used for caching and
// cross-instance coordination.
//
// The Store interface covers the primitives every service instance needs:
// TTL'd values, atomic counters, sets, lists, cursor-based key scans,
// pub/sub, and the set-if-not-exists / compare-and-delete pair the
// distributed lock is built on. Two implementations are provided:
// RedisStore for deployments and MemoryStore for unit tests and
// single-node development.
package kv

import (
	"context"
	"errors"
	"time"

	"github.com/storefront/backend/internal/domain/shared"
)

// NoExpiry is returned by TTL for keys that exist without an expiration
const NoExpiry = time.Duration(-1)

// Message is a single pub/sub message
type Message struct {
	Channel string
	Payload string
}

// Subscription is an active pub/sub subscription. Close releases the
// underlying resources and closes the message channel.
type Subscription interface {
	Channel() <-chan Message
	Close() error
}

// Store is the shared key-value store contract.
//
// All operations are network round-trips and may fail with
// shared.ErrStoreUnavailable; callers must treat mutating operations
// that time out as "unknown outcome", not "failed". Get, TTL and the
// membership probes return shared.ErrNotFound for absent keys.
type Store interface {
	// Get returns the value stored at key, or shared.ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value at key. A zero ttl means no expiration.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value at key only if the key does not exist, arming
	// ttl atomically. Returns true if the key was set.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only if its current value equals value.
	// Returns true if the key was deleted.
	CompareAndDelete(ctx context.Context, key, value string) (bool, error)
	// Delete removes the given keys. Deleting an absent key is not an error.
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Expire arms ttl on an existing key. Returns false if the key is absent.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// TTL returns the remaining time-to-live of key, NoExpiry if the key
	// has none, or shared.ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Incr atomically increments the integer value at key, creating it at 0.
	Incr(ctx context.Context, key string) (int64, error)
	// Decr atomically decrements the integer value at key.
	Decr(ctx context.Context, key string) (int64, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)

	LPush(ctx context.Context, key string, values ...string) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Scan iterates keys matching the glob pattern in cursor-sized steps.
	// A returned cursor of 0 means the iteration is complete. Scan never
	// blocks the store on large keyspaces the way a full key listing would.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)

	Publish(ctx context.Context, channel, message string) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)

	Ping(ctx context.Context) error
	Close() error
}

// ScanAll drains a cursor scan and invokes fn for every batch of keys.
// It is the sanctioned way to bulk-delete by pattern.
func ScanAll(ctx context.Context, s Store, match string, count int64, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := s.Scan(ctx, cursor, match, count)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// IsNotFound reports whether err marks an absent key or resource
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}

// IsUnavailable reports whether err marks an unreachable store
func IsUnavailable(err error) bool {
	return errors.Is(err, shared.ErrStoreUnavailable)
}
