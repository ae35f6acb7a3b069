package kv

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/storefront/backend/internal/domain/shared"
)

// entry is a single stored value with optional expiration
type entry struct {
	value     string
	set       map[string]struct{}
	list      []string
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process Store for unit tests and single-node
// development. It is safe for concurrent use but offers none of the
// cross-instance guarantees of RedisStore.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[string]*entry
	subscribers map[string][]*memorySubscription
	cursors     map[uint64]string
	lastCursor  uint64
	closed      bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:     make(map[string]*entry),
		subscribers: make(map[string][]*memorySubscription),
		cursors:     make(map[uint64]string),
	}
}

// get returns a live entry, lazily evicting expired ones. Caller holds mu.
func (s *MemoryStore) get(key string) (*entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(time.Now()) {
		delete(s.entries, key)
		return nil, false
	}
	return e, true
}

func expiryFrom(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		return "", shared.ErrNotFound
	}
	return e.value, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &entry{value: value, expiresAt: expiryFrom(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.entries[key] = &entry{value: value, expiresAt: expiryFrom(ttl)}
	return true, nil
}

func (s *MemoryStore) CompareAndDelete(ctx context.Context, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok || e.value != value {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get(key)
	return ok, nil
}

func (s *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		return false, nil
	}
	e.expiresAt = expiryFrom(ttl)
	return true, nil
}

func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		return 0, shared.ErrNotFound
	}
	if e.expiresAt.IsZero() {
		return NoExpiry, nil
	}
	return time.Until(e.expiresAt), nil
}

func (s *MemoryStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.incrBy(key, 1)
}

func (s *MemoryStore) Decr(ctx context.Context, key string) (int64, error) {
	return s.incrBy(key, -1)
}

func (s *MemoryStore) incrBy(key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		e = &entry{value: "0"}
		s.entries[key] = e
	}
	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value at %q is not an integer", key)
	}
	n += delta
	e.value = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *MemoryStore) SAdd(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		e = &entry{set: make(map[string]struct{})}
		s.entries[key] = e
	}
	if e.set == nil {
		e.set = make(map[string]struct{})
	}
	for _, m := range members {
		e.set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SRem(ctx context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok || e.set == nil {
		return nil
	}
	for _, m := range members {
		delete(e.set, m)
	}
	if len(e.set) == 0 {
		delete(s.entries, key)
	}
	return nil
}

func (s *MemoryStore) SMembers(ctx context.Context, key string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok || e.set == nil {
		return nil, nil
	}
	members := make([]string, 0, len(e.set))
	for m := range e.set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members, nil
}

func (s *MemoryStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok || e.set == nil {
		return false, nil
	}
	_, ok = e.set[member]
	return ok, nil
}

func (s *MemoryStore) LPush(ctx context.Context, key string, values ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}
	for _, v := range values {
		e.list = append([]string{v}, e.list...)
	}
	return nil
}

func (s *MemoryStore) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		return nil, nil
	}
	n := int64(len(e.list))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return nil, nil
	}
	out := make([]string, stop-start+1)
	copy(out, e.list[start:stop+1])
	return out, nil
}

func (s *MemoryStore) LLen(ctx context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.get(key)
	if !ok {
		return 0, nil
	}
	return int64(len(e.list)), nil
}

// Scan walks the keyspace in sorted order. A non-zero cursor resumes at
// the first key strictly greater than the last one visited, so entries
// deleted between calls never cause later keys to be skipped.
func (s *MemoryStore) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if count <= 0 {
		count = 10
	}

	var after string
	if cursor != 0 {
		last, ok := s.cursors[cursor]
		if !ok {
			return nil, 0, nil
		}
		delete(s.cursors, cursor)
		after = last
	}

	now := time.Now()
	all := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if e.expired(now) {
			continue
		}
		if cursor != 0 && k <= after {
			continue
		}
		all = append(all, k)
	}
	sort.Strings(all)

	var keys []string
	visited := 0
	for _, k := range all {
		visited++
		if ok, _ := path.Match(match, k); ok || match == "" {
			keys = append(keys, k)
			if int64(len(keys)) >= count {
				break
			}
		}
	}
	if visited >= len(all) {
		return keys, 0, nil
	}
	s.lastCursor++
	s.cursors[s.lastCursor] = all[visited-1]
	return keys, s.lastCursor, nil
}

func (s *MemoryStore) Publish(ctx context.Context, channel, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subscribers[channel] {
		select {
		case sub.ch <- Message{Channel: channel, Payload: message}:
		default:
			// slow subscriber, drop rather than block the publisher
		}
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := &memorySubscription{
		store:   s,
		channel: channel,
		ch:      make(chan Message, 64),
	}
	s.subscribers[channel] = append(s.subscribers[channel], sub)
	return sub, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return shared.ErrStoreUnavailable
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, subs := range s.subscribers {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	s.subscribers = make(map[string][]*memorySubscription)
	return nil
}

type memorySubscription struct {
	store   *MemoryStore
	channel string
	ch      chan Message
	once    sync.Once
}

func (m *memorySubscription) Channel() <-chan Message {
	return m.ch
}

func (m *memorySubscription) Close() error {
	m.once.Do(func() {
		m.store.mu.Lock()
		defer m.store.mu.Unlock()
		subs := m.store.subscribers[m.channel]
		for i, sub := range subs {
			if sub == m {
				m.store.subscribers[m.channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if !m.store.closed {
			close(m.ch)
		}
	})
	return nil
}

var _ Store = (*MemoryStore)(nil)
