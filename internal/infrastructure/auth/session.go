package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/infrastructure/cache"
)

// sessionTag groups a tenant's sessions so they can be revoked in one sweep
const sessionTag = "auth-sessions"

// Session is a logged-in operator's server-side state. Sessions live only
// in the shared cache; losing the cache logs everyone out, it never loses
// data.
type Session struct {
	ID         string    `json:"id"`
	TenantID   uuid.UUID `json:"tenant_id"`
	UserID     uuid.UUID `json:"user_id"`
	Email      string    `json:"email"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	UserAgent  string    `json:"user_agent,omitempty"`
	ClientIP   string    `json:"client_ip,omitempty"`
}

// SessionStore persists sessions in the tenant's cache namespace
type SessionStore struct {
	cache *cache.TaggedCache
	ttl   time.Duration
}

// NewSessionStore creates a session store. ttl should match the refresh
// token lifetime so a session outlives its access tokens.
func NewSessionStore(taggedCache *cache.TaggedCache, ttl time.Duration) *SessionStore {
	return &SessionStore{cache: taggedCache, ttl: ttl}
}

func sessionKey(id string) string {
	return "auth:session:" + id
}

// CreateSessionInput carries the request attributes recorded on login
type CreateSessionInput struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	Email     string
	Role      string
	UserAgent string
	ClientIP  string
}

// Create persists a new session and returns it with a fresh id
func (s *SessionStore) Create(ctx context.Context, input CreateSessionInput) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:         uuid.NewString(),
		TenantID:   input.TenantID,
		UserID:     input.UserID,
		Email:      input.Email,
		Role:       input.Role,
		CreatedAt:  now,
		LastSeenAt: now,
		UserAgent:  input.UserAgent,
		ClientIP:   input.ClientIP,
	}
	if err := s.put(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// Get returns the session with the given id, or shared.ErrNotFound when it
// has expired or been revoked.
func (s *SessionStore) Get(ctx context.Context, tenantID uuid.UUID, id string) (*Session, error) {
	var session Session
	if err := s.cache.Get(ctx, tenantID, sessionKey(id), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Touch refreshes the session's last-seen time and its expiry window
func (s *SessionStore) Touch(ctx context.Context, tenantID uuid.UUID, id string) error {
	session, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	session.LastSeenAt = time.Now()
	return s.put(ctx, session)
}

// Revoke removes a single session
func (s *SessionStore) Revoke(ctx context.Context, tenantID uuid.UUID, id string) error {
	return s.cache.Delete(ctx, tenantID, sessionKey(id))
}

// RevokeTenant removes every session in the tenant's namespace. Used when
// a tenant is suspended or deleted.
func (s *SessionStore) RevokeTenant(ctx context.Context, tenantID uuid.UUID) error {
	return s.cache.InvalidateTag(ctx, tenantID, sessionTag)
}

func (s *SessionStore) put(ctx context.Context, session *Session) error {
	return s.cache.Set(ctx, sessionKey(session.ID), session, cache.Options{
		TTL:      s.ttl,
		TenantID: session.TenantID,
		Tags:     []string{sessionTag},
	})
}
