package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/cache"
)

// TokenBlacklist invalidates JWT tokens before their natural expiry, e.g.
// on logout. Entries live in the shared cache so every service instance
// sees a revocation immediately.
type TokenBlacklist struct {
	cache *cache.TaggedCache
}

// NewTokenBlacklist creates a cache-backed token blacklist
func NewTokenBlacklist(taggedCache *cache.TaggedCache) *TokenBlacklist {
	return &TokenBlacklist{cache: taggedCache}
}

func jtiKey(jti string) string {
	return "auth:blacklist:jti:" + jti
}

func userInvalidationKey(userID string) string {
	return "auth:blacklist:user:" + userID
}

// Revoke blacklists a token's JTI for its remaining lifetime. A ttl of zero
// or less means the token is already expired and nothing needs storing.
func (b *TokenBlacklist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	err := b.cache.Set(ctx, jtiKey(jti), "1", cache.Options{TTL: ttl})
	if err != nil {
		return fmt.Errorf("blacklist token: %w", err)
	}
	return nil
}

// IsRevoked reports whether a token's JTI has been blacklisted
func (b *TokenBlacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var marker string
	err := b.cache.Get(ctx, uuid.Nil, jtiKey(jti), &marker)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check token blacklist: %w", err)
	}
	return true, nil
}

// RevokeUser invalidates every token a user holds by recording the current
// timestamp; tokens issued at or before it are rejected. ttl should cover
// the longest-lived token still in flight.
func (b *TokenBlacklist) RevokeUser(ctx context.Context, userID string, ttl time.Duration) error {
	err := b.cache.Set(ctx, userInvalidationKey(userID), strconv.FormatInt(time.Now().Unix(), 10), cache.Options{TTL: ttl})
	if err != nil {
		return fmt.Errorf("invalidate user tokens: %w", err)
	}
	return nil
}

// IsUserRevoked reports whether a token issued at tokenIssuedAt predates
// the user's last force-logout.
func (b *TokenBlacklist) IsUserRevoked(ctx context.Context, userID string, tokenIssuedAt time.Time) (bool, error) {
	var stored string
	err := b.cache.Get(ctx, uuid.Nil, userInvalidationKey(userID), &stored)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check user token invalidation: %w", err)
	}

	invalidatedAt, err := strconv.ParseInt(stored, 10, 64)
	if err != nil {
		return false, fmt.Errorf("parse invalidation timestamp: %w", err)
	}
	return tokenIssuedAt.Unix() <= invalidatedAt, nil
}
