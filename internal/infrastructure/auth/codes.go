package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/cache"
)

// CodePurpose scopes a one-time code to the flow it was issued for, so a
// password-reset code cannot verify an email address.
type CodePurpose string

const (
	CodePurposePasswordReset CodePurpose = "password_reset"
	CodePurposeEmailVerify   CodePurpose = "email_verify"
)

// ErrCodeMismatch is returned when a presented code does not match the
// stored one. Deliberately indistinguishable from an expired code for
// callers that surface it to users.
var ErrCodeMismatch = errors.New("code invalid or expired")

// CodeStore issues and redeems short-lived one-time codes (password reset,
// email verification). Codes are single use: redeeming deletes them.
type CodeStore struct {
	cache *cache.TaggedCache
	ttl   time.Duration
}

// NewCodeStore creates a code store with the given code lifetime
func NewCodeStore(taggedCache *cache.TaggedCache, ttl time.Duration) *CodeStore {
	return &CodeStore{cache: taggedCache, ttl: ttl}
}

func codeKey(purpose CodePurpose, subject string) string {
	return fmt.Sprintf("auth:code:%s:%s", purpose, subject)
}

// Issue generates a fresh code for the subject, replacing any outstanding
// one for the same purpose.
func (c *CodeStore) Issue(ctx context.Context, tenantID uuid.UUID, purpose CodePurpose, subject string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := hex.EncodeToString(buf)

	err := c.cache.Set(ctx, codeKey(purpose, subject), code, cache.Options{
		TTL:      c.ttl,
		TenantID: tenantID,
	})
	if err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}
	return code, nil
}

// Redeem verifies the presented code and consumes it. A second redeem of
// the same code fails.
func (c *CodeStore) Redeem(ctx context.Context, tenantID uuid.UUID, purpose CodePurpose, subject, presented string) error {
	key := codeKey(purpose, subject)

	var stored string
	err := c.cache.Get(ctx, tenantID, key, &stored)
	if errors.Is(err, shared.ErrNotFound) {
		return ErrCodeMismatch
	}
	if err != nil {
		return err
	}
	if stored != presented {
		return ErrCodeMismatch
	}
	return c.cache.Delete(ctx, tenantID, key)
}
