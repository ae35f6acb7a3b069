package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storefront/backend/internal/infrastructure/config"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:                 "test-secret-key-for-jwt-signing-32b",
		AccessTokenExpiration:  15 * time.Minute,
		RefreshTokenExpiration: 7 * 24 * time.Hour,
		Issuer:                 "storefront-test",
	}
}

func testTokenInput() GenerateTokenInput {
	return GenerateTokenInput{
		TenantID:  uuid.New(),
		UserID:    uuid.New(),
		Email:     "owner@acme.test",
		Role:      "owner",
		SessionID: uuid.NewString(),
	}
}

func TestJWTService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	input := testTokenInput()

	pair, err := svc.GenerateTokenPair(input)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.True(t, pair.RefreshTokenExpiresAt.After(pair.AccessTokenExpiresAt))

	t.Run("access token round-trips claims", func(t *testing.T) {
		claims, err := svc.ValidateAccessToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, input.TenantID.String(), claims.TenantID)
		assert.Equal(t, input.UserID.String(), claims.UserID)
		assert.Equal(t, input.Email, claims.Email)
		assert.Equal(t, input.Role, claims.Role)
		assert.Equal(t, input.SessionID, claims.SessionID)
		assert.Equal(t, TokenTypeAccess, claims.TokenType)
	})

	t.Run("refresh token omits profile claims", func(t *testing.T) {
		claims, err := svc.ValidateRefreshToken(pair.RefreshToken)
		require.NoError(t, err)
		assert.Empty(t, claims.Email)
		assert.Empty(t, claims.Role)
		assert.Equal(t, input.SessionID, claims.SessionID)
	})

	t.Run("token type is enforced", func(t *testing.T) {
		_, err := svc.ValidateAccessToken(pair.RefreshToken)
		assert.ErrorIs(t, err, ErrInvalidTokenType)
		_, err = svc.ValidateRefreshToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidTokenType)
	})

	t.Run("tampered token is rejected", func(t *testing.T) {
		_, err := svc.ValidateAccessToken(pair.AccessToken + "x")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret is rejected", func(t *testing.T) {
		cfg := testJWTConfig()
		cfg.Secret = "another-secret-key-entirely-32-bytes"
		_, err := NewJWTService(cfg).ValidateAccessToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestJWTService_ExpiredToken(t *testing.T) {
	cfg := testJWTConfig()
	cfg.AccessTokenExpiration = -time.Minute
	svc := NewJWTService(cfg)

	pair, err := svc.GenerateTokenPair(testTokenInput())
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_RefreshTokenPair(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	input := testTokenInput()

	pair, err := svc.GenerateTokenPair(input)
	require.NoError(t, err)

	t.Run("keeps the session binding", func(t *testing.T) {
		renewed, err := svc.RefreshTokenPair(pair.RefreshToken, "owner@acme.test", "owner")
		require.NoError(t, err)

		claims, err := svc.ValidateAccessToken(renewed.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, input.SessionID, claims.SessionID)
		assert.Equal(t, input.TenantID.String(), claims.TenantID)
		assert.Equal(t, "owner", claims.Role)
	})

	t.Run("rejects an access token", func(t *testing.T) {
		_, err := svc.RefreshTokenPair(pair.AccessToken, "", "")
		assert.ErrorIs(t, err, ErrInvalidTokenType)
	})
}

func TestClaims_GetRemainingTTL(t *testing.T) {
	svc := NewJWTService(testJWTConfig())
	pair, err := svc.GenerateTokenPair(testTokenInput())
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)

	ttl := claims.GetRemainingTTL()
	assert.Greater(t, ttl, 14*time.Minute)
	assert.LessOrEqual(t, ttl, 15*time.Minute)
}
