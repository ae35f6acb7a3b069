package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// Auth context keys
const (
	ClaimsKey     = "auth_claims"
	UserIDKey     = "auth_user_id"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// AuthConfig holds configuration for the auth middleware
type AuthConfig struct {
	JWT *auth.JWTService
	// Blacklist is optional; when set, revoked tokens are rejected
	Blacklist *auth.TokenBlacklist
	// Sessions is optional; when set, the token's session must still exist
	Sessions *auth.SessionStore
	Logger   *zap.Logger
}

// Auth validates the bearer token, checks it against the blacklist and the
// session store, and verifies the token belongs to the resolved tenant.
func Auth(cfg AuthConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	unauthorized := func(c *gin.Context, message string) {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			dto.NewErrorResponse(dto.ErrCodeUnauthorized, message))
	}

	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if !strings.HasPrefix(header, BearerPrefix) {
			unauthorized(c, "missing bearer token")
			return
		}
		tokenString := strings.TrimPrefix(header, BearerPrefix)

		claims, err := cfg.JWT.ValidateAccessToken(tokenString)
		if err != nil {
			unauthorized(c, "invalid or expired token")
			return
		}

		// A token minted for one tenant must not work on another's host.
		if resolvedID := c.GetString(TenantIDKey); resolvedID != "" && resolvedID != claims.TenantID {
			unauthorized(c, "token does not match this storefront")
			return
		}

		if cfg.Blacklist != nil {
			revoked, err := cfg.Blacklist.IsRevoked(c.Request.Context(), claims.ID)
			if err != nil {
				log.Warn("blacklist check degraded", zap.Error(err))
			} else if revoked {
				unauthorized(c, "token has been revoked")
				return
			}

			userRevoked, err := cfg.Blacklist.IsUserRevoked(c.Request.Context(), claims.UserID, claims.GetIssuedAtTime())
			if err != nil {
				log.Warn("user revocation check degraded", zap.Error(err))
			} else if userRevoked {
				unauthorized(c, "token has been revoked")
				return
			}
		}

		if cfg.Sessions != nil {
			tenantID, err := claims.GetTenantUUID()
			if err != nil {
				unauthorized(c, "invalid token claims")
				return
			}
			if _, err := cfg.Sessions.Get(c.Request.Context(), tenantID, claims.SessionID); err != nil {
				unauthorized(c, "session expired")
				return
			}
		}

		c.Set(ClaimsKey, claims)
		c.Set(UserIDKey, claims.UserID)

		ctx, _ := logger.WithUserID(c.Request.Context(), logger.FromContext(c.Request.Context()), claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetClaims returns the validated claims from the gin context
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
