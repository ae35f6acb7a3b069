package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/kv"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// RateLimitConfig holds configuration for the rate limit middleware
type RateLimitConfig struct {
	Limiter *kv.RateLimiter
	// Requests allowed per window
	Requests int
	Window   time.Duration
	// KeyFunc derives the counter key from the request; the default scopes
	// by tenant (when resolved) and client IP so one hot tenant cannot
	// starve the rest.
	KeyFunc func(c *gin.Context) string
	Logger  *zap.Logger
}

func defaultRateLimitKey(c *gin.Context) string {
	key := c.ClientIP()
	if tenantID := c.GetString(TenantIDKey); tenantID != "" {
		key = tenantID + ":" + key
	}
	return key
}

// RateLimit enforces a fixed-window limit shared across all service
// instances. When the backing store is down requests pass through; rate
// limiting degrades open rather than taking the site down with it.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	keyFunc := cfg.KeyFunc
	if keyFunc == nil {
		keyFunc = defaultRateLimitKey
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		result, err := cfg.Limiter.Check(c.Request.Context(), keyFunc(c), cfg.Requests, cfg.Window)
		if err != nil {
			if errors.Is(err, shared.ErrStoreUnavailable) {
				log.Warn("rate limiter degraded, allowing request", zap.Error(err))
				c.Next()
				return
			}
			log.Error("rate limiter check failed", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Requests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		if !result.ResetAt.IsZero() {
			c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		}

		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests,
				dto.NewErrorResponse(dto.ErrCodeRateLimited, "rate limit exceeded"))
			return
		}

		c.Next()
	}
}
