package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/tenant"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/dto"
)

// Tenant context keys
const (
	TenantIDKey = "tenant_id"
	TenantKey   = "tenant"
)

// HostResolver maps a request host to a tenant
type HostResolver interface {
	ResolveHost(ctx context.Context, host string) (*tenant.Tenant, error)
}

// TenantMiddlewareConfig holds configuration for the tenant middleware
type TenantMiddlewareConfig struct {
	Resolver HostResolver
	// SkipPaths bypass resolution (health checks, admin surface)
	SkipPaths []string
	Logger    *zap.Logger
}

// TenantMiddleware resolves the request host to a tenant and stores it on
// the context. Unknown hosts get 404, suspended storefronts 403, and a
// degraded backend 503.
func TenantMiddleware(cfg TenantMiddlewareConfig) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = struct{}{}
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		t, err := cfg.Resolver.ResolveHost(c.Request.Context(), c.Request.Host)
		if err != nil {
			switch {
			case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrValidation):
				c.AbortWithStatusJSON(http.StatusNotFound,
					dto.NewErrorResponse(shared.ErrNotFound.Code, "no storefront at this address"))
			case errors.Is(err, shared.ErrStoreUnavailable):
				log.Error("tenant resolution degraded", zap.String("host", c.Request.Host), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusServiceUnavailable,
					dto.NewErrorResponse(shared.ErrStoreUnavailable.Code, "temporarily unavailable"))
			default:
				log.Error("tenant resolution failed", zap.String("host", c.Request.Host), zap.Error(err))
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					dto.NewErrorResponse(shared.ErrInternal.Code, shared.ErrInternal.Message))
			}
			return
		}

		if !t.IsServable() {
			c.AbortWithStatusJSON(http.StatusForbidden,
				dto.NewErrorResponse(dto.ErrCodeForbidden, "storefront is suspended"))
			return
		}

		c.Set(TenantIDKey, t.ID.String())
		c.Set(TenantKey, t)

		ctx, _ := logger.WithTenantID(c.Request.Context(), logger.FromContext(c.Request.Context()), t.ID.String())
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// GetTenant returns the resolved tenant from the gin context
func GetTenant(c *gin.Context) (*tenant.Tenant, bool) {
	v, ok := c.Get(TenantKey)
	if !ok {
		return nil, false
	}
	t, ok := v.(*tenant.Tenant)
	return t, ok
}
