package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/kv"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
)

// Dependencies carries everything the router wires together
type Dependencies struct {
	Config   *config.Config
	Logger   *zap.Logger
	Resolver middleware.HostResolver
	Limiter  *kv.RateLimiter

	Health *handler.HealthHandler
	Tenant *handler.TenantHandler

	// Auth pieces are optional; without a JWT service the admin surface is
	// left open (local development only).
	JWT       *auth.JWTService
	Blacklist *auth.TokenBlacklist
	Sessions  *auth.SessionStore
}

// New assembles the HTTP engine: probes, the admin surface, and the
// tenant-resolved storefront API.
func New(deps Dependencies) *gin.Engine {
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.GinMiddleware(deps.Logger),
		logger.Recovery(deps.Logger),
	)

	engine.GET("/health", deps.Health.Health)
	engine.GET("/ready", deps.Health.Ready)

	admin := engine.Group("/admin")
	if deps.JWT != nil {
		admin.Use(middleware.Auth(middleware.AuthConfig{
			JWT:       deps.JWT,
			Blacklist: deps.Blacklist,
			Sessions:  deps.Sessions,
			Logger:    deps.Logger,
		}))
	}
	{
		tenants := admin.Group("/tenants")
		tenants.POST("", deps.Tenant.Create)
		tenants.GET("", deps.Tenant.List)
		tenants.GET("/:id", deps.Tenant.Get)
		tenants.PATCH("/:id", deps.Tenant.Rename)
		tenants.PUT("/:id/custom-domain", deps.Tenant.SetCustomDomain)
		tenants.PUT("/:id/settings", deps.Tenant.UpdateSettings)
		tenants.PUT("/:id/plan", deps.Tenant.ChangePlan)
		tenants.POST("/:id/suspend", deps.Tenant.Suspend)
		tenants.POST("/:id/reactivate", deps.Tenant.Reactivate)
		tenants.DELETE("/:id", deps.Tenant.SoftDelete)
		tenants.DELETE("/:id/purge", deps.Tenant.Purge)

		admin.POST("/cache/directory/invalidate", deps.Tenant.InvalidateDirectory)
	}

	api := engine.Group("/api/v1")
	api.Use(middleware.TenantMiddleware(middleware.TenantMiddlewareConfig{
		Resolver: deps.Resolver,
		Logger:   deps.Logger,
	}))
	if deps.Config != nil && deps.Config.HTTP.RateLimitEnabled && deps.Limiter != nil {
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			Limiter:  deps.Limiter,
			Requests: deps.Config.HTTP.RateLimitRequests,
			Window:   deps.Config.HTTP.RateLimitWindow,
			Logger:   deps.Logger,
		}))
	}
	{
		// The storefront surface proper (catalog, checkout) hangs off this
		// group; the storefront endpoint returns the resolved tenant's
		// public profile.
		api.GET("/storefront", func(c *gin.Context) {
			t, ok := middleware.GetTenant(c)
			if !ok {
				c.JSON(http.StatusInternalServerError,
					dto.NewErrorResponse("INTERNAL", "tenant not resolved"))
				return
			}
			c.JSON(http.StatusOK, dto.NewSuccessResponse(gin.H{
				"slug":     t.Slug,
				"name":     t.Name,
				"currency": t.Settings.Currency,
				"locale":   t.Settings.Locale,
			}))
		})
	}

	return engine
}
