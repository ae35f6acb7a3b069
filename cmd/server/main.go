package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apptenant "github.com/storefront/backend/internal/application/tenant"
	"github.com/storefront/backend/internal/infrastructure/auth"
	"github.com/storefront/backend/internal/infrastructure/cache"
	"github.com/storefront/backend/internal/infrastructure/config"
	"github.com/storefront/backend/internal/infrastructure/kv"
	"github.com/storefront/backend/internal/infrastructure/logger"
	"github.com/storefront/backend/internal/infrastructure/migration"
	"github.com/storefront/backend/internal/infrastructure/persistence"
	"github.com/storefront/backend/internal/infrastructure/persistence/schema"
	"github.com/storefront/backend/internal/interfaces/http/handler"
	"github.com/storefront/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log, err := logger.FromAppConfig(&cfg.Log)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("starting storefront backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("base_domain", cfg.Tenant.BaseDomain),
	)

	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("failed to close database", zap.Error(err))
		}
	}()
	db.DB.Logger = logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

	if cfg.Database.MigrateOnStart {
		if err := runMigrations(cfg, db, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	store, err := kv.NewRedisStore(kv.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close redis", zap.Error(err))
		}
	}()

	tagged := cache.NewTaggedCache(store, log)
	gateway := schema.NewGateway(db.DB, log)

	bus := cache.NewInvalidationBus(store, log)
	if err := bus.Start(context.Background(), func(msg cache.InvalidationMessage) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tagged.Apply(ctx, msg); err != nil {
			log.Warn("failed to apply invalidation event", zap.Error(err))
		}
	}); err != nil {
		log.Fatal("failed to start invalidation bus", zap.Error(err))
	}
	defer bus.Stop()

	directory := apptenant.NewDirectory(
		persistence.NewGormTenantRepository(db.DB),
		tagged,
		gateway,
		cfg.Tenant.BaseDomain,
		cfg.Tenant.ResolveCacheTTL,
		log,
	)
	directory.SetInvalidationBus(bus)

	jwtService := auth.NewJWTService(cfg.JWT)
	blacklist := auth.NewTokenBlacklist(tagged)
	sessions := auth.NewSessionStore(tagged, cfg.JWT.RefreshTokenExpiration)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := router.New(router.Dependencies{
		Config:    cfg,
		Logger:    log,
		Resolver:  directory,
		Limiter:   kv.NewRateLimiter(store),
		Health:    handler.NewHealthHandler(db, store),
		Tenant:    handler.NewTenantHandler(directory, log),
		JWT:       jwtService,
		Blacklist: blacklist,
		Sessions:  sessions,
	})
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Fatal("failed to set trusted proxies", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

func runMigrations(cfg *config.Config, db *persistence.Database, log *zap.Logger) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}

	migrator, err := migration.New(sqlDB, cfg.Database.MigrationsPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			log.Warn("failed to close migrator", zap.Error(err))
		}
	}()
	return migrator.Up()
}
