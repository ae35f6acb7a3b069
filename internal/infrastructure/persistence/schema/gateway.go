// Package schema routes tenant-scoped queries into isolated PostgreSQL
// schemas while sharing one physical database.
//
// Isolation is structural: each tenant's tables live in a schema derived
// from the tenant ID, so a query-construction bug cannot leak cross-tenant
// rows by omitting a filter. The schema name mapping lives in package
// tenantns and is shared with the cache layer and operational tooling.
package schema

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/infrastructure/tenantns"
)

// tenantDDL is the fixed set of tables and indexes every tenant schema
// carries. Statements are idempotent so provisioning can be re-run safely.
var tenantDDL = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id UUID PRIMARY KEY,
		sku VARCHAR(100) NOT NULL,
		name VARCHAR(200) NOT NULL,
		description TEXT,
		price_cents BIGINT NOT NULL DEFAULT 0,
		currency VARCHAR(3) NOT NULL DEFAULT 'USD',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_products_sku ON products (sku)`,
	`CREATE TABLE IF NOT EXISTS customers (
		id UUID PRIMARY KEY,
		email VARCHAR(200) NOT NULL,
		name VARCHAR(200),
		password_hash VARCHAR(200),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_customers_email ON customers (email)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id UUID PRIMARY KEY,
		customer_id UUID REFERENCES customers (id),
		number VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		total_cents BIGINT NOT NULL DEFAULT 0,
		currency VARCHAR(3) NOT NULL DEFAULT 'USD',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_number ON orders (number)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders (status)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id UUID PRIMARY KEY,
		order_id UUID NOT NULL REFERENCES orders (id),
		product_id UUID NOT NULL REFERENCES products (id),
		quantity INT NOT NULL,
		unit_price_cents BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items (order_id)`,
}

// Gateway owns routing of relational access into tenant schemas
type Gateway struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGateway creates a gateway on the shared GORM handle
func NewGateway(db *gorm.DB, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{db: db, logger: logger}
}

// Name returns the schema name for a tenant. Exposed so callers and
// operational tooling agree on the mapping.
func Name(tenantID uuid.UUID) string {
	return tenantns.Derive(tenantID)
}

// Exists reports whether the tenant's schema has been provisioned
func (g *Gateway) Exists(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM information_schema.schemata WHERE schema_name = ?", Name(tenantID)).
		Scan(&count).Error
	if err != nil {
		return false, fmt.Errorf("check schema: %w", err)
	}
	return count > 0, nil
}

// Provision creates the tenant's schema and its fixed set of tables and
// indexes. Re-invocation on an existing schema is a no-op, not an error.
func (g *Gateway) Provision(ctx context.Context, tenantID uuid.UUID) error {
	name := Name(tenantID)

	if err := g.db.WithContext(ctx).
		Exec("CREATE SCHEMA IF NOT EXISTS " + pq.QuoteIdentifier(name)).Error; err != nil {
		return fmt.Errorf("create schema %s: %w", name, err)
	}

	// Table DDL must run with the new schema active so the fixed table set
	// lands inside it, never in public.
	err := g.WithTenantConnection(ctx, tenantID, func(db *gorm.DB) error {
		for _, stmt := range tenantDDL {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("provision tables for %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	g.logger.Info("tenant schema provisioned",
		zap.String("tenant_id", tenantID.String()),
		zap.String("schema", name))
	return nil
}

// WithTenantConnection borrows a dedicated connection, switches its
// search_path to the tenant's schema for the duration of fn, and releases
// it unconditionally afterward.
//
// The search_path is reset before the connection returns to the pool; if
// the reset fails the connection is discarded rather than risk handing
// tenant A's namespace to tenant B.
func (g *Gateway) WithTenantConnection(ctx context.Context, tenantID uuid.UUID, fn func(db *gorm.DB) error) error {
	name := Name(tenantID)

	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrStoreUnavailable, err)
	}

	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: acquiring connection: %v", shared.ErrStoreUnavailable, err)
	}
	defer g.release(ctx, conn)

	if _, err := conn.ExecContext(ctx, "SET search_path TO "+pq.QuoteIdentifier(name)); err != nil {
		return fmt.Errorf("switch to schema %s: %w", name, err)
	}

	tenantDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
	})
	if err != nil {
		return fmt.Errorf("bind session to schema %s: %w", name, err)
	}

	return fn(tenantDB.WithContext(ctx))
}

// release resets the connection's search_path and returns it to the pool.
// Runs even when ctx is already canceled.
func (g *Gateway) release(ctx context.Context, conn *sql.Conn) {
	resetCtx := context.WithoutCancel(ctx)
	if _, err := conn.ExecContext(resetCtx, "SET search_path TO public"); err != nil {
		g.logger.Warn("failed to reset search_path, discarding connection", zap.Error(err))
		// Raw with ErrBadConn marks the connection broken so the pool
		// drops it instead of reusing it with a stale namespace.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	}
	_ = conn.Close()
}

// Drop destroys the tenant's schema and everything in it. Destructive;
// reserved for explicit administrative deletion, never for soft-delete.
func (g *Gateway) Drop(ctx context.Context, tenantID uuid.UUID) error {
	name := Name(tenantID)
	if err := g.db.WithContext(ctx).
		Exec("DROP SCHEMA IF EXISTS " + pq.QuoteIdentifier(name) + " CASCADE").Error; err != nil {
		return fmt.Errorf("drop schema %s: %w", name, err)
	}
	g.logger.Warn("tenant schema dropped",
		zap.String("tenant_id", tenantID.String()),
		zap.String("schema", name))
	return nil
}
