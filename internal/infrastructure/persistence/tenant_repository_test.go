package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/tenant"
)

func newMockRepo(t *testing.T) (*GormTenantRepository, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})
	gormDB, err := gorm.Open(dialector, &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)

	return NewGormTenantRepository(gormDB), mock
}

func tenantRows(t *tenant.Tenant) *sqlmock.Rows {
	var customDomain any
	if t.CustomDomain != "" {
		customDomain = t.CustomDomain
	}
	return sqlmock.NewRows([]string{
		"id", "slug", "name", "domain", "custom_domain", "status", "region",
		"settings", "version", "created_at", "updated_at",
	}).AddRow(
		t.ID, t.Slug, t.Name, t.Domain, customDomain, string(t.Status), t.Region,
		"{}", t.Version, t.CreatedAt, t.UpdatedAt,
	)
}

func subscriptionRows(t *tenant.Tenant) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "tenant_id", "plan_id", "price", "limits", "period_start",
		"period_end", "created_at", "updated_at",
	}).AddRow(
		uuid.New(), t.ID, t.Subscription.PlanID, t.Subscription.Price.String(),
		"{}", t.Subscription.PeriodStart, t.Subscription.PeriodEnd,
		time.Now(), time.Now(),
	)
}

func newStoredTenant(t *testing.T) *tenant.Tenant {
	t.Helper()
	tn, err := tenant.New("acme", "Acme Shop", "us-east", "myshops.example")
	require.NoError(t, err)
	return tn
}

func TestGormTenantRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts tenant and subscription in one transaction", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		tn := newStoredTenant(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "tenants"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "tenant_subscriptions"`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Create(ctx, tn))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unique violation maps to conflict", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		tn := newStoredTenant(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO "tenants"`).
			WillReturnError(gorm.ErrDuplicatedKey)
		mock.ExpectRollback()

		err := repo.Create(ctx, tn)
		assert.ErrorIs(t, err, shared.ErrConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGormTenantRepository_FindBySlug(t *testing.T) {
	ctx := context.Background()

	t.Run("hydrates the aggregate with its subscription", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		tn := newStoredTenant(t)

		mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE slug = \$1`).
			WithArgs("acme", 1).
			WillReturnRows(tenantRows(tn))
		mock.ExpectQuery(`SELECT \* FROM "tenant_subscriptions"`).
			WillReturnRows(subscriptionRows(tn))

		got, err := repo.FindBySlug(ctx, "ACME")
		require.NoError(t, err)
		assert.Equal(t, tn.ID, got.ID)
		assert.Equal(t, "acme", got.Slug)
		assert.Equal(t, tn.Subscription.PlanID, got.Subscription.PlanID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row maps to not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE slug = \$1`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := repo.FindBySlug(ctx, "ghost")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormTenantRepository_FindByCustomDomain(t *testing.T) {
	repo, _ := newMockRepo(t)

	// empty domain short-circuits without touching the database
	_, err := repo.FindByCustomDomain(context.Background(), "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormTenantRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("updates both rows", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		tn := newStoredTenant(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "tenants" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE "tenant_subscriptions" SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.Update(ctx, tn))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero rows affected maps to not found", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		tn := newStoredTenant(t)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE "tenants" SET`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := repo.Update(ctx, tn)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestGormTenantRepository_Delete(t *testing.T) {
	repo, mock := newMockRepo(t)
	tn := newStoredTenant(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "tenant_subscriptions"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM "tenants"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), tn.ID))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormTenantRepository_List(t *testing.T) {
	ctx := context.Background()

	t.Run("applies status filter and pagination", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		tn := newStoredTenant(t)

		mock.ExpectQuery(`SELECT \* FROM "tenants" WHERE status = \$1 ORDER BY created_at DESC LIMIT \$2`).
			WithArgs("active", 10).
			WillReturnRows(tenantRows(tn))
		mock.ExpectQuery(`SELECT \* FROM "tenant_subscriptions"`).
			WillReturnRows(subscriptionRows(tn))

		tenants, err := repo.List(ctx, tenant.Filter{
			Status:   tenant.StatusActive,
			Page:     1,
			PageSize: 10,
		})
		require.NoError(t, err)
		require.Len(t, tenants, 1)
		assert.Equal(t, "acme", tenants[0].Slug)
	})
}
