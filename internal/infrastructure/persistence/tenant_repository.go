package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/tenant"
	"github.com/storefront/backend/internal/infrastructure/persistence/models"
)

// GormTenantRepository implements tenant.Repository on the shared public
// schema
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// mapErr translates GORM errors into the shared taxonomy
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return shared.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrConflict
	default:
		return err
	}
}

// Create persists the tenant row and its subscription row in one
// transaction. A taken slug, domain, or custom domain surfaces as
// shared.ErrConflict and leaves nothing behind.
func (r *GormTenantRepository) Create(ctx context.Context, t *tenant.Tenant) error {
	model, err := models.TenantModelFromDomain(t)
	if err != nil {
		return err
	}

	return mapErr(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.Subscription
		model.Subscription = nil
		if err := tx.Create(model).Error; err != nil {
			return err
		}
		return tx.Create(sub).Error
	}))
}

// Update saves the tenant row and its subscription row
func (r *GormTenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	model, err := models.TenantModelFromDomain(t)
	if err != nil {
		return err
	}

	return mapErr(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := model.Subscription
		model.Subscription = nil

		res := tx.Model(&models.TenantModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{
				"name":          model.Name,
				"custom_domain": model.CustomDomain,
				"status":        model.Status,
				"region":        model.Region,
				"settings":      model.Settings,
				"version":       model.Version,
				"updated_at":    model.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Model(&models.TenantSubscriptionModel{}).
			Where("tenant_id = ?", model.ID).
			Updates(map[string]any{
				"plan_id":      sub.PlanID,
				"price":        sub.Price,
				"limits":       sub.Limits,
				"period_start": sub.PeriodStart,
				"period_end":   sub.PeriodEnd,
			}).Error
	}))
}

func (r *GormTenantRepository) findOne(ctx context.Context, conds string, args ...any) (*tenant.Tenant, error) {
	var model models.TenantModel
	err := r.db.WithContext(ctx).
		Preload("Subscription").
		Where(conds, args...).
		First(&model).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return model.ToDomain()
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return r.findOne(ctx, "id = ?", id)
}

// FindBySlug finds a tenant by its immutable slug
func (r *GormTenantRepository) FindBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	return r.findOne(ctx, "slug = ?", strings.ToLower(slug))
}

// FindByCustomDomain finds a tenant by its custom domain
func (r *GormTenantRepository) FindByCustomDomain(ctx context.Context, domain string) (*tenant.Tenant, error) {
	if domain == "" {
		return nil, shared.ErrNotFound
	}
	return r.findOne(ctx, "custom_domain = ?", strings.ToLower(domain))
}

// List returns tenants matching the filter, newest first
func (r *GormTenantRepository) List(ctx context.Context, filter tenant.Filter) ([]tenant.Tenant, error) {
	query := r.db.WithContext(ctx).
		Model(&models.TenantModel{}).
		Preload("Subscription").
		Order("created_at DESC")

	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Region != "" {
		query = query.Where("region = ?", filter.Region)
	}
	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Limit(filter.PageSize).Offset((page - 1) * filter.PageSize)
	}

	var rows []models.TenantModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, mapErr(err)
	}

	tenants := make([]tenant.Tenant, 0, len(rows))
	for i := range rows {
		t, err := rows[i].ToDomain()
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *t)
	}
	return tenants, nil
}

// Delete physically removes the tenant and subscription rows. Used only by
// administrative deletion after the tenant schema has been dropped.
func (r *GormTenantRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return mapErr(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ?", id).
			Delete(&models.TenantSubscriptionModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.TenantModel{}).Error
	}))
}

var _ tenant.Repository = (*GormTenantRepository)(nil)
