package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/tenant"
)

// TenantModel is the persistence model for the Tenant aggregate. It lives
// in the shared public schema; tenant business data lives in the per-tenant
// schemas managed by the schema gateway.
type TenantModel struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	Slug         string    `gorm:"type:varchar(63);not null;uniqueIndex"`
	Name         string    `gorm:"type:varchar(200);not null"`
	Domain       string    `gorm:"type:varchar(253);not null;uniqueIndex"`
	CustomDomain *string   `gorm:"type:varchar(253);uniqueIndex"`
	Status       string    `gorm:"type:varchar(20);not null;default:'active';index"`
	Region       string    `gorm:"type:varchar(50)"`
	Settings     string    `gorm:"type:jsonb;not null;default:'{}'"`
	Version      int       `gorm:"not null;default:1"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Subscription *TenantSubscriptionModel `gorm:"foreignKey:TenantID"`
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// TenantSubscriptionModel is the persistence model for a tenant's
// subscription row
type TenantSubscriptionModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	TenantID    uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	PlanID      string          `gorm:"type:varchar(50);not null"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0"`
	Limits      string          `gorm:"type:jsonb;not null;default:'{}'"`
	PeriodStart time.Time       `gorm:"not null"`
	PeriodEnd   time.Time       `gorm:"not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TableName returns the table name for GORM
func (TenantSubscriptionModel) TableName() string {
	return "tenant_subscriptions"
}

// ToDomain converts the persistence model to the domain aggregate
func (m *TenantModel) ToDomain() (*tenant.Tenant, error) {
	var settings tenant.Settings
	if err := json.Unmarshal([]byte(m.Settings), &settings); err != nil {
		return nil, fmt.Errorf("decode settings for tenant %s: %w", m.ID, err)
	}

	t := &tenant.Tenant{
		BaseEntity: shared.BaseEntity{
			ID:        m.ID,
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		Slug:     m.Slug,
		Name:     m.Name,
		Domain:   m.Domain,
		Status:   tenant.Status(m.Status),
		Region:   m.Region,
		Settings: settings,
		Version:  m.Version,
	}
	if m.CustomDomain != nil {
		t.CustomDomain = *m.CustomDomain
	}

	if m.Subscription != nil {
		var limits tenant.Limits
		if err := json.Unmarshal([]byte(m.Subscription.Limits), &limits); err != nil {
			return nil, fmt.Errorf("decode limits for tenant %s: %w", m.ID, err)
		}
		t.Subscription = tenant.Subscription{
			PlanID:      m.Subscription.PlanID,
			Price:       m.Subscription.Price,
			Limits:      limits,
			PeriodStart: m.Subscription.PeriodStart,
			PeriodEnd:   m.Subscription.PeriodEnd,
		}
	}

	return t, nil
}

// TenantModelFromDomain converts the domain aggregate to its persistence
// models
func TenantModelFromDomain(t *tenant.Tenant) (*TenantModel, error) {
	settings, err := json.Marshal(t.Settings)
	if err != nil {
		return nil, fmt.Errorf("encode settings for tenant %s: %w", t.ID, err)
	}
	limits, err := json.Marshal(t.Subscription.Limits)
	if err != nil {
		return nil, fmt.Errorf("encode limits for tenant %s: %w", t.ID, err)
	}

	m := &TenantModel{
		ID:        t.ID,
		Slug:      t.Slug,
		Name:      t.Name,
		Domain:    t.Domain,
		Status:    string(t.Status),
		Region:    t.Region,
		Settings:  string(settings),
		Version:   t.Version,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Subscription: &TenantSubscriptionModel{
			ID:          uuid.New(),
			TenantID:    t.ID,
			PlanID:      t.Subscription.PlanID,
			Price:       t.Subscription.Price,
			Limits:      string(limits),
			PeriodStart: t.Subscription.PeriodStart,
			PeriodEnd:   t.Subscription.PeriodEnd,
		},
	}
	if t.CustomDomain != "" {
		domain := t.CustomDomain
		m.CustomDomain = &domain
	}
	return m, nil
}
