package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Filter narrows List results
type Filter struct {
	Status   Status
	Region   string
	Page     int
	PageSize int
}

// Repository is the persistence contract for tenants. Create persists the
// tenant row and its subscription row in one transaction and returns
// shared.ErrConflict when the slug, domain, or custom domain is taken.
type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	Update(ctx context.Context, t *Tenant) error
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindBySlug(ctx context.Context, slug string) (*Tenant, error)
	FindByCustomDomain(ctx context.Context, domain string) (*Tenant, error)
	List(ctx context.Context, filter Filter) ([]Tenant, error)
	// Delete physically removes the tenant row. Reserved for administrative
	// deletion after the schema has been dropped; soft delete goes through
	// Update with StatusDeleted.
	Delete(ctx context.Context, id uuid.UUID) error
}
