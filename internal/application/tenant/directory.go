package tenant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/domain/tenant"
	"github.com/storefront/backend/internal/infrastructure/cache"
)

// directoryTag groups every cached host resolution so admin tooling can
// flush the whole directory at once.
const directoryTag = "tenant-directory"

// SchemaManager provisions and destroys per-tenant relational namespaces.
type SchemaManager interface {
	Provision(ctx context.Context, tenantID uuid.UUID) error
	Drop(ctx context.Context, tenantID uuid.UUID) error
}

// Directory resolves request hosts to tenants and orchestrates the tenant
// lifecycle: transactional creation with schema provisioning, status flips,
// and administrative deletion.
type Directory struct {
	repo       tenant.Repository
	cache      *cache.TaggedCache
	bus        *cache.InvalidationBus
	schemas    SchemaManager
	baseDomain string
	resolveTTL time.Duration
	logger     *zap.Logger
}

// NewDirectory creates a tenant directory. baseDomain is the shared suffix
// tenant subdomains hang off ("myshops.example"); resolveTTL bounds how long
// a host resolution may be served from cache.
func NewDirectory(
	repo tenant.Repository,
	taggedCache *cache.TaggedCache,
	schemas SchemaManager,
	baseDomain string,
	resolveTTL time.Duration,
	logger *zap.Logger,
) *Directory {
	return &Directory{
		repo:       repo,
		cache:      taggedCache,
		schemas:    schemas,
		baseDomain: strings.ToLower(strings.TrimSuffix(baseDomain, ".")),
		resolveTTL: resolveTTL,
		logger:     logger,
	}
}

// SetInvalidationBus attaches a bus used to broadcast cache flushes to the
// other service instances. Single-node setups can leave it unset.
func (d *Directory) SetInvalidationBus(bus *cache.InvalidationBus) {
	d.bus = bus
}

// broadcast fans an invalidation event out to peer instances. Best effort,
// a failed publish only delays peers until their cache entries expire.
func (d *Directory) broadcast(ctx context.Context, msg cache.InvalidationMessage) {
	if d.bus == nil {
		return
	}
	if err := d.bus.Publish(ctx, msg); err != nil {
		d.logger.Warn("invalidation broadcast failed", zap.Error(err))
	}
}

func hostCacheKey(host string) string {
	return "resolve:host:" + host
}

// NormalizeHost lowercases a request host and strips any port suffix.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.TrimSuffix(host, ".")
}

// ResolveHost maps a request host to a tenant. Custom domains win over
// subdomain slugs. Resolutions are cached; a cache outage degrades to a
// direct read. Deleted tenants resolve as not found.
func (d *Directory) ResolveHost(ctx context.Context, host string) (*tenant.Tenant, error) {
	host = NormalizeHost(host)
	if host == "" {
		return nil, shared.ErrValidation.WithMessage("empty host")
	}

	opts := cache.Options{
		TTL:  d.resolveTTL,
		Tags: []string{directoryTag},
	}
	t, err := cache.GetOrSet(ctx, d.cache, hostCacheKey(host), opts, func(ctx context.Context) (tenant.Tenant, error) {
		resolved, err := d.resolveDirect(ctx, host)
		if err != nil {
			return tenant.Tenant{}, err
		}
		return *resolved, nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// resolveDirect is the uncached resolution path: exact custom-domain match
// first, then subdomain slug against the base domain.
func (d *Directory) resolveDirect(ctx context.Context, host string) (*tenant.Tenant, error) {
	t, err := d.repo.FindByCustomDomain(ctx, host)
	switch {
	case err == nil:
		return d.filterDeleted(t)
	case !errors.Is(err, shared.ErrNotFound):
		return nil, err
	}

	suffix := "." + d.baseDomain
	if !strings.HasSuffix(host, suffix) {
		return nil, shared.ErrNotFound.WithMessage("no tenant for host %q", host)
	}
	slug := strings.TrimSuffix(host, suffix)
	if err := tenant.ValidateSlug(slug); err != nil {
		return nil, shared.ErrNotFound.WithMessage("no tenant for host %q", host)
	}

	t, err = d.repo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return d.filterDeleted(t)
}

func (d *Directory) filterDeleted(t *tenant.Tenant) (*tenant.Tenant, error) {
	if t.Status == tenant.StatusDeleted {
		return nil, shared.ErrNotFound.WithMessage("tenant %s is deleted", t.Slug)
	}
	return t, nil
}

// CreateInput carries the fields needed to open a new storefront.
type CreateInput struct {
	Slug   string
	Name   string
	Region string
}

// Create registers a tenant and provisions its relational namespace. The
// row insert is transactional; if provisioning fails afterwards the rows
// are removed again so no half-created tenant remains.
func (d *Directory) Create(ctx context.Context, input CreateInput) (*tenant.Tenant, error) {
	t, err := tenant.New(input.Slug, input.Name, input.Region, d.baseDomain)
	if err != nil {
		return nil, err
	}

	if err := d.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	if err := d.schemas.Provision(ctx, t.ID); err != nil {
		d.logger.Error("schema provisioning failed, rolling back tenant",
			zap.String("tenant_id", t.ID.String()),
			zap.String("slug", t.Slug),
			zap.Error(err))
		if delErr := d.repo.Delete(ctx, t.ID); delErr != nil {
			// The rows stay behind; the slug is blocked until an operator
			// removes them.
			d.logger.Error("tenant rollback failed",
				zap.String("tenant_id", t.ID.String()),
				zap.Error(delErr))
		}
		return nil, fmt.Errorf("provision namespace for %s: %w", t.Slug, err)
	}

	d.logger.Info("tenant created",
		zap.String("tenant_id", t.ID.String()),
		zap.String("slug", t.Slug),
		zap.String("domain", t.Domain))
	return t, nil
}

// Get returns a tenant by id.
func (d *Directory) Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return d.repo.FindByID(ctx, id)
}

// List returns tenants matching the filter.
func (d *Directory) List(ctx context.Context, filter tenant.Filter) ([]tenant.Tenant, error) {
	return d.repo.List(ctx, filter)
}

// SetCustomDomain attaches a custom domain to the tenant and drops any
// stale cached resolutions for both the old and the new host.
func (d *Directory) SetCustomDomain(ctx context.Context, id uuid.UUID, domain string) (*tenant.Tenant, error) {
	t, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := t.CustomDomain
	if err := t.SetCustomDomain(domain); err != nil {
		return nil, err
	}
	if err := d.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	d.invalidateResolution(ctx, t)
	if previous != "" && previous != t.CustomDomain {
		d.dropHostEntry(ctx, previous)
	}
	return t, nil
}

// Rename changes the display name.
func (d *Directory) Rename(ctx context.Context, id uuid.UUID, name string) (*tenant.Tenant, error) {
	return d.mutate(ctx, id, func(t *tenant.Tenant) error {
		return t.Rename(name)
	})
}

// UpdateSettings replaces the tenant settings blob, enforcing the settings
// schema version.
func (d *Directory) UpdateSettings(ctx context.Context, id uuid.UUID, s tenant.Settings) (*tenant.Tenant, error) {
	return d.mutate(ctx, id, func(t *tenant.Tenant) error {
		return t.UpdateSettings(s)
	})
}

// ChangePlan swaps the tenant's subscription.
func (d *Directory) ChangePlan(ctx context.Context, id uuid.UUID, sub tenant.Subscription) (*tenant.Tenant, error) {
	return d.mutate(ctx, id, func(t *tenant.Tenant) error {
		return t.ChangePlan(sub)
	})
}

// Suspend stops serving the tenant without losing data.
func (d *Directory) Suspend(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return d.mutate(ctx, id, func(t *tenant.Tenant) error {
		return t.Suspend()
	})
}

// Reactivate resumes a suspended tenant.
func (d *Directory) Reactivate(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return d.mutate(ctx, id, func(t *tenant.Tenant) error {
		return t.Reactivate()
	})
}

// SoftDelete flips the tenant to deleted. Rows and schema stay in place.
func (d *Directory) SoftDelete(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return d.mutate(ctx, id, func(t *tenant.Tenant) error {
		t.SoftDelete()
		return nil
	})
}

// AdminDelete physically removes the tenant: schema first, then rows, then
// every cache entry in the tenant's namespace. Irreversible.
func (d *Directory) AdminDelete(ctx context.Context, id uuid.UUID) error {
	t, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := d.schemas.Drop(ctx, id); err != nil {
		return fmt.Errorf("drop namespace for %s: %w", t.Slug, err)
	}
	if err := d.repo.Delete(ctx, id); err != nil {
		return err
	}

	d.invalidateResolution(ctx, t)
	if err := d.cache.ClearTenant(ctx, id); err != nil {
		d.logger.Warn("tenant cache sweep failed",
			zap.String("tenant_id", id.String()),
			zap.Error(err))
	}
	d.broadcast(ctx, cache.InvalidationMessage{TenantID: id})

	d.logger.Info("tenant deleted",
		zap.String("tenant_id", id.String()),
		zap.String("slug", t.Slug))
	return nil
}

// Resource identifies a limited resource class on the subscription.
type Resource string

const (
	ResourceProducts  Resource = "products"
	ResourceOrders    Resource = "orders"
	ResourceCustomers Resource = "customers"
)

// EnsureWithinLimit returns ErrValidation when adding one more of the given
// resource would exceed the tenant's subscription limits.
func (d *Directory) EnsureWithinLimit(ctx context.Context, id uuid.UUID, resource Resource, current int) error {
	t, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	ok := false
	switch resource {
	case ResourceProducts:
		ok = t.CanAddProduct(current)
	case ResourceOrders:
		ok = t.CanAddOrder(current)
	case ResourceCustomers:
		ok = t.CanAddCustomer(current)
	default:
		return shared.ErrValidation.WithMessage("unknown resource %q", resource)
	}
	if !ok {
		return shared.ErrValidation.WithMessage("%s limit reached for plan %s", resource, t.Subscription.PlanID)
	}
	return nil
}

// InvalidateDirectory flushes every cached host resolution across all
// tenants. Used by admin tooling after bulk imports.
func (d *Directory) InvalidateDirectory(ctx context.Context) error {
	if err := d.cache.InvalidateTag(ctx, uuid.Nil, directoryTag); err != nil {
		return err
	}
	d.broadcast(ctx, cache.InvalidationMessage{Tag: directoryTag})
	return nil
}

func (d *Directory) mutate(ctx context.Context, id uuid.UUID, fn func(*tenant.Tenant) error) (*tenant.Tenant, error) {
	t, err := d.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	if err := d.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	d.invalidateResolution(ctx, t)
	return t, nil
}

// invalidateResolution drops the cached resolutions for every host that can
// reach this tenant. Best effort, resolution falls back to the store anyway.
func (d *Directory) invalidateResolution(ctx context.Context, t *tenant.Tenant) {
	d.dropHostEntry(ctx, t.Domain)
	if t.CustomDomain != "" {
		d.dropHostEntry(ctx, t.CustomDomain)
	}
}

func (d *Directory) dropHostEntry(ctx context.Context, host string) {
	if host == "" {
		return
	}
	if err := d.cache.Delete(ctx, uuid.Nil, hostCacheKey(NormalizeHost(host))); err != nil && !errors.Is(err, shared.ErrNotFound) {
		d.logger.Warn("resolution cache invalidation failed",
			zap.String("host", host),
			zap.Error(err))
	}
}
