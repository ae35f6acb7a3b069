// Package tenant holds the tenant aggregate: the unit of isolation the
// whole storefront backend is organized around.
package tenant

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storefront/backend/internal/domain/shared"
)

// Status represents the lifecycle state of a tenant
type Status string

const (
	StatusActive    Status = "active"
	StatusSuspended Status = "suspended"
	// StatusDeleted is a soft delete. Rows and the tenant schema are kept;
	// only explicit administrative deletion removes physical state.
	StatusDeleted Status = "deleted"
)

// slugPattern is the only accepted shape for tenant slugs. The slug is
// immutable after creation and is never used to derive schema names.
var slugPattern = regexp.MustCompile(`^[a-z0-9-]{3,63}$`)

// reservedSlugs can never be claimed because they collide with operational
// subdomains
var reservedSlugs = map[string]struct{}{
	"www":    {},
	"api":    {},
	"admin":  {},
	"status": {},
}

// SettingsVersion is the current settings schema version. Bump it when
// adding fields so readers can migrate older blobs explicitly.
const SettingsVersion = 1

// Features are the per-tenant feature toggles
type Features struct {
	Reviews      bool `json:"reviews"`
	GiftCards    bool `json:"gift_cards"`
	Subscription bool `json:"subscriptions"`
	MultiCurrent bool `json:"multi_currency"`
}

// PaymentSettings hold the tenant's payment-gateway credentials. They are
// the only configuration payment adapters consume.
type PaymentSettings struct {
	Provider         string `json:"provider"`
	StripeAPIKey     string `json:"stripe_api_key,omitempty"`
	StripeWebhookKey string `json:"stripe_webhook_key,omitempty"`
}

// Settings is the tenant configuration blob. It is explicitly schematized
// and versioned rather than an open map, keeping forward and backward
// compatibility visible in the type.
type Settings struct {
	Version  int             `json:"version"`
	Currency string          `json:"currency"`
	Locale   string          `json:"locale"`
	Timezone string          `json:"timezone"`
	Features Features        `json:"features"`
	Payment  PaymentSettings `json:"payment"`
}

// DefaultSettings returns the settings a new tenant starts with
func DefaultSettings() Settings {
	return Settings{
		Version:  SettingsVersion,
		Currency: "USD",
		Locale:   "en-US",
		Timezone: "UTC",
	}
}

// Limits are the resource ceilings attached to a subscription plan
type Limits struct {
	MaxProducts  int `json:"max_products"`
	MaxOrders    int `json:"max_orders"`
	MaxCustomers int `json:"max_customers"`
}

// Subscription binds a tenant to a plan for a billing period
type Subscription struct {
	PlanID      string          `json:"plan_id"`
	Price       decimal.Decimal `json:"price"`
	Limits      Limits          `json:"limits"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
}

// FreePlan returns the subscription a new tenant starts on
func FreePlan(now time.Time) Subscription {
	return Subscription{
		PlanID: "free",
		Price:  decimal.Zero,
		Limits: Limits{
			MaxProducts:  100,
			MaxOrders:    500,
			MaxCustomers: 1000,
		},
		PeriodStart: now,
		PeriodEnd:   now.AddDate(0, 1, 0),
	}
}

// Tenant is the aggregate root for one storefront
type Tenant struct {
	shared.BaseEntity
	Slug         string
	Name         string
	Domain       string
	CustomDomain string
	Status       Status
	Region       string
	Settings     Settings
	Subscription Subscription
	Version      int
}

// New creates an active tenant. The derived Domain is slug.baseDomain; the
// slug is validated here and never changes afterward.
func New(slug, name, region, baseDomain string) (*Tenant, error) {
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, shared.ErrValidation.WithMessage("tenant name cannot be empty")
	}
	if len(name) > 200 {
		return nil, shared.ErrValidation.WithMessage("tenant name cannot exceed 200 characters")
	}

	now := time.Now()
	return &Tenant{
		BaseEntity:   shared.NewBaseEntity(),
		Slug:         slug,
		Name:         name,
		Domain:       slug + "." + baseDomain,
		Status:       StatusActive,
		Region:       region,
		Settings:     DefaultSettings(),
		Subscription: FreePlan(now),
		Version:      1,
	}, nil
}

// ValidateSlug checks the slug shape and the reserved list
func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return shared.ErrValidation.WithMessage("slug %q must match [a-z0-9-]{3,63}", slug)
	}
	if _, reserved := reservedSlugs[slug]; reserved {
		return shared.ErrValidation.WithMessage("slug %q is reserved", slug)
	}
	return nil
}

func (t *Tenant) touch() {
	t.UpdatedAt = time.Now()
	t.Version++
}

// SetCustomDomain attaches a custom domain. Uniqueness across tenants is
// enforced by the repository.
func (t *Tenant) SetCustomDomain(domain string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain != "" {
		if len(domain) > 253 || strings.ContainsAny(domain, "/: ") || !strings.Contains(domain, ".") {
			return shared.ErrValidation.WithMessage("custom domain %q is not a bare hostname", domain)
		}
	}
	t.CustomDomain = domain
	t.touch()
	return nil
}

// Rename updates the display name; the slug and derived domain stay fixed
func (t *Tenant) Rename(name string) error {
	if name == "" || len(name) > 200 {
		return shared.ErrValidation.WithMessage("tenant name must be 1-200 characters")
	}
	t.Name = name
	t.touch()
	return nil
}

// UpdateSettings replaces the settings blob, refusing downgrades to
// unknown versions
func (t *Tenant) UpdateSettings(s Settings) error {
	if s.Version != SettingsVersion {
		return shared.ErrValidation.WithMessage("unsupported settings version %d", s.Version)
	}
	t.Settings = s
	t.touch()
	return nil
}

// ChangePlan swaps the subscription
func (t *Tenant) ChangePlan(sub Subscription) error {
	if sub.PlanID == "" {
		return shared.ErrValidation.WithMessage("plan id cannot be empty")
	}
	if sub.PeriodEnd.Before(sub.PeriodStart) {
		return shared.ErrValidation.WithMessage("subscription period end precedes start")
	}
	t.Subscription = sub
	t.touch()
	return nil
}

// Suspend blocks the tenant (payment failure, abuse)
func (t *Tenant) Suspend() error {
	if t.Status == StatusDeleted {
		return shared.ErrValidation.WithMessage("cannot suspend a deleted tenant")
	}
	t.Status = StatusSuspended
	t.touch()
	return nil
}

// Reactivate returns a suspended tenant to service
func (t *Tenant) Reactivate() error {
	if t.Status == StatusDeleted {
		return shared.ErrValidation.WithMessage("cannot reactivate a deleted tenant")
	}
	t.Status = StatusActive
	t.touch()
	return nil
}

// SoftDelete flips the status; physical state is never removed here
func (t *Tenant) SoftDelete() {
	t.Status = StatusDeleted
	t.touch()
}

// IsServable reports whether requests for this tenant should be handled
func (t *Tenant) IsServable() bool {
	return t.Status == StatusActive
}

// CanAddProduct reports whether the plan admits one more product
func (t *Tenant) CanAddProduct(current int) bool {
	return current < t.Subscription.Limits.MaxProducts
}

// CanAddOrder reports whether the plan admits one more order this period
func (t *Tenant) CanAddOrder(current int) bool {
	return current < t.Subscription.Limits.MaxOrders
}

// CanAddCustomer reports whether the plan admits one more customer
func (t *Tenant) CanAddCustomer(current int) bool {
	return current < t.Subscription.Limits.MaxCustomers
}

// InCurrentPeriod reports whether ts falls inside the billing period
func (t *Tenant) InCurrentPeriod(ts time.Time) bool {
	return !ts.Before(t.Subscription.PeriodStart) && ts.Before(t.Subscription.PeriodEnd)
}
