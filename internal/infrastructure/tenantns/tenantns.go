// Package tenantns defines the stable mapping from tenant IDs to isolated
// namespace names.
//
// The same derivation backs both relational schema names and cache key
// prefixes, so a tenant's rows and cache entries can never cross-contaminate
// with another tenant's. Operational tooling relies on this mapping staying
// fixed; changing it strands every existing schema.
package tenantns

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/storefront/backend/internal/domain/shared"
)

// Prefix is the fixed leader of every derived namespace name
const Prefix = "t_"

// Derive maps a tenant ID to its namespace name: "t_" followed by the
// 32 lowercase hex digits of the UUID. The mapping is deterministic and
// injective, and the output alphabet is [a-z0-9_], so the result is safe to
// use as an SQL schema identifier without further escaping. It is a function
// of the opaque ID only, never of the user-supplied slug.
func Derive(tenantID uuid.UUID) string {
	return Prefix + hex.EncodeToString(tenantID[:])
}

// CacheKeyPrefix returns the namespace prefix applied to tenant-scoped
// cache keys
func CacheKeyPrefix(tenantID uuid.UUID) string {
	return Derive(tenantID) + ":"
}

// Parse recovers the tenant ID from a derived namespace name. It is the
// inverse of Derive and rejects anything that could not have been produced
// by it.
func Parse(name string) (uuid.UUID, error) {
	if !strings.HasPrefix(name, Prefix) {
		return uuid.Nil, shared.ErrValidation.WithMessage("namespace %q does not start with %q", name, Prefix)
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(name, Prefix))
	if err != nil || len(raw) != 16 {
		return uuid.Nil, shared.ErrValidation.WithMessage("namespace %q is not a derived name", name)
	}
	return uuid.FromBytes(raw)
}
