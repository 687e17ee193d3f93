// Package auth turns a raw bearer credential into an authenticated
// identity.
//
// Two disjoint token flavors share the Authorization header: signed JWTs
// issued by the configured identity provider, and long-lived opaque
// service-account tokens issued by an Admin for scripted ingestion.
// Disambiguation is by hash lookup first, then JWT parse — an ordering
// that keeps a signed-but-revoked service token from being accepted by
// signature alone. This must never be reversed.
package auth

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Claims is the authenticated identity of one request. It is constructed
// by Validator.Authenticate (from a JWT, or via
// ServiceAccountTokenStore.Authenticate for opaque tokens) and lives only
// for the request's duration — it is never persisted.
type Claims struct {
	// Subject identifies the authenticated principal: a user subject for
	// JWTs, or the service-account token_id for opaque tokens.
	Subject string

	// TenantID is always present and always a valid UUID — a Claims value
	// with an empty or malformed tenant id is never returned; validation
	// fails first.
	TenantID uuid.UUID

	// Roles is the unordered set of role names presented by the token,
	// normalized to lowercase.
	Roles []string

	// Audience, IssuedAt, and ExpiresAt are carried for observability and
	// are not re-checked by downstream components.
	Audience  string
	IssuedAt  int64
	ExpiresAt int64

	// ServiceAccount is true when these Claims were synthesized from a
	// service-account token record rather than a JWT.
	ServiceAccount bool
}

// HasRole reports whether role is present in Roles, case-insensitively.
func (c *Claims) HasRole(role string) bool {
	role = strings.ToLower(role)
	for _, r := range c.Roles {
		if strings.ToLower(r) == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether any of roles is present in Roles,
// case-insensitively.
func (c *Claims) HasAnyRole(roles []string) bool {
	for _, r := range roles {
		if c.HasRole(r) {
			return true
		}
	}
	return false
}

// RolesHash returns a stable, order-independent fingerprint of Roles,
// suitable as part of the authorization guard's per-request memoization
// key. It is not a cryptographic hash — collisions are irrelevant
// within the lifetime of a single request's memo table.
func (c *Claims) RolesHash() string {
	roles := make([]string, len(c.Roles))
	for i, r := range c.Roles {
		roles[i] = strings.ToLower(r)
	}
	sort.Strings(roles)
	return strings.Join(roles, ",")
}
