// Package controlplane provides typed access to the shared database that
// holds tenant metadata, per-tenant connection secrets, and the
// service-account revocation index.
//
// The control plane is a collaborator, not owned by this module — the
// tenant provisioning workflow populates tenants and tenant_databases; this
// package only reads them (and updates the narrow, append-mostly
// service_account_tokens.last_used/is_revoked fields).
package controlplane

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// TenantEnvironment is the deployment tier a tenant runs in.
type TenantEnvironment string

const (
	EnvDevelopment TenantEnvironment = "development"
	EnvStaging     TenantEnvironment = "staging"
	EnvProduction  TenantEnvironment = "production"
)

// TenantStatus is the lifecycle state of a Tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantSuspended TenantStatus = "suspended"
	TenantPending   TenantStatus = "pending"
)

// Tenant is one customer: the unit of isolation. Only tenants with
// Status == TenantActive are resolvable by the TenantResolver.
type Tenant struct {
	TenantID    uuid.UUID         `db:"tenant_id"`
	Name        string            `db:"name"`
	Environment TenantEnvironment `db:"environment"`
	Status      TenantStatus      `db:"status"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
}

// IsActive reports whether the tenant may currently be resolved.
func (t *Tenant) IsActive() bool {
	return t.Status == TenantActive
}

// TenantDatabaseStatus is the lifecycle state of a TenantDatabase row.
type TenantDatabaseStatus string

const (
	TenantDatabaseActive   TenantDatabaseStatus = "active"
	TenantDatabaseInactive TenantDatabaseStatus = "inactive"
)

// TenantDatabase is one-to-many off Tenant; only the row with
// Status == TenantDatabaseActive is ever used by the resolver.
type TenantDatabase struct {
	ID                        uuid.UUID            `db:"id"`
	TenantID                  uuid.UUID            `db:"tenant_id"`
	ConnectionStringEncrypted string               `db:"connection_string_encrypted"`
	DatabaseName              string               `db:"database_name"`
	Host                      string               `db:"host"`
	Port                      int                  `db:"port"`
	Status                    TenantDatabaseStatus `db:"status"`
	CreatedAt                 time.Time            `db:"created_at"`
	UpdatedAt                 time.Time            `db:"updated_at"`
}

// ServiceAccountRole is a closed enumeration matching the roles table used
// by the authorization guard.
type ServiceAccountRole string

const (
	RoleAdmin     ServiceAccountRole = "admin"
	RoleAnalyst   ServiceAccountRole = "analyst"
	RoleViewer    ServiceAccountRole = "viewer"
	RoleIngestion ServiceAccountRole = "ingestion"
)

// ServiceAccountToken is a long-lived credential issued by an Admin for
// scripted ingestion. The secret itself is never stored — only TokenHash,
// the SHA-256 digest of the raw credential.
type ServiceAccountToken struct {
	TokenID   uuid.UUID          `db:"token_id"`
	TenantID  uuid.UUID          `db:"tenant_id"`
	TokenHash string             `db:"token_hash"`
	Name      string             `db:"name"`
	Role      ServiceAccountRole `db:"role"`
	CreatedBy string             `db:"created_by"`
	CreatedAt time.Time          `db:"created_at"`
	LastUsed  sql.NullTime       `db:"last_used"`
	IsRevoked bool               `db:"is_revoked"`
	RevokedAt sql.NullTime       `db:"revoked_at"`
}

// DatabaseName derives the per-tenant database name from a tenant id:
// "car_" followed by the UUID with hyphens replaced by underscores.
func DatabaseName(tenantID uuid.UUID) string {
	s := tenantID.String()
	out := make([]byte, 0, len("car_")+len(s))
	out = append(out, "car_"...)
	for _, r := range s {
		if r == '-' {
			out = append(out, '_')
		} else {
			out = append(out, byte(r))
		}
	}
	return string(out)
}
