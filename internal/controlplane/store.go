package controlplane

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/carplatform/admission/internal/logger"
)

// Store provides typed access to the control-plane schema: tenants,
// tenant_databases, and service_account_tokens. Methods apply no timeout
// of their own; each query is bounded only by the deadline of the ctx the
// caller passes in.
type Store struct {
	db *sqlx.DB
}

// Open connects to the control-plane Postgres database and verifies
// connectivity with a bounded ping, mirroring the pool-tuning values the
// rest of the platform uses for its primary connection.
func Open(databaseURL string) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("controlplane: DATABASE_URL must not be empty")
	}

	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("controlplane: failed to open: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("controlplane: failed to ping: %w", err)
	}

	logger.Database().Info().Msg("control-plane store connected")

	return &Store{db: db}, nil
}

// NewStoreForTesting builds a Store from an already-open sqlx.DB, for tests
// that drive a mock or a dockertest instance directly.
func NewStoreForTesting(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// GetTenant reads the tenant row for tenantID. Returns (nil, nil) if no
// such tenant exists; callers decide how to treat an inactive tenant
// themselves (the resolver maps both cases to the same TenantNotFound
// error).
func (s *Store) GetTenant(ctx context.Context, tenantID uuid.UUID) (*Tenant, error) {
	var t Tenant
	err := s.db.GetContext(ctx, &t, `
		SELECT tenant_id, name, environment, status, created_at, updated_at
		FROM tenants
		WHERE tenant_id = $1
	`, tenantID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("controlplane: get tenant: %w", err)
	}
	return &t, nil
}

// GetActiveTenantDatabase reads the single active TenantDatabase row for a
// tenant. Returns (nil, nil) if no active row exists.
func (s *Store) GetActiveTenantDatabase(ctx context.Context, tenantID uuid.UUID) (*TenantDatabase, error) {
	var td TenantDatabase
	err := s.db.GetContext(ctx, &td, `
		SELECT id, tenant_id, connection_string_encrypted, database_name, host, port, status, created_at, updated_at
		FROM tenant_databases
		WHERE tenant_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID, TenantDatabaseActive)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("controlplane: get tenant database: %w", err)
	}
	return &td, nil
}

// FindServiceAccountTokenByHash looks a service-account token up by its
// SHA-256 hash.
// Returns (nil, nil) on no match, never an error for "not found" — the
// absence of a match is the expected, high-frequency case that routes the
// request on to JWT validation instead.
func (s *Store) FindServiceAccountTokenByHash(ctx context.Context, hash string) (*ServiceAccountToken, error) {
	var tok ServiceAccountToken
	err := s.db.GetContext(ctx, &tok, `
		SELECT token_id, tenant_id, token_hash, name, role, created_by, created_at, last_used, is_revoked, revoked_at
		FROM service_account_tokens
		WHERE token_hash = $1
	`, hash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("controlplane: find service account token: %w", err)
	}
	return &tok, nil
}

// UpdateLastUsed records that a service-account token was just used. Called
// asynchronously from the validation path, which discards the returned
// error — failures never reach the request, since last_used is
// at-least-once, eventually.
func (s *Store) UpdateLastUsed(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE service_account_tokens SET last_used = now() WHERE token_hash = $1
	`, tokenHash)
	if err != nil {
		return fmt.Errorf("controlplane: update last_used: %w", err)
	}
	return nil
}

// InsertServiceAccountToken creates a new service-account token record. The
// raw secret itself is not part of this type — callers hash it before
// calling Insert and return the raw value to the operator exactly once.
func (s *Store) InsertServiceAccountToken(ctx context.Context, tok *ServiceAccountToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO service_account_tokens (token_id, tenant_id, token_hash, name, role, created_by, created_at, is_revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false)
	`, tok.TokenID, tok.TenantID, tok.TokenHash, tok.Name, tok.Role, tok.CreatedBy, tok.CreatedAt)
	if err != nil {
		return fmt.Errorf("controlplane: insert service account token: %w", err)
	}
	return nil
}

// ListServiceAccountTokensByTenant lists all tokens issued for a tenant,
// most recent first.
func (s *Store) ListServiceAccountTokensByTenant(ctx context.Context, tenantID uuid.UUID) ([]ServiceAccountToken, error) {
	var toks []ServiceAccountToken
	err := s.db.SelectContext(ctx, &toks, `
		SELECT token_id, tenant_id, token_hash, name, role, created_by, created_at, last_used, is_revoked, revoked_at
		FROM service_account_tokens
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("controlplane: list service account tokens: %w", err)
	}
	return toks, nil
}

// RevokeServiceAccountToken flips is_revoked to true. is_revoked is a latch
// — this call is idempotent and never clears a prior revocation.
func (s *Store) RevokeServiceAccountToken(ctx context.Context, tokenID, tenantID uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE service_account_tokens
		SET is_revoked = true, revoked_at = now()
		WHERE token_id = $1 AND tenant_id = $2 AND is_revoked = false
	`, tokenID, tenantID)
	if err != nil {
		return fmt.Errorf("controlplane: revoke service account token: %w", err)
	}
	return nil
}
