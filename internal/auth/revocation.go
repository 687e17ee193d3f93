package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carplatform/admission/internal/controlplane"
	apperr "github.com/carplatform/admission/internal/errors"
)

// TokenRecords is the slice of the control plane the service-account path
// reads and writes. *controlplane.Store satisfies it; tests substitute an
// in-memory fake.
type TokenRecords interface {
	FindServiceAccountTokenByHash(ctx context.Context, hash string) (*controlplane.ServiceAccountToken, error)
	UpdateLastUsed(ctx context.Context, tokenHash string) error
	InsertServiceAccountToken(ctx context.Context, tok *controlplane.ServiceAccountToken) error
	ListServiceAccountTokensByTenant(ctx context.Context, tenantID uuid.UUID) ([]controlplane.ServiceAccountToken, error)
	RevokeServiceAccountToken(ctx context.Context, tokenID, tenantID uuid.UUID) error
}

// ServiceAccountTokenStore manages long-lived opaque credentials and their
// revocation index. Service-account credentials are opaque 256-bit random
// tokens; only their SHA-256 hash is ever persisted. SHA-256 (not bcrypt)
// is deliberate here: these tokens are validated on every request and need
// lookup speed, not brute-force resistance — the 256 bits of entropy
// already make offline guessing infeasible.
type ServiceAccountTokenStore struct {
	records TokenRecords
}

// NewServiceAccountTokenStore wraps the control-plane token records.
func NewServiceAccountTokenStore(records TokenRecords) *ServiceAccountTokenStore {
	return &ServiceAccountTokenStore{records: records}
}

// hashToken computes the lookup key stored alongside a service-account
// token: the base64url-encoded SHA-256 digest of the raw bearer value.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.URLEncoding.EncodeToString(sum[:])
}

// Authenticate resolves a raw bearer value to Claims via the
// service-account path. It returns (nil, nil) if no token record matches
// the hash — the expected, high-frequency outcome for a request actually
// carrying a JWT, which routes validation on to the JWT path instead. A
// matching-but-revoked record is an error, not a miss: a revoked token
// must never fall through and be reinterpreted as "absent."
func (s *ServiceAccountTokenStore) Authenticate(ctx context.Context, raw string) (*Claims, error) {
	hash := hashToken(raw)

	tok, err := s.records.FindServiceAccountTokenByHash(ctx, hash)
	if err != nil {
		return nil, apperr.ControlPlaneUnavailable(err)
	}
	if tok == nil {
		return nil, nil
	}
	if tok.IsRevoked {
		return nil, apperr.Revoked()
	}

	go s.touchLastUsed(hash)

	return &Claims{
		Subject:        tok.TokenID.String(),
		TenantID:       tok.TenantID,
		Roles:          []string{string(tok.Role)},
		ServiceAccount: true,
	}, nil
}

// touchLastUsed records token usage out of band. last_used is
// at-least-once, eventually; it must never add latency or failure modes to
// the request path, so the error is dropped here.
func (s *ServiceAccountTokenStore) touchLastUsed(hash string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = s.records.UpdateLastUsed(ctx, hash)
}

// Issue creates a new service-account token for tenantID and returns the
// raw secret. The raw value is returned exactly once; only its hash is
// persisted.
func (s *ServiceAccountTokenStore) Issue(ctx context.Context, tenantID uuid.UUID, name string, role controlplane.ServiceAccountRole, createdBy string) (raw string, tokenID uuid.UUID, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", uuid.Nil, fmt.Errorf("auth: generate service account token: %w", err)
	}
	raw = base64.URLEncoding.EncodeToString(buf)
	tokenID = uuid.New()

	tok := &controlplane.ServiceAccountToken{
		TokenID:   tokenID,
		TenantID:  tenantID,
		TokenHash: hashToken(raw),
		Name:      name,
		Role:      role,
		CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.records.InsertServiceAccountToken(ctx, tok); err != nil {
		return "", uuid.Nil, err
	}
	return raw, tokenID, nil
}

// Revoke latches is_revoked for a token. Idempotent — revoking an
// already-revoked token is not an error.
func (s *ServiceAccountTokenStore) Revoke(ctx context.Context, tokenID, tenantID uuid.UUID) error {
	return s.records.RevokeServiceAccountToken(ctx, tokenID, tenantID)
}

// ListByTenant lists all service-account tokens issued for a tenant.
func (s *ServiceAccountTokenStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]controlplane.ServiceAccountToken, error) {
	return s.records.ListServiceAccountTokensByTenant(ctx, tenantID)
}
