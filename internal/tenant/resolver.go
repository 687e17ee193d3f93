package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carplatform/admission/internal/controlplane"
	"github.com/carplatform/admission/internal/crypto"
	apperr "github.com/carplatform/admission/internal/errors"
)

// ControlPlane is the slice of the control-plane store the resolver reads.
// *controlplane.Store satisfies it; tests substitute a fake.
type ControlPlane interface {
	GetTenant(ctx context.Context, tenantID uuid.UUID) (*controlplane.Tenant, error)
	GetActiveTenantDatabase(ctx context.Context, tenantID uuid.UUID) (*controlplane.TenantDatabase, error)
}

// Resolver performs the cache-miss path: read the tenant, read its active
// database record, decrypt the connection string, construct an Engine, and
// health-probe it before it is ever handed to a cache entry.
type Resolver struct {
	store        ControlPlane
	decryptor    *crypto.Decryptor
	newEngine    func(dsn string) (Engine, error)
	probeTimeout time.Duration
	cpTimeout    time.Duration
}

// NewResolver builds a Resolver. probeTimeout bounds the health check
// issued before a new Engine is trusted; cpTimeout bounds each
// control-plane read.
func NewResolver(store ControlPlane, decryptor *crypto.Decryptor, probeTimeout, cpTimeout time.Duration) *Resolver {
	return &Resolver{
		store:        store,
		decryptor:    decryptor,
		newEngine:    NewEngine,
		probeTimeout: probeTimeout,
		cpTimeout:    cpTimeout,
	}
}

// Resolve is the Resolve function handed to a Cache. It re-validates
// tenantID defensively (the admission middleware already validated the
// string form, but a Cache can in principle be driven by other callers),
// then performs the full control-plane read / decrypt / construct / probe
// sequence.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID) (Engine, error) {
	if tenantID == uuid.Nil {
		return nil, apperr.MalformedTenantID()
	}

	cpCtx, cancel := context.WithTimeout(ctx, r.cpTimeout)
	defer cancel()

	t, err := r.store.GetTenant(cpCtx, tenantID)
	if err != nil {
		return nil, apperr.ControlPlaneUnavailable(err)
	}
	if t == nil || !t.IsActive() {
		return nil, apperr.TenantNotFoundOrInactive()
	}

	td, err := r.store.GetActiveTenantDatabase(cpCtx, tenantID)
	if err != nil {
		return nil, apperr.ControlPlaneUnavailable(err)
	}
	if td == nil {
		return nil, apperr.TenantNotFoundOrInactive()
	}

	dsn, err := r.decryptor.Decrypt(td.ConnectionStringEncrypted, tenantAAD(tenantID))
	if err != nil {
		return nil, err
	}

	engine, err := r.newEngine(string(dsn))
	if err != nil {
		return nil, apperr.ConnectionTestFailed()
	}

	probeCtx, probeCancel := context.WithTimeout(ctx, r.probeTimeout)
	defer probeCancel()

	if err := engine.Ping(probeCtx); err != nil {
		_ = engine.Close()
		return nil, apperr.ConnectionTestFailed()
	}

	return engine, nil
}

// tenantAAD binds the decryption of a connection string to the tenant it
// belongs to, so a connection string swapped between two tenant_databases
// rows (e.g. by a control-plane bug or a compromised writer) fails to
// decrypt rather than silently decrypting under the wrong tenant.
func tenantAAD(tenantID uuid.UUID) []byte {
	return []byte(tenantID.String())
}
