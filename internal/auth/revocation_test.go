package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carplatform/admission/internal/controlplane"
	apperr "github.com/carplatform/admission/internal/errors"
)

// fakeTokenRecords is an in-memory TokenRecords keyed by token hash.
type fakeTokenRecords struct {
	mu       sync.Mutex
	byHash   map[string]*controlplane.ServiceAccountToken
	lastUsed []string
}

func newFakeTokenRecords() *fakeTokenRecords {
	return &fakeTokenRecords{byHash: make(map[string]*controlplane.ServiceAccountToken)}
}

func (f *fakeTokenRecords) FindServiceAccountTokenByHash(_ context.Context, hash string) (*controlplane.ServiceAccountToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byHash[hash], nil
}

func (f *fakeTokenRecords) UpdateLastUsed(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastUsed = append(f.lastUsed, tokenHash)
	return nil
}

func (f *fakeTokenRecords) InsertServiceAccountToken(_ context.Context, tok *controlplane.ServiceAccountToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byHash[tok.TokenHash] = tok
	return nil
}

func (f *fakeTokenRecords) ListServiceAccountTokensByTenant(_ context.Context, tenantID uuid.UUID) ([]controlplane.ServiceAccountToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []controlplane.ServiceAccountToken
	for _, tok := range f.byHash {
		if tok.TenantID == tenantID {
			out = append(out, *tok)
		}
	}
	return out, nil
}

func (f *fakeTokenRecords) RevokeServiceAccountToken(_ context.Context, tokenID, tenantID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tok := range f.byHash {
		if tok.TokenID == tokenID && tok.TenantID == tenantID {
			tok.IsRevoked = true
		}
	}
	return nil
}

func TestHashToken_Deterministic(t *testing.T) {
	a := hashToken("secret-value")
	b := hashToken("secret-value")
	assert.Equal(t, a, b)
}

func TestHashToken_DistinctInputs(t *testing.T) {
	a := hashToken("secret-one")
	b := hashToken("secret-two")
	assert.NotEqual(t, a, b)
}

func TestServiceAccountStore_IssueThenAuthenticate(t *testing.T) {
	records := newFakeTokenRecords()
	store := NewServiceAccountTokenStore(records)
	tenantID := uuid.New()

	raw, tokenID, err := store.Issue(context.Background(), tenantID, "ingest-bot", controlplane.RoleIngestion, "admin@acme")
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	claims, err := store.Authenticate(context.Background(), raw)
	require.NoError(t, err)
	require.NotNil(t, claims)
	assert.Equal(t, tokenID.String(), claims.Subject)
	assert.Equal(t, tenantID, claims.TenantID)
	assert.Equal(t, []string{"ingestion"}, claims.Roles)
	assert.True(t, claims.ServiceAccount)
}

func TestServiceAccountStore_UnknownTokenIsMiss(t *testing.T) {
	store := NewServiceAccountTokenStore(newFakeTokenRecords())

	claims, err := store.Authenticate(context.Background(), "ey-looks-like-a-jwt")
	require.NoError(t, err)
	assert.Nil(t, claims, "an unknown hash must fall through to JWT validation, not error")
}

func TestServiceAccountStore_RevokedTokenFails(t *testing.T) {
	records := newFakeTokenRecords()
	store := NewServiceAccountTokenStore(records)
	tenantID := uuid.New()

	raw, tokenID, err := store.Issue(context.Background(), tenantID, "ingest-bot", controlplane.RoleIngestion, "admin@acme")
	require.NoError(t, err)

	require.NoError(t, store.Revoke(context.Background(), tokenID, tenantID))

	claims, err := store.Authenticate(context.Background(), raw)
	require.Error(t, err)
	assert.Nil(t, claims)

	appErr, ok := err.(*apperr.AppError)
	require.True(t, ok)
	assert.Equal(t, apperr.CodeRevoked, appErr.Code)
}

func TestServiceAccountStore_AuthenticateTouchesLastUsed(t *testing.T) {
	records := newFakeTokenRecords()
	store := NewServiceAccountTokenStore(records)

	raw, _, err := store.Issue(context.Background(), uuid.New(), "ingest-bot", controlplane.RoleIngestion, "admin@acme")
	require.NoError(t, err)

	_, err = store.Authenticate(context.Background(), raw)
	require.NoError(t, err)

	// last_used is written from a goroutine off the request path.
	assert.Eventually(t, func() bool {
		records.mu.Lock()
		defer records.mu.Unlock()
		return len(records.lastUsed) == 1
	}, time.Second, 10*time.Millisecond)
}
