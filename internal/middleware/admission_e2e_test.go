package middleware

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carplatform/admission/internal/auth"
	"github.com/carplatform/admission/internal/controlplane"
	apperr "github.com/carplatform/admission/internal/errors"
	"github.com/carplatform/admission/internal/jwks"
	"github.com/carplatform/admission/internal/tenant"
)

const e2eAudience = "https://car.platform/api"

// stubTokenRecords holds at most one service-account token record.
type stubTokenRecords struct {
	record *controlplane.ServiceAccountToken
}

func (s *stubTokenRecords) FindServiceAccountTokenByHash(context.Context, string) (*controlplane.ServiceAccountToken, error) {
	return s.record, nil
}
func (s *stubTokenRecords) UpdateLastUsed(context.Context, string) error { return nil }
func (s *stubTokenRecords) InsertServiceAccountToken(context.Context, *controlplane.ServiceAccountToken) error {
	return nil
}
func (s *stubTokenRecords) ListServiceAccountTokensByTenant(context.Context, uuid.UUID) ([]controlplane.ServiceAccountToken, error) {
	return nil, nil
}
func (s *stubTokenRecords) RevokeServiceAccountToken(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

type stubEngine struct{}

func (stubEngine) Ping(context.Context) error { return nil }
func (stubEngine) DB() *sql.DB                { return nil }
func (stubEngine) Close() error               { return nil }

type admissionFixture struct {
	router   *gin.Engine
	priv     *rsa.PrivateKey
	tenantID uuid.UUID
	seen     *auth.Claims
}

// newAdmissionFixture wires the real validator, JWKS cache, and tenant
// cache behind a router with one protected route, faking only the edges:
// the control-plane token records and the database engine.
func newAdmissionFixture(t *testing.T, records auth.TokenRecords, resolve tenant.Resolve) *admissionFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	keys := jwks.NewCacheForTesting(nil, map[string]jwks.Key{
		"kid-1": {Alg: "RS256", Key: &priv.PublicKey},
	})

	validator := auth.NewValidator(auth.NewServiceAccountTokenStore(records), keys, e2eAudience, "RS256")

	fx := &admissionFixture{priv: priv, tenantID: uuid.New()}

	if resolve == nil {
		resolve = func(ctx context.Context, id uuid.UUID) (tenant.Engine, error) {
			return stubEngine{}, nil
		}
	}
	cache := tenant.NewCache(time.Minute, resolve)

	admission := NewAdmission(validator, cache)

	router := gin.New()
	api := router.Group("/api")
	api.Use(admission.Middleware())
	api.GET("/documents", func(c *gin.Context) {
		fx.seen = MustGetClaims(c)
		c.JSON(http.StatusOK, gin.H{"tenant_id": MustGetTenantID(c).String()})
	})

	fx.router = router
	return fx
}

func (fx *admissionFixture) signJWT(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = "kid-1"
	signed, err := tok.SignedString(fx.priv)
	require.NoError(t, err)
	return signed
}

func (fx *admissionFixture) validClaims() jwt.MapClaims {
	claims := jwt.MapClaims{
		"sub": "user-1",
		"aud": e2eAudience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	claims["https://car.platform/tenant_id"] = fx.tenantID.String()
	claims["https://car.platform/roles"] = []any{"Analyst"}
	return claims
}

func (fx *admissionFixture) get(token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func TestAdmission_ValidJWTReachesHandler(t *testing.T) {
	fx := newAdmissionFixture(t, &stubTokenRecords{}, nil)

	rec := fx.get(fx.signJWT(t, fx.validClaims()))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, fx.seen)
	assert.Equal(t, fx.tenantID, fx.seen.TenantID)
	assert.Equal(t, []string{"analyst"}, fx.seen.Roles)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, fx.tenantID.String(), body["tenant_id"])
}

func TestAdmission_MissingTokenIs401(t *testing.T) {
	fx := newAdmissionFixture(t, &stubTokenRecords{}, nil)

	rec := fx.get("")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Contains(t, rec.Body.String(), "Missing or invalid authentication token")
	assert.Nil(t, fx.seen)
}

func TestAdmission_RevokedServiceAccountIs401(t *testing.T) {
	records := &stubTokenRecords{}
	fx := newAdmissionFixture(t, records, nil)

	// Any bearer value hashes to "the" record in this stub; marking it
	// revoked must reject before JWT validation is attempted.
	records.record = &controlplane.ServiceAccountToken{
		TokenID:   uuid.New(),
		TenantID:  fx.tenantID,
		IsRevoked: true,
	}

	rec := fx.get(fx.signJWT(t, fx.validClaims()))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid or expired token")
	assert.Nil(t, fx.seen)
}

func TestAdmission_UnresolvableTenantIs401(t *testing.T) {
	fx := newAdmissionFixture(t, &stubTokenRecords{}, func(ctx context.Context, id uuid.UUID) (tenant.Engine, error) {
		return nil, apperr.TenantNotFoundOrInactive()
	})

	rec := fx.get(fx.signJWT(t, fx.validClaims()))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "tenant_not_found_or_inactive")
	assert.Nil(t, fx.seen)
}

func TestAdmission_MalformedTenantClaimIs401(t *testing.T) {
	fx := newAdmissionFixture(t, &stubTokenRecords{}, nil)

	claims := fx.validClaims()
	claims["https://car.platform/tenant_id"] = "not-a-uuid"

	rec := fx.get(fx.signJWT(t, claims))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid tenant_id format in token (must be UUID)")
	assert.Nil(t, fx.seen)
}
