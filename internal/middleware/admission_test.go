package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carplatform/admission/internal/auth"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"absent", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"valid", "Bearer my-token", "my-token"},
		{"empty after prefix", "Bearer ", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				c.Request.Header.Set("Authorization", tc.header)
			}

			assert.Equal(t, tc.want, extractBearerToken(c))
		})
	}
}

func TestAccessors_MissingContextErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	_, err := GetClaims(c)
	assert.Error(t, err)

	_, err = GetTenantDB(c)
	assert.Error(t, err)

	_, err = GetTenantID(c)
	assert.Error(t, err)
}

func TestAccessors_RoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	claims := &auth.Claims{Subject: "user-1", TenantID: uuid.New(), Roles: []string{"admin"}}
	c.Set(ContextKeyClaims, claims)
	c.Set(ContextKeyTenantID, claims.TenantID)

	got, err := GetClaims(c)
	require.NoError(t, err)
	assert.Same(t, claims, got)

	gotID, err := GetTenantID(c)
	require.NoError(t, err)
	assert.Equal(t, claims.TenantID, gotID)

	assert.Same(t, claims, MustGetClaims(c))
	assert.Equal(t, claims.TenantID, MustGetTenantID(c))
}

func TestMustGetClaims_PanicsWhenMissing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	assert.Panics(t, func() { MustGetClaims(c) })
}
