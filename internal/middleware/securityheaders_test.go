package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serveWithHeaders(t *testing.T, mw gin.HandlerFunc) http.Header {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(mw)
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	return rec.Header()
}

func TestSecurityHeaders_DefaultPolicy(t *testing.T) {
	h := serveWithHeaders(t, SecurityHeaders())

	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	assert.Equal(t, "no-store", h.Get("Cache-Control"))
	assert.Contains(t, h.Get("Strict-Transport-Security"), "max-age=31536000")
	assert.Contains(t, h.Get("Content-Security-Policy"), "default-src 'none'")
}

func TestSecurityHeaders_HSTSDisabledWhenZero(t *testing.T) {
	cfg := DefaultSecurityHeadersConfig()
	cfg.HSTSMaxAgeSeconds = 0

	h := serveWithHeaders(t, SecurityHeadersWithConfig(cfg))

	assert.Empty(t, h.Get("Strict-Transport-Security"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
}
