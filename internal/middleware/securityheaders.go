// Package middleware provides HTTP middleware for the admission core.
//
// This file sets the response security headers. The admission core serves
// JSON to API clients, never HTML to browsers, so the policy is locked
// down hard: nothing may be framed, embedded, or script-loaded from a
// response, and transport is HTTPS-only.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

// SecurityHeadersConfig controls the headers applied to every response.
type SecurityHeadersConfig struct {
	// HSTSMaxAgeSeconds is the Strict-Transport-Security max-age. Zero
	// disables HSTS entirely (local development over plain HTTP).
	HSTSMaxAgeSeconds int

	// FrameOptions is the X-Frame-Options value.
	FrameOptions string

	// ContentSecurityPolicy is emitted verbatim.
	ContentSecurityPolicy string

	// NoStore adds Cache-Control: no-store, which keeps tenant-scoped API
	// responses out of shared proxy caches.
	NoStore bool
}

// DefaultSecurityHeadersConfig is the production policy for a JSON-only
// API surface.
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		HSTSMaxAgeSeconds:     31536000,
		FrameOptions:          "DENY",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		NoStore:               true,
	}
}

// SecurityHeaders applies the default policy.
func SecurityHeaders() gin.HandlerFunc {
	return SecurityHeadersWithConfig(DefaultSecurityHeadersConfig())
}

// SecurityHeadersWithConfig applies config to every response passing
// through it.
func SecurityHeadersWithConfig(config SecurityHeadersConfig) gin.HandlerFunc {
	hsts := ""
	if config.HSTSMaxAgeSeconds > 0 {
		hsts = "max-age=" + strconv.Itoa(config.HSTSMaxAgeSeconds) + "; includeSubDomains"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()

		if hsts != "" {
			h.Set("Strict-Transport-Security", hsts)
		}
		h.Set("X-Content-Type-Options", "nosniff")
		if config.FrameOptions != "" {
			h.Set("X-Frame-Options", config.FrameOptions)
		}
		if config.ContentSecurityPolicy != "" {
			h.Set("Content-Security-Policy", config.ContentSecurityPolicy)
		}
		h.Set("Referrer-Policy", "no-referrer")
		if config.NoStore {
			h.Set("Cache-Control", "no-store")
		}

		c.Next()
	}
}
