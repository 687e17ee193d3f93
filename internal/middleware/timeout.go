// Package middleware provides HTTP middleware for the admission core.
//
// This file bounds per-request execution time. The deadline is carried on
// the request context, so every suspension point downstream — the JWKS
// fetch, control-plane reads, the engine health probe, tenant queries —
// is cancelled together when it expires.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// TimeoutConfig controls the per-request deadline.
type TimeoutConfig struct {
	// Timeout is the maximum wall-clock duration for one request.
	Timeout time.Duration

	// ExcludedPathPrefixes lists path prefixes exempt from the deadline.
	ExcludedPathPrefixes []string
}

// DefaultTimeoutConfig allows 30 seconds per request with no exemptions —
// the admission core has no streaming or upload surface that would need
// longer.
func DefaultTimeoutConfig() TimeoutConfig {
	return TimeoutConfig{Timeout: 30 * time.Second}
}

// Timeout attaches a deadline to the request context. Handlers and the
// admission chain propagate that context into every blocking call; when
// the deadline passes, those calls fail and the request unwinds. If the
// handler finished by exceeding the deadline without writing a response,
// the client gets a 408.
func Timeout(config TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, prefix := range config.ExcludedPathPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				c.Next()
				return
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), config.Timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		c.Next()

		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Writer.Written() {
			c.AbortWithStatusJSON(http.StatusRequestTimeout, gin.H{
				"detail": "The request took too long to process",
			})
		}
	}
}

// TimeoutWithDuration is Timeout with only the duration overridden.
func TimeoutWithDuration(timeout time.Duration) gin.HandlerFunc {
	config := DefaultTimeoutConfig()
	config.Timeout = timeout
	return Timeout(config)
}
