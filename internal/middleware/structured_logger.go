// Package middleware provides HTTP middleware for the admission core.
//
// This file implements structured access logging. One zerolog line per
// request, levelled by response class. The admission middleware emits its
// own richer line (tenant, cache hit) for admitted requests; this logger
// covers the whole surface, including the unauthenticated paths admission
// never sees.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/carplatform/admission/internal/logger"
)

// StructuredLoggerConfig controls which requests get an access-log line.
type StructuredLoggerConfig struct {
	// SkipPaths are matched exactly against the request path. Health and
	// readiness probes land here so they don't drown the log at one probe
	// per second per instance.
	SkipPaths []string
}

// DefaultStructuredLoggerConfig skips the health probe.
func DefaultStructuredLoggerConfig() StructuredLoggerConfig {
	return StructuredLoggerConfig{
		SkipPaths: []string{"/healthz"},
	}
}

// StructuredLogger logs every request with the default config.
func StructuredLogger() gin.HandlerFunc {
	return StructuredLoggerWithConfig(DefaultStructuredLoggerConfig())
}

// StructuredLoggerWithConfig logs every non-skipped request after its
// handler completes: method, path, status, latency, client IP, and the
// request id assigned by the RequestID middleware. Bearer tokens and other
// credentials travel in headers, which are never logged.
func StructuredLoggerWithConfig(config StructuredLoggerConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(config.SkipPaths))
	for _, p := range config.SkipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		event := accessEvent(status)

		if query != "" {
			event = event.Str("query", query)
		}
		if requestID := GetRequestID(c); requestID != "" {
			event = event.Str("request_id", requestID)
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("request")
	}
}

// accessEvent picks the log level for a response class: 5xx is an error on
// our side, 4xx is noteworthy but expected, everything else is routine.
func accessEvent(status int) *zerolog.Event {
	l := logger.HTTP()
	switch {
	case status >= 500:
		return l.Error()
	case status >= 400:
		return l.Warn()
	default:
		return l.Info()
	}
}
