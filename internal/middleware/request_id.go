// Package middleware provides HTTP middleware for the admission core.
//
// This file assigns each request a correlation id. The id is accepted from
// the X-Request-ID header when an upstream gateway already assigned one,
// generated otherwise, and echoed back in the response so a client can
// quote it when reporting a problem.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader carries the correlation id in both directions.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin context key the id is stored under.
	RequestIDKey = "request_id"
)

// RequestID extracts or generates the request's correlation id. Mount it
// first in the chain so every later middleware and handler can read it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()
	}
}

// GetRequestID returns the request's correlation id, or "" if the RequestID
// middleware did not run.
func GetRequestID(c *gin.Context) string {
	if v, exists := c.Get(RequestIDKey); exists {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}
