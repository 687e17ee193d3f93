// Package middleware provides HTTP middleware for the admission core.
//
// This file caps request body sizes. The admission core's own endpoints
// exchange small JSON payloads; anything large arriving here is either a
// misdirected upload or an attempt to exhaust memory.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// MaxRequestBodySize caps any request body accepted by this service.
	MaxRequestBodySize int64 = 10 * 1024 * 1024

	// MaxJSONPayloadSize caps the JSON endpoints specifically.
	MaxJSONPayloadSize int64 = 5 * 1024 * 1024
)

// RequestSizeLimiter rejects bodies larger than maxSize. The declared
// Content-Length is checked first for a fast 413; the body is then wrapped
// with MaxBytesReader so a lying or chunked request still cannot stream
// past the cap.
func RequestSizeLimiter(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		if c.Request.ContentLength > maxSize {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"detail": "Request body exceeds maximum allowed size",
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)

		c.Next()
	}
}

// JSONSizeLimiter applies the JSON payload cap.
func JSONSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxJSONPayloadSize)
}

// DefaultSizeLimiter applies the general body cap.
func DefaultSizeLimiter() gin.HandlerFunc {
	return RequestSizeLimiter(MaxRequestBodySize)
}
