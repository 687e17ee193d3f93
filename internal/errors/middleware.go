// Package errors provides standardized error handling for the admission core.
//
// This file implements error handling middleware for Gin.
//
// Middleware Functions:
//   - ErrorHandler: converts an AppError left on the gin context into the
//     standard response envelope, setting WWW-Authenticate when required.
//   - Recovery: recovers from panics so a single bad request cannot take
//     the process down; panics become a 500 with no internal detail leaked.
//   - HandleError / AbortWithError: helpers for handlers and middleware
//     further down the chain.
package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/carplatform/admission/internal/logger"
)

// ErrorHandler handles errors consistently for any handler that appends to
// c.Errors instead of writing its own response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// AbortWithError and HandleError log and write their own response;
		// this handler only covers errors left on the context with no
		// response behind them.
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last()

		if appErr, ok := err.Err.(*AppError); ok {
			logAppError(appErr)
			writeResponse(c, appErr)
			return
		}

		logger.GetLogger().Error().Err(err.Err).Msg("unhandled error")
		writeResponse(c, Internal("An unexpected error occurred"))
	}
}

// Recovery recovers from panics anywhere downstream. A panic becomes a
// 500 and is logged with full context; the JWKS and tenant caches own
// their own locking and are unaffected by an aborted request.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.GetLogger().Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Msg("recovered from panic")

				writeResponse(c, Internal("An unexpected error occurred"))
				c.Abort()
			}
		}()

		c.Next()
	}
}

// logAppError writes the single log line for an error response. Routine
// credential failures (expired, malformed, wrong audience) are client
// noise and log at info; a revoked credential being replayed is the one
// client error worth surfacing above that, so it alone logs at warn.
// Server-side failures log at error.
func logAppError(appErr *AppError) {
	var event *zerolog.Event
	switch {
	case appErr.StatusCode >= 500:
		event = logger.GetLogger().Error()
	case appErr.Code == CodeRevoked:
		event = logger.Security().Warn()
	case appErr.StatusCode == http.StatusUnauthorized || appErr.StatusCode == http.StatusForbidden:
		event = logger.Security().Info()
	default:
		event = logger.GetLogger().Info()
	}
	event.Str("code", appErr.Code).Str("details", appErr.Details).Msg(appErr.Message)
}

func writeResponse(c *gin.Context, appErr *AppError) {
	if appErr.WWWAuthenticate {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.JSON(appErr.StatusCode, appErr.ToResponse())
}

// HandleError is a helper for handlers that want to respond to an error
// without aborting the gin error chain.
func HandleError(c *gin.Context, err error) {
	if appErr, ok := err.(*AppError); ok {
		logAppError(appErr)
		c.Error(appErr)
		writeResponse(c, appErr)
		return
	}
	internalErr := Internal(err.Error())
	logAppError(internalErr)
	c.Error(internalErr)
	writeResponse(c, internalErr)
}

// AbortWithError aborts the request immediately with the given AppError.
func AbortWithError(c *gin.Context, err *AppError) {
	logAppError(err)
	c.Error(err)
	if err.WWWAuthenticate {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(err.StatusCode, err.ToResponse())
}
