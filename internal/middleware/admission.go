// Package middleware provides HTTP middleware for the admission core.
//
// This file implements tenant admission: the single gin.HandlerFunc every
// protected route runs through before a handler ever sees the request.
//
// Admission Architecture:
//   - The bearer token is authenticated (service-account hash lookup first,
//     then JWT/JWKS verification) to produce Claims.
//   - Claims.TenantID is resolved to a live, pooled database handle through
//     the tenant cache, provisioning it on a cold cache via the control
//     plane and a one-time health probe.
//   - Claims and the tenant database handle are attached to the request
//     context for downstream handlers and the authorization guard.
//
// Context Keys:
//   - "claims": the authenticated *auth.Claims
//   - "tenant_db": the resolved *sql.DB for this request's tenant
//   - "tenant_id": the tenant's uuid.UUID, duplicated from claims for
//     convenience
//
// Usage:
//
//	protected := router.Group(cfg.APIPathPrefix)
//	protected.Use(middleware.NewAdmission(validator, tenantCache).Middleware())
//
//	func MyHandler(c *gin.Context) {
//	    db := middleware.MustGetTenantDB(c)
//	    claims := middleware.MustGetClaims(c)
//	    // db is already scoped to claims.TenantID
//	}
package middleware

import (
	"database/sql"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carplatform/admission/internal/auth"
	apperr "github.com/carplatform/admission/internal/errors"
	"github.com/carplatform/admission/internal/logger"
	"github.com/carplatform/admission/internal/tenant"

	"github.com/google/uuid"
)

// Context keys for admission-scoped data.
const (
	ContextKeyClaims   = "claims"
	ContextKeyTenantDB = "tenant_db"
	ContextKeyTenantID = "tenant_id"
)

// Admission is the tenant admission middleware: it authenticates the
// bearer credential and resolves its tenant to a live database handle
// before any handler runs.
type Admission struct {
	validator *auth.Validator
	tenants   *tenant.Cache
}

// NewAdmission builds an Admission middleware from an already-constructed
// Validator and tenant Cache.
func NewAdmission(validator *auth.Validator, tenants *tenant.Cache) *Admission {
	return &Admission{validator: validator, tenants: tenants}
}

// Middleware authenticates the request and resolves its tenant. Every
// acquired Engine reference is released when the request finishes, which
// is why the release func is deferred here rather than handed to the
// handler — a handler that outlives its own request (a background
// goroutine holding onto the *sql.DB) would otherwise hold the tenant
// cache entry open indefinitely.
func (a *Admission) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		raw := extractBearerToken(c)
		claims, err := a.validator.Authenticate(c.Request.Context(), raw)
		if err != nil {
			apperr.AbortWithError(c, asAppError(err))
			return
		}

		engine, release, cacheHit, err := a.tenants.Acquire(c.Request.Context(), claims.TenantID)
		if err != nil {
			apperr.AbortWithError(c, asAppError(err))
			return
		}
		defer release()

		c.Set(ContextKeyClaims, claims)
		c.Set(ContextKeyTenantDB, engine.DB())
		c.Set(ContextKeyTenantID, claims.TenantID)

		c.Next()

		logger.Admission().Info().
			Str("tenant_id", claims.TenantID.String()).
			Str("path", c.Request.URL.Path).
			Int64("elapsed_ms", time.Since(start).Milliseconds()).
			Bool("cache_hit", cacheHit).
			Int("status", c.Writer.Status()).
			Msg("request admitted")
	}
}

// extractBearerToken reads the raw credential out of the Authorization
// header. An absent or malformed header yields an empty string, which
// Validator.Authenticate turns into apperr.MissingToken.
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	token := strings.TrimPrefix(header, prefix)
	if strings.TrimSpace(token) == "" {
		return ""
	}
	return token
}

// asAppError normalizes any error from the authentication/resolution path
// into an *apperr.AppError. Every error returned along that path is
// already one, so this only guards against an unexpected type slipping in
// through a future refactor.
func asAppError(err error) *apperr.AppError {
	if appErr, ok := err.(*apperr.AppError); ok {
		return appErr
	}
	return apperr.Internal(err.Error())
}

// GetClaims extracts the authenticated Claims from the request context.
func GetClaims(c *gin.Context) (*auth.Claims, error) {
	v, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil, apperr.ContextMissing("claims")
	}
	claims, ok := v.(*auth.Claims)
	if !ok {
		return nil, apperr.ContextMissing("claims")
	}
	return claims, nil
}

// MustGetClaims extracts Claims from the context, panicking if admission
// did not run. Use only in handlers mounted behind Admission.Middleware.
func MustGetClaims(c *gin.Context) *auth.Claims {
	claims, err := GetClaims(c)
	if err != nil {
		panic("MustGetClaims: " + err.Error())
	}
	return claims
}

// GetTenantDB extracts the resolved tenant database handle from the
// request context.
func GetTenantDB(c *gin.Context) (*sql.DB, error) {
	v, exists := c.Get(ContextKeyTenantDB)
	if !exists {
		return nil, apperr.ContextMissing("tenant_db")
	}
	db, ok := v.(*sql.DB)
	if !ok {
		return nil, apperr.ContextMissing("tenant_db")
	}
	return db, nil
}

// MustGetTenantDB extracts the tenant database handle from the context,
// panicking if admission did not run.
func MustGetTenantDB(c *gin.Context) *sql.DB {
	db, err := GetTenantDB(c)
	if err != nil {
		panic("MustGetTenantDB: " + err.Error())
	}
	return db
}

// GetTenantID extracts the resolved tenant id from the request context.
func GetTenantID(c *gin.Context) (uuid.UUID, error) {
	v, exists := c.Get(ContextKeyTenantID)
	if !exists {
		return uuid.UUID{}, apperr.ContextMissing("tenant_id")
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return uuid.UUID{}, apperr.ContextMissing("tenant_id")
	}
	return id, nil
}

// MustGetTenantID extracts the tenant id from the context, panicking if
// admission did not run.
func MustGetTenantID(c *gin.Context) uuid.UUID {
	id, err := GetTenantID(c)
	if err != nil {
		panic("MustGetTenantID: " + err.Error())
	}
	return id
}
