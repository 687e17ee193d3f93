// Package middleware provides HTTP middleware for the admission core.
//
// This file implements the authorization guard: route-level
// gin.HandlerFunc factories that check a requirement against the Claims
// admission already attached to the request, using the static
// role-to-permission table in internal/rbac rather than a database lookup.
//
// Usage:
//
//	guard := middleware.NewAuthorizationGuard(audit.NewLogSink())
//	docs := protected.Group("/documents")
//	docs.POST("", guard.RequirePermission(rbac.PermUploadDocument), uploadHandler)
//	docs.DELETE("/:id", guard.RequireRole(string(rbac.RoleAdmin)), deleteHandler)
package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carplatform/admission/internal/audit"
	"github.com/carplatform/admission/internal/auth"
	apperr "github.com/carplatform/admission/internal/errors"
	"github.com/carplatform/admission/internal/rbac"
)

// contextKeyAuthzMemo holds the per-request memoization table. It is never
// shared across requests — gin gives every request its own *gin.Context,
// and the map is lazily created the first time a guard runs against it.
const contextKeyAuthzMemo = "authz_memo"

// AuthorizationGuard checks role and permission requirements against the
// Claims populated by the admission middleware, and audits every denial.
type AuthorizationGuard struct {
	sink audit.Sink
}

// NewAuthorizationGuard builds a guard that emits denials to sink.
func NewAuthorizationGuard(sink audit.Sink) *AuthorizationGuard {
	return &AuthorizationGuard{sink: sink}
}

// RequireRole allows the request only if Claims carries role, compared
// case-insensitively.
func (g *AuthorizationGuard) RequireRole(role string) gin.HandlerFunc {
	requirement := "role:" + role
	return func(c *gin.Context) {
		claims := MustGetClaims(c)

		allowed, ok := g.lookup(c, claims, requirement)
		if !ok {
			allowed = claims.HasRole(role)
			g.remember(c, claims, requirement, allowed)
		}

		if allowed {
			c.Next()
			return
		}

		g.deny(c, claims, audit.DecisionRole, requirement, fmt.Sprintf("claims do not carry role %q", role))
		apperr.AbortWithError(c, apperr.NotInRole([]string{role}))
	}
}

// RequireAnyRole allows the request if Claims carries any of roles.
func (g *AuthorizationGuard) RequireAnyRole(roles ...string) gin.HandlerFunc {
	requirement := "any_role:" + strings.Join(roles, ",")
	return func(c *gin.Context) {
		claims := MustGetClaims(c)

		allowed, ok := g.lookup(c, claims, requirement)
		if !ok {
			allowed = claims.HasAnyRole(roles)
			g.remember(c, claims, requirement, allowed)
		}

		if allowed {
			c.Next()
			return
		}

		g.deny(c, claims, audit.DecisionAnyRole, requirement, fmt.Sprintf("claims carry none of roles %v", roles))
		apperr.AbortWithError(c, apperr.NotInRole(roles))
	}
}

// RequirePermission allows the request only if any role Claims carries
// grants permission in the static role→permission table.
func (g *AuthorizationGuard) RequirePermission(permission string) gin.HandlerFunc {
	requirement := "permission:" + permission
	return func(c *gin.Context) {
		claims := MustGetClaims(c)

		allowed, ok := g.lookup(c, claims, requirement)
		if !ok {
			allowed = false
			for _, role := range claims.Roles {
				if rbac.Grants(role, permission) {
					allowed = true
					break
				}
			}
			g.remember(c, claims, requirement, allowed)
		}

		if allowed {
			c.Next()
			return
		}

		g.deny(c, claims, audit.DecisionPermission, requirement, fmt.Sprintf("no role in %v grants %q", claims.Roles, permission))
		apperr.AbortWithError(c, apperr.MissingPermission(permission))
	}
}

// memoKey binds a cached decision to the tenant, subject, the role set
// presented, and what was required. Two
// different requirement checks within the same request never collide
// because requirement is part of the key.
func memoKey(claims *auth.Claims, requirement string) string {
	return claims.TenantID.String() + "|" + claims.Subject + "|" + claims.RolesHash() + "|" + requirement
}

// lookup consults this request's memoization table, populated only with
// decisions already computed earlier in the same request.
func (g *AuthorizationGuard) lookup(c *gin.Context, claims *auth.Claims, requirement string) (allowed bool, found bool) {
	memo := authzMemo(c)
	allowed, found = memo[memoKey(claims, requirement)]
	return allowed, found
}

func (g *AuthorizationGuard) remember(c *gin.Context, claims *auth.Claims, requirement string, allowed bool) {
	authzMemo(c)[memoKey(claims, requirement)] = allowed
}

func authzMemo(c *gin.Context) map[string]bool {
	if v, ok := c.Get(contextKeyAuthzMemo); ok {
		return v.(map[string]bool)
	}
	memo := make(map[string]bool)
	c.Set(contextKeyAuthzMemo, memo)
	return memo
}

func (g *AuthorizationGuard) deny(c *gin.Context, claims *auth.Claims, kind audit.DecisionKind, requirement, reason string) {
	g.sink.Emit(audit.Event{
		Timestamp:      time.Now(),
		UserID:         claims.Subject,
		TenantID:       claims.TenantID,
		RolesPresented: claims.Roles,
		Endpoint:       c.Request.Method + " " + c.FullPath(),
		Decision:       kind,
		Requirement:    requirement,
		Reason:         reason,
	})
}
