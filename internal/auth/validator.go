package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperr "github.com/carplatform/admission/internal/errors"
	"github.com/carplatform/admission/internal/jwks"
)

const (
	claimTenantID = "https://car.platform/tenant_id"
	claimRoles    = "https://car.platform/roles"
)

// Validator authenticates a raw bearer credential, disambiguating between
// a long-lived service-account token and a signed JWT. The ordering is
// fixed: the revocation precheck always runs first. A signature alone
// must never be sufficient to accept a token that the hash index would
// have rejected.
type Validator struct {
	serviceAccounts *ServiceAccountTokenStore
	keys            *jwks.Cache
	audience        string
	allowedAlgs     map[string]bool
}

// NewValidator builds a Validator for the given JWKS cache and expected
// audience. algorithm is the single algorithm configured for this
// deployment (RS256 or ES256, per AUTH_ALGORITHM) — any other alg in an
// incoming token's header is rejected outright.
func NewValidator(serviceAccounts *ServiceAccountTokenStore, keys *jwks.Cache, audience string, algorithm string) *Validator {
	return &Validator{
		serviceAccounts: serviceAccounts,
		keys:            keys,
		audience:        audience,
		allowedAlgs:     map[string]bool{algorithm: true},
	}
}

// Authenticate turns a raw bearer value into Claims, or the specific
// AppError for whichever validation step failed first.
func (v *Validator) Authenticate(ctx context.Context, raw string) (*Claims, error) {
	if raw == "" {
		return nil, apperr.MissingToken()
	}

	// Step 1: revocation precheck, always before any JWT parsing.
	claims, err := v.serviceAccounts.Authenticate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if claims != nil {
		return claims, nil
	}

	return v.validateJWT(ctx, raw)
}

func (v *Validator) validateJWT(ctx context.Context, raw string) (*Claims, error) {
	var parsedClaims jwt.MapClaims

	token, err := jwt.ParseWithClaims(raw, &parsedClaims, func(tok *jwt.Token) (any, error) {
		alg, _ := tok.Header["alg"].(string)
		if !v.allowedAlgs[alg] {
			return nil, fmt.Errorf("auth: algorithm %q not allowed", alg)
		}

		kid, _ := tok.Header["kid"].(string)
		if kid == "" {
			return nil, fmt.Errorf("auth: token header missing kid")
		}

		key, found, err := v.keys.Lookup(ctx, kid)
		if err != nil {
			return nil, jwksUnavailableSentinel{err}
		}
		if !found {
			return nil, fmt.Errorf("auth: unknown kid %q", kid)
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"RS256", "ES256"}))

	if err != nil {
		return nil, classifyJWTError(err)
	}
	if !token.Valid {
		return nil, apperr.BadSignature()
	}

	aud, err := parsedClaims.GetAudience()
	if err != nil || !containsString(aud, v.audience) {
		return nil, apperr.WrongAudience()
	}

	tenantIDRaw, ok := parsedClaims[claimTenantID].(string)
	if !ok || tenantIDRaw == "" {
		return nil, apperr.MissingTenantID()
	}
	tenantID, err := uuid.Parse(tenantIDRaw)
	if err != nil {
		return nil, apperr.MalformedTenantID()
	}

	roles := extractRoles(parsedClaims[claimRoles])

	subject, _ := parsedClaims.GetSubject()

	var issuedAt, expiresAt int64
	if iat, err := parsedClaims.GetIssuedAt(); err == nil && iat != nil {
		issuedAt = iat.Unix()
	}
	if exp, err := parsedClaims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Unix()
	}

	return &Claims{
		Subject:   subject,
		TenantID:  tenantID,
		Roles:     roles,
		Audience:  v.audience,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// jwksUnavailableSentinel lets the Keyfunc closure surface a distinct
// "infrastructure unavailable" condition through jwt.ParseWithClaims'
// single error return, without jwt/v5 swallowing its type.
type jwksUnavailableSentinel struct{ err error }

func (s jwksUnavailableSentinel) Error() string { return s.err.Error() }
func (s jwksUnavailableSentinel) Unwrap() error { return s.err }

// classifyJWTError maps whatever jwt/v5 or the Keyfunc returned to the
// matching credential error. Deliberately coarse for
// signature/expiry/unknown-key failures: the response body never
// distinguishes "bad signature" from "expired" from "unknown key" to a
// client, all surfacing as the same generic message, even though the
// Code differs internally for logging.
func classifyJWTError(err error) error {
	var unavailable jwksUnavailableSentinel
	if errors.As(err, &unavailable) {
		return apperr.JWKSUnavailable(unavailable.err)
	}

	msg := err.Error()
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperr.Expired()
	case strings.Contains(msg, "signing method"):
		// jwt/v5 rejects a header alg outside WithValidMethods (including
		// "none") before the Keyfunc runs.
		return apperr.AlgorithmNotAllowed()
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperr.BadSignature()
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperr.MalformedToken()
	}

	switch {
	case strings.Contains(msg, "unknown kid"):
		return apperr.UnknownKey()
	case strings.Contains(msg, "not allowed"):
		return apperr.AlgorithmNotAllowed()
	default:
		return apperr.MalformedToken()
	}
}

func extractRoles(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	roles := make([]string, 0, len(raw))
	for _, r := range raw {
		s, ok := r.(string)
		if !ok {
			continue
		}
		roles = append(roles, strings.ToLower(s))
	}
	return roles
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
