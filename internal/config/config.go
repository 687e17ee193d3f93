// Package config loads and validates the process-wide configuration for the
// admission core.
//
// Configuration is a frozen struct built once at startup from environment
// variables (optionally seeded from a local .env file for development).
// It is never mutated after Load returns; a reload requires a process
// restart. Missing required keys abort startup with a precise, aggregated
// diagnostic rather than a single generic error, so an operator sees every
// problem in one pass instead of fixing them one at a time.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Algorithm is the allowed set of JWT signing algorithms for this deployment.
type Algorithm string

const (
	AlgorithmRS256 Algorithm = "RS256"
	AlgorithmES256 Algorithm = "ES256"
)

// Config is the complete, validated configuration for the admission core.
//
// Field names mirror the environment variable names in the `env` tag.
// Required fields abort startup if absent; everything else carries a
// sensible default.
type Config struct {
	// AuthDomain is the issuer domain used to derive the JWKS well-known
	// path when AuthJWKSURI is not set explicitly.
	AuthDomain string `env:"AUTH_DOMAIN,required"`

	// AuthAlgorithm is the signing algorithm the validator expects tokens
	// to use. A token whose header names any other algorithm is rejected
	// with AlgorithmNotAllowed.
	AuthAlgorithm Algorithm `env:"AUTH_ALGORITHM,required"`

	// AuthJWKSURI is the absolute URL of the JSON Web Key Set document.
	// When unset, it is derived from AuthDomain as
	// https://<domain>/.well-known/jwks.json.
	AuthJWKSURI string `env:"AUTH_JWKS_URI"`

	// AuthAudience is the expected `aud` claim value.
	AuthAudience string `env:"AUTH_AUDIENCE,required"`

	// DatabaseURL is the control-plane Postgres DSN.
	DatabaseURL string `env:"DATABASE_URL,required"`

	// EncryptionKey is a URL-safe base64 encoding of exactly 32 bytes,
	// used to decrypt per-tenant connection strings.
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// TenantCacheTTLSeconds is the lifetime of a cached TenantConnection.
	TenantCacheTTLSeconds int `env:"TENANT_CACHE_TTL_SECONDS" envDefault:"300"`

	// APIPathPrefix gates which request paths the admission middleware
	// intercepts; everything else bypasses the chain untouched.
	APIPathPrefix string `env:"API_PATH_PREFIX" envDefault:"/api/"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// LogPretty enables console-formatted (non-JSON) log output.
	LogPretty bool `env:"LOG_PRETTY" envDefault:"false"`

	// JWKSFetchTimeoutMS bounds a single JWKS HTTP fetch.
	JWKSFetchTimeoutMS int `env:"JWKS_FETCH_TIMEOUT_MS" envDefault:"2000"`

	// JWKSMaxRetries bounds refetch attempts on a cache miss.
	JWKSMaxRetries int `env:"JWKS_MAX_RETRIES" envDefault:"3"`

	// ControlPlaneTimeoutMS bounds a single control-plane query.
	ControlPlaneTimeoutMS int `env:"CONTROL_PLANE_TIMEOUT_MS" envDefault:"1000"`

	// HealthProbeTimeoutMS bounds the tenant-engine health probe issued
	// before a new TenantConnection is cached.
	HealthProbeTimeoutMS int `env:"HEALTH_PROBE_TIMEOUT_MS" envDefault:"1000"`

	// RedisURL, when set, enables best-effort cross-instance broadcast of
	// tenant-cache invalidations. The admission core never depends on
	// Redis for correctness — see internal/tenant's broadcaster.
	RedisURL string `env:"REDIS_URL"`

	// APIPort is the bind port for the HTTP listener.
	APIPort string `env:"API_PORT" envDefault:"8000"`
}

// TenantCacheTTL returns TenantCacheTTLSeconds as a time.Duration.
func (c *Config) TenantCacheTTL() time.Duration {
	return time.Duration(c.TenantCacheTTLSeconds) * time.Second
}

// JWKSFetchTimeout returns JWKSFetchTimeoutMS as a time.Duration.
func (c *Config) JWKSFetchTimeout() time.Duration {
	return time.Duration(c.JWKSFetchTimeoutMS) * time.Millisecond
}

// ControlPlaneTimeout returns ControlPlaneTimeoutMS as a time.Duration.
func (c *Config) ControlPlaneTimeout() time.Duration {
	return time.Duration(c.ControlPlaneTimeoutMS) * time.Millisecond
}

// HealthProbeTimeout returns HealthProbeTimeoutMS as a time.Duration.
func (c *Config) HealthProbeTimeout() time.Duration {
	return time.Duration(c.HealthProbeTimeoutMS) * time.Millisecond
}

// Load builds a frozen Config from the environment. If envFile is non-empty
// and present on disk, it is loaded first (without overriding variables
// already set in the real environment), matching the convention of loading
// a .env file for local development only.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile) // best-effort; absence is not an error
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.AuthJWKSURI == "" && cfg.AuthDomain != "" {
		cfg.AuthJWKSURI = "https://" + cfg.AuthDomain + "/.well-known/jwks.json"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string

	switch c.AuthAlgorithm {
	case AlgorithmRS256, AlgorithmES256:
	default:
		problems = append(problems, fmt.Sprintf("AUTH_ALGORITHM must be RS256 or ES256, got %q", c.AuthAlgorithm))
	}

	if !strings.HasPrefix(c.AuthJWKSURI, "https://") && !strings.HasPrefix(c.AuthJWKSURI, "http://") {
		problems = append(problems, "AUTH_JWKS_URI must be an absolute http(s) URL")
	}

	if c.TenantCacheTTLSeconds <= 0 {
		problems = append(problems, "TENANT_CACHE_TTL_SECONDS must be positive")
	}

	if !strings.HasPrefix(c.APIPathPrefix, "/") {
		problems = append(problems, "API_PATH_PREFIX must start with '/'")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}

	return nil
}
