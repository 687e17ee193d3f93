// Package jwks fetches and caches the JSON Web Key Set published by the
// configured identity provider.
//
// A KeyFetcher performs the suspension point in the validation path that
// talks to the identity provider: a bounded HTTPS GET, retried a small
// number of times with exponential backoff. Everything above it (the
// per-kid cache and its single-flighting) lives in cache.go.
package jwks

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// KeyFetcher performs a retried, bounded-timeout GET of a JWKS document and
// parses it into usable key material.
type KeyFetcher struct {
	client     *http.Client
	maxRetries int
}

// NewKeyFetcher builds a KeyFetcher with the given per-attempt timeout and
// retry budget.
func NewKeyFetcher(timeout time.Duration, maxRetries int) *KeyFetcher {
	return &KeyFetcher{
		client:     &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
	}
}

// Fetch retrieves and parses the JWKS document at uri. It retries transient
// failures (network errors, 5xx) up to maxRetries times with exponential
// backoff; a non-retryable response (4xx) fails immediately.
func (f *KeyFetcher) Fetch(ctx context.Context, uri string) (jwk.Set, error) {
	operation := func() (jwk.Set, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("jwks: build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("jwks: fetch %s: %w", uri, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, fmt.Errorf("jwks: read response: %w", err)
		}

		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, backoff.Permanent(fmt.Errorf("jwks: %s returned %d: %s", uri, resp.StatusCode, body))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("jwks: %s returned %d", uri, resp.StatusCode)
		}

		set, err := jwk.Parse(body)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("jwks: parse response from %s: %w", uri, err))
		}

		return set, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithMaxTries(uint(f.maxRetries+1)),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
}
