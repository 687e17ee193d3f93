package jwks

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/carplatform/admission/internal/logger"
)

// Cache holds the most recently fetched JWKS document and resolves
// individual keys by kid. Lookups are read-mostly; a miss triggers a
// refetch of the whole set, single-flighted so that N concurrent requests
// for an unknown kid collapse into exactly one HTTP round trip.
type Cache struct {
	fetcher *KeyFetcher
	uri     string

	mu  sync.RWMutex
	set jwk.Set // replaced wholesale on refetch

	group singleflight.Group
}

// NewCache builds an empty Cache bound to a single JWKS URI.
func NewCache(fetcher *KeyFetcher, uri string) *Cache {
	return &Cache{fetcher: fetcher, uri: uri}
}

// Key seeds a Cache for tests that have no live JWKS endpoint: a raw
// public key (e.g. *rsa.PublicKey) plus its declared algorithm.
type Key struct {
	Alg string
	Key any
}

// NewCacheForTesting builds a Cache pre-populated with keys, bypassing the
// fetcher entirely. A nil fetcher is fine as long as the seeded keys cover
// every kid the test exercises — refetch is only triggered on a miss.
func NewCacheForTesting(fetcher *KeyFetcher, keys map[string]Key) *Cache {
	set := jwk.NewSet()
	for kid, k := range keys {
		if k.Key == nil {
			continue
		}
		if v := reflect.ValueOf(k.Key); (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) && v.IsNil() {
			continue
		}
		key, err := jwk.Import(k.Key)
		if err != nil {
			continue
		}
		_ = key.Set(jwk.KeyIDKey, kid)
		if k.Alg != "" {
			_ = key.Set(jwk.AlgorithmKey, k.Alg)
		}
		_ = set.AddKey(key)
	}
	return &Cache{fetcher: fetcher, set: set}
}

// Lookup resolves kid to its raw public key, consulting the in-process
// set first. On a miss it refetches the JWKS document (single-flighted per
// Cache, since there is only ever one configured URI) and retries the
// lookup once against the fresh set. Returns (nil, false, nil) if the kid
// is still absent after a refetch — callers translate that to UnknownKey.
func (c *Cache) Lookup(ctx context.Context, kid string) (any, bool, error) {
	c.mu.RLock()
	set := c.set
	c.mu.RUnlock()

	if raw, found, err := exportKey(set, kid); err != nil || found {
		return raw, found, err
	}

	if _, err, _ := c.group.Do(c.uri, func() (any, error) {
		return nil, c.refetch(ctx)
	}); err != nil {
		return nil, false, err
	}

	c.mu.RLock()
	set = c.set
	c.mu.RUnlock()

	return exportKey(set, kid)
}

func (c *Cache) refetch(ctx context.Context) error {
	if c.fetcher == nil {
		return fmt.Errorf("jwks: no fetcher configured, kid not in seeded set")
	}

	set, err := c.fetcher.Fetch(ctx, c.uri)
	if err != nil {
		logger.JWKS().Warn().Err(err).Msg("key set refresh failed")
		return err
	}

	c.mu.Lock()
	c.set = set
	c.mu.Unlock()

	logger.JWKS().Info().Int("keys", set.Len()).Msg("key set refreshed")
	return nil
}

// exportKey pulls the raw crypto public key for kid out of set, in the
// shape golang-jwt's Keyfunc expects.
func exportKey(set jwk.Set, kid string) (any, bool, error) {
	if set == nil {
		return nil, false, nil
	}

	key, found := set.LookupKeyID(kid)
	if !found {
		return nil, false, nil
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, false, fmt.Errorf("jwks: export key material for kid %q: %w", kid, err)
	}
	return raw, true, nil
}
