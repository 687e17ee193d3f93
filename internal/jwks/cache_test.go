package jwks

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPublicKey(t *testing.T) *rsa.PublicKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return &priv.PublicKey
}

func TestCache_LookupHit(t *testing.T) {
	c := NewCacheForTesting(nil, map[string]Key{
		"kid-1": {Alg: "RS256", Key: testPublicKey(t)},
	})

	raw, found, err := c.Lookup(context.Background(), "kid-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.IsType(t, &rsa.PublicKey{}, raw)
}

func TestCache_LookupMissWithoutFetcherFails(t *testing.T) {
	c := NewCacheForTesting(nil, map[string]Key{
		"kid-1": {Alg: "RS256", Key: testPublicKey(t)},
	})

	_, found, err := c.Lookup(context.Background(), "kid-unknown")
	require.Error(t, err)
	assert.False(t, found)
}
