package cache

import (
	"context"
	"net"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_ConnectsAndCloses(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewCache(Config{
		Host:    mr.Host(),
		Port:    mr.Port(),
		Enabled: true,
	})
	require.NoError(t, err)

	assert.True(t, c.IsEnabled())
	require.NotNil(t, c.Client())
	require.NoError(t, c.Client().Ping(context.Background()).Err())
	require.NoError(t, c.Close())
}

func TestNewCache_DisabledHasNoClient(t *testing.T) {
	c, err := NewCache(Config{Enabled: false})
	require.NoError(t, err)

	assert.False(t, c.IsEnabled())
	assert.Nil(t, c.Client())
	assert.NoError(t, c.Close())
}

func TestNewCache_UnreachableServerFails(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	_, err = NewCache(Config{Host: host, Port: port, Enabled: true})
	require.Error(t, err)
}

func TestNewCacheFromURL_EmptyDisables(t *testing.T) {
	c, err := NewCacheFromURL("")
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
}

func TestNewCacheFromURL_ParsesHostPortDB(t *testing.T) {
	mr := miniredis.RunT(t)

	c, err := NewCacheFromURL("redis://" + mr.Addr() + "/2")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	assert.True(t, c.IsEnabled())
}

func TestNewCacheFromURL_MalformedURLFails(t *testing.T) {
	_, err := NewCacheFromURL("redis://%%%")
	require.Error(t, err)
}
