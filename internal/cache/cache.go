// Package cache owns the optional Redis connection the admission core
// uses as its cross-instance coordination transport.
//
// Redis is strictly an accelerator here: the tenant-connection cache and
// the JWKS cache are in-process, and each instance stays correct on its
// own TTLs if Redis is absent. What Redis adds is promptness — an
// invalidation published by one instance reaches the others immediately
// instead of waiting out their local TTLs. A Cache built with
// Config{Enabled: false} (the REDIS_URL-unset case) is therefore a valid,
// fully functional degraded mode, not an error.
//
// The surface is deliberately a connection wrapper, not a data API: the
// one consumer (the tenant cache's invalidation broadcaster) speaks
// Pub/Sub through Client() directly, and nothing in this service stores
// request-path state in Redis.
package cache

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache holds one pooled Redis client, or nothing when disabled.
type Cache struct {
	client *redis.Client
}

// Config holds the Redis connection parameters.
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// NewCacheFromURL builds a Config from a redis:// connection URL and opens
// a Cache from it. An empty rawURL yields a disabled Cache rather than an
// error — REDIS_URL is optional.
func NewCacheFromURL(rawURL string) (*Cache, error) {
	if rawURL == "" {
		return NewCache(Config{Enabled: false})
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("cache: invalid REDIS_URL: %w", err)
	}

	password := ""
	if u.User != nil {
		password, _ = u.User.Password()
	}

	db := 0
	if path := strings.TrimPrefix(u.Path, "/"); path != "" {
		if n, err := strconv.Atoi(path); err == nil {
			db = n
		}
	}

	port := u.Port()
	if port == "" {
		port = "6379"
	}

	return NewCache(Config{
		Host:     u.Hostname(),
		Port:     port,
		Password: password,
		DB:       db,
		Enabled:  true,
	})
}

// NewCache opens a pooled Redis client and verifies connectivity with a
// bounded ping. With Enabled false it returns a disabled Cache.
func NewCache(config Config) (*Cache, error) {
	if !config.Enabled {
		return &Cache{client: nil}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Host + ":" + config.Port,
		Password: config.Password,
		DB:       config.DB,

		PoolSize:        25,
		MinIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: failed to ping Redis: %w", err)
	}

	return &Cache{client: client}, nil
}

// Close releases the connection pool. Safe on a disabled Cache.
func (c *Cache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// IsEnabled reports whether a live Redis connection backs this Cache.
func (c *Cache) IsEnabled() bool {
	return c.client != nil
}

// Client exposes the underlying go-redis client. Nil when disabled;
// callers gate on IsEnabled first.
func (c *Cache) Client() *redis.Client {
	return c.client
}
