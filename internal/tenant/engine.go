// Package tenant resolves a tenant id to a live, pooled database handle
// and caches that handle for the TTL configured by TENANT_CACHE_TTL_SECONDS.
package tenant

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Engine is a live per-tenant database handle. It wraps *sql.DB rather
// than embedding it so the resolver and cache can depend on an interface,
// not a concrete pooled connection — tests substitute a fake Engine
// without dialing a real database.
type Engine interface {
	// Ping verifies the underlying connection is reachable within ctx's
	// deadline. Called once before a Connection is cached, never again
	// afterward — the engine is presumed to manage its own pool health
	// once live.
	Ping(ctx context.Context) error

	// DB returns the underlying *sql.DB for query execution by callers
	// downstream of the admission chain.
	DB() *sql.DB

	// Close releases the connection pool. The cache calls it only after
	// every caller holding a reference has released it; the resolver calls
	// it on an engine that failed its health probe and was never cached.
	Close() error
}

type sqlEngine struct {
	db *sql.DB
}

// NewEngine opens a connection pool for dsn without blocking on a ping —
// callers probe with Ping before trusting the engine. Connection lifetimes
// match the control-plane store's; the pool itself is smaller (10 open,
// 2 idle, against the store's 25 and 5), since one pool exists per cached
// tenant.
func NewEngine(dsn string) (Engine, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("tenant: open engine: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	return &sqlEngine{db: db}, nil
}

func (e *sqlEngine) Ping(ctx context.Context) error {
	return e.db.PingContext(ctx)
}

func (e *sqlEngine) DB() *sql.DB {
	return e.db
}

func (e *sqlEngine) Close() error {
	return e.db.Close()
}
