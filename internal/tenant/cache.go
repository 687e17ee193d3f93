package tenant

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Connection is a live database handle cached for one tenant. CachedAt and
// ExpiresAt bound its validity; Engine is the pooled handle itself.
type Connection struct {
	TenantID  uuid.UUID
	Engine    Engine
	CachedAt  time.Time
	ExpiresAt time.Time
}

func (c *Connection) expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Resolve builds a fresh Engine for tenantID. Supplied by the Resolver;
// the Cache itself knows nothing about control planes or decryption.
type Resolve func(ctx context.Context, tenantID uuid.UUID) (Engine, error)

// entry tracks one cached Connection plus its reference count. refs,
// evicted, and closed are all guarded by the owning Cache's mutex; an
// engine is closed exactly once, and only when it has been evicted and the
// last reference released.
type entry struct {
	conn    Connection
	refs    int
	evicted bool
	closed  bool
}

// Cache is the in-process TTL cache of tenant Connections. Concurrent
// misses for the same tenant_id collapse into one Resolve call via
// singleflight; misses for different tenants proceed in parallel. A Cache
// is never shared across processes — each instance maintains its own copy,
// reconciled only by the optional best-effort invalidation broadcaster.
type Cache struct {
	ttl     time.Duration
	resolve Resolve

	mu      sync.Mutex
	entries map[uuid.UUID]*entry

	group singleflight.Group
}

// NewCache builds a Cache with the given TTL and Resolve function.
func NewCache(ttl time.Duration, resolve Resolve) *Cache {
	return &Cache{
		ttl:     ttl,
		resolve: resolve,
		entries: make(map[uuid.UUID]*entry),
	}
}

// Acquire returns the live Engine for tenantID, resolving on miss or
// expiry, and a release function the caller must invoke exactly once when
// done with the Engine. The engine is not closed while any acquired
// reference is outstanding, even if the entry is concurrently invalidated.
// The returned bool reports whether the entry was already warm (true) or
// had to be resolved, for the admission middleware's observability log.
func (c *Cache) Acquire(ctx context.Context, tenantID uuid.UUID) (Engine, func(), bool, error) {
	now := time.Now()

	c.mu.Lock()
	if e, ok := c.entries[tenantID]; ok && !e.conn.expired(now) {
		e.refs++
		c.mu.Unlock()
		return e.conn.Engine, c.releaseFunc(e), true, nil
	}
	c.mu.Unlock()

	for {
		v, err, _ := c.group.Do(tenantID.String(), func() (any, error) {
			return c.refresh(ctx, tenantID)
		})
		if err != nil {
			return nil, nil, false, err
		}

		ne := v.(*entry)

		c.mu.Lock()
		if ne.closed {
			// The shared result was invalidated and fully released before
			// this waiter could take its reference. Resolve again.
			c.mu.Unlock()
			c.group.Forget(tenantID.String())
			continue
		}
		ne.refs++
		c.mu.Unlock()

		return ne.conn.Engine, c.releaseFunc(ne), false, nil
	}
}

func (c *Cache) refresh(ctx context.Context, tenantID uuid.UUID) (*entry, error) {
	engine, err := c.resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ne := &entry{
		conn: Connection{
			TenantID:  tenantID,
			Engine:    engine,
			CachedAt:  now,
			ExpiresAt: now.Add(c.ttl),
		},
	}

	c.mu.Lock()
	old := c.entries[tenantID]
	c.entries[tenantID] = ne
	var toClose Engine
	if old != nil {
		toClose = c.evictLocked(old)
	}
	c.mu.Unlock()

	if toClose != nil {
		_ = toClose.Close()
	}

	return ne, nil
}

// releaseFunc hands the caller its side of the reference count. sync.Once
// keeps a double-release from corrupting the count.
func (c *Cache) releaseFunc(e *entry) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			e.refs--
			var toClose Engine
			if e.evicted && e.refs == 0 && !e.closed {
				e.closed = true
				toClose = e.conn.Engine
			}
			c.mu.Unlock()

			if toClose != nil {
				_ = toClose.Close()
			}
		})
	}
}

// evictLocked marks e evicted and, if no caller holds a reference, claims
// its engine for closing. Callers must hold c.mu and close the returned
// engine after unlocking.
func (c *Cache) evictLocked(e *entry) Engine {
	e.evicted = true
	if e.refs == 0 && !e.closed {
		e.closed = true
		return e.conn.Engine
	}
	return nil
}

// Invalidate evicts the cached entry for tenantID. The evicted engine is
// closed once every outstanding acquisition releases it, never
// synchronously.
func (c *Cache) Invalidate(tenantID uuid.UUID) {
	c.mu.Lock()
	var toClose Engine
	if e, ok := c.entries[tenantID]; ok {
		delete(c.entries, tenantID)
		toClose = c.evictLocked(e)
	}
	c.mu.Unlock()

	if toClose != nil {
		_ = toClose.Close()
	}
}

// InvalidateAll evicts every cached entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	all := c.entries
	c.entries = make(map[uuid.UUID]*entry)
	var toClose []Engine
	for _, e := range all {
		if engine := c.evictLocked(e); engine != nil {
			toClose = append(toClose, engine)
		}
	}
	c.mu.Unlock()

	for _, engine := range toClose {
		_ = engine.Close()
	}
}

// Stats reports the cache's current composition: total entries tracked,
// those still valid, and those present but past their TTL that simply
// haven't been touched since expiring.
type Stats struct {
	Total   int
	Active  int
	Expired int
}

func (c *Cache) Stats() Stats {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{Total: len(c.entries)}
	for _, e := range c.entries {
		if e.conn.expired(now) {
			s.Expired++
		} else {
			s.Active++
		}
	}
	return s
}
