package tenant

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	admissioncache "github.com/carplatform/admission/internal/cache"
	"github.com/carplatform/admission/internal/logger"
)

// invalidationChannel is the Redis Pub/Sub channel carrying cross-instance
// cache invalidation notices. This is strictly an optimization: correctness
// never depends on it, since every instance's own Cache expires entries on
// its own TTL regardless of whether a notice arrives.
const invalidationChannel = "admission:tenant-cache:invalidate"

type invalidationMessage struct {
	TenantID *uuid.UUID `json:"tenant_id,omitempty"` // nil means invalidate all
}

// Broadcaster publishes and subscribes to cross-instance cache
// invalidation notices over Redis, when REDIS_URL is configured. If Redis
// is absent or unreachable, every method degrades to a no-op — a tenant
// whose connection string rotated simply waits out the local TTL on other
// instances.
type Broadcaster struct {
	redis *admissioncache.Cache
	cache *Cache
}

// NewBroadcaster binds a Cache to a Redis-backed pub/sub channel. Passing
// a disabled *admissioncache.Cache (REDIS_URL unset) is valid; every
// method becomes a no-op.
func NewBroadcaster(redis *admissioncache.Cache, cache *Cache) *Broadcaster {
	return &Broadcaster{redis: redis, cache: cache}
}

// PublishInvalidate notifies other instances that tenantID's cached
// connection changed. Applies the invalidation locally first so this
// instance never waits on its own round trip to Redis.
func (b *Broadcaster) PublishInvalidate(ctx context.Context, tenantID uuid.UUID) {
	b.cache.Invalidate(tenantID)
	b.publish(ctx, invalidationMessage{TenantID: &tenantID})
}

// PublishInvalidateAll notifies other instances to drop their entire cache.
func (b *Broadcaster) PublishInvalidateAll(ctx context.Context) {
	b.cache.InvalidateAll()
	b.publish(ctx, invalidationMessage{})
}

func (b *Broadcaster) publish(ctx context.Context, msg invalidationMessage) {
	if b.redis == nil || !b.redis.IsEnabled() {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	// Best-effort: a publish failure is logged, never propagated — the
	// request path this is called from has already completed its own
	// write and owes the caller nothing further.
	if err := b.redis.Client().Publish(ctx, invalidationChannel, payload).Err(); err != nil {
		logger.Tenant().Warn().Err(err).Msg("failed to publish tenant cache invalidation")
	}
}

// Listen subscribes to the invalidation channel and applies incoming
// notices to the local Cache until ctx is canceled. Intended to run in its
// own goroutine for the lifetime of the process. A no-op if Redis is
// disabled.
func (b *Broadcaster) Listen(ctx context.Context) {
	if b.redis == nil || !b.redis.IsEnabled() {
		return
	}

	sub := b.redis.Client().Subscribe(ctx, invalidationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg invalidationMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				continue
			}
			if msg.TenantID == nil {
				b.cache.InvalidateAll()
			} else {
				b.cache.Invalidate(*msg.TenantID)
			}
		}
	}
}
