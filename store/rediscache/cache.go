// Package rediscache provides a read-through Redis cache in front of a
// TenantStore. Routing looks up tenants on every unit of work, so the
// hot path is served from Redis while the underlying store stays
// authoritative. Redis outages fail open: reads fall through to the
// store and the miss is logged.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/getpup/pgtenancy"
	"github.com/getpup/pgtenancy/metrics"
	"github.com/getpup/pgtenancy/store"
)

// DefaultTTL bounds how long a cached record is served before the store
// is consulted again. Status changes invalidate eagerly, so the TTL only
// matters when invalidation is lost.
const DefaultTTL = 30 * time.Second

// Config holds the configuration for the cache.
type Config struct {
	// Client is the Redis client used for caching (required).
	Client *redis.Client

	// Store is the authoritative tenant store (required).
	Store store.TenantStore

	// TTL is how long cached records live (default: 30s).
	TTL time.Duration

	// KeyPrefix namespaces the cache keys (default: "pgtenancy").
	KeyPrefix string

	// Logger is used for structured logging (optional).
	// If nil, a no-op logger is used.
	Logger *zap.Logger

	// Metrics records cache hits and misses (optional).
	Metrics *metrics.Collector
}

// Cache is a TenantStore decorator that serves reads from Redis.
// Writes go straight to the underlying store and invalidate the
// affected keys.
type Cache struct {
	config Config
}

// New creates a new cache with the given configuration.
func New(config Config) (*Cache, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("%w: cache requires a redis client", pgtenancy.ErrConfiguration)
	}
	if config.Store == nil {
		return nil, fmt.Errorf("%w: cache requires a tenant store", pgtenancy.ErrConfiguration)
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = "pgtenancy"
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &Cache{config: config}, nil
}

func (c *Cache) identifierKey(identifier string) string {
	return fmt.Sprintf("%s:tenant:id:%s", c.config.KeyPrefix, identifier)
}

func (c *Cache) schemaKey(schemaName string) string {
	return fmt.Sprintf("%s:tenant:schema:%s", c.config.KeyPrefix, schemaName)
}

// Create persists the record through the underlying store and invalidates
// any cached entries for its identifier and schema name.
func (c *Cache) Create(ctx context.Context, record pgtenancy.TenantRecord) (pgtenancy.TenantRecord, error) {
	created, err := c.config.Store.Create(ctx, record)
	if err != nil {
		return pgtenancy.TenantRecord{}, err
	}

	c.invalidate(ctx, created)
	return created, nil
}

// GetByIdentifier returns the record for an identifier, serving from the
// cache when possible.
func (c *Cache) GetByIdentifier(ctx context.Context, identifier string) (pgtenancy.TenantRecord, error) {
	key := c.identifierKey(identifier)
	if record, ok := c.lookup(ctx, key, "identifier"); ok {
		return record, nil
	}

	record, err := c.config.Store.GetByIdentifier(ctx, identifier)
	if err != nil {
		return pgtenancy.TenantRecord{}, err
	}

	c.fill(ctx, key, record)
	return record, nil
}

// GetBySchema returns the non-dropped record owning a schema name,
// serving from the cache when possible.
func (c *Cache) GetBySchema(ctx context.Context, schemaName string) (pgtenancy.TenantRecord, error) {
	key := c.schemaKey(schemaName)
	if record, ok := c.lookup(ctx, key, "schema"); ok {
		return record, nil
	}

	record, err := c.config.Store.GetBySchema(ctx, schemaName)
	if err != nil {
		return pgtenancy.TenantRecord{}, err
	}

	c.fill(ctx, key, record)
	return record, nil
}

// UpdateStatus updates the record through the underlying store and
// invalidates its cached entries. Stale entries would keep routing
// tenants whose status no longer allows it, so invalidation is eager.
func (c *Cache) UpdateStatus(ctx context.Context, identifier string, status pgtenancy.TenantStatus) error {
	if err := c.config.Store.UpdateStatus(ctx, identifier, status); err != nil {
		return err
	}

	record, err := c.config.Store.GetByIdentifier(ctx, identifier)
	if err != nil {
		// The update succeeded; drop at least the identifier entry.
		c.config.Logger.Warn("failed to reload tenant for cache invalidation",
			zap.String("identifier", identifier),
			zap.Error(err))
		record = pgtenancy.TenantRecord{Identifier: identifier}
	}

	c.invalidate(ctx, record)
	return nil
}

// ListActive always reads through to the underlying store. Listings are
// used by bulk operations that need a fresh view, and pages cache poorly.
func (c *Cache) ListActive(ctx context.Context, afterIdentifier string, limit int) ([]pgtenancy.TenantRecord, error) {
	return c.config.Store.ListActive(ctx, afterIdentifier, limit)
}

// lookup fetches and decodes a cached record. A miss, a Redis error, or
// a corrupt entry all report !ok so the caller falls through to the store.
func (c *Cache) lookup(ctx context.Context, key, lookup string) (pgtenancy.TenantRecord, bool) {
	payload, err := c.config.Client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.config.Logger.Warn("tenant cache read failed",
				zap.String("key", key),
				zap.Error(err))
		}
		c.config.Metrics.IncCacheMiss(lookup)
		return pgtenancy.TenantRecord{}, false
	}

	var record pgtenancy.TenantRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		c.config.Logger.Warn("tenant cache entry corrupt",
			zap.String("key", key),
			zap.Error(err))
		c.config.Metrics.IncCacheMiss(lookup)
		return pgtenancy.TenantRecord{}, false
	}

	c.config.Metrics.IncCacheHit(lookup)
	return record, true
}

// fill stores a record in the cache. Best-effort: failures are logged
// and the caller's result is unaffected.
func (c *Cache) fill(ctx context.Context, key string, record pgtenancy.TenantRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		c.config.Logger.Warn("failed to encode tenant for cache",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	if err := c.config.Client.Set(ctx, key, payload, c.config.TTL).Err(); err != nil {
		c.config.Logger.Warn("tenant cache write failed",
			zap.String("key", key),
			zap.Error(err))
	}
}

// invalidate removes the cached entries touched by a record change.
func (c *Cache) invalidate(ctx context.Context, record pgtenancy.TenantRecord) {
	keys := []string{c.identifierKey(record.Identifier)}
	if record.SchemaName != "" {
		keys = append(keys, c.schemaKey(record.SchemaName))
	}

	if err := c.config.Client.Del(ctx, keys...).Err(); err != nil {
		c.config.Logger.Warn("tenant cache invalidation failed",
			zap.Strings("keys", keys),
			zap.Error(err))
	}
}

var _ store.TenantStore = (*Cache)(nil)
