// Package cache keeps computed availability in Redis, invalidated per
// provider by bumping a version counter.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/caremarket-platform/internal/availability"
	"github.com/wolfman30/caremarket-platform/pkg/logging"
)

// DefaultTTL bounds how long a computed window is served.
const DefaultTTL = 5 * time.Minute

// AvailabilityCache implements availability.Cache on Redis. A nil client
// turns every call into a miss.
type AvailabilityCache struct {
	redis  redis.Cmdable
	ttl    time.Duration
	logger *logging.Logger

	// stale holds providers whose version bump failed. Their lookups miss
	// until a bump succeeds.
	mu    sync.Mutex
	stale map[uuid.UUID]struct{}
}

// NewAvailabilityCache builds the cache.
func NewAvailabilityCache(client redis.Cmdable, ttl time.Duration, logger *logging.Logger) *AvailabilityCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityCache{redis: client, ttl: ttl, logger: logger, stale: map[uuid.UUID]struct{}{}}
}

func versionKey(providerID uuid.UUID) string {
	return fmt.Sprintf("availability:%s:version", providerID)
}

func windowKey(q availability.Query, version int64) string {
	service := "any"
	if q.ServiceID != nil {
		service = q.ServiceID.String()
	}
	return fmt.Sprintf("availability:%s:v%d:%s:%d:%d", q.ProviderID, version, service, q.From.Unix(), q.To.Unix())
}

func (c *AvailabilityCache) version(ctx context.Context, providerID uuid.UUID) (int64, error) {
	v, err := c.redis.Get(ctx, versionKey(providerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

// Lookup returns cached slots for the resolved query.
func (c *AvailabilityCache) Lookup(ctx context.Context, q availability.Query) ([]availability.Slot, string, bool) {
	if c == nil || c.redis == nil {
		return nil, "", false
	}
	if c.isStale(q.ProviderID) {
		if err := c.bump(ctx, q.ProviderID); err != nil {
			return nil, "", false
		}
	}
	version, err := c.version(ctx, q.ProviderID)
	if err != nil {
		c.logger.Warn("availability cache version read failed", "provider_id", q.ProviderID, "error", err)
		return nil, "", false
	}
	key := windowKey(q, version)
	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, key, false
	}
	if err != nil {
		c.logger.Warn("availability cache read failed", "key", key, "error", err)
		return nil, "", false
	}
	var slots []availability.Slot
	if err := json.Unmarshal(data, &slots); err != nil {
		c.logger.Warn("availability cache entry corrupt", "key", key, "error", err)
		return nil, key, false
	}
	return slots, key, true
}

// Store writes slots under a key returned by Lookup.
func (c *AvailabilityCache) Store(ctx context.Context, key string, slots []availability.Slot) {
	if c == nil || c.redis == nil || key == "" {
		return
	}
	if slots == nil {
		slots = []availability.Slot{}
	}
	data, err := json.Marshal(slots)
	if err != nil {
		c.logger.Warn("availability cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("availability cache write failed", "key", key, "error", err)
	}
}

// Invalidate bumps the provider version so every cached window becomes
// unreachable; old entries expire with their TTL. When the bump fails the
// provider's windows are deleted instead, and this process misses on them
// until a later bump succeeds.
func (c *AvailabilityCache) Invalidate(ctx context.Context, providerID uuid.UUID) error {
	if c == nil || c.redis == nil {
		return nil
	}
	err := c.bump(ctx, providerID)
	if err == nil {
		return nil
	}
	c.markStale(providerID)
	if purgeErr := c.purge(ctx, providerID); purgeErr != nil {
		return fmt.Errorf("cache: bump availability version: %w", errors.Join(err, purgeErr))
	}
	c.logger.Warn("availability version bump failed, windows deleted", "provider_id", providerID, "error", err)
	return nil
}

func (c *AvailabilityCache) bump(ctx context.Context, providerID uuid.UUID) error {
	if err := c.redis.Incr(ctx, versionKey(providerID)).Err(); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.stale, providerID)
	c.mu.Unlock()
	return nil
}

// purge deletes every cached window of the provider, whatever its version.
func (c *AvailabilityCache) purge(ctx context.Context, providerID uuid.UUID) error {
	vk := versionKey(providerID)
	iter := c.redis.Scan(ctx, 0, fmt.Sprintf("availability:%s:v*", providerID), 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		if k := iter.Val(); k != vk {
			keys = append(keys, k)
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

func (c *AvailabilityCache) markStale(providerID uuid.UUID) {
	c.mu.Lock()
	c.stale[providerID] = struct{}{}
	c.mu.Unlock()
}

func (c *AvailabilityCache) isStale(providerID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.stale[providerID]
	return ok
}
