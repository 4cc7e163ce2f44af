package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// CacheEntry wraps a cached JSON payload with metadata
type CacheEntry struct {
	Data      json.RawMessage `json:"data"`
	CachedAt  time.Time       `json:"cached_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Sets    int64 `json:"sets"`
	Deletes int64 `json:"deletes"`
}

// RedisJSONCache stores JSON values under a key prefix with a fixed TTL.
// Redis failures are logged and reported as misses so callers fall back to the source of truth.
type RedisJSONCache struct {
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	mu    sync.RWMutex
	stats CacheStats
}

// NewRedisJSONCache creates a new Redis-based JSON cache
func NewRedisJSONCache(redisClient *redis.Client, ttl time.Duration, prefix string, logger *logrus.Logger) *RedisJSONCache {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &RedisJSONCache{
		redis:  redisClient,
		ttl:    ttl,
		prefix: prefix,
		logger: logger,
	}
}

// Get decodes the value stored under key into dest and reports whether it was found.
func (c *RedisJSONCache) Get(ctx context.Context, key string, dest interface{}) bool {
	cacheKey := c.prefix + key

	data, err := c.redis.Get(ctx, cacheKey).Result()
	if errors.Is(err, redis.Nil) {
		c.recordMiss()
		return false
	}
	if err != nil {
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Redis error reading cache entry")
		c.recordMiss()
		return false
	}

	var entry CacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Error deserializing cache entry")
		c.recordMiss()
		return false
	}
	if err := json.Unmarshal(entry.Data, dest); err != nil {
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Error decoding cached value")
		c.recordMiss()
		return false
	}

	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return true
}

// Set stores value under key with the cache TTL.
func (c *RedisJSONCache) Set(ctx context.Context, key string, value interface{}) {
	cacheKey := c.prefix + key

	data, ok := c.encode(cacheKey, value)
	if !ok {
		return
	}

	if err := c.redis.Set(ctx, cacheKey, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Redis error writing cache entry")
		return
	}

	c.recordSet()
}

// Version reads the counter stored at versionKey. A missing counter is version 0.
func (c *RedisJSONCache) Version(ctx context.Context, versionKey string) (int64, error) {
	return readVersion(ctx, c.redis, versionKey)
}

// SetIfVersion stores value under key only while versionKey still holds version.
// The check and the write run in one WATCH transaction, so a concurrent
// BumpAndDelete makes the write a no-op. It reports whether the value was stored.
func (c *RedisJSONCache) SetIfVersion(ctx context.Context, key, versionKey string, version int64, value interface{}) bool {
	cacheKey := c.prefix + key

	data, ok := c.encode(cacheKey, value)
	if !ok {
		return false
	}

	err := c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx, versionKey)
		if err != nil {
			return err
		}
		if current != version {
			return errVersionChanged
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, cacheKey, data, c.ttl)
			return nil
		})
		return err
	}, versionKey)

	switch {
	case err == nil:
		c.recordSet()
		return true
	case errors.Is(err, errVersionChanged), errors.Is(err, redis.TxFailedErr):
		c.logger.WithField("key", cacheKey).Debug("Cache entry outdated before write, skipped")
	default:
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Redis error writing cache entry")
	}
	return false
}

// BumpAndDelete increments every version counter and removes the given keys
// in one MULTI transaction.
func (c *RedisJSONCache) BumpAndDelete(ctx context.Context, versionKeys []string, keys ...string) error {
	cacheKeys := make([]string, len(keys))
	for i, k := range keys {
		cacheKeys[i] = c.prefix + k
	}
	_, err := c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, vk := range versionKeys {
			pipe.Incr(ctx, vk)
		}
		if len(cacheKeys) > 0 {
			pipe.Del(ctx, cacheKeys...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error invalidating cache keys: %w", err)
	}

	c.mu.Lock()
	c.stats.Deletes += int64(len(keys))
	c.mu.Unlock()
	return nil
}

var errVersionChanged = errors.New("cache version changed")

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, r getter, versionKey string) (int64, error) {
	v, err := r.Get(ctx, versionKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

func (c *RedisJSONCache) encode(cacheKey string, value interface{}) ([]byte, bool) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Error serializing cache value")
		return nil, false
	}

	now := time.Now()
	data, err := json.Marshal(CacheEntry{
		Data:      payload,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		c.logger.WithError(err).WithField("key", cacheKey).Warn("Error serializing cache entry")
		return nil, false
	}
	return data, true
}

// Delete removes the given keys.
func (c *RedisJSONCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	cacheKeys := make([]string, len(keys))
	for i, k := range keys {
		cacheKeys[i] = c.prefix + k
	}
	if err := c.redis.Del(ctx, cacheKeys...).Err(); err != nil {
		return fmt.Errorf("error deleting cache keys: %w", err)
	}

	c.mu.Lock()
	c.stats.Deletes += int64(len(keys))
	c.mu.Unlock()
	return nil
}

// Clear removes every key under the cache prefix.
func (c *RedisJSONCache) Clear(ctx context.Context) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("error scanning cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("error clearing cache: %w", err)
	}

	c.logger.WithField("count", len(keys)).Info("Cleared cache entries")
	return nil
}

// GetStats returns current cache statistics
func (c *RedisJSONCache) GetStats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// LogStats logs current cache performance statistics
func (c *RedisJSONCache) LogStats() {
	stats := c.GetStats()
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}

	c.logger.WithFields(logrus.Fields{
		"prefix":   c.prefix,
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"sets":     stats.Sets,
		"deletes":  stats.Deletes,
		"hit_rate": fmt.Sprintf("%.2f%%", hitRate),
	}).Info("Redis cache stats")
}

func (c *RedisJSONCache) recordSet() {
	c.mu.Lock()
	c.stats.Sets++
	c.mu.Unlock()
}

func (c *RedisJSONCache) recordMiss() {
	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()
}
