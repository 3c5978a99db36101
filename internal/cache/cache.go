// Package cache fronts read-heavy queries with a Redis key-value store.
// The cache is an optimization only: every failure is swallowed and logged,
// and the system must behave identically (if slower) with the cache absent.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"eventhub/internal/logger"
)

// Cache is the capability injected into every read path.
type Cache interface {
	// Get unmarshals the cached value for key into dest and reports whether
	// a usable entry was found.
	Get(ctx context.Context, key string, dest interface{}) bool
	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	// InvalidatePattern removes every key matching the glob pattern.
	InvalidatePattern(ctx context.Context, pattern string)
}

// keyEscaper makes parameter values safe inside a key: a value containing
// the separator must not collide with a different parameter set.
var keyEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Key builds a deterministic cache key from a namespace and parameters.
// Parameters are sorted by name so identical parameter sets always produce
// identical keys regardless of insertion order, and values are escaped so
// distinct parameter sets always produce distinct keys.
func Key(namespace string, params map[string]string) string {
	if len(params) == 0 {
		return namespace
	}
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(namespace)
	for _, name := range names {
		b.WriteByte(':')
		b.WriteString(name)
		b.WriteByte(':')
		b.WriteString(keyEscaper.Replace(params[name]))
	}
	return b.String()
}

// RedisCache is the Redis-backed Cache. Values are stored as JSON.
type RedisCache struct {
	Client *redis.Client
	Logger *logger.Logger
}

// New connects to Redis and returns a RedisCache. When addr is empty or the
// backend is unreachable it returns a NoopCache instead, so callers never
// branch on cache availability.
func New(addr string, log *logger.Logger) Cache {
	if addr == "" {
		log.Warn("CACHE", "REDIS_ADDR not set, running without cache")
		return NewNoop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("CACHE", fmt.Sprintf("Redis unreachable at %s, running without cache: %v", addr, err))
		return NewNoop()
	}

	log.Info("CACHE", fmt.Sprintf("Connected to Redis at %s", addr))
	return &RedisCache{Client: client, Logger: log}
}

func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, err := c.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("get %s failed: %v", key, err))
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("get %s: corrupt entry dropped: %v", key, err))
		_ = c.Client.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("set %s: marshal failed: %v", key, err))
		return
	}
	if err := c.Client.Set(ctx, key, raw, ttl).Err(); err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("set %s failed: %v", key, err))
	}
}

func (c *RedisCache) InvalidatePattern(ctx context.Context, pattern string) {
	keys, err := c.Client.Keys(ctx, pattern).Result()
	if err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("invalidate %s: keys lookup failed: %v", pattern, err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.Client.Del(ctx, keys...).Err(); err != nil {
		c.Logger.Warn("CACHE", fmt.Sprintf("invalidate %s: delete failed: %v", pattern, err))
		return
	}
	c.Logger.Debug("CACHE", fmt.Sprintf("invalidated %d keys matching %s", len(keys), pattern))
}
