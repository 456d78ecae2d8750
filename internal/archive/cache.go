package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lewisedginton/librus_mcp/internal/children"
	"github.com/lewisedginton/librus_mcp/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 15 * time.Minute

// Cache is a byte cache with expiry. Get reports a miss with ok == false.
type Cache interface {
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// RedisCache implements Cache on go-redis.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisCache wraps an existing client. Keys are namespaced with prefix.
func NewRedisCache(client redis.UniversalClient, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

// DialRedis parses a redis:// URL, connects and pings.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.prefix+key, data, ttl).Err()
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.prefix+key).Err()
}

// CachedStore puts a read-through cache in front of a Store. Cache failures
// are logged and the underlying store is used directly.
type CachedStore struct {
	store Store
	cache Cache
	ttl   time.Duration
	log   logger.Logger
}

// NewCachedStore decorates store. A ttl of zero uses the default.
func NewCachedStore(store Store, cache Cache, ttl time.Duration, log logger.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &CachedStore{store: store, cache: cache, ttl: ttl, log: log}
}

func cacheKey(child string, key MonthKey) string {
	return "archive:" + children.SafeName(child) + ":" + key.String()
}

func (s *CachedStore) Put(ctx context.Context, child string, year int, month time.Month, snap Snapshot) error {
	if err := s.store.Put(ctx, child, year, month, snap); err != nil {
		return err
	}
	key := cacheKey(child, MonthKey{Year: year, Month: month})
	if err := s.cache.Delete(ctx, key); err != nil {
		s.log.Warn("Failed to invalidate archive cache", logger.StringField("key", key), logger.ErrorField(err))
	}
	return nil
}

func (s *CachedStore) Get(ctx context.Context, child string, year int, month time.Month) (*Snapshot, error) {
	key := cacheKey(child, MonthKey{Year: year, Month: month})

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn("Archive cache read failed", logger.StringField("key", key), logger.ErrorField(err))
	}
	if ok {
		var snap Snapshot
		if err := json.Unmarshal(data, &snap); err == nil {
			return &snap, nil
		}
		s.log.Warn("Discarding corrupt archive cache entry", logger.StringField("key", key))
	}

	snap, err := s.store.Get(ctx, child, year, month)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(snap); err == nil {
		if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
			s.log.Warn("Archive cache write failed", logger.StringField("key", key), logger.ErrorField(err))
		}
	}
	return snap, nil
}
