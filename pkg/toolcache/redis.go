package toolcache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"lumina/pkg/logx"
)

const redisKeyPrefix = "lumina:toolcache:"

// RedisCache is the shared cache backend. All failures are logged and
// reported as misses so a dead or flapping redis never blocks tool
// execution.
type RedisCache struct {
	client *redis.Client
	logger *logx.Logger
}

// NewRedisCache connects to redis at addr. The connection is verified once
// at startup; later failures degrade per-operation.
func NewRedisCache(ctx context.Context, addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, logx.Errorf("connect redis cache at %s: %w", addr, err)
	}
	return &RedisCache{
		client: client,
		logger: logx.NewLogger("toolcache"),
	}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache get %s degraded to miss: %v", key, err)
		}
		return nil, false
	}
	return val, true
}

// Put implements Cache.
func (c *RedisCache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		c.logger.Warn("cache put %s failed: %v", key, err)
	}
}

// Close releases the redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
