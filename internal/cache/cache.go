// Package cache provides the Redis-backed result cache consumed by the
// dispatcher as its optional cache collaborator. Cache absence or failure
// never changes result correctness, only latency, so every Redis error is
// logged and swallowed: a failed lookup is a miss, a failed store is a
// no-op.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pixelgate/pixelgate/gateway"
)

// Config configures the Redis connection and entry lifetime.
type Config struct {
	Addr       string        `yaml:"addr" json:"addr"`
	Password   string        `yaml:"password" json:"password"`
	DB         int           `yaml:"db" json:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl"`
	PoolSize   int           `yaml:"pool_size" json:"pool_size"`
}

// DefaultConfig returns a local-development configuration.
func DefaultConfig() Config {
	return Config{
		Addr:       "localhost:6379",
		DefaultTTL: 15 * time.Minute,
		PoolSize:   10,
	}
}

// ResultCache stores normalized generation results in Redis.
type ResultCache struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger
}

var _ gateway.Cache = (*ResultCache)(nil)

// New connects to Redis and verifies the connection with a ping.
func New(config Config, logger *zap.Logger) (*ResultCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 15 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	logger.Info("result cache connected", zap.String("addr", config.Addr))
	return &ResultCache{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "result_cache")),
	}, nil
}

// NewWithClient wraps an existing Redis client. Used by tests with
// miniredis.
func NewWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ResultCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ResultCache{
		redis:  client,
		config: Config{DefaultTTL: ttl},
		logger: logger.With(zap.String("component", "result_cache")),
	}
}

// Get implements gateway.Cache.
func (c *ResultCache) Get(ctx context.Context, key string) (*gateway.GenerationResult, bool) {
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var result gateway.GenerationResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", zap.String("key", key), zap.Error(err))
		_ = c.redis.Del(ctx, key).Err()
		return nil, false
	}
	return &result, true
}

// Put implements gateway.Cache. Only successful results are stored;
// caching a failure would pin a transient outage past its lifetime.
func (c *ResultCache) Put(ctx context.Context, key string, result *gateway.GenerationResult) {
	if result == nil || !result.Success {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Warn("cache encode failed", zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, key, data, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

// Close releases the underlying Redis connection.
func (c *ResultCache) Close() error {
	return c.redis.Close()
}
