package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the Redis-backed implementation of Cache.
type RedisCache struct {
	client *redis.Client
}

// Options holds Redis connection settings.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(opts Options) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	slog.Info("Connected to Redis cache", "addr", opts.Addr, "db", opts.DB)
	return &RedisCache{client: client}, nil
}

// NewRedisCacheFromClient wraps an existing client (used by tests with
// miniredis).
func NewRedisCacheFromClient(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// GetJSON decodes the value at key into dest.
func (c *RedisCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		slog.Warn("Cache entry failed to decode, treating as miss", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

// SetJSON stores value under key with ttl.
func (c *RedisCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// PushRing left-pushes a JSON entry and trims the list to maxLen.
func (c *RedisCache) PushRing(ctx context.Context, key string, value any, maxLen int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal ring entry for %s: %w", key, err)
	}
	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxLen-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis ring push %s: %w", key, err)
	}
	return nil
}

// RangeRing returns up to n most recent raw ring entries.
func (c *RedisCache) RangeRing(ctx context.Context, key string, n int64) ([]string, error) {
	vals, err := c.client.LRange(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis ring range %s: %w", key, err)
	}
	return vals, nil
}

// HealthCheck verifies Redis is reachable.
func (c *RedisCache) HealthCheck(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
