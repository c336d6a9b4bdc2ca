package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"contract-insights/internal/retry"
)

// Key prefix for cached summaries
const summaryKeyPrefix = "summary:"

const (
	pingTimeout     = 5 * time.Second
	pingBackoffBase = 200 * time.Millisecond
)

type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a Redis cache client. The connection is checked with
// up to attempts pings, backing off exponentially between them.
func NewRedisCache(ctx context.Context, addr, password string, attempts int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err = client.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			return &RedisCache{client: client}, nil
		}
		if attempt == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(retry.ExponentialBackoff(attempt, pingBackoffBase)):
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("redis connection failed: %w", err)
}

// GetSummary retrieves a cached summary by key
func (c *RedisCache) GetSummary(ctx context.Context, key string) (*Summary, error) {
	data, err := c.client.Get(ctx, summaryKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil // Cache miss
	}
	if err != nil {
		return nil, err
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSummary stores a summary with TTL
func (c *RedisCache) SetSummary(ctx context.Context, key string, summary *Summary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKeyPrefix+key, data, ttl).Err()
}

// Close closes the cache connection
func (c *RedisCache) Close() error {
	return c.client.Close()
}
