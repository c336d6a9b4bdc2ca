package cache

import (
	"context"
	"testing"
	"time"
)

func TestNewRedisCacheUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	c, err := NewRedisCache(ctx, "127.0.0.1:1", "", 2)
	if err == nil {
		c.Close()
		t.Fatal("expected connection error for unreachable redis")
	}
	// one backoff step between the two attempts
	if elapsed := time.Since(start); elapsed < pingBackoffBase {
		t.Errorf("expected at least %v of backoff, took %v", pingBackoffBase, elapsed)
	}
}

func TestNewRedisCacheCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewRedisCache(ctx, "127.0.0.1:1", "", 3); err == nil {
		t.Fatal("expected error with cancelled context")
	}
}
