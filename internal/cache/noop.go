package cache

import (
	"context"
	"time"
)

var _ Cache = (*NoOpCache)(nil)

// NoOpCache is the default when CACHE_PROVIDER=none: every lookup is a miss
// and nothing is stored.
type NoOpCache struct{}

func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

func (*NoOpCache) GetSummary(context.Context, string) (*Summary, error) {
	return nil, nil
}

func (*NoOpCache) SetSummary(context.Context, string, *Summary, time.Duration) error {
	return nil
}

func (*NoOpCache) Close() error {
	return nil
}
