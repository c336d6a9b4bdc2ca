package cache

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

var _ Cache = (*MockCache)(nil)

// MockCache records summary cache calls. A nil first return value is a miss.
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetSummary(ctx context.Context, key string) (*Summary, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Summary), args.Error(1)
}

func (m *MockCache) SetSummary(ctx context.Context, key string, summary *Summary, ttl time.Duration) error {
	args := m.Called(ctx, key, summary, ttl)
	return args.Error(0)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}
