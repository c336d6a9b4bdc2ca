package llm

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a mock implementation of Backend using testify/mock.
type MockBackend struct {
	mock.Mock
	Caps Capabilities
}

func (m *MockBackend) Generate(ctx context.Context, req Request) (Response, error) {
	args := m.Called(ctx, req)
	if fn, ok := args.Get(0).(func(context.Context, Request) Response); ok {
		return fn(ctx, req), args.Error(1)
	}
	return args.Get(0).(Response), args.Error(1)
}

func (m *MockBackend) Capabilities() Capabilities {
	return m.Caps
}

func (m *MockBackend) Model() string {
	return "mock"
}
