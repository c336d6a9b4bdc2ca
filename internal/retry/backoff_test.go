package retry

import (
	"testing"
	"time"
)

func TestExponentialBackoff(t *testing.T) {
	base := 200 * time.Millisecond

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{-1, 200 * time.Millisecond},
		{0, 200 * time.Millisecond},  // base * 2^0
		{1, 400 * time.Millisecond},  // base * 2^1
		{2, 800 * time.Millisecond},  // base * 2^2
		{5, 6400 * time.Millisecond}, // base * 2^5
		{6, MaxBackoff},              // 12.8s capped
		{63, MaxBackoff},
	}

	for _, tt := range tests {
		result := ExponentialBackoff(tt.attempt, base)
		if result != tt.expected {
			t.Errorf("attempt %d: got %v, want %v", tt.attempt, result, tt.expected)
		}
	}
}
