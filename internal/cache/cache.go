package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache memoizes generated summaries. A miss is (nil, nil).
type Cache interface {
	// GetSummary retrieves a cached summary by key.
	GetSummary(ctx context.Context, key string) (*Summary, error)

	// SetSummary stores a summary with TTL.
	SetSummary(ctx context.Context, key string, summary *Summary, ttl time.Duration) error

	// Close closes the cache connection
	Close() error
}

// Summary is a cached summarization result.
type Summary struct {
	Text     string    `json:"text"`
	Model    string    `json:"model"`
	CachedAt time.Time `json:"cached_at"`
}

// SummaryKey derives a key from the model identifier and the document content,
// so the same contract summarized by a different model is a miss.
func SummaryKey(model, content string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))
}
