package config

import (
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

// Config holds process-wide runtime configuration. It is loaded once at startup
// and never mutated afterwards.
type Config struct {
	// Server
	Port     int    `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// RequestTimeout bounds each HTTP request, in seconds.
	RequestTimeout int `env:"REQUEST_TIMEOUT" envDefault:"120" validate:"gt=0"`

	// Upload limits
	MaxUploadSize        int64 `env:"MAX_UPLOAD_SIZE" envDefault:"20971520" validate:"gt=0"`        // 20MB per file
	MaxSummaryUploadSize int64 `env:"MAX_SUMMARY_UPLOAD_SIZE" envDefault:"5242880" validate:"gt=0"` // 5MB, summarize-only

	// Model backend
	LLMProvider string `env:"LLM_PROVIDER" envDefault:"gemini" validate:"oneof=gemini huggingface local"`
	LLMModel    string `env:"LLM_MODEL"` // provider default when empty

	GoogleAPIKey string `env:"GOOGLE_API_KEY"`

	HuggingFaceToken   string `env:"HUGGING_FACE_ACCESS_TOKEN"`
	HuggingFaceBaseURL string `env:"HUGGING_FACE_BASE_URL" envDefault:"https://router.huggingface.co/v1"`

	OllamaHost             string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`
	LocalReturnsPromptEcho bool   `env:"LOCAL_RETURNS_PROMPT_ECHO" envDefault:"false"`

	Generation Generation
	Safety     Safety

	// Cache memoizes summaries. A hit replays an earlier generation, so redis
	// is only accepted with TEMPERATURE=0.
	CacheProvider string `env:"CACHE_PROVIDER" envDefault:"none" validate:"oneof=none redis"`
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	CacheTTL      int    `env:"CACHE_TTL" envDefault:"3600" validate:"gte=0"` // seconds
}

// Generation holds sampling parameters for the text-only backends.
type Generation struct {
	MaxNewTokens      int     `env:"MAX_NEW_TOKENS" envDefault:"512" validate:"gt=0"`
	Temperature       float32 `env:"TEMPERATURE" envDefault:"0.2" validate:"gte=0,lte=2"`
	RepetitionPenalty float32 `env:"REPETITION_PENALTY" envDefault:"1.1" validate:"gte=0"`
}

// Safety holds per-category blocking strictness for the Gemini backend.
// Each value is one of none, low, medium or high.
type Safety struct {
	HateSpeech       string `env:"SAFETY_HATE_SPEECH" envDefault:"high" validate:"oneof=none low medium high"`
	DangerousContent string `env:"SAFETY_DANGEROUS_CONTENT" envDefault:"none" validate:"oneof=none low medium high"`
	Harassment       string `env:"SAFETY_HARASSMENT" envDefault:"medium" validate:"oneof=none low medium high"`
	SexuallyExplicit string `env:"SAFETY_SEXUALLY_EXPLICIT" envDefault:"low" validate:"oneof=none low medium high"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads configuration from environment variables with defaults.
func Load() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		slog.Warn("failed to parse env; using defaults where set", "err", err)
	}
	return cfg
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.CacheProvider == "redis" && c.Generation.Temperature != 0 {
		return fmt.Errorf("invalid configuration: CACHE_PROVIDER=redis requires TEMPERATURE=0, got %v", c.Generation.Temperature)
	}
	return nil
}
