package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"contract-insights/internal/cache"
	"contract-insights/internal/config"
	"contract-insights/internal/insights"
	"contract-insights/internal/llm"
	"contract-insights/internal/logger"
)

const redisConnectAttempts = 3

// Deps bundles common runtime dependencies for the gateway and the CLI.
type Deps struct {
	Config   config.Config
	Log      *slog.Logger
	Backend  llm.Backend
	Cache    cache.Cache
	Insights *insights.Service
}

// Build loads env, config, and shared components, logging to stdout.
func Build(ctx context.Context) (Deps, error) {
	return BuildWithLogWriter(ctx, os.Stdout)
}

// BuildWithLogWriter is Build with an explicit log destination.
func BuildWithLogWriter(ctx context.Context, w io.Writer) (Deps, error) {
	// .env is optional; the process environment wins over it
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load environment variables: %w", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return Deps{}, err
	}
	return assemble(ctx, cfg, logger.NewWithWriter(w, cfg.LogLevel))
}

// Constructors used by assemble; tests swap them.
var (
	newBackend = buildBackend
	newCache   = buildCache
)

func assemble(ctx context.Context, cfg config.Config, log *slog.Logger) (Deps, error) {
	backend, err := newBackend(ctx, cfg, log)
	if err != nil {
		return Deps{}, fmt.Errorf("failed to initialize model backend: %w", err)
	}
	c, err := newCache(ctx, cfg, log)
	if err != nil {
		if closer, ok := backend.(io.Closer); ok {
			if cerr := closer.Close(); cerr != nil {
				log.Warn("failed to close model backend", "err", cerr)
			}
		}
		return Deps{}, fmt.Errorf("failed to initialize cache: %w", err)
	}
	ttl := time.Duration(cfg.CacheTTL) * time.Second
	return Deps{
		Config:   cfg,
		Log:      log,
		Backend:  backend,
		Cache:    c,
		Insights: insights.NewService(backend, log, insights.WithSummaryCache(c, ttl)),
	}, nil
}

// Close releases the cache connection and the backend client when it holds one.
func (d Deps) Close() error {
	var errs []error
	if d.Cache != nil {
		errs = append(errs, d.Cache.Close())
	}
	if c, ok := d.Backend.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func buildBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (llm.Backend, error) {
	gen := llm.GenerationOptions{
		MaxNewTokens:      cfg.Generation.MaxNewTokens,
		Temperature:       cfg.Generation.Temperature,
		RepetitionPenalty: cfg.Generation.RepetitionPenalty,
	}
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GoogleAPIKey == "" {
			return nil, fmt.Errorf("GOOGLE_API_KEY is required when LLM_PROVIDER=gemini")
		}
		b, err := llm.NewGeminiBackend(ctx, cfg.GoogleAPIKey, cfg.LLMModel, llm.SafetyThresholds{
			HateSpeech:       cfg.Safety.HateSpeech,
			DangerousContent: cfg.Safety.DangerousContent,
			Harassment:       cfg.Safety.Harassment,
			SexuallyExplicit: cfg.Safety.SexuallyExplicit,
		}, cfg.Generation.Temperature)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
		}
		log.Info("using Gemini backend", "model", b.Model())
		return b, nil
	case "huggingface":
		if cfg.HuggingFaceToken == "" {
			return nil, fmt.Errorf("HUGGING_FACE_ACCESS_TOKEN is required when LLM_PROVIDER=huggingface")
		}
		b, err := llm.NewHuggingFaceBackend(cfg.HuggingFaceToken, cfg.HuggingFaceBaseURL, cfg.LLMModel, gen)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Hugging Face client: %w", err)
		}
		log.Info("using Hugging Face backend", "model", b.Model(), "base_url", cfg.HuggingFaceBaseURL)
		return b, nil
	case "local":
		b, err := llm.NewLocalBackend(cfg.OllamaHost, cfg.LLMModel, gen, cfg.LocalReturnsPromptEcho)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local backend: %w", err)
		}
		log.Info("using local backend", "model", b.Model(), "host", cfg.OllamaHost, "prompt_echo", cfg.LocalReturnsPromptEcho)
		return b, nil
	default:
		return nil, fmt.Errorf("invalid LLM_PROVIDER: %s (valid options: gemini, huggingface, local)", cfg.LLMProvider)
	}
}

func buildCache(ctx context.Context, cfg config.Config, log *slog.Logger) (cache.Cache, error) {
	switch cfg.CacheProvider {
	case "none", "":
		return cache.NewNoOpCache(), nil
	case "redis":
		c, err := cache.NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, redisConnectAttempts)
		if err != nil {
			return nil, err
		}
		log.Info("using Redis summary cache", "addr", cfg.RedisAddr, "ttl_seconds", cfg.CacheTTL)
		return c, nil
	default:
		return nil, fmt.Errorf("invalid CACHE_PROVIDER: %s (valid options: none, redis)", cfg.CacheProvider)
	}
}
