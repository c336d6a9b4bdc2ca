package insights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"contract-insights/internal/cache"
	"contract-insights/internal/document"
	"contract-insights/internal/llm"
	"contract-insights/internal/prompt"
)

var (
	// ErrEmptyQuery is returned for blank chat queries; the backend is not called.
	ErrEmptyQuery = errors.New("no query provided")
	// ErrInvalidDocument is returned for descriptors without a name or content.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrMissingText is returned when a text-only backend is asked to summarize
	// a document that carries no text.
	ErrMissingText = errors.New("document has no extracted text")
	// ErrEmptyGeneration is returned when the backend produced no usable text.
	ErrEmptyGeneration = errors.New("could not generate a response")
	// ErrInvalidOutputShape is returned when structured output lacks the expected field.
	ErrInvalidOutputShape = errors.New("output was null")
	// ErrBackendUnavailable wraps every backend failure.
	ErrBackendUnavailable = llm.ErrBackendUnavailable
)

// Output fields requested from structured backends.
const (
	chatOutputField    = "aiResponse"
	summaryOutputField = "summary"
)

// ChatQuery is a question over a set of contracts.
type ChatQuery struct {
	UserQuery string                `json:"userQuery"`
	Contracts []document.Descriptor `json:"contracts"`
}

// ChatResult is the model's answer.
type ChatResult struct {
	AIResponse string `json:"aiResponse"`
}

// SummaryResult is the summary of one contract.
type SummaryResult struct {
	Summary string `json:"summary"`
}

// Service answers questions about and summarizes contracts using a model backend.
// It holds no per-request state; every call is a single round trip.
type Service struct {
	backend  llm.Backend
	cache    cache.Cache
	cacheTTL time.Duration
	log      *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSummaryCache memoizes summaries for ttl.
func WithSummaryCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// NewService wires a backend into the chat and summarization operations.
func NewService(backend llm.Backend, log *slog.Logger, opts ...Option) *Service {
	s := &Service{backend: backend, cache: cache.NewNoOpCache(), log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChatWithContracts answers q.UserQuery using only the supplied contracts.
func (s *Service) ChatWithContracts(ctx context.Context, q ChatQuery) (ChatResult, error) {
	if strings.TrimSpace(q.UserQuery) == "" {
		return ChatResult{}, ErrEmptyQuery
	}
	pdfs := 0
	for i, c := range q.Contracts {
		if err := checkDescriptor(c); err != nil {
			return ChatResult{}, fmt.Errorf("contract %d: %w", i, err)
		}
		if document.IsPDF(c.Content) {
			pdfs++
		}
	}

	caps := s.backend.Capabilities()
	p := prompt.BuildChat(q.UserQuery, q.Contracts, caps.Policy())
	log := s.log.With("op", "chat", "model", s.backend.Model(), "contracts", len(q.Contracts), "pdf_contracts", pdfs)

	answer, err := s.generate(ctx, p, chatOutputField)
	if err != nil {
		log.Error("chat failed", "err", err)
		return ChatResult{}, fmt.Errorf("chat with contracts: %w", err)
	}
	log.Debug("chat answered", "chars", len(answer))
	return ChatResult{AIResponse: answer}, nil
}

// SummarizeContract summarizes the key terms of exactly one contract.
func (s *Service) SummarizeContract(ctx context.Context, doc document.Descriptor) (SummaryResult, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return SummaryResult{}, fmt.Errorf("%w: empty content", ErrInvalidDocument)
	}
	caps := s.backend.Capabilities()
	if caps.Policy() == prompt.PolicyPlainText {
		if text, ok := document.Text(doc.Content); !ok || strings.TrimSpace(text) == "" {
			return SummaryResult{}, ErrMissingText
		}
	}

	log := s.log.With("op", "summarize", "model", s.backend.Model(), "file", doc.FileName)
	key := cache.SummaryKey(s.backend.Model(), doc.Content)
	if cached, err := s.cache.GetSummary(ctx, key); err != nil {
		log.Warn("summary cache read failed", "err", err)
	} else if cached != nil {
		log.Info("summary cache hit")
		return SummaryResult{Summary: cached.Text}, nil
	}

	summary, err := s.generate(ctx, prompt.BuildSummary(doc, caps.Policy()), summaryOutputField)
	if err != nil {
		log.Error("summarize failed", "err", err)
		return SummaryResult{}, fmt.Errorf("summarize contract: %w", err)
	}

	entry := &cache.Summary{Text: summary, Model: s.backend.Model(), CachedAt: time.Now().UTC()}
	if err := s.cache.SetSummary(ctx, key, entry, s.cacheTTL); err != nil {
		log.Warn("summary cache write failed", "err", err)
	}
	return SummaryResult{Summary: summary}, nil
}

// generate performs the single backend call and extracts the answer text.
func (s *Service) generate(ctx context.Context, p prompt.Prompt, field string) (string, error) {
	caps := s.backend.Capabilities()
	req := llm.Request{Prompt: p}
	if caps.StructuredOutput {
		req.OutputField = field
	}
	resp, err := s.backend.Generate(ctx, req)
	if errors.Is(err, llm.ErrNoOutput) {
		return "", fmt.Errorf("%w: %w", ErrEmptyGeneration, err)
	}
	if err != nil {
		return "", err
	}

	var answer string
	if resp.Structured {
		answer, err = structuredField(resp.Text, field)
		if err != nil {
			return "", err
		}
	} else {
		answer = ExtractAnswer(resp.Text, p.Text(), p.Marker, caps.ReturnsPromptEcho)
	}
	if answer == "" {
		return "", ErrEmptyGeneration
	}
	return answer, nil
}

// ExtractAnswer isolates the completion from raw model output. Backends that
// echo their input return "<prompt><marker><answer>": the text after the last
// marker is kept, or the prompt prefix is stripped when the marker is missing.
func ExtractAnswer(raw, promptText, marker string, echo bool) string {
	if !echo {
		return strings.TrimSpace(raw)
	}
	if marker != "" {
		if i := strings.LastIndex(raw, marker); i >= 0 {
			return strings.TrimSpace(raw[i+len(marker):])
		}
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, promptText))
}

func structuredField(raw, field string) (string, error) {
	if strings.TrimSpace(raw) == "" || !gjson.Valid(raw) {
		return "", ErrInvalidOutputShape
	}
	v := gjson.Get(raw, field)
	if !v.Exists() || v.Type == gjson.Null {
		return "", ErrInvalidOutputShape
	}
	if v.Type != gjson.String {
		return "", fmt.Errorf("%w: %s is %s, want string", ErrInvalidOutputShape, field, v.Type)
	}
	return strings.TrimSpace(v.String()), nil
}

func checkDescriptor(d document.Descriptor) error {
	if strings.TrimSpace(d.FileName) == "" {
		return fmt.Errorf("%w: missing file name", ErrInvalidDocument)
	}
	if d.Content == "" {
		return fmt.Errorf("%w: %s has no content", ErrInvalidDocument, d.FileName)
	}
	return nil
}
