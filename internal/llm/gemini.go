package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"contract-insights/internal/prompt"
)

const DefaultGeminiModel = "gemini-1.5-flash-latest"

// SafetyThresholds holds per-category blocking strictness: none, low, medium or high.
// "low" blocks content with a low or higher probability of harm, "high" only blocks
// high-probability content.
type SafetyThresholds struct {
	HateSpeech       string
	DangerousContent string
	Harassment       string
	SexuallyExplicit string
}

func parseThreshold(level string) (genai.HarmBlockThreshold, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "none":
		return genai.HarmBlockNone, nil
	case "low":
		return genai.HarmBlockLowAndAbove, nil
	case "medium":
		return genai.HarmBlockMediumAndAbove, nil
	case "high":
		return genai.HarmBlockOnlyHigh, nil
	default:
		return genai.HarmBlockUnspecified, fmt.Errorf("unknown safety threshold %q", level)
	}
}

// Settings converts the thresholds into Gemini safety settings.
func (s SafetyThresholds) Settings() ([]*genai.SafetySetting, error) {
	categories := []struct {
		category genai.HarmCategory
		level    string
	}{
		{genai.HarmCategoryHateSpeech, s.HateSpeech},
		{genai.HarmCategoryDangerousContent, s.DangerousContent},
		{genai.HarmCategoryHarassment, s.Harassment},
		{genai.HarmCategorySexuallyExplicit, s.SexuallyExplicit},
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		threshold, err := parseThreshold(c.level)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.category, err)
		}
		settings = append(settings, &genai.SafetySetting{Category: c.category, Threshold: threshold})
	}
	return settings, nil
}

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// GeminiBackend calls the Google Generative Language API. It attaches PDFs as
// inline blobs and requests JSON output when an output field is named.
type GeminiBackend struct {
	client   *genai.Client
	model    string
	newModel func(outputField string) contentGenerator
}

// NewGeminiBackend builds a client against the hosted API.
func NewGeminiBackend(ctx context.Context, apiKey, model string, safety SafetyThresholds, temperature float32) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	settings, err := safety.Settings()
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini init: %w", err)
	}
	b := &GeminiBackend{client: client, model: model}
	b.newModel = func(outputField string) contentGenerator {
		m := client.GenerativeModel(model)
		m.SafetySettings = settings
		m.SetTemperature(temperature)
		if outputField != "" {
			m.ResponseMIMEType = "application/json"
			m.ResponseSchema = &genai.Schema{
				Type:       genai.TypeObject,
				Properties: map[string]*genai.Schema{outputField: {Type: genai.TypeString}},
				Required:   []string{outputField},
			}
		}
		return m
	}
	return b, nil
}

func (b *GeminiBackend) Capabilities() Capabilities {
	return Capabilities{InlineMedia: true, StructuredOutput: true}
}

func (b *GeminiBackend) Model() string { return b.model }

func (b *GeminiBackend) Generate(ctx context.Context, req Request) (Response, error) {
	if b == nil || b.newModel == nil {
		return Response{}, fmt.Errorf("%w: nil gemini client", ErrBackendUnavailable)
	}
	resp, err := b.newModel(req.OutputField).GenerateContent(ctx, geminiParts(req.Prompt)...)
	if err != nil {
		var blocked *genai.BlockedError
		if errors.As(err, &blocked) {
			return Response{}, fmt.Errorf("%w: gemini generate: %w", ErrNoOutput, err)
		}
		return Response{}, fmt.Errorf("%w: gemini generate: %w", ErrBackendUnavailable, err)
	}
	return Response{Text: candidateText(resp), Structured: req.OutputField != ""}, nil
}

// Close releases the underlying connection.
func (b *GeminiBackend) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func geminiParts(p prompt.Prompt) []genai.Part {
	parts := make([]genai.Part, 0, len(p.Segments))
	for _, s := range p.Segments {
		if s.Media != nil {
			parts = append(parts, genai.Blob{MIMEType: s.Media.MIMEType, Data: s.Media.Data})
			continue
		}
		if s.Text != "" {
			parts = append(parts, genai.Text(s.Text))
		}
	}
	return parts
}

func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
