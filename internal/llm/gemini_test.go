package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contract-insights/internal/document"
	"contract-insights/internal/prompt"
)

type fakeGenerator struct {
	parts []genai.Part
	resp  *genai.GenerateContentResponse
	err   error
	calls int
}

func (f *fakeGenerator) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.parts = parts
	return f.resp, f.err
}

func textResponse(parts ...genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: parts}}},
	}
}

func newFakeGemini(gen *fakeGenerator) (*GeminiBackend, *string) {
	var field string
	return &GeminiBackend{
		model: DefaultGeminiModel,
		newModel: func(outputField string) contentGenerator {
			field = outputField
			return gen
		},
	}, &field
}

func TestGeminiGenerateSendsMediaParts(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse(genai.Text(`{"aiResponse":`), genai.Text(`"Net 30."}`))}
	b, field := newFakeGemini(gen)

	doc := document.Descriptor{FileName: "lease.pdf", Content: document.EncodeDataURI(document.MIMEPDF, []byte("%PDF-1.4"))}
	p := prompt.BuildChat("What is the payment term?", []document.Descriptor{doc}, b.Capabilities().Policy())

	resp, err := b.Generate(context.Background(), Request{Prompt: p, OutputField: "aiResponse"})
	require.NoError(t, err)

	assert.Equal(t, `{"aiResponse":"Net 30."}`, resp.Text)
	assert.True(t, resp.Structured)
	assert.Equal(t, "aiResponse", *field)
	assert.Equal(t, 1, gen.calls)

	require.Len(t, gen.parts, 3)
	assert.IsType(t, genai.Text(""), gen.parts[0])
	blob, ok := gen.parts[1].(genai.Blob)
	require.True(t, ok, "expected inline blob, got %T", gen.parts[1])
	assert.Equal(t, document.MIMEPDF, blob.MIMEType)
	assert.Equal(t, []byte("%PDF-1.4"), blob.Data)
	assert.IsType(t, genai.Text(""), gen.parts[2])
}

func TestGeminiGenerateEmptyCandidates(t *testing.T) {
	gen := &fakeGenerator{resp: &genai.GenerateContentResponse{}}
	b, _ := newFakeGemini(gen)

	resp, err := b.Generate(context.Background(), Request{Prompt: prompt.BuildChat("q", nil, prompt.PolicyInlineMedia)})
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
	assert.False(t, resp.Structured)
}

func TestGeminiGenerateError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("googleapi: Error 403: API key not valid")}
	b, _ := newFakeGemini(gen)

	_, err := b.Generate(context.Background(), Request{Prompt: prompt.BuildChat("q", nil, prompt.PolicyInlineMedia)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "googleapi: Error 403: API key not valid")
	assert.Equal(t, 1, gen.calls)
}

func TestGeminiGenerateBlocked(t *testing.T) {
	tests := []struct {
		name    string
		blocked *genai.BlockedError
	}{
		{"safety candidate", &genai.BlockedError{Candidate: &genai.Candidate{FinishReason: genai.FinishReasonSafety}}},
		{"recitation candidate", &genai.BlockedError{Candidate: &genai.Candidate{FinishReason: genai.FinishReasonRecitation}}},
		{"blocked prompt", &genai.BlockedError{PromptFeedback: &genai.PromptFeedback{BlockReason: genai.BlockReasonSafety}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{err: tt.blocked}
			b, _ := newFakeGemini(gen)

			_, err := b.Generate(context.Background(), Request{Prompt: prompt.BuildChat("q", nil, prompt.PolicyInlineMedia)})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNoOutput)
			assert.NotErrorIs(t, err, ErrBackendUnavailable)
			assert.Contains(t, err.Error(), tt.blocked.Error())

			var blocked *genai.BlockedError
			assert.ErrorAs(t, err, &blocked)
		})
	}
}

func TestSafetySettings(t *testing.T) {
	settings, err := SafetyThresholds{
		HateSpeech:       "high",
		DangerousContent: "none",
		Harassment:       "medium",
		SexuallyExplicit: "low",
	}.Settings()
	require.NoError(t, err)

	want := map[genai.HarmCategory]genai.HarmBlockThreshold{
		genai.HarmCategoryHateSpeech:       genai.HarmBlockOnlyHigh,
		genai.HarmCategoryDangerousContent: genai.HarmBlockNone,
		genai.HarmCategoryHarassment:       genai.HarmBlockMediumAndAbove,
		genai.HarmCategorySexuallyExplicit: genai.HarmBlockLowAndAbove,
	}
	require.Len(t, settings, len(want))
	for _, s := range settings {
		assert.Equal(t, want[s.Category], s.Threshold, "category %v", s.Category)
	}

	_, err = SafetyThresholds{HateSpeech: "extreme", DangerousContent: "none", Harassment: "none", SexuallyExplicit: "none"}.Settings()
	assert.Error(t, err)
}

func TestNewGeminiBackendRequiresKey(t *testing.T) {
	_, err := NewGeminiBackend(context.Background(), "", "", SafetyThresholds{}, 0)
	assert.Error(t, err)
}

func TestGeminiCapabilities(t *testing.T) {
	b := &GeminiBackend{}
	caps := b.Capabilities()
	assert.True(t, caps.InlineMedia)
	assert.True(t, caps.StructuredOutput)
	assert.False(t, caps.ReturnsPromptEcho)
	assert.Equal(t, prompt.PolicyInlineMedia, caps.Policy())
}
