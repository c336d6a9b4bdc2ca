package llm

import (
	"context"
	"errors"

	"contract-insights/internal/prompt"
)

var (
	// ErrBackendUnavailable wraps failures to reach or run a backend.
	ErrBackendUnavailable = errors.New("model backend unavailable")
	// ErrNoOutput wraps a backend that answered but withheld its output,
	// for example a safety or recitation block. Retrying the same prompt does not help.
	ErrNoOutput = errors.New("model returned no usable output")
)

// Capabilities describe what a backend variant can do. They are fixed at
// construction time.
type Capabilities struct {
	// InlineMedia backends accept PDF bytes next to the prompt text.
	InlineMedia bool
	// StructuredOutput backends return a JSON object holding Request.OutputField.
	StructuredOutput bool
	// ReturnsPromptEcho backends return the prompt followed by the completion.
	ReturnsPromptEcho bool
}

// Policy returns the prompt content policy matching the capabilities.
func (c Capabilities) Policy() prompt.ContentPolicy {
	if c.InlineMedia {
		return prompt.PolicyInlineMedia
	}
	return prompt.PolicyPlainText
}

// Request is one generation call.
type Request struct {
	Prompt prompt.Prompt
	// OutputField names the single string field a structured backend must return.
	OutputField string
}

// Response is the raw model output.
type Response struct {
	Text string
	// Structured is true when Text is a JSON object produced under a response schema.
	Structured bool
}

// Backend is the model client adapter shared by the services. Implementations
// perform exactly one call per Generate and never retry.
type Backend interface {
	Generate(ctx context.Context, req Request) (Response, error)
	Capabilities() Capabilities
	Model() string
}
