package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	DefaultHuggingFaceModel   = "meta-llama/Llama-3.2-1B-Instruct"
	DefaultHuggingFaceBaseURL = "https://router.huggingface.co/v1"

	defaultHostedTimeout = 120 * time.Second
)

// GenerationOptions are sampling parameters for text-only backends.
type GenerationOptions struct {
	MaxNewTokens      int
	Temperature       float32
	RepetitionPenalty float32
}

// HuggingFaceBackend calls a HuggingFace-hosted model through the
// OpenAI-compatible chat completions router.
type HuggingFaceBackend struct {
	model  openai.ChatModel
	client *openai.Client
	opts   GenerationOptions
}

// NewHuggingFaceBackend builds a client against baseURL with the given access token.
func NewHuggingFaceBackend(token, baseURL, model string, opts GenerationOptions) (*HuggingFaceBackend, error) {
	if token == "" {
		return nil, fmt.Errorf("access token required")
	}
	if baseURL == "" {
		baseURL = DefaultHuggingFaceBaseURL
	}
	if model == "" {
		model = DefaultHuggingFaceModel
	}
	cli := openai.NewClient(
		option.WithAPIKey(token),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: defaultHostedTimeout}),
	)
	return &HuggingFaceBackend{
		model:  openai.ChatModel(model),
		client: &cli,
		opts:   opts,
	}, nil
}

func (c *HuggingFaceBackend) Capabilities() Capabilities {
	return Capabilities{}
}

func (c *HuggingFaceBackend) Model() string { return string(c.model) }

func (c *HuggingFaceBackend) Generate(ctx context.Context, req Request) (Response, error) {
	if c == nil || c.client == nil {
		return Response{}, fmt.Errorf("%w: nil huggingface client", ErrBackendUnavailable)
	}
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    buildMessages(req.Prompt.Text()),
		Temperature: openai.Float(float64(c.opts.Temperature)),
	}
	if c.opts.MaxNewTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.opts.MaxNewTokens))
	}
	var reqOpts []option.RequestOption
	if c.opts.RepetitionPenalty > 0 {
		// not part of the OpenAI schema; the HuggingFace router forwards it to TGI
		reqOpts = append(reqOpts, option.WithJSONSet("repetition_penalty", c.opts.RepetitionPenalty))
	}
	resp, err := c.client.Chat.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		return Response{}, fmt.Errorf("%w: huggingface generate: %w", ErrBackendUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, nil
	}
	return Response{Text: resp.Choices[0].Message.Content}, nil
}

func buildMessages(user string) []openai.ChatCompletionMessageParamUnion {
	return []openai.ChatCompletionMessageParamUnion{
		{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(user),
				},
			},
		},
	}
}
