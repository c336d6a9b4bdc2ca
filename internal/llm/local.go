package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	ollama "github.com/ollama/ollama/api"
)

const DefaultLocalModel = "llama3.2:1b"

type ollamaAPI interface {
	Show(ctx context.Context, req *ollama.ShowRequest) (*ollama.ShowResponse, error)
	Pull(ctx context.Context, req *ollama.PullRequest, fn ollama.PullProgressFunc) error
	Generate(ctx context.Context, req *ollama.GenerateRequest, fn ollama.GenerateResponseFunc) error
}

// LocalBackend runs generation on a local inference runtime.
//
// The model artifact is loaded lazily on the first Generate call and stays
// resident for the life of the process. Concurrent first callers wait on the
// same load. A failed load is terminal: every later call returns the same error
// without retrying.
type LocalBackend struct {
	api   ollamaAPI
	model string
	opts  GenerationOptions
	echo  bool

	once    sync.Once
	loadErr error
}

// NewLocalBackend builds a backend against an Ollama runtime at host.
// echo declares that the runtime returns the prompt before the completion.
func NewLocalBackend(host, model string, opts GenerationOptions, echo bool) (*LocalBackend, error) {
	u, err := url.Parse(host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid OLLAMA_HOST %q", host)
	}
	if model == "" {
		model = DefaultLocalModel
	}
	// no client timeout: the first call may pull a multi-gigabyte artifact
	client := ollama.NewClient(u, &http.Client{})
	return newLocalBackend(client, model, opts, echo), nil
}

func newLocalBackend(api ollamaAPI, model string, opts GenerationOptions, echo bool) *LocalBackend {
	return &LocalBackend{api: api, model: model, opts: opts, echo: echo}
}

func (b *LocalBackend) Capabilities() Capabilities {
	return Capabilities{ReturnsPromptEcho: b.echo}
}

func (b *LocalBackend) Model() string { return b.model }

func (b *LocalBackend) Generate(ctx context.Context, req Request) (Response, error) {
	if err := b.ensureLoaded(ctx); err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	stream := false
	var out strings.Builder
	err := b.api.Generate(ctx, &ollama.GenerateRequest{
		Model:   b.model,
		Prompt:  req.Prompt.Text(),
		Stream:  &stream,
		Options: b.options(),
	}, func(gr ollama.GenerateResponse) error {
		out.WriteString(gr.Response)
		return nil
	})
	if err != nil {
		return Response{}, fmt.Errorf("%w: local generate: %w", ErrBackendUnavailable, err)
	}
	return Response{Text: out.String()}, nil
}

func (b *LocalBackend) ensureLoaded(ctx context.Context) error {
	b.once.Do(func() {
		// detached so one caller's cancellation does not become the cached outcome
		b.loadErr = b.load(context.WithoutCancel(ctx))
	})
	return b.loadErr
}

func (b *LocalBackend) load(ctx context.Context) error {
	if _, err := b.api.Show(ctx, &ollama.ShowRequest{Model: b.model}); err != nil {
		if pullErr := b.api.Pull(ctx, &ollama.PullRequest{Model: b.model}, func(ollama.ProgressResponse) error { return nil }); pullErr != nil {
			return fmt.Errorf("load model %s: %w", b.model, pullErr)
		}
	}
	// an empty prompt loads the weights into memory without generating
	keep := ollama.Duration{Duration: -1}
	err := b.api.Generate(ctx, &ollama.GenerateRequest{Model: b.model, KeepAlive: &keep}, func(ollama.GenerateResponse) error { return nil })
	if err != nil {
		return fmt.Errorf("load model %s: %w", b.model, err)
	}
	return nil
}

func (b *LocalBackend) options() map[string]any {
	opts := map[string]any{"temperature": b.opts.Temperature}
	if b.opts.MaxNewTokens > 0 {
		opts["num_predict"] = b.opts.MaxNewTokens
	}
	if b.opts.RepetitionPenalty > 0 {
		opts["repeat_penalty"] = b.opts.RepetitionPenalty
	}
	return opts
}
