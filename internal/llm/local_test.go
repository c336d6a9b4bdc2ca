package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	ollama "github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contract-insights/internal/document"
	"contract-insights/internal/prompt"
)

type fakeOllama struct {
	showErr error
	pullErr error
	loadErr error
	genErr  error
	reply   string

	shows atomic.Int32
	pulls atomic.Int32
	loads atomic.Int32
	gens  atomic.Int32

	mu      sync.Mutex
	lastReq *ollama.GenerateRequest
}

func (f *fakeOllama) Show(context.Context, *ollama.ShowRequest) (*ollama.ShowResponse, error) {
	f.shows.Add(1)
	if f.showErr != nil {
		return nil, f.showErr
	}
	return &ollama.ShowResponse{}, nil
}

func (f *fakeOllama) Pull(context.Context, *ollama.PullRequest, ollama.PullProgressFunc) error {
	f.pulls.Add(1)
	return f.pullErr
}

func (f *fakeOllama) Generate(_ context.Context, req *ollama.GenerateRequest, fn ollama.GenerateResponseFunc) error {
	if req.Prompt == "" {
		f.loads.Add(1)
		return f.loadErr
	}
	f.gens.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()
	if f.genErr != nil {
		return f.genErr
	}
	return fn(ollama.GenerateResponse{Response: f.reply, Done: true})
}

var localOpts = GenerationOptions{MaxNewTokens: 128, Temperature: 0.3, RepetitionPenalty: 1.1}

func TestLocalBackendLoadsOnceUnderConcurrency(t *testing.T) {
	api := &fakeOllama{reply: "ok"}
	b := newLocalBackend(api, "llama3.2:1b", localOpts, false)
	p := prompt.BuildChat("q", nil, prompt.PolicyPlainText)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := b.Generate(context.Background(), Request{Prompt: p})
			assert.NoError(t, err)
			assert.Equal(t, "ok", resp.Text)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), api.shows.Load())
	assert.Equal(t, int32(1), api.loads.Load())
	assert.Equal(t, int32(0), api.pulls.Load())
	assert.Equal(t, int32(16), api.gens.Load())
}

func TestLocalBackendPullsMissingModel(t *testing.T) {
	api := &fakeOllama{showErr: errors.New("model not found"), reply: "ok"}
	b := newLocalBackend(api, "llama3.2:1b", localOpts, false)

	_, err := b.Generate(context.Background(), Request{Prompt: prompt.BuildChat("q", nil, prompt.PolicyPlainText)})
	require.NoError(t, err)
	assert.Equal(t, int32(1), api.pulls.Load())
}

func TestLocalBackendLoadFailureIsTerminal(t *testing.T) {
	api := &fakeOllama{showErr: errors.New("model not found"), pullErr: errors.New("pull model manifest: file does not exist")}
	b := newLocalBackend(api, "missing:latest", localOpts, false)
	p := prompt.BuildChat("q", nil, prompt.PolicyPlainText)

	_, err1 := b.Generate(context.Background(), Request{Prompt: p})
	_, err2 := b.Generate(context.Background(), Request{Prompt: p})

	require.Error(t, err1)
	assert.ErrorIs(t, err1, ErrBackendUnavailable)
	assert.Contains(t, err1.Error(), "pull model manifest: file does not exist")
	assert.Equal(t, err1.Error(), err2.Error())
	assert.Equal(t, int32(1), api.pulls.Load())
	assert.Equal(t, int32(0), api.gens.Load())
}

func TestLocalBackendGenerationParameters(t *testing.T) {
	api := &fakeOllama{reply: "done"}
	b := newLocalBackend(api, "llama3.2:1b", localOpts, true)
	p := prompt.BuildSummary(document.Descriptor{FileName: "terms.txt", Content: "Term: 12 months"}, prompt.PolicyPlainText)

	_, err := b.Generate(context.Background(), Request{Prompt: p})
	require.NoError(t, err)

	req := api.lastReq
	require.NotNil(t, req)
	assert.Equal(t, p.Text(), req.Prompt)
	require.NotNil(t, req.Stream)
	assert.False(t, *req.Stream)
	assert.Equal(t, 128, req.Options["num_predict"])
	assert.Equal(t, float32(0.3), req.Options["temperature"])
	assert.Equal(t, float32(1.1), req.Options["repeat_penalty"])
	assert.True(t, b.Capabilities().ReturnsPromptEcho)
}

func TestLocalBackendGenerateError(t *testing.T) {
	api := &fakeOllama{genErr: errors.New("connection refused")}
	b := newLocalBackend(api, "llama3.2:1b", localOpts, false)

	_, err := b.Generate(context.Background(), Request{Prompt: prompt.BuildChat("q", nil, prompt.PolicyPlainText)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestNewLocalBackendRejectsBadHost(t *testing.T) {
	_, err := NewLocalBackend("not a url", "", localOpts, false)
	assert.Error(t, err)

	b, err := NewLocalBackend("http://localhost:11434", "", localOpts, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultLocalModel, b.Model())
}
