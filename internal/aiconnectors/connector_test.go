package aiconnectors

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	reply   string
	err     error
	prompts []string
	opts    llms.CallOptions
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				f.prompts = append(f.prompts, text.Text)
			}
		}
	}
	f.opts = llms.CallOptions{}
	for _, opt := range options {
		opt(&f.opts)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestConnector_CallAppliesDefaultsThenOverrides(t *testing.T) {
	model := &fakeModel{reply: "done"}
	c := NewConnectorWithModel(ConnectorOptions{
		Provider:    ProviderOpenAI,
		ModelConfig: ModelConfig{Temperature: 0.2, MaxTokens: 100, Model: "gpt-4o"},
	}, model)

	out, err := c.Call(context.Background(), "hello", llms.WithMaxTokens(5), llms.WithModel("gpt-4o-mini"))
	require.NoError(t, err)

	assert.Equal(t, "done", out)
	assert.Equal(t, []string{"hello"}, model.prompts)
	assert.Equal(t, 0.2, model.opts.Temperature)
	assert.Equal(t, 5, model.opts.MaxTokens)
	assert.Equal(t, "gpt-4o-mini", model.opts.Model)
	assert.Equal(t, ProviderOpenAI, c.GetProvider())
	assert.Equal(t, "gpt-4o", c.GetModel())
}

func TestConnector_PingPropagatesProviderError(t *testing.T) {
	c := NewConnectorWithModel(ConnectorOptions{Provider: ProviderClaude}, &fakeModel{err: errors.New("401 unauthorized")})

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claude rejected the request")
}

func TestConnector_PingOllamaListsModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/tags", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Write([]byte(`{"models":[{"name":"llama3"}]}`))
	}))
	defer srv.Close()

	c := NewConnectorWithModel(ConnectorOptions{Provider: ProviderOllama, BaseURL: srv.URL, APIKey: "tok"}, &fakeModel{})
	require.NoError(t, c.Ping(context.Background()))
}

func TestFetchOllamaModels_Errors(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"models":[]}`))
	}))
	defer empty.Close()

	c := NewConnectorWithModel(ConnectorOptions{Provider: ProviderOllama, BaseURL: empty.URL}, &fakeModel{})
	assert.ErrorContains(t, c.Ping(context.Background()), "no models found")

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	_, err := FetchOllamaModels(context.Background(), failing.Client(), failing.URL+"/api/", "")
	assert.ErrorContains(t, err, "status 502")
}

func TestNewConnector_UnsupportedProvider(t *testing.T) {
	_, err := NewConnector(context.Background(), ConnectorOptions{Provider: "cohere"})
	assert.ErrorContains(t, err, "unsupported provider")
}
