package openai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/guideline-api/internal/config"
	"github.com/phrazzld/guideline-api/internal/generation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), config.LLMConfig{
		OpenAIAPIKey:   "sk-test",
		OpenAIBaseURL:  server.URL,
		RequestTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return client
}

func TestGenerate(t *testing.T) {
	t.Parallel()

	var got chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "**Purpose**"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 80}
		}`))
	})

	res, err := client.Generate(context.Background(), generation.Request{
		Prompt:          "describe",
		Model:           "gpt-4o-mini",
		Temperature:     0.2,
		MaxOutputTokens: 500,
	})
	require.NoError(t, err)

	assert.Equal(t, "**Purpose**", res.Text)
	assert.Equal(t, 120, res.InputTokens)
	assert.Equal(t, 80, res.OutputTokens)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "describe", got.Messages[1].Content)
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		wantKind generation.ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, generation.KindQuota},
		{"quota", http.StatusBadRequest, `{"error":{"message":"no credit","type":"insufficient_quota"}}`, generation.KindQuota},
		{"server error", http.StatusBadGateway, `{}`, generation.KindNetwork},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad model"}}`, generation.KindResponse},
		{"no choices", http.StatusOK, `{"choices":[]}`, generation.KindResponse},
		{"filtered", http.StatusOK, `{"choices":[{"message":{"content":"x"},"finish_reason":"content_filter"}]}`, generation.KindBlocked},
		{"blank", http.StatusOK, `{"choices":[{"message":{"content":"  "},"finish_reason":"stop"}]}`, generation.KindResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Generate(context.Background(), generation.Request{Prompt: "p", Model: "m"})
			require.Error(t, err)
			assert.ErrorIs(t, err, generation.ErrGeneration)
			assert.Equal(t, tt.wantKind, generation.KindOf(err))
		})
	}
}

func TestGenerateNetworkFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	client, err := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), config.LLMConfig{
		OpenAIAPIKey:   "sk-test",
		OpenAIBaseURL:  url,
		RequestTimeout: time.Second,
	})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), generation.Request{Prompt: "p", Model: "m"})
	assert.Equal(t, generation.KindNetwork, generation.KindOf(err))
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(slog.Default(), config.LLMConfig{})
	assert.ErrorIs(t, err, generation.ErrInvalidConfig)
}
