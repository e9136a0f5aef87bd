// Package openai implements generation.Generator against any
// OpenAI-compatible chat completions endpoint.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/phrazzld/guideline-api/internal/config"
	"github.com/phrazzld/guideline-api/internal/generation"
)

const (
	providerName   = "openai"
	defaultBaseURL = "https://api.openai.com/v1"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Client calls the chat completions API.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

var _ generation.Generator = (*Client)(nil)

// NewClient creates a chat completions client. The client performs no
// retries of its own.
func NewClient(logger *slog.Logger, cfg config.LLMConfig) (*Client, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", generation.ErrInvalidConfig)
	}

	baseURL := cfg.OpenAIBaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(cfg.OpenAIAPIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.RequestTimeout).
		SetRetryCount(0)

	return &Client{
		http:   httpClient,
		logger: logger.With(slog.String("component", "openai_generator")),
	}, nil
}

// Name implements generation.Generator.
func (c *Client) Name() string {
	return providerName
}

// Generate implements generation.Generator.
func (c *Client) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	body := chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: generation.SystemInstruction},
			{Role: "user", Content: req.Prompt},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxOutputTokens,
	}

	var out chatResponse
	var failure apiError

	c.logger.DebugContext(ctx, "calling chat completions API",
		"model", req.Model,
		"prompt_length", len(req.Prompt))

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		return nil, generation.NewError(providerName, generation.KindNetwork, err)
	}

	if resp.IsError() {
		return nil, statusError(resp.StatusCode(), failure)
	}

	if len(out.Choices) == 0 {
		return nil, generation.NewError(providerName, generation.KindResponse,
			fmt.Errorf("%w: no choices", generation.ErrInvalidResponse))
	}

	choice := out.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, generation.NewError(providerName, generation.KindBlocked, generation.ErrContentBlocked)
	}
	if strings.TrimSpace(choice.Message.Content) == "" {
		return nil, generation.NewError(providerName, generation.KindResponse,
			fmt.Errorf("%w: empty text", generation.ErrInvalidResponse))
	}

	return &generation.Result{
		Text:         choice.Message.Content,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}

func statusError(status int, failure apiError) error {
	msg := failure.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	cause := fmt.Errorf("status %d: %s", status, msg)

	switch {
	case status == http.StatusTooManyRequests, status == http.StatusPaymentRequired,
		failure.Error.Type == "insufficient_quota":
		return generation.NewError(providerName, generation.KindQuota,
			fmt.Errorf("%w: %v", generation.ErrQuotaExceeded, cause))
	case status >= 500:
		return generation.NewError(providerName, generation.KindNetwork, cause)
	default:
		return generation.NewError(providerName, generation.KindResponse,
			fmt.Errorf("%w: %v", generation.ErrInvalidResponse, cause))
	}
}
