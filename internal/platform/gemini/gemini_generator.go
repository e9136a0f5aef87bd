package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/guideline-api/internal/config"
	"github.com/phrazzld/guideline-api/internal/generation"
	"google.golang.org/genai"
)

const providerName = "gemini"

// contentGenerator is the subset of the genai client used here.
type contentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API.
type GeminiGenerator struct {
	logger  *slog.Logger
	models  contentGenerator
	timeout time.Duration
}

var _ generation.Generator = (*GeminiGenerator)(nil)

// NewGeminiGenerator creates a GeminiGenerator. A missing API key is a
// configuration error so the process fails at startup rather than per task.
func NewGeminiGenerator(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	return newGenerator(logger, client.Models, cfg.RequestTimeout), nil
}

func newGenerator(logger *slog.Logger, models contentGenerator, timeout time.Duration) *GeminiGenerator {
	return &GeminiGenerator{
		logger:  logger.With(slog.String("component", "gemini_generator")),
		models:  models,
		timeout: timeout,
	}
}

// Name implements generation.Generator.
func (g *GeminiGenerator) Name() string {
	return providerName
}

// Generate implements generation.Generator with a single API call.
func (g *GeminiGenerator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, generation.NewError(providerName, generation.KindResponse,
			fmt.Errorf("%w: empty prompt", generation.ErrInvalidResponse))
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	temperature := float32(req.Temperature)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(generation.SystemInstruction, genai.RoleUser),
		Temperature:       &temperature,
		MaxOutputTokens:   int32(req.MaxOutputTokens),
	}

	g.logger.DebugContext(ctx, "calling Gemini API",
		"model", req.Model,
		"prompt_length", len(req.Prompt))

	resp, err := g.models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return nil, generation.NewError(providerName, classify(ctx, err), err)
	}

	return parseResponse(resp)
}

func parseResponse(resp *genai.GenerateContentResponse) (*generation.Result, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, generation.NewError(providerName, generation.KindResponse,
			fmt.Errorf("%w: no candidates", generation.ErrInvalidResponse))
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist:
		return nil, generation.NewError(providerName, generation.KindBlocked,
			fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason))
	}
	if candidate.Content == nil {
		return nil, generation.NewError(providerName, generation.KindResponse,
			fmt.Errorf("%w: empty content", generation.ErrInvalidResponse))
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			text.WriteString(part.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, generation.NewError(providerName, generation.KindResponse,
			fmt.Errorf("%w: empty text", generation.ErrInvalidResponse))
	}

	result := &generation.Result{Text: text.String()}
	if usage := resp.UsageMetadata; usage != nil {
		result.InputTokens = int(usage.PromptTokenCount)
		result.OutputTokens = int(usage.CandidatesTokenCount)
	}
	return result, nil
}

func classify(ctx context.Context, err error) generation.ErrorKind {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return generation.KindNetwork
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "resource_exhausted"),
		strings.Contains(msg, "quota"), strings.Contains(msg, "billing"):
		return generation.KindQuota
	case strings.Contains(msg, "invalid_argument"), strings.Contains(msg, "400"):
		return generation.KindResponse
	default:
		return generation.KindNetwork
	}
}
