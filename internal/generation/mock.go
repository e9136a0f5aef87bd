package generation

import (
	"context"
	"fmt"
	"strings"
)

const mockDraftText = `**Purpose**
This table holds structured data extracted from a source document.

**Structure**
%s

**Key Rules**
- Rows follow a standard row and column layout
- Column headers give context for each value

**Exceptions**
- Merged cells may span several rows or columns

**Data Quality Notes**
Development draft produced without calling a language model.`

// MockGenerator returns a deterministic draft without any network call. It
// is only used when explicitly configured.
type MockGenerator struct{}

// NewMockGenerator creates a MockGenerator.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Name implements Generator.
func (g *MockGenerator) Name() string {
	return "mock"
}

// Generate implements Generator.
func (g *MockGenerator) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewError(g.Name(), KindNetwork, err)
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, NewError(g.Name(), KindResponse, fmt.Errorf("%w: empty prompt", ErrInvalidResponse))
	}

	structure := "Dimensions were not found in the prompt."
	for _, line := range strings.Split(req.Prompt, "\n") {
		if strings.HasPrefix(line, "- Dimensions:") {
			structure = "The table has " + strings.TrimSpace(strings.TrimPrefix(line, "- Dimensions:")) + "."
			break
		}
	}

	text := fmt.Sprintf(mockDraftText, structure)
	return &Result{
		Text:         text,
		InputTokens:  len(req.Prompt) / 4,
		OutputTokens: len(text) / 4,
	}, nil
}
