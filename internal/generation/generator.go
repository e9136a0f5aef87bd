package generation

import (
	"context"
)

// Request is a single generation call.
type Request struct {
	Prompt          string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Result is the provider output with measured token counts.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// Generator defines the interface for generating draft text from a prompt.
// This interface serves as a boundary between the application core and
// external LLM services.
type Generator interface {
	// Generate calls the provider once. Any provider-side failure is
	// returned as *Error.
	Generate(ctx context.Context, req Request) (*Result, error)

	// Name identifies the provider in logs and traces.
	Name() string
}
