package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/guideline-api/internal/generation"
)

// Response is one scripted outcome of a generation call.
type Response struct {
	Result *generation.Result
	Err    error
}

// Generator is a scriptable generation.Generator. Scripted responses are
// returned in order and the last one repeats; Fn, when set, takes precedence.
type Generator struct {
	Fn func(ctx context.Context, req generation.Request) (*generation.Result, error)

	mu        sync.Mutex
	responses []Response
	requests  []generation.Request
	calls     int
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator returns a Generator that replays responses.
func NewGenerator(responses ...Response) *Generator {
	return &Generator{responses: responses}
}

// Succeed builds a successful Response.
func Succeed(text string, inputTokens, outputTokens int) Response {
	return Response{Result: &generation.Result{
		Text:         text,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}}
}

// Fail builds a failing Response with a generation error of the given kind.
func Fail(kind generation.ErrorKind, err error) Response {
	return Response{Err: generation.NewError("mock", kind, err)}
}

// Name implements generation.Generator.
func (g *Generator) Name() string {
	return "mock"
}

// Generate implements generation.Generator.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (*generation.Result, error) {
	g.mu.Lock()
	g.calls++
	g.requests = append(g.requests, req)
	fn := g.Fn
	var next Response
	if len(g.responses) > 0 {
		next = g.responses[0]
		if len(g.responses) > 1 {
			g.responses = g.responses[1:]
		}
	}
	g.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if next.Err != nil {
		return nil, next.Err
	}
	if next.Result == nil {
		return &generation.Result{Text: "generated draft", InputTokens: 10, OutputTokens: 20}, nil
	}
	result := *next.Result
	return &result, nil
}

// Calls returns how many times Generate was invoked.
func (g *Generator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// Requests returns a copy of every request received.
func (g *Generator) Requests() []generation.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generation.Request(nil), g.requests...)
}
