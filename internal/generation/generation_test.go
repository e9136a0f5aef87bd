package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSchema() *domain.TableSchema {
	page := 4
	return &domain.TableSchema{
		ID:    uuid.New(),
		Page:  &page,
		NRows: 2,
		NCols: 3,
		Cells: []domain.TableCell{
			{Row: 0, Col: 0, Text: "Zone", IsHeader: true},
			{Row: 0, Col: 1, Text: "Limit", IsHeader: true},
			{Row: 0, Col: 2, Text: "Unit", IsHeader: true},
			{Row: 1, Col: 0, Text: "A"},
			{Row: 1, Col: 1, Text: "40"},
			{Row: 1, Col: 2, Text: "dB"},
		},
		Meta: domain.TableMeta{Detector: "camelot", Confidence: 0.923},
	}
}

func TestBuildPrompt(t *testing.T) {
	t.Parallel()

	prompt, err := BuildPrompt(sampleSchema())
	require.NoError(t, err)

	assert.Contains(t, prompt, "Dimensions: 2 rows x 3 columns")
	assert.Contains(t, prompt, "Detection method: camelot")
	assert.Contains(t, prompt, "Confidence: 0.92")
	assert.Contains(t, prompt, "Page number: 4")
	assert.Contains(t, prompt, "Zone | Limit | Unit")
	assert.Contains(t, prompt, "SAMPLE DATA ROWS:\nRow 1: A | 40 | dB\n\nRESPONSE FORMAT")
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	t.Parallel()

	a := sampleSchema()
	b := sampleSchema()
	// Different identity and cell order, same content.
	b.Cells[0], b.Cells[5] = b.Cells[5], b.Cells[0]

	first, err := BuildPrompt(a)
	require.NoError(t, err)
	second, err := BuildPrompt(b)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, PromptHash("m", first), PromptHash("m", second))
}

func TestBuildPromptDefaults(t *testing.T) {
	t.Parallel()

	prompt, err := BuildPrompt(&domain.TableSchema{ID: uuid.New()})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Detection method: unknown")
	assert.Contains(t, prompt, "Page number: unknown")
	assert.Contains(t, prompt, "No clear headers identified")
	assert.Contains(t, prompt, "No data rows available")

	_, err = BuildPrompt(nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestBuildPromptLimitsSampleRows(t *testing.T) {
	t.Parallel()

	schema := &domain.TableSchema{ID: uuid.New(), NRows: 10, NCols: 1}
	for row := 0; row < 10; row++ {
		schema.Cells = append(schema.Cells, domain.TableCell{Row: row, Text: fmt.Sprintf("r%d", row)})
	}

	prompt, err := BuildPrompt(schema)
	require.NoError(t, err)
	assert.Contains(t, prompt, "Row 3: r3")
	assert.NotContains(t, prompt, "Row 4:")
}

func TestPromptHash(t *testing.T) {
	t.Parallel()

	hash := PromptHash("gpt-4o-mini", "prompt")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, PromptHash("gpt-4o-mini", "prompt"))
	assert.NotEqual(t, hash, PromptHash("gpt-4o", "prompt"), "model is part of the key")
	assert.NotEqual(t, hash, PromptHash("gpt-4o-mini", "prompt2"))
}

func TestPriceTable(t *testing.T) {
	t.Parallel()

	prices := NewPriceTable(map[string]Rate{"custom": {Input: 1, Output: 2}})

	assert.Equal(t, 0.000066, prices.Cost("gpt-4o-mini", 120, 80))
	assert.Equal(t, 0.5, prices.Cost("custom", 100, 200))
	assert.Equal(t, DefaultRate, prices.Rate("unknown-model"))
	assert.Equal(t, 0.0003, prices.Cost("unknown-model", 100, 100))
	assert.Zero(t, prices.Cost("gpt-4o", 0, 0))
}

func TestValidateDraft(t *testing.T) {
	t.Parallel()

	complete := "**Purpose**\nNoise limits per zone.\n\n**Structure**\nThree columns.\n\n" +
		"**Key Rules**\nZone A is capped at 40 dB.\n\n**Exceptions**\nNone listed."
	v := ValidateDraft(complete)
	assert.True(t, v.Valid)
	assert.Equal(t, 1.0, v.Score)
	assert.Empty(t, v.Issues)

	short := ValidateDraft("**Purpose** tiny")
	assert.False(t, short.Valid)
	assert.Contains(t, short.Issues[0], "Missing sections: Structure, Key Rules, Exceptions")
	assert.InDelta(t, 0.56, short.Score, 1e-9)

	placeholder := ValidateDraft(complete + "\n[Main rules, requirements]" + strings.Repeat(" ", 10))
	assert.False(t, placeholder.Valid)
	assert.Contains(t, placeholder.Issues, "Contains placeholder text")
}

func TestError(t *testing.T) {
	t.Parallel()

	cause := fmt.Errorf("%w: 429 from upstream", ErrQuotaExceeded)
	err := NewError("openai", KindQuota, cause)

	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, KindQuota, KindOf(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("other")))
	assert.Contains(t, err.Error(), "quota")
	assert.Contains(t, err.Error(), "openai")
}

func TestMockGenerator(t *testing.T) {
	t.Parallel()

	prompt, err := BuildPrompt(sampleSchema())
	require.NoError(t, err)

	gen := NewMockGenerator()
	res, err := gen.Generate(context.Background(), Request{Prompt: prompt, Model: "mock"})
	require.NoError(t, err)
	assert.Contains(t, res.Text, "The table has 2 rows x 3 columns.")
	assert.Equal(t, len(prompt)/4, res.InputTokens)
	assert.True(t, ValidateDraft(res.Text).Valid)

	again, err := gen.Generate(context.Background(), Request{Prompt: prompt, Model: "mock"})
	require.NoError(t, err)
	assert.Equal(t, res, again)

	_, err = gen.Generate(context.Background(), Request{Prompt: " "})
	assert.ErrorIs(t, err, ErrGeneration)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gen.Generate(ctx, Request{Prompt: prompt})
	assert.ErrorIs(t, err, ErrGeneration)
}
