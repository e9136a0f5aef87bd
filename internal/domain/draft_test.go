package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testHash = strings.Repeat("ab", 32)

func generated() GeneratedContent {
	return GeneratedContent{
		ModelName:     "gemini-2.0-flash",
		PromptVersion: "v1.0",
		PromptHash:    testHash,
		Text:          "**Purpose**\nRates by region.",
		Usage:         Usage{InputTokens: 120, OutputTokens: 80, CostUSD: 0.00005},
		Elapsed:       1500 * time.Millisecond,
		Temperature:   0.7,
	}
}

func TestNewDraft(t *testing.T) {
	t.Parallel()

	taskID := uuid.New()
	draft, err := NewDraft(taskID, generated())
	require.NoError(t, err)

	assert.Equal(t, taskID, draft.TaskID)
	assert.Equal(t, 200, draft.Usage.TotalTokens)
	assert.Equal(t, int64(1500), draft.GenerationTimeMS)
	assert.False(t, draft.Usage.Reused)
	assert.True(t, draft.IsLive())
}

func TestNewDraftValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*GeneratedContent)
	}{
		{"empty model", func(c *GeneratedContent) { c.ModelName = "" }},
		{"short hash", func(c *GeneratedContent) { c.PromptHash = "abc" }},
		{"empty text", func(c *GeneratedContent) { c.Text = "" }},
		{"negative tokens", func(c *GeneratedContent) { c.Usage.InputTokens = -1 }},
		{"temperature too high", func(c *GeneratedContent) { c.Temperature = 3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			content := generated()
			tt.mutate(&content)
			_, err := NewDraft(uuid.New(), content)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := NewDraft(uuid.Nil, generated())
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestNewReusedDraft(t *testing.T) {
	t.Parallel()

	source, err := NewDraft(uuid.New(), generated())
	require.NoError(t, err)

	reused, err := NewReusedDraft(uuid.New(), source)
	require.NoError(t, err)

	assert.True(t, reused.Usage.Reused)
	require.NotNil(t, reused.Usage.OriginalDraftID)
	assert.Equal(t, source.ID, *reused.Usage.OriginalDraftID)
	assert.Equal(t, int64(0), reused.GenerationTimeMS)
	assert.Zero(t, reused.Usage.InputTokens)
	assert.Zero(t, reused.Usage.CostUSD)
	assert.Equal(t, source.Text, reused.Text)
	assert.Equal(t, source.PromptHash, reused.PromptHash)

	// A reuse of a reuse still points at the original.
	second, err := NewReusedDraft(uuid.New(), reused)
	require.NoError(t, err)
	assert.Equal(t, source.ID, *second.Usage.OriginalDraftID)

	_, err = NewReusedDraft(uuid.New(), nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHumanEditAndQACheck(t *testing.T) {
	t.Parallel()

	edit, err := NewHumanEdit(uuid.New(), uuid.New(), "fixed the units", "units wrong", 12)
	require.NoError(t, err)
	assert.Equal(t, 12, edit.TimeSpentMinutes)

	_, err = NewHumanEdit(uuid.New(), uuid.New(), "   ", "", 0)
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = NewHumanEdit(uuid.New(), uuid.New(), "text", "", -1)
	assert.ErrorIs(t, err, ErrValidation)

	check, err := NewQACheck(edit.ID, uuid.New(), QAResultFail, "missing exceptions", 3)
	require.NoError(t, err)
	assert.Equal(t, QAResultFail, check.Result)

	_, err = NewQACheck(edit.ID, uuid.New(), "meh", "", 0)
	assert.ErrorIs(t, err, ErrInvalidQAResult)

	_, err = NewQACheck(uuid.Nil, uuid.New(), QAResultPass, "", 0)
	assert.ErrorIs(t, err, ErrEmptyID)
}
