package domain

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Usage records what a generation consumed. Reused drafts carry zero tokens
// and cost and point at the draft whose content they share.
type Usage struct {
	InputTokens     int        `json:"input_tokens"`
	OutputTokens    int        `json:"output_tokens"`
	TotalTokens     int        `json:"total_tokens"`
	CostUSD         float64    `json:"cost_usd"`
	Reused          bool       `json:"reused,omitempty"`
	OriginalDraftID *uuid.UUID `json:"original_draft_id,omitempty"`
}

// Draft is generated candidate text for a task.
type Draft struct {
	ID               uuid.UUID       `json:"id"`
	TaskID           uuid.UUID       `json:"task_id"`
	ModelName        string          `json:"model_name"`
	PromptVersion    string          `json:"prompt_version"`
	PromptHash       string          `json:"prompt_hash"`
	Text             string          `json:"draft_text"`
	Usage            Usage           `json:"usage"`
	Trace            json.RawMessage `json:"trace,omitempty"`
	GenerationTimeMS int64           `json:"generation_time_ms"`
	Temperature      float64         `json:"temperature"`
	CreatedAt        time.Time       `json:"created_at"`
	SupersededAt     *time.Time      `json:"superseded_at,omitempty"`
}

// GeneratedContent is the result of a provider call ready to be stored.
type GeneratedContent struct {
	ModelName     string
	PromptVersion string
	PromptHash    string
	Text          string
	Usage         Usage
	Trace         json.RawMessage
	Elapsed       time.Duration
	Temperature   float64
}

// NewDraft creates a draft for freshly generated content.
func NewDraft(taskID uuid.UUID, content GeneratedContent) (*Draft, error) {
	elapsed := content.Elapsed.Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	usage := content.Usage
	usage.TotalTokens = usage.InputTokens + usage.OutputTokens

	draft := &Draft{
		ID:               uuid.New(),
		TaskID:           taskID,
		ModelName:        content.ModelName,
		PromptVersion:    content.PromptVersion,
		PromptHash:       content.PromptHash,
		Text:             content.Text,
		Usage:            usage,
		Trace:            content.Trace,
		GenerationTimeMS: elapsed,
		Temperature:      content.Temperature,
		CreatedAt:        time.Now().UTC(),
	}

	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return draft, nil
}

// NewReusedDraft creates a draft for taskID that shares the content of source.
// A source that is itself a reuse is followed back to its original.
func NewReusedDraft(taskID uuid.UUID, source *Draft) (*Draft, error) {
	if source == nil {
		return nil, fmt.Errorf("%w: reuse source cannot be nil", ErrValidation)
	}

	originalID := source.ID
	if source.Usage.Reused && source.Usage.OriginalDraftID != nil {
		originalID = *source.Usage.OriginalDraftID
	}

	draft := &Draft{
		ID:            uuid.New(),
		TaskID:        taskID,
		ModelName:     source.ModelName,
		PromptVersion: source.PromptVersion,
		PromptHash:    source.PromptHash,
		Text:          source.Text,
		Usage: Usage{
			Reused:          true,
			OriginalDraftID: &originalID,
		},
		Trace:            source.Trace,
		GenerationTimeMS: 0,
		Temperature:      source.Temperature,
		CreatedAt:        time.Now().UTC(),
	}

	if err := draft.Validate(); err != nil {
		return nil, err
	}
	return draft, nil
}

// Validate checks if the Draft has valid data.
func (d *Draft) Validate() error {
	if d.ID == uuid.Nil {
		return fmt.Errorf("%w: draft id", ErrEmptyID)
	}
	if d.TaskID == uuid.Nil {
		return fmt.Errorf("%w: task id", ErrEmptyID)
	}
	if d.ModelName == "" {
		return fmt.Errorf("%w: model name cannot be empty", ErrValidation)
	}
	if len(d.PromptHash) != 64 {
		return fmt.Errorf("%w: prompt hash must be a hex sha256 digest", ErrValidation)
	}
	if d.Text == "" {
		return fmt.Errorf("%w: draft", ErrEmptyText)
	}
	if d.Usage.InputTokens < 0 || d.Usage.OutputTokens < 0 || d.Usage.CostUSD < 0 {
		return fmt.Errorf("%w: usage cannot be negative", ErrValidation)
	}
	if d.Usage.Reused && d.Usage.OriginalDraftID == nil {
		return fmt.Errorf("%w: reused draft needs an original draft id", ErrValidation)
	}
	if d.GenerationTimeMS < 0 {
		return fmt.Errorf("%w: generation time cannot be negative", ErrValidation)
	}
	if d.Temperature < 0 || d.Temperature > 2 {
		return fmt.Errorf("%w: temperature %.2f out of range", ErrValidation, d.Temperature)
	}
	return nil
}

// IsLive reports whether the draft is the task's current draft.
func (d *Draft) IsLive() bool {
	return d.SupersededAt == nil
}

// DraftSummary is the listing view of a draft. It carries usage but not the
// generated text.
type DraftSummary struct {
	ID               uuid.UUID  `json:"id"`
	TaskID           uuid.UUID  `json:"task_id"`
	TableID          uuid.UUID  `json:"table_id"`
	ModelName        string     `json:"model_name"`
	PromptVersion    string     `json:"prompt_version"`
	DraftLength      int        `json:"draft_length"`
	Usage            Usage      `json:"usage"`
	GenerationTimeMS int64      `json:"generation_time_ms"`
	CreatedAt        time.Time  `json:"created_at"`
	SupersededAt     *time.Time `json:"superseded_at,omitempty"`
}

// Summarize returns the listing view of d, whose task drafts tableID.
func (d *Draft) Summarize(tableID uuid.UUID) DraftSummary {
	return DraftSummary{
		ID:               d.ID,
		TaskID:           d.TaskID,
		TableID:          tableID,
		ModelName:        d.ModelName,
		PromptVersion:    d.PromptVersion,
		DraftLength:      utf8.RuneCountInString(d.Text),
		Usage:            d.Usage,
		GenerationTimeMS: d.GenerationTimeMS,
		CreatedAt:        d.CreatedAt,
		SupersededAt:     d.SupersededAt,
	}
}
