package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
)

// DraftFilter selects a project's drafts for listing, superseded drafts
// included.
type DraftFilter struct {
	ProjectID uuid.UUID
	TaskID    *uuid.UUID

	Limit  int
	Offset int
}

// Normalize applies the default limit and validates the filter.
func (f *DraftFilter) Normalize() error {
	if f.ProjectID == uuid.Nil {
		return fmt.Errorf("%w: project id", domain.ErrEmptyID)
	}
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit < 1 || f.Limit > MaxListLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, MaxListLimit)
	}
	if f.Offset < 0 {
		return fmt.Errorf("%w: offset cannot be negative", domain.ErrValidation)
	}
	return nil
}

// DraftStore defines the interface for draft data persistence.
type DraftStore interface {
	// Create saves a new draft. Returns ErrLiveDraftExists if the task
	// already has a live draft and ErrInvalidEntity if the task is missing.
	Create(ctx context.Context, draft *domain.Draft) error

	// Supersede marks the task's live draft, if any, superseded at at.
	// It reports whether a draft was superseded.
	Supersede(ctx context.Context, taskID uuid.UUID, at time.Time) (bool, error)

	// GetByID retrieves a draft by its unique ID.
	// Returns ErrDraftNotFound if the draft does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Draft, error)

	// GetLiveByTask retrieves the task's live draft.
	// Returns ErrDraftNotFound if the task has none.
	GetLiveByTask(ctx context.Context, taskID uuid.UUID) (*domain.Draft, error)

	// FindReusable returns the oldest non-reused draft of any task with the
	// given prompt hash, superseded drafts included.
	// Returns ErrDraftNotFound if there is none.
	FindReusable(ctx context.Context, promptHash string) (*domain.Draft, error)

	// List returns summaries of the drafts matching filter, newest first.
	List(ctx context.Context, filter DraftFilter) ([]domain.DraftSummary, error)

	// WithTx returns a new DraftStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) DraftStore
}
