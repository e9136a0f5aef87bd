package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
)

// ReviewStore defines the interface for human edit and QA check persistence.
type ReviewStore interface {
	// CreateEdit saves a new human edit.
	CreateEdit(ctx context.Context, edit *domain.HumanEdit) error

	// GetEdit retrieves an edit by ID. Returns ErrEditNotFound if missing.
	GetEdit(ctx context.Context, id uuid.UUID) (*domain.HumanEdit, error)

	// LatestEdit returns the most recent edit of a draft.
	// Returns ErrEditNotFound if the draft has none.
	LatestEdit(ctx context.Context, draftID uuid.UUID) (*domain.HumanEdit, error)

	// CreateCheck saves a new QA check.
	CreateCheck(ctx context.Context, check *domain.QACheck) error

	// LatestCheck returns the most recent check of an edit.
	// Returns ErrCheckNotFound if the edit has none.
	LatestCheck(ctx context.Context, editID uuid.UUID) (*domain.QACheck, error)

	// WithTx returns a new ReviewStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) ReviewStore
}
