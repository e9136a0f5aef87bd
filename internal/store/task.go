package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/workflow"
)

// Pagination bounds for task listings.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// TaskFilter selects tasks for listing. Nil fields match everything.
type TaskFilter struct {
	ProjectID   *uuid.UUID
	Status      *domain.TaskStatus
	DraftStatus *domain.DraftStatus
	AssignedTo  *uuid.UUID

	// Available restricts the listing to tasks open for self-selection:
	// released, ready for annotation and unassigned.
	Available bool

	Limit  int
	Offset int
}

// Normalize applies the default limit and validates pagination.
func (f *TaskFilter) Normalize() error {
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit < 1 || f.Limit > MaxListLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, MaxListLimit)
	}
	if f.Offset < 0 {
		return fmt.Errorf("%w: offset cannot be negative", domain.ErrValidation)
	}
	if f.Status != nil && !f.Status.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidTaskStatus, string(*f.Status))
	}
	if f.DraftStatus != nil && !f.DraftStatus.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidDraftStatus, string(*f.DraftStatus))
	}
	return nil
}

// TransitionWrite is a conditional update applying a state machine transition.
// It is applied only while the task is still in Transition.From and every
// optional guard holds; a history row is written with it.
type TransitionWrite struct {
	TaskID     uuid.UUID
	Transition workflow.Transition

	// ExpectedRetryCount guards automatic retries against stale deliveries.
	ExpectedRetryCount *int

	// ExpectedAssignee, when set, guards annotator actions against
	// reassignment.
	ExpectedAssignee *uuid.UUID

	// LastError is stored when the transition sets an error. It must already
	// be redacted.
	LastError string

	ActorID *uuid.UUID
	Detail  string
}

// AssignmentWrite conditionally replaces a task's assignee without changing
// its workflow state.
type AssignmentWrite struct {
	TaskID   uuid.UUID
	Expected domain.TaskState

	// ObservedAssignee is the assignee read before the write; nil expects
	// the task to be unassigned.
	ObservedAssignee *uuid.UUID
	Assignee         *uuid.UUID

	// RequireReleased additionally guards on allocation_hold=false.
	RequireReleased bool

	Event   workflow.Event
	ActorID *uuid.UUID
	Detail  string
}

// TaskStore defines the interface for task data persistence.
type TaskStore interface {
	// Create saves a new task and its creation history entry.
	Create(ctx context.Context, task *domain.Task) error

	// GetByID retrieves a task by its unique ID.
	// Returns ErrTaskNotFound if the task does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error)

	// List returns tasks matching filter ordered by priority (highest first),
	// then creation time. The filter must already be normalized.
	List(ctx context.Context, filter TaskFilter) ([]*domain.Task, error)

	// ApplyTransition performs w and returns the updated task.
	// Returns ErrTaskNotFound if the task does not exist and ErrConflict if
	// the task no longer matches the expected state or guards.
	ApplyTransition(ctx context.Context, w TransitionWrite) (*domain.Task, error)

	// Assign performs w and returns the updated task, with the same error
	// contract as ApplyTransition.
	Assign(ctx context.Context, w AssignmentWrite) (*domain.Task, error)

	// FindStuckGenerating returns tasks in GENERATING not updated since before.
	FindStuckGenerating(ctx context.Context, before time.Time, limit int) ([]*domain.Task, error)

	// FindStaleErrors returns tasks whose last_error was written before before.
	FindStaleErrors(ctx context.Context, before time.Time, limit int) ([]*domain.Task, error)

	// RedactError clears last_error if it is still the one written at
	// observedAt. It reports whether the row was changed.
	RedactError(ctx context.Context, id uuid.UUID, observedAt time.Time) (bool, error)

	// History returns the task's events oldest first.
	History(ctx context.Context, taskID uuid.UUID) ([]domain.TaskEvent, error)

	// DeleteByProject removes every task of a project with its drafts,
	// reviews and history, returning the number of tasks removed.
	DeleteByProject(ctx context.Context, projectID uuid.UUID) (int64, error)

	// WithTx returns a new TaskStore instance that uses the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}
