package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskState is the portion of a task governed by the state machine.
type TaskState struct {
	Status         TaskStatus  `json:"status"`
	DraftStatus    DraftStatus `json:"draft_status"`
	AllocationHold bool        `json:"allocation_hold"`
}

// InitialTaskState is the state every task is created in.
var InitialTaskState = TaskState{
	Status:         TaskStatusAwaitingDraft,
	DraftStatus:    DraftStatusQueued,
	AllocationHold: true,
}

// Validate checks both enumerations and the allocation hold invariant: the
// hold is released exactly when a usable draft exists.
func (s TaskState) Validate() error {
	if !s.Status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTaskStatus, string(s.Status))
	}
	if !s.DraftStatus.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDraftStatus, string(s.DraftStatus))
	}
	if s.AllocationHold == (s.DraftStatus == DraftStatusSucceeded) {
		return fmt.Errorf("%w: allocation_hold=%t inconsistent with draft_status=%s",
			ErrValidation, s.AllocationHold, s.DraftStatus)
	}
	return nil
}

// String renders the state for logs.
func (s TaskState) String() string {
	return fmt.Sprintf("%s/%s", s.Status, s.DraftStatus)
}

// Task tracks one table's journey through drafting, annotation and QA.
type Task struct {
	ID               uuid.UUID   `json:"id"`
	TableID          uuid.UUID   `json:"table_id"`
	ProjectID        uuid.UUID   `json:"project_id"`
	AssignedTo       *uuid.UUID  `json:"assigned_to,omitempty"`
	PreviousAssignee *uuid.UUID  `json:"previous_assignee,omitempty"`
	Status           TaskStatus  `json:"status"`
	DraftStatus      DraftStatus `json:"draft_status"`
	Priority         int         `json:"priority"`
	AllocationHold   bool        `json:"allocation_hold"`
	RetryCount       int         `json:"retry_count"`
	RetryBaseline    int         `json:"retry_baseline"`
	LastError        *string     `json:"last_error,omitempty"`
	LastErrorAt      *time.Time  `json:"last_error_at,omitempty"`
	Version          int         `json:"version"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
	AssignedAt       *time.Time  `json:"assigned_at,omitempty"`
	StartedAt        *time.Time  `json:"started_at,omitempty"`
	CompletedAt      *time.Time  `json:"completed_at,omitempty"`
}

// NewTask creates a task for the given table in the initial state.
func NewTask(tableID, projectID uuid.UUID, priority int) (*Task, error) {
	now := time.Now().UTC()
	task := &Task{
		ID:             uuid.New(),
		TableID:        tableID,
		ProjectID:      projectID,
		Status:         InitialTaskState.Status,
		DraftStatus:    InitialTaskState.DraftStatus,
		AllocationHold: InitialTaskState.AllocationHold,
		Priority:       priority,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := task.Validate(); err != nil {
		return nil, err
	}
	return task, nil
}

// Validate checks if the Task has valid data.
func (t *Task) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("%w: task id", ErrEmptyID)
	}
	if t.TableID == uuid.Nil {
		return fmt.Errorf("%w: table id", ErrEmptyID)
	}
	if t.ProjectID == uuid.Nil {
		return fmt.Errorf("%w: project id", ErrEmptyID)
	}
	if t.RetryCount < 0 || t.RetryBaseline < 0 || t.RetryBaseline > t.RetryCount {
		return fmt.Errorf("%w: retry_count=%d retry_baseline=%d",
			ErrValidation, t.RetryCount, t.RetryBaseline)
	}
	return t.State().Validate()
}

// State returns the state machine view of the task.
func (t *Task) State() TaskState {
	return TaskState{
		Status:         t.Status,
		DraftStatus:    t.DraftStatus,
		AllocationHold: t.AllocationHold,
	}
}

// AutomaticAttempts is the number of failed attempts since the last manual retry.
func (t *Task) AutomaticAttempts() int {
	return t.RetryCount - t.RetryBaseline
}

// IsAssignedTo reports whether userID is the current assignee.
func (t *Task) IsAssignedTo(userID uuid.UUID) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// AvailableForSelfSelection reports whether annotators may pick the task.
func (t *Task) AvailableForSelfSelection() bool {
	return !t.AllocationHold && t.Status == TaskStatusReadyForAnnotation && t.AssignedTo == nil
}
