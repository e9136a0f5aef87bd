package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/store"
)

// Sentinel errors shared by the services. Callers check them with errors.Is.
var (
	// ErrNotAssignee indicates the acting user is not the task's assignee.
	// API layer should map this to HTTP 403 Forbidden.
	ErrNotAssignee = errors.New("user is not the task assignee")

	// ErrAllocationHold indicates the task has no usable draft yet and cannot
	// be handed to an annotator.
	// API layer should map this to HTTP 409 Conflict.
	ErrAllocationHold = errors.New("task is held until a draft is available")

	// ErrRepeatAssignment indicates a reassignment to the annotator whose
	// work failed QA, while such reassignments are blocked.
	// API layer should map this to HTTP 409 Conflict.
	ErrRepeatAssignment = errors.New("task cannot be reassigned to its previous annotator")

	// ErrStaleDraft indicates an edit against a draft that is no longer live.
	ErrStaleDraft = fmt.Errorf("%w: draft has been superseded", domain.ErrInvalidStateTransition)

	// ErrStaleEdit indicates a QA check of an edit that is not the latest one.
	ErrStaleEdit = fmt.Errorf("%w: edit is not the latest edit of the live draft", domain.ErrInvalidStateTransition)

	// ErrNoEdit indicates a submission without any edit of the live draft.
	ErrNoEdit = fmt.Errorf("%w: no edit recorded for the live draft", domain.ErrInvalidStateTransition)
)

// ServiceError wraps unexpected errors from the services with context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "create_task", "record_qa")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError wraps err for operation. Expected conditions are returned
// unchanged so callers can match them directly.
func NewServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if isExpected(err) {
		return err
	}
	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

func isExpected(err error) bool {
	for _, target := range []error{
		store.ErrNotFound,
		store.ErrConflict,
		store.ErrDuplicate,
		domain.ErrInvalidStateTransition,
		domain.ErrValidation,
		ErrNotAssignee,
		ErrAllocationHold,
		ErrRepeatAssignment,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
