package domain

import (
	"errors"
	"fmt"
)

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// It is usually wrapped with the name of the offending field.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidStateTransition is returned when an event is not legal for the
	// current task state. It is never retried automatically.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrInvalidTaskStatus is returned when a task status is outside the closed set.
	ErrInvalidTaskStatus = fmt.Errorf("%w: invalid task status", ErrValidation)

	// ErrInvalidDraftStatus is returned when a draft status is outside the closed set.
	ErrInvalidDraftStatus = fmt.Errorf("%w: invalid draft status", ErrValidation)

	// ErrInvalidQAResult is returned when a QA result is neither pass nor fail.
	ErrInvalidQAResult = fmt.Errorf("%w: invalid QA result", ErrValidation)

	// ErrEmptyID is returned when a required identifier is the nil UUID.
	ErrEmptyID = fmt.Errorf("%w: identifier cannot be empty", ErrValidation)

	// ErrEmptyText is returned when required text content is empty.
	ErrEmptyText = fmt.Errorf("%w: text cannot be empty", ErrValidation)
)

// TransitionError describes a rejected transition. It matches
// ErrInvalidStateTransition with errors.Is.
type TransitionError struct {
	Status      TaskStatus
	DraftStatus DraftStatus
	Event       string
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: event %q not allowed from status=%s draft_status=%s",
		ErrInvalidStateTransition, e.Event, e.Status, e.DraftStatus)
}

// Unwrap returns ErrInvalidStateTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidStateTransition
}
