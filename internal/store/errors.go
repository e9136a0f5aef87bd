package store

import (
	"errors"
	"fmt"
)

// Sentinels shared by the Postgres and in-memory stores. Callers match them
// with errors.Is; implementations wrap rather than replace them.
var (
	// ErrNotFound is the parent of every entity-specific not found error.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate reports a write that violated a uniqueness rule.
	ErrDuplicate = errors.New("entity already exists")

	// ErrConflict reports a compare-and-set write whose expected task state
	// no longer held. The caller reloads and decides again; stores never retry.
	ErrConflict = errors.New("concurrent modification")

	// ErrInvalidEntity reports an entity rejected before or by the database,
	// such as a draft for an unknown task.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrTransactionFailed reports a unit of work that could not be opened
	// or committed.
	ErrTransactionFailed = errors.New("transaction failed")

	ErrTaskNotFound  = fmt.Errorf("%w: task", ErrNotFound)
	ErrDraftNotFound = fmt.Errorf("%w: draft", ErrNotFound)
	ErrEditNotFound  = fmt.Errorf("%w: human edit", ErrNotFound)
	ErrCheckNotFound = fmt.Errorf("%w: qa check", ErrNotFound)
	ErrTableNotFound = fmt.Errorf("%w: table", ErrNotFound)

	// ErrLiveDraftExists reports a second live draft for one task.
	ErrLiveDraftExists = fmt.Errorf("%w: live draft", ErrDuplicate)
)

// IsNotFoundError reports whether err is any not found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError reports whether err is any uniqueness violation.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError adds the entity and operation to a store failure, for example
// the task transition that lost a compare-and-set race.
type StoreError struct {
	Entity    string // "task", "draft", ...
	Operation string // "transition", "assign", ...
	Message   string
	Err       error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a StoreError wrapping err.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{Entity: entity, Operation: operation, Message: message, Err: err}
}
