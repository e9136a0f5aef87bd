package domain

import (
	"database/sql/driver"
	"fmt"
)

// TaskStatus is the workflow state of a task.
type TaskStatus string

// Task status values.
const (
	TaskStatusAwaitingDraft      TaskStatus = "awaiting_draft"
	TaskStatusReadyForAnnotation TaskStatus = "ready_for_annotation"
	TaskStatusInProgress         TaskStatus = "in_progress"
	TaskStatusCompleted          TaskStatus = "completed"
	TaskStatusQAPending          TaskStatus = "qa_pending"
	TaskStatusQADone             TaskStatus = "qa_done"
	TaskStatusReassigned         TaskStatus = "reassigned"
	TaskStatusDraftFailed        TaskStatus = "draft_failed"
)

// TaskStatuses lists every task status in workflow order.
var TaskStatuses = []TaskStatus{
	TaskStatusAwaitingDraft,
	TaskStatusReadyForAnnotation,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusQAPending,
	TaskStatusQADone,
	TaskStatusReassigned,
	TaskStatusDraftFailed,
}

// Valid reports whether s is a member of the closed set.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusAwaitingDraft, TaskStatusReadyForAnnotation, TaskStatusInProgress,
		TaskStatusCompleted, TaskStatusQAPending, TaskStatusQADone,
		TaskStatusReassigned, TaskStatusDraftFailed:
		return true
	default:
		return false
	}
}

// ParseTaskStatus converts s into a TaskStatus, rejecting unknown values.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTaskStatus, s)
	}
	return status, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *TaskStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseTaskStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Scan implements sql.Scanner.
func (s *TaskStatus) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTaskStatus, err)
	}
	return s.UnmarshalText([]byte(raw))
}

// Value implements driver.Valuer.
func (s TaskStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTaskStatus, string(s))
	}
	return string(s), nil
}

// DraftStatus is the generation sub-state of a task.
type DraftStatus string

// Draft status values.
const (
	DraftStatusQueued     DraftStatus = "queued"
	DraftStatusGenerating DraftStatus = "generating"
	DraftStatusSucceeded  DraftStatus = "succeeded"
	DraftStatusFailed     DraftStatus = "failed"
)

// DraftStatuses lists every draft status.
var DraftStatuses = []DraftStatus{
	DraftStatusQueued,
	DraftStatusGenerating,
	DraftStatusSucceeded,
	DraftStatusFailed,
}

// Valid reports whether s is a member of the closed set.
func (s DraftStatus) Valid() bool {
	switch s {
	case DraftStatusQueued, DraftStatusGenerating, DraftStatusSucceeded, DraftStatusFailed:
		return true
	default:
		return false
	}
}

// ParseDraftStatus converts s into a DraftStatus, rejecting unknown values.
func ParseDraftStatus(s string) (DraftStatus, error) {
	status := DraftStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDraftStatus, s)
	}
	return status, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DraftStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseDraftStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Scan implements sql.Scanner.
func (s *DraftStatus) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDraftStatus, err)
	}
	return s.UnmarshalText([]byte(raw))
}

// Value implements driver.Valuer.
func (s DraftStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDraftStatus, string(s))
	}
	return string(s), nil
}

// QAResult is a reviewer's verdict on a human edit.
type QAResult string

// QA result values.
const (
	QAResultPass QAResult = "pass"
	QAResultFail QAResult = "fail"
)

// Valid reports whether r is pass or fail.
func (r QAResult) Valid() bool {
	return r == QAResultPass || r == QAResultFail
}

// ParseQAResult converts s into a QAResult, rejecting unknown values.
func ParseQAResult(s string) (QAResult, error) {
	result := QAResult(s)
	if !result.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidQAResult, s)
	}
	return result, nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *QAResult) UnmarshalText(text []byte) error {
	parsed, err := ParseQAResult(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// Scan implements sql.Scanner.
func (r *QAResult) Scan(src any) error {
	raw, err := scanString(src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQAResult, err)
	}
	return r.UnmarshalText([]byte(raw))
}

// Value implements driver.Valuer.
func (r QAResult) Value() (driver.Value, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidQAResult, string(r))
	}
	return string(r), nil
}

func scanString(src any) (string, error) {
	switch v := src.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case nil:
		return "", fmt.Errorf("unexpected NULL")
	default:
		return "", fmt.Errorf("unsupported type %T", src)
	}
}
