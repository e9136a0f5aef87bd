// Package workflow holds the task state machine. It is pure: it validates an
// event against a task's current state and describes the resulting state and
// bookkeeping, leaving persistence to the caller.
package workflow

import (
	"github.com/phrazzld/guideline-api/internal/domain"
)

// Event is something that happens to a task.
type Event string

// State-changing events.
const (
	EventGenerationStarted     Event = "generation_started"
	EventRetryStarted          Event = "retry_started"
	EventGenerationSucceeded   Event = "generation_succeeded"
	EventGenerationFailed      Event = "generation_failed"
	EventGenerationExhausted   Event = "generation_exhausted"
	EventManualRetry           Event = "manual_retry"
	EventRegenerationRequested Event = "regeneration_requested"
	EventAnnotationStarted     Event = "annotation_started"
	EventAnnotationSubmitted   Event = "annotation_submitted"
	EventQARequested           Event = "qa_requested"
	EventQAPassed              Event = "qa_passed"
	EventQAFailed              Event = "qa_failed"
)

// Events recorded in task history that leave the state untouched.
const (
	EventTaskCreated   Event = "task_created"
	EventAssigned      Event = "assigned"
	EventUnassigned    Event = "unassigned"
	EventErrorRedacted Event = "error_redacted"
)

// Events lists every state-changing event.
var Events = []Event{
	EventGenerationStarted,
	EventRetryStarted,
	EventGenerationSucceeded,
	EventGenerationFailed,
	EventGenerationExhausted,
	EventManualRetry,
	EventRegenerationRequested,
	EventAnnotationStarted,
	EventAnnotationSubmitted,
	EventQARequested,
	EventQAPassed,
	EventQAFailed,
}

// Transition is an accepted event: the state change plus the field updates
// that must be written with it.
type Transition struct {
	Event Event
	From  domain.TaskState
	To    domain.TaskState

	IncrementRetry         bool
	SetError               bool
	ClearError             bool
	ResetRetryBaseline     bool
	StampStarted           bool
	StampCompleted         bool
	RecordPreviousAssignee bool
}

type rule struct {
	from  func(domain.TaskState) bool
	apply func(*Transition)
}

func draftIs(status domain.TaskStatus, draft domain.DraftStatus) func(domain.TaskState) bool {
	return func(s domain.TaskState) bool {
		return s.Status == status && s.DraftStatus == draft
	}
}

func statusIn(draft domain.DraftStatus, statuses ...domain.TaskStatus) func(domain.TaskState) bool {
	return func(s domain.TaskState) bool {
		if s.DraftStatus != draft {
			return false
		}
		for _, status := range statuses {
			if s.Status == status {
				return true
			}
		}
		return false
	}
}

func to(status domain.TaskStatus, draft domain.DraftStatus) func(*Transition) {
	return func(t *Transition) {
		t.To = domain.TaskState{
			Status:         status,
			DraftStatus:    draft,
			AllocationHold: draft != domain.DraftStatusSucceeded,
		}
	}
}

func with(base func(*Transition), extra func(*Transition)) func(*Transition) {
	return func(t *Transition) {
		base(t)
		extra(t)
	}
}

var rules = map[Event]rule{
	EventGenerationStarted: {
		from:  draftIs(domain.TaskStatusAwaitingDraft, domain.DraftStatusQueued),
		apply: to(domain.TaskStatusAwaitingDraft, domain.DraftStatusGenerating),
	},
	EventRetryStarted: {
		from:  draftIs(domain.TaskStatusAwaitingDraft, domain.DraftStatusFailed),
		apply: to(domain.TaskStatusAwaitingDraft, domain.DraftStatusGenerating),
	},
	EventGenerationSucceeded: {
		from: draftIs(domain.TaskStatusAwaitingDraft, domain.DraftStatusGenerating),
		apply: with(to(domain.TaskStatusReadyForAnnotation, domain.DraftStatusSucceeded), func(t *Transition) {
			t.ClearError = true
		}),
	},
	EventGenerationFailed: {
		from: draftIs(domain.TaskStatusAwaitingDraft, domain.DraftStatusGenerating),
		apply: with(to(domain.TaskStatusAwaitingDraft, domain.DraftStatusFailed), func(t *Transition) {
			t.IncrementRetry = true
			t.SetError = true
		}),
	},
	EventGenerationExhausted: {
		from: draftIs(domain.TaskStatusAwaitingDraft, domain.DraftStatusGenerating),
		apply: with(to(domain.TaskStatusDraftFailed, domain.DraftStatusFailed), func(t *Transition) {
			t.IncrementRetry = true
			t.SetError = true
		}),
	},
	EventManualRetry: {
		from: statusIn(domain.DraftStatusFailed, domain.TaskStatusAwaitingDraft, domain.TaskStatusDraftFailed),
		apply: with(to(domain.TaskStatusAwaitingDraft, domain.DraftStatusQueued), func(t *Transition) {
			t.ClearError = true
			t.ResetRetryBaseline = true
		}),
	},
	EventRegenerationRequested: {
		from:  draftIs(domain.TaskStatusReadyForAnnotation, domain.DraftStatusSucceeded),
		apply: to(domain.TaskStatusAwaitingDraft, domain.DraftStatusQueued),
	},
	EventAnnotationStarted: {
		from: statusIn(domain.DraftStatusSucceeded, domain.TaskStatusReadyForAnnotation, domain.TaskStatusReassigned),
		apply: with(to(domain.TaskStatusInProgress, domain.DraftStatusSucceeded), func(t *Transition) {
			t.StampStarted = true
		}),
	},
	EventAnnotationSubmitted: {
		from: draftIs(domain.TaskStatusInProgress, domain.DraftStatusSucceeded),
		apply: with(to(domain.TaskStatusCompleted, domain.DraftStatusSucceeded), func(t *Transition) {
			t.StampCompleted = true
		}),
	},
	EventQARequested: {
		from:  draftIs(domain.TaskStatusCompleted, domain.DraftStatusSucceeded),
		apply: to(domain.TaskStatusQAPending, domain.DraftStatusSucceeded),
	},
	EventQAPassed: {
		from:  draftIs(domain.TaskStatusQAPending, domain.DraftStatusSucceeded),
		apply: to(domain.TaskStatusQADone, domain.DraftStatusSucceeded),
	},
	EventQAFailed: {
		from: draftIs(domain.TaskStatusQAPending, domain.DraftStatusSucceeded),
		apply: with(to(domain.TaskStatusReassigned, domain.DraftStatusSucceeded), func(t *Transition) {
			t.RecordPreviousAssignee = true
		}),
	},
}

// Apply validates event against the current state. A rejected event returns a
// *domain.TransitionError; an invalid current state returns a validation error.
func Apply(current domain.TaskState, event Event) (Transition, error) {
	if err := current.Validate(); err != nil {
		return Transition{}, err
	}

	r, ok := rules[event]
	if !ok || !r.from(current) {
		return Transition{}, &domain.TransitionError{
			Status:      current.Status,
			DraftStatus: current.DraftStatus,
			Event:       string(event),
		}
	}

	t := Transition{Event: event, From: current}
	r.apply(&t)
	return t, nil
}

// Allowed reports whether event is legal from current.
func Allowed(current domain.TaskState, event Event) bool {
	_, err := Apply(current, event)
	return err == nil
}

// IsTerminal reports whether no state-changing event is accepted from current.
func IsTerminal(current domain.TaskState) bool {
	for _, event := range Events {
		if Allowed(current, event) {
			return false
		}
	}
	return true
}
