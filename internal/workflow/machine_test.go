package workflow

import (
	"math/rand"
	"testing"

	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func state(status domain.TaskStatus, draft domain.DraftStatus) domain.TaskState {
	return domain.TaskState{
		Status:         status,
		DraftStatus:    draft,
		AllocationHold: draft != domain.DraftStatusSucceeded,
	}
}

var (
	awaitingQueued     = state(domain.TaskStatusAwaitingDraft, domain.DraftStatusQueued)
	awaitingGenerating = state(domain.TaskStatusAwaitingDraft, domain.DraftStatusGenerating)
	awaitingFailed     = state(domain.TaskStatusAwaitingDraft, domain.DraftStatusFailed)
	draftFailed        = state(domain.TaskStatusDraftFailed, domain.DraftStatusFailed)
	ready              = state(domain.TaskStatusReadyForAnnotation, domain.DraftStatusSucceeded)
	inProgress         = state(domain.TaskStatusInProgress, domain.DraftStatusSucceeded)
	completed          = state(domain.TaskStatusCompleted, domain.DraftStatusSucceeded)
	qaPending          = state(domain.TaskStatusQAPending, domain.DraftStatusSucceeded)
	qaDone             = state(domain.TaskStatusQADone, domain.DraftStatusSucceeded)
	reassigned         = state(domain.TaskStatusReassigned, domain.DraftStatusSucceeded)
)

// declaredEdges is the complete transition graph.
var declaredEdges = map[domain.TaskState]map[Event]domain.TaskState{
	awaitingQueued: {
		EventGenerationStarted: awaitingGenerating,
	},
	awaitingGenerating: {
		EventGenerationSucceeded: ready,
		EventGenerationFailed:    awaitingFailed,
		EventGenerationExhausted: draftFailed,
	},
	awaitingFailed: {
		EventRetryStarted: awaitingGenerating,
		EventManualRetry:  awaitingQueued,
	},
	draftFailed: {
		EventManualRetry: awaitingQueued,
	},
	ready: {
		EventAnnotationStarted:     inProgress,
		EventRegenerationRequested: awaitingQueued,
	},
	inProgress: {
		EventAnnotationSubmitted: completed,
	},
	completed: {
		EventQARequested: qaPending,
	},
	qaPending: {
		EventQAPassed: qaDone,
		EventQAFailed: reassigned,
	},
	reassigned: {
		EventAnnotationStarted: inProgress,
	},
	qaDone: {},
}

func TestApplyFollowsDeclaredGraph(t *testing.T) {
	t.Parallel()

	for from, edges := range declaredEdges {
		for _, event := range Events {
			transition, err := Apply(from, event)
			want, declared := edges[event]
			if !declared {
				assert.ErrorIs(t, err, domain.ErrInvalidStateTransition,
					"%s --%s--> should be rejected", from, event)
				continue
			}
			require.NoError(t, err, "%s --%s-->", from, event)
			assert.Equal(t, want, transition.To, "%s --%s-->", from, event)
			assert.Equal(t, from, transition.From)
			assert.NoError(t, transition.To.Validate())
		}
	}
}

func TestRandomWalkStaysOnGraph(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	current := domain.InitialTaskState
	accepted := 0

	for i := 0; i < 5000; i++ {
		event := Events[rng.Intn(len(Events))]
		transition, err := Apply(current, event)
		if err != nil {
			assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
			continue
		}

		want, declared := declaredEdges[current][event]
		require.True(t, declared, "undeclared edge %s --%s-->", current, event)
		require.Equal(t, want, transition.To)
		current = transition.To
		accepted++

		if IsTerminal(current) {
			current = domain.InitialTaskState
		}
	}
	assert.Greater(t, accepted, 100)
}

func TestTransitionBookkeeping(t *testing.T) {
	t.Parallel()

	success, err := Apply(awaitingGenerating, EventGenerationSucceeded)
	require.NoError(t, err)
	assert.True(t, success.ClearError)
	assert.False(t, success.To.AllocationHold)

	failed, err := Apply(awaitingGenerating, EventGenerationFailed)
	require.NoError(t, err)
	assert.True(t, failed.IncrementRetry)
	assert.True(t, failed.SetError)
	assert.True(t, failed.To.AllocationHold)

	exhausted, err := Apply(awaitingGenerating, EventGenerationExhausted)
	require.NoError(t, err)
	assert.True(t, exhausted.IncrementRetry)
	assert.Equal(t, domain.TaskStatusDraftFailed, exhausted.To.Status)

	manual, err := Apply(draftFailed, EventManualRetry)
	require.NoError(t, err)
	assert.True(t, manual.ClearError)
	assert.True(t, manual.ResetRetryBaseline)
	assert.False(t, manual.IncrementRetry)
	assert.True(t, manual.To.AllocationHold)

	qaFail, err := Apply(qaPending, EventQAFailed)
	require.NoError(t, err)
	assert.True(t, qaFail.RecordPreviousAssignee)

	started, err := Apply(ready, EventAnnotationStarted)
	require.NoError(t, err)
	assert.True(t, started.StampStarted)

	submitted, err := Apply(inProgress, EventAnnotationSubmitted)
	require.NoError(t, err)
	assert.True(t, submitted.StampCompleted)
}

func TestRejectedTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		from  domain.TaskState
		event Event
	}{
		{"retry while succeeded", ready, EventManualRetry},
		{"start while generating", awaitingGenerating, EventGenerationStarted},
		{"edit after qa done", qaDone, EventAnnotationStarted},
		{"qa after qa done", qaDone, EventQAFailed},
		{"submit before start", ready, EventAnnotationSubmitted},
		{"regenerate during annotation", inProgress, EventRegenerationRequested},
		{"history-only event", ready, EventAssigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(tt.from, tt.event)
			var transitionErr *domain.TransitionError
			require.ErrorAs(t, err, &transitionErr)
			assert.Equal(t, string(tt.event), transitionErr.Event)
			assert.Equal(t, tt.from.Status, transitionErr.Status)
		})
	}
}

func TestApplyRejectsInvalidState(t *testing.T) {
	t.Parallel()

	_, err := Apply(domain.TaskState{Status: "paused", DraftStatus: domain.DraftStatusQueued, AllocationHold: true}, EventGenerationStarted)
	assert.ErrorIs(t, err, domain.ErrInvalidTaskStatus)
	assert.NotErrorIs(t, err, domain.ErrInvalidStateTransition)

	_, err = Apply(domain.TaskState{Status: domain.TaskStatusAwaitingDraft, DraftStatus: domain.DraftStatusQueued}, EventGenerationStarted)
	assert.ErrorIs(t, err, domain.ErrValidation, "queued tasks must be held")
}

func TestIsTerminal(t *testing.T) {
	t.Parallel()

	assert.True(t, IsTerminal(qaDone))
	assert.False(t, IsTerminal(draftFailed), "manual retry is still possible")
	assert.False(t, IsTerminal(domain.InitialTaskState))
}
