package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Parallel()

	tableID, projectID := uuid.New(), uuid.New()
	task, err := NewTask(tableID, projectID, 5)
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, task.ID)
	assert.Equal(t, tableID, task.TableID)
	assert.Equal(t, projectID, task.ProjectID)
	assert.Equal(t, TaskStatusAwaitingDraft, task.Status)
	assert.Equal(t, DraftStatusQueued, task.DraftStatus)
	assert.True(t, task.AllocationHold)
	assert.Equal(t, 0, task.RetryCount)
	assert.Equal(t, 5, task.Priority)
	assert.Nil(t, task.LastError)
	assert.False(t, task.CreatedAt.IsZero())

	_, err = NewTask(uuid.Nil, projectID, 0)
	assert.ErrorIs(t, err, ErrEmptyID)

	_, err = NewTask(tableID, uuid.Nil, 0)
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestTaskStateValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		state   TaskState
		wantErr error
	}{
		{"initial", InitialTaskState, nil},
		{"ready", TaskState{TaskStatusReadyForAnnotation, DraftStatusSucceeded, false}, nil},
		{"hold released without draft", TaskState{TaskStatusAwaitingDraft, DraftStatusQueued, false}, ErrValidation},
		{"hold kept after success", TaskState{TaskStatusReadyForAnnotation, DraftStatusSucceeded, true}, ErrValidation},
		{"unknown status", TaskState{"paused", DraftStatusQueued, true}, ErrInvalidTaskStatus},
		{"unknown draft status", TaskState{TaskStatusAwaitingDraft, "pending", true}, ErrInvalidDraftStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.state.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestTaskRetryBookkeeping(t *testing.T) {
	t.Parallel()

	task, err := NewTask(uuid.New(), uuid.New(), 0)
	require.NoError(t, err)

	task.RetryCount = 4
	task.RetryBaseline = 3
	assert.Equal(t, 1, task.AutomaticAttempts())
	assert.NoError(t, task.Validate())

	task.RetryBaseline = 5
	assert.ErrorIs(t, task.Validate(), ErrValidation)
}

func TestTaskAvailability(t *testing.T) {
	t.Parallel()

	task, err := NewTask(uuid.New(), uuid.New(), 0)
	require.NoError(t, err)
	assert.False(t, task.AvailableForSelfSelection(), "held tasks are not offered")

	task.Status = TaskStatusReadyForAnnotation
	task.DraftStatus = DraftStatusSucceeded
	task.AllocationHold = false
	assert.True(t, task.AvailableForSelfSelection())

	user := uuid.New()
	task.AssignedTo = &user
	assert.False(t, task.AvailableForSelfSelection())
	assert.True(t, task.IsAssignedTo(user))
	assert.False(t, task.IsAssignedTo(uuid.New()))
}

func TestTransitionError(t *testing.T) {
	t.Parallel()

	err := &TransitionError{Status: TaskStatusQADone, DraftStatus: DraftStatusSucceeded, Event: "qa_failed"}
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Contains(t, err.Error(), "qa_failed")
	assert.Contains(t, err.Error(), "qa_done")
}
