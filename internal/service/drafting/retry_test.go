package drafting

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/mocks"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/task"
	"github.com/phrazzld/guideline-api/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffSchedule(t *testing.T) {
	t.Parallel()
	policy := DefaultRetryPolicy()

	assert.Equal(t, 60*time.Second, policy.Backoff(1))
	assert.Equal(t, 120*time.Second, policy.Backoff(2))
	assert.Equal(t, 240*time.Second, policy.Backoff(3))
	assert.Equal(t, 60*time.Second, policy.Backoff(0))
}

func TestRetryBoundStopsAfterThreeFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, networkFailure())
	created := f.newTask(t, f.table(2, 2, "fail"))
	require.NoError(t, f.queue.Enqueue(ctx, task.NewGenerationJob(created.ID, 0, false, 0), 0))

	assert.Equal(t, 1, f.drain(t))
	first := f.task(t, created.ID)
	assert.Equal(t, domain.TaskStatusAwaitingDraft, first.Status)
	assert.Equal(t, domain.DraftStatusFailed, first.DraftStatus)
	assert.Equal(t, 1, first.RetryCount)
	require.NotNil(t, first.LastError)
	assert.Contains(t, *first.LastError, "connection refused")

	jobs := f.queue.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Attempt)

	f.advance(59 * time.Second)
	assert.Zero(t, f.drain(t), "first retry waits 60s")
	f.advance(time.Second)
	assert.Equal(t, 1, f.drain(t))
	assert.Equal(t, 2, f.task(t, created.ID).RetryCount)

	f.advance(119 * time.Second)
	assert.Zero(t, f.drain(t), "second retry waits 120s")
	f.advance(time.Second)
	assert.Equal(t, 1, f.drain(t))

	final := f.task(t, created.ID)
	assert.Equal(t, domain.TaskStatusDraftFailed, final.Status)
	assert.Equal(t, domain.DraftStatusFailed, final.DraftStatus)
	assert.Equal(t, 3, final.RetryCount)
	assert.True(t, final.AllocationHold)
	assert.Zero(t, f.queue.Len())

	f.advance(24 * time.Hour)
	assert.Zero(t, f.drain(t))
	assert.Equal(t, 3, f.gen.Calls(), "no fourth automatic attempt")
}

func TestManualRetryStartsFreshBudget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, networkFailure())
	created := f.newTask(t, f.table(2, 2, "again"))
	require.NoError(t, f.queue.Enqueue(ctx, task.NewGenerationJob(created.ID, 0, false, 0), 0))
	for i := 0; i < 3; i++ {
		f.drain(t)
		f.advance(time.Hour)
	}
	exhausted := f.task(t, created.ID)
	require.Equal(t, domain.TaskStatusDraftFailed, exhausted.Status)

	tr, err := workflow.Apply(exhausted.State(), workflow.EventManualRetry)
	require.NoError(t, err)
	retried, err := f.store.Tasks().ApplyTransition(ctx, store.TransitionWrite{TaskID: created.ID, Transition: tr})
	require.NoError(t, err)
	assert.Equal(t, 3, retried.RetryCount)
	assert.Zero(t, retried.AutomaticAttempts())
	assert.Nil(t, retried.LastError)

	require.NoError(t, f.queue.Enqueue(ctx, task.NewGenerationJob(created.ID, retried.RetryCount, false, 0), 0))
	assert.Equal(t, 1, f.drain(t))

	after := f.task(t, created.ID)
	assert.Equal(t, domain.TaskStatusAwaitingDraft, after.Status, "a fresh cycle has retries left")
	assert.Equal(t, 4, after.RetryCount)
	assert.Equal(t, 1, f.queue.Len())
}

func TestHandleDropsStaleRetryJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t, networkFailure())
	created := f.newTask(t, f.table(2, 2, "stale"))
	require.Equal(t, task.Done(), f.ctrl.Handle(ctx, delivery(task.NewGenerationJob(created.ID, 0, false, 0))))
	require.Equal(t, 1, f.gen.Calls())

	disposition := f.ctrl.Handle(ctx, delivery(task.NewGenerationJob(created.ID, 0, false, 0)))
	assert.Equal(t, task.Done(), disposition)
	assert.Equal(t, 1, f.gen.Calls())
	assert.Equal(t, 1, f.task(t, created.ID).RetryCount)
}

func TestHandleDropsMissingTask(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	disposition := f.ctrl.Handle(context.Background(), delivery(task.NewGenerationJob(uuid.New(), 0, false, 0)))
	assert.Equal(t, task.Done(), disposition)
}

func TestHandleRedeliversOnStorageErrorBeforeStart(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	created := f.newTask(t, f.table(2, 2, "db"))
	f.store.FailNext("tasks.GetByID", errors.New("connection reset by peer"))

	disposition := f.ctrl.Handle(context.Background(), delivery(task.NewGenerationJob(created.ID, 0, false, 0)))
	assert.Equal(t, task.Redeliver(5*time.Second), disposition)
	assert.Equal(t, domain.DraftStatusQueued, f.task(t, created.ID).DraftStatus)
}

func TestHandleStorageErrorAfterStartRecordsFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, mocks.Succeed("text", 5, 5))
	created := f.newTask(t, f.table(2, 2, "late"))
	f.store.FailNext("drafts.Create", errors.New("disk full"))

	disposition := f.ctrl.Handle(context.Background(), delivery(task.NewGenerationJob(created.ID, 0, false, 0)))
	assert.Equal(t, task.Done(), disposition)

	failed := f.task(t, created.ID)
	assert.Equal(t, domain.DraftStatusFailed, failed.DraftStatus)
	assert.Equal(t, 1, failed.RetryCount)
	assert.Equal(t, 1, f.queue.Len())
}

func TestRecoverAbandonedSchedulesRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	created := f.newTask(t, f.table(2, 2, "stuck"))

	tr, err := workflow.Apply(created.State(), workflow.EventGenerationStarted)
	require.NoError(t, err)
	stuck, err := f.store.Tasks().ApplyTransition(ctx, store.TransitionWrite{TaskID: created.ID, Transition: tr})
	require.NoError(t, err)

	recovered, err := f.ctrl.RecoverAbandoned(ctx, stuck)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftStatusFailed, recovered.DraftStatus)
	require.NotNil(t, recovered.LastError)
	assert.Contains(t, *recovered.LastError, "abandoned")
	assert.Equal(t, 1, f.queue.Len())

	_, err = f.ctrl.RecoverAbandoned(ctx, stuck)
	assert.ErrorIs(t, err, store.ErrConflict, "second recovery loses the CAS")
}

func TestFailKeepsFailureWhenRetryCannotBeScheduled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	f := newFixture(t)
	created := f.newTask(t, f.table(2, 2, "closed"))

	tr, err := workflow.Apply(created.State(), workflow.EventGenerationStarted)
	require.NoError(t, err)
	started, err := f.store.Tasks().ApplyTransition(ctx, store.TransitionWrite{TaskID: created.ID, Transition: tr})
	require.NoError(t, err)
	f.queue.Close()

	updated, err := f.ctrl.Fail(ctx, started, errors.New("boom"), false)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusAwaitingDraft, updated.Status)
	assert.Equal(t, domain.DraftStatusFailed, updated.DraftStatus)
}

func TestNewRetryControllerValidatesPolicy(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := NewRetryController(nil, f.store.Tasks(), f.queue, DefaultRetryPolicy(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)

	policy := DefaultRetryPolicy()
	policy.BackoffFactor = 0.5
	_, err = NewRetryController(f.orch, f.store.Tasks(), f.queue, policy, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
