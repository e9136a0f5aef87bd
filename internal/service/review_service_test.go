package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/config"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// submitted returns a QA_PENDING task annotated by user and the edit under review.
func submitted(t *testing.T, e *testEnv, user uuid.UUID, text string) (*domain.Task, *domain.HumanEdit) {
	t.Helper()
	ctx := context.Background()
	started, draft := e.inProgress(t, user)

	edit, err := e.reviews.RecordHumanEdit(ctx, RecordEditParams{
		DraftID:          draft.ID,
		UserID:           user,
		Text:             text,
		Reason:           "fixed units",
		TimeSpentMinutes: 12,
	})
	require.NoError(t, err)

	pending, err := e.tasks.SubmitAnnotation(ctx, started.ID, user)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusQAPending, pending.Status)
	return pending, edit
}

func TestReviewService_RecordHumanEdit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("requires in progress task", func(t *testing.T) {
		e := newTestEnv(t, config.WorkflowConfig{})
		ready := e.readyTask(t)
		draft, err := e.store.Drafts().GetLiveByTask(ctx, ready.ID)
		require.NoError(t, err)

		_, err = e.reviews.RecordHumanEdit(ctx, RecordEditParams{DraftID: draft.ID, UserID: uuid.New(), Text: "x"})
		assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	})

	t.Run("requires assignee", func(t *testing.T) {
		e := newTestEnv(t, config.WorkflowConfig{})
		_, draft := e.inProgress(t, uuid.New())

		_, err := e.reviews.RecordHumanEdit(ctx, RecordEditParams{DraftID: draft.ID, UserID: uuid.New(), Text: "x"})
		assert.ErrorIs(t, err, ErrNotAssignee)
	})

	t.Run("rejects superseded draft", func(t *testing.T) {
		e := newTestEnv(t, config.WorkflowConfig{})
		user := uuid.New()
		started, draft := e.inProgress(t, user)
		_, err := e.store.Drafts().Supersede(ctx, started.ID, draft.CreatedAt)
		require.NoError(t, err)

		_, err = e.reviews.RecordHumanEdit(ctx, RecordEditParams{DraftID: draft.ID, UserID: user, Text: "x"})
		assert.ErrorIs(t, err, ErrStaleDraft)
	})

	t.Run("rejects empty text", func(t *testing.T) {
		e := newTestEnv(t, config.WorkflowConfig{})
		user := uuid.New()
		_, draft := e.inProgress(t, user)

		_, err := e.reviews.RecordHumanEdit(ctx, RecordEditParams{DraftID: draft.ID, UserID: user, Text: "   "})
		assert.ErrorIs(t, err, domain.ErrEmptyText)
	})

	t.Run("unknown draft", func(t *testing.T) {
		e := newTestEnv(t, config.WorkflowConfig{})
		_, err := e.reviews.RecordHumanEdit(ctx, RecordEditParams{DraftID: uuid.New(), UserID: uuid.New(), Text: "x"})
		assert.ErrorIs(t, err, store.ErrDraftNotFound)
	})

	t.Run("storage failure is wrapped", func(t *testing.T) {
		e := newTestEnv(t, config.WorkflowConfig{})
		user := uuid.New()
		_, draft := e.inProgress(t, user)
		e.store.FailNext("reviews.CreateEdit", errors.New("connection lost"))

		_, err := e.reviews.RecordHumanEdit(ctx, RecordEditParams{DraftID: draft.ID, UserID: user, Text: "x"})
		var serviceErr *ServiceError
		require.ErrorAs(t, err, &serviceErr)
		assert.Equal(t, "record_human_edit", serviceErr.Operation)
	})
}

func TestReviewService_QACycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t, config.WorkflowConfig{})
	annotator, reviewer := uuid.New(), uuid.New()
	pending, edit := submitted(t, e, annotator, "Limits apply per item.")

	failed, err := e.reviews.RecordQA(ctx, RecordQAParams{
		EditID:     edit.ID,
		ReviewerID: reviewer,
		Result:     domain.QAResultFail,
		Comments:   "Exceptions section missing",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusReassigned, failed.Task.Status)
	assert.Nil(t, failed.Task.AssignedTo)
	require.NotNil(t, failed.Task.PreviousAssignee)
	assert.Equal(t, annotator, *failed.Task.PreviousAssignee)

	detail, err := e.tasks.GetTask(ctx, pending.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.LatestEdit)
	assert.Equal(t, "Limits apply per item.", detail.LatestEdit.EditedText)
	require.NotNil(t, detail.LatestCheck)
	assert.Equal(t, "Exceptions section missing", detail.LatestCheck.Comments)

	result, err := e.tasks.Assign(ctx, AssignParams{TaskID: pending.ID, Assignee: &annotator})
	require.NoError(t, err)
	assert.True(t, result.RepeatAssignment)

	second := uuid.New()
	result, err = e.tasks.Assign(ctx, AssignParams{TaskID: pending.ID, Assignee: &second})
	require.NoError(t, err)
	assert.False(t, result.RepeatAssignment)

	_, err = e.tasks.StartAnnotation(ctx, pending.ID, second)
	require.NoError(t, err)
	draft, err := e.store.Drafts().GetLiveByTask(ctx, pending.ID)
	require.NoError(t, err)
	fixed, err := e.reviews.RecordHumanEdit(ctx, RecordEditParams{DraftID: draft.ID, UserID: second, Text: "Limits apply per item, except samples."})
	require.NoError(t, err)

	_, err = e.reviews.RecordQA(ctx, RecordQAParams{EditID: edit.ID, ReviewerID: reviewer, Result: domain.QAResultPass})
	assert.ErrorIs(t, err, ErrStaleEdit)

	_, err = e.tasks.SubmitAnnotation(ctx, pending.ID, second)
	require.NoError(t, err)

	passed, err := e.reviews.RecordQA(ctx, RecordQAParams{EditID: fixed.ID, ReviewerID: reviewer, Result: domain.QAResultPass})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusQADone, passed.Task.Status)

	_, err = e.reviews.RecordQA(ctx, RecordQAParams{EditID: fixed.ID, ReviewerID: reviewer, Result: domain.QAResultFail})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	_, err = e.reviews.RecordHumanEdit(ctx, RecordEditParams{DraftID: draft.ID, UserID: second, Text: "late"})
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)
	_, err = e.tasks.StartAnnotation(ctx, pending.ID, second)
	assert.Error(t, err)

	latest, err := e.store.Reviews().LatestCheck(ctx, fixed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.QAResultPass, latest.Result, "rejected check is not stored")
}

func TestReviewService_BlockRepeatAssignment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t, config.WorkflowConfig{BlockRepeatAssignment: true})
	annotator := uuid.New()
	pending, edit := submitted(t, e, annotator, "text")

	_, err := e.reviews.RecordQA(ctx, RecordQAParams{EditID: edit.ID, ReviewerID: uuid.New(), Result: domain.QAResultFail})
	require.NoError(t, err)

	_, err = e.tasks.Assign(ctx, AssignParams{TaskID: pending.ID, Assignee: &annotator})
	assert.ErrorIs(t, err, ErrRepeatAssignment)
}

func TestReviewService_RecordQAValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t, config.WorkflowConfig{})

	_, err := e.reviews.RecordQA(ctx, RecordQAParams{EditID: uuid.New(), ReviewerID: uuid.New(), Result: "maybe"})
	assert.ErrorIs(t, err, domain.ErrInvalidQAResult)

	_, err = e.reviews.RecordQA(ctx, RecordQAParams{EditID: uuid.New(), ReviewerID: uuid.New(), Result: domain.QAResultPass})
	assert.ErrorIs(t, err, store.ErrEditNotFound)
}
