package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/platform/logger"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/workflow"
)

// RecordEditParams describes an annotator's edit of a draft.
type RecordEditParams struct {
	DraftID          uuid.UUID
	UserID           uuid.UUID
	Text             string
	Reason           string
	TimeSpentMinutes int
}

// RecordQAParams describes a reviewer's verdict on an edit.
type RecordQAParams struct {
	EditID            uuid.UUID
	ReviewerID        uuid.UUID
	Result            domain.QAResult
	Comments          string
	ReviewTimeMinutes int
}

// QAOutcome is a stored check and the task it moved.
type QAOutcome struct {
	Check *domain.QACheck `json:"check"`
	Task  *domain.Task    `json:"task"`
}

// ReviewService records human edits and QA verdicts.
type ReviewService interface {
	// RecordHumanEdit stores an edit of a task's live draft by its assignee
	// while the task is IN_PROGRESS.
	RecordHumanEdit(ctx context.Context, params RecordEditParams) (*domain.HumanEdit, error)

	// RecordQA stores a verdict on the latest edit of a QA_PENDING task. A
	// pass completes the task; a fail sends it back for reassignment.
	RecordQA(ctx context.Context, params RecordQAParams) (*QAOutcome, error)
}

type reviewServiceImpl struct {
	tx      store.Transactor
	tasks   store.TaskStore
	drafts  store.DraftStore
	reviews store.ReviewStore
	logger  *slog.Logger
}

// NewReviewService creates a new ReviewService.
func NewReviewService(tx store.Transactor, stores store.Stores, logger *slog.Logger) (ReviewService, error) {
	if tx == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "transactor cannot be nil"}
	}
	if stores.Tasks == nil || stores.Drafts == nil || stores.Reviews == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "stores cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &reviewServiceImpl{
		tx:      tx,
		tasks:   stores.Tasks,
		drafts:  stores.Drafts,
		reviews: stores.Reviews,
		logger:  logger.With(slog.String("component", "review_service")),
	}, nil
}

// RecordHumanEdit implements ReviewService.
func (s *reviewServiceImpl) RecordHumanEdit(ctx context.Context, params RecordEditParams) (*domain.HumanEdit, error) {
	edit, err := domain.NewHumanEdit(params.DraftID, params.UserID, params.Text, params.Reason, params.TimeSpentMinutes)
	if err != nil {
		return nil, err
	}

	// The checks run inside the transaction so the edit is written against
	// the state they observed.
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		draft, err := st.Drafts.GetByID(ctx, params.DraftID)
		if err != nil {
			return err
		}
		if !draft.IsLive() {
			return ErrStaleDraft
		}

		current, err := st.Tasks.GetByID(ctx, draft.TaskID)
		if err != nil {
			return err
		}
		if current.Status != domain.TaskStatusInProgress {
			return &domain.TransitionError{
				Status:      current.Status,
				DraftStatus: current.DraftStatus,
				Event:       "human_edit",
			}
		}
		if !current.IsAssignedTo(params.UserID) {
			return ErrNotAssignee
		}
		return st.Reviews.CreateEdit(ctx, edit)
	})
	if err != nil {
		return nil, NewServiceError("record_human_edit", "failed to record edit", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("human edit recorded",
		slog.String("edit_id", edit.ID.String()),
		slog.String("draft_id", edit.DraftID.String()),
		slog.Int("time_spent_minutes", edit.TimeSpentMinutes))
	return edit, nil
}

// RecordQA implements ReviewService.
func (s *reviewServiceImpl) RecordQA(ctx context.Context, params RecordQAParams) (*QAOutcome, error) {
	check, err := domain.NewQACheck(params.EditID, params.ReviewerID, params.Result, params.Comments, params.ReviewTimeMinutes)
	if err != nil {
		return nil, err
	}
	event := workflow.EventQAPassed
	if check.Result == domain.QAResultFail {
		event = workflow.EventQAFailed
	}

	var updated *domain.Task
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		edit, err := st.Reviews.GetEdit(ctx, params.EditID)
		if err != nil {
			return err
		}
		draft, err := st.Drafts.GetByID(ctx, edit.DraftID)
		if err != nil {
			return err
		}
		if !draft.IsLive() {
			return ErrStaleEdit
		}
		latest, err := st.Reviews.LatestEdit(ctx, draft.ID)
		if err != nil {
			return err
		}
		if latest.ID != edit.ID {
			return ErrStaleEdit
		}

		current, err := st.Tasks.GetByID(ctx, draft.TaskID)
		if err != nil {
			return err
		}
		if err := st.Reviews.CreateCheck(ctx, check); err != nil {
			return err
		}
		updated, err = applyTransition(ctx, st.Tasks, current, event, store.TransitionWrite{
			ActorID: &params.ReviewerID,
			Detail:  fmt.Sprintf("check=%s edit=%s", check.ID, edit.ID),
		})
		return err
	})
	if err != nil {
		return nil, NewServiceError("record_qa", "failed to record qa check", err)
	}

	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("task_id", updated.ID.String()),
		slog.String("check_id", check.ID.String()))
	if check.Result == domain.QAResultFail {
		log.Info("qa failed, task awaiting reassignment")
	} else {
		log.Info("qa passed, task complete")
	}
	return &QAOutcome{Check: check, Task: updated}, nil
}
