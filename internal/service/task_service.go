package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/config"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/platform/logger"
	"github.com/phrazzld/guideline-api/internal/redact"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/task"
	"github.com/phrazzld/guideline-api/internal/workflow"
)

// CreateTaskParams describes a task to create for a parsed table.
type CreateTaskParams struct {
	TableID   uuid.UUID
	ProjectID uuid.UUID
	Priority  int
}

// EnqueueResult reports what EnqueueGeneration did.
type EnqueueResult struct {
	Task     *domain.Task `json:"task"`
	Enqueued bool         `json:"enqueued"`
	// Reason explains why no job was published.
	Reason string `json:"reason,omitempty"`
}

// AssignParams describes an administrative assignment. A nil Assignee
// unassigns the task.
type AssignParams struct {
	TaskID   uuid.UUID
	Assignee *uuid.UUID
	ActorID  *uuid.UUID
}

// AssignResult is the outcome of an administrative assignment.
type AssignResult struct {
	Task *domain.Task `json:"task"`
	// RepeatAssignment is set when the assignee is the annotator whose work
	// last failed QA.
	RepeatAssignment bool `json:"repeat_assignment"`
	// BypassedHold is set when the task was assigned before a draft existed.
	BypassedHold bool `json:"bypassed_hold"`
}

// TaskDetail is a task with its live draft, latest review and history.
type TaskDetail struct {
	Task        *domain.Task       `json:"task"`
	Draft       *domain.Draft      `json:"draft,omitempty"`
	LatestEdit  *domain.HumanEdit  `json:"latest_edit,omitempty"`
	LatestCheck *domain.QACheck    `json:"latest_check,omitempty"`
	History     []domain.TaskEvent `json:"history"`
}

// TaskService drives tasks through drafting and annotation.
type TaskService interface {
	// CreateTask creates a task for a parsed table and publishes its first
	// generation job.
	CreateTask(ctx context.Context, params CreateTaskParams) (*domain.Task, error)

	// EnqueueGeneration publishes a generation job for a waiting task. It is
	// a no-op for tasks that already have a draft unless force is set, in
	// which case the draft is regenerated without reuse.
	EnqueueGeneration(ctx context.Context, taskID uuid.UUID, force bool) (*EnqueueResult, error)

	// RetryGeneration re-queues a task whose generation failed.
	RetryGeneration(ctx context.Context, taskID uuid.UUID, actorID *uuid.UUID) (*domain.Task, error)

	// Assign sets or clears a task's assignee on behalf of an administrator.
	Assign(ctx context.Context, params AssignParams) (*AssignResult, error)

	// Claim assigns an available task to the calling annotator.
	Claim(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, error)

	// StartAnnotation moves an assigned task into IN_PROGRESS.
	StartAnnotation(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, error)

	// SubmitAnnotation completes the annotation and queues the task for QA.
	SubmitAnnotation(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, error)

	// GetTask returns a task's detail view.
	GetTask(ctx context.Context, taskID uuid.UUID) (*TaskDetail, error)

	// ListTasks lists tasks matching filter.
	ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error)

	// ListAvailable lists a project's tasks open for self-selection.
	ListAvailable(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.Task, error)

	// PurgeProject deletes every task of a project.
	PurgeProject(ctx context.Context, projectID uuid.UUID) (int64, error)
}

// taskServiceImpl implements the TaskService interface
type taskServiceImpl struct {
	tx      store.Transactor
	tasks   store.TaskStore
	drafts  store.DraftStore
	reviews store.ReviewStore
	tables  store.TableSource
	queue   task.Queue
	policy  config.WorkflowConfig
	logger  *slog.Logger
}

// NewTaskService creates a new TaskService.
// It returns an error if any of the required dependencies are nil.
func NewTaskService(
	tx store.Transactor,
	stores store.Stores,
	tables store.TableSource,
	queue task.Queue,
	policy config.WorkflowConfig,
	logger *slog.Logger,
) (TaskService, error) {
	if tx == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "transactor cannot be nil"}
	}
	if stores.Tasks == nil || stores.Drafts == nil || stores.Reviews == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "stores cannot be nil"}
	}
	if tables == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "table source cannot be nil"}
	}
	if queue == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "queue cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &taskServiceImpl{
		tx:      tx,
		tasks:   stores.Tasks,
		drafts:  stores.Drafts,
		reviews: stores.Reviews,
		tables:  tables,
		queue:   queue,
		policy:  policy,
		logger:  logger.With(slog.String("component", "task_service")),
	}, nil
}

func (s *taskServiceImpl) log(ctx context.Context) *slog.Logger {
	return logger.FromContextOrDefault(ctx, s.logger)
}

func (s *taskServiceImpl) publish(ctx context.Context, t *domain.Task, force bool) error {
	job := task.NewGenerationJob(t.ID, t.RetryCount, force, t.Priority)
	if err := s.queue.Enqueue(ctx, job, 0); err != nil {
		return err
	}
	s.log(ctx).Info("generation job published",
		slog.String("task_id", t.ID.String()),
		slog.String("job_id", job.ID.String()),
		slog.Bool("force", force))
	return nil
}

// CreateTask implements TaskService.
func (s *taskServiceImpl) CreateTask(ctx context.Context, params CreateTaskParams) (*domain.Task, error) {
	log := s.log(ctx)

	schema, err := s.tables.GetTable(ctx, params.TableID)
	if err != nil {
		return nil, NewServiceError("create_task", "failed to read table", err)
	}
	if schema.ProjectID != uuid.Nil && schema.ProjectID != params.ProjectID {
		return nil, fmt.Errorf("%w: table %s belongs to another project", domain.ErrValidation, params.TableID)
	}

	created, err := domain.NewTask(params.TableID, params.ProjectID, params.Priority)
	if err != nil {
		return nil, err
	}
	if err := s.tasks.Create(ctx, created); err != nil {
		log.Error("failed to save task", slog.String("error", redact.Error(err)))
		return nil, NewServiceError("create_task", "failed to save task", err)
	}

	// A task left QUEUED by a failed publish is picked up again by
	// EnqueueGeneration.
	if err := s.publish(ctx, created, false); err != nil {
		log.Error("failed to publish generation job",
			slog.String("task_id", created.ID.String()),
			slog.String("error", redact.Error(err)))
	}

	log.Info("task created",
		slog.String("task_id", created.ID.String()),
		slog.String("table_id", created.TableID.String()),
		slog.Int("priority", created.Priority))
	return created, nil
}

// EnqueueGeneration implements TaskService.
func (s *taskServiceImpl) EnqueueGeneration(ctx context.Context, taskID uuid.UUID, force bool) (*EnqueueResult, error) {
	current, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("enqueue_generation", "failed to load task", err)
	}

	switch current.DraftStatus {
	case domain.DraftStatusSucceeded:
		if !force {
			return &EnqueueResult{Task: current, Reason: "draft already generated"}, nil
		}
		current, err = applyTransition(ctx, s.tasks, current, workflow.EventRegenerationRequested, store.TransitionWrite{
			Detail: "forced regeneration",
		})
		if err != nil {
			return nil, NewServiceError("enqueue_generation", "failed to reset task for regeneration", err)
		}

	case domain.DraftStatusGenerating:
		return &EnqueueResult{Task: current, Reason: "generation in progress"}, nil

	case domain.DraftStatusQueued:

	default:
		// Failed tasks go through RetryGeneration.
		if _, err := workflow.Apply(current.State(), workflow.EventGenerationStarted); err != nil {
			return nil, err
		}
	}

	if err := s.publish(ctx, current, force); err != nil {
		return nil, NewServiceError("enqueue_generation", "failed to publish generation job", err)
	}
	return &EnqueueResult{Task: current, Enqueued: true}, nil
}

// RetryGeneration implements TaskService.
func (s *taskServiceImpl) RetryGeneration(ctx context.Context, taskID uuid.UUID, actorID *uuid.UUID) (*domain.Task, error) {
	current, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("retry_generation", "failed to load task", err)
	}

	// A live draft means the failed cycle was a forced regeneration, and the
	// retry must not hand the replaced content back.
	force := true
	if _, err := s.drafts.GetLiveByTask(ctx, taskID); errors.Is(err, store.ErrDraftNotFound) {
		force = false
	} else if err != nil {
		return nil, NewServiceError("retry_generation", "failed to load live draft", err)
	}

	expected := current.RetryCount
	updated, err := applyTransition(ctx, s.tasks, current, workflow.EventManualRetry, store.TransitionWrite{
		ExpectedRetryCount: &expected,
		ActorID:            actorID,
	})
	if err != nil {
		return nil, NewServiceError("retry_generation", "failed to reset task", err)
	}

	if err := s.publish(ctx, updated, force); err != nil {
		return nil, NewServiceError("retry_generation", "failed to publish generation job", err)
	}
	s.log(ctx).Info("manual retry requested",
		slog.String("task_id", taskID.String()),
		slog.Int("retry_count", updated.RetryCount))
	return updated, nil
}

// applyTransition applies event to current through a conditional write. w
// carries the optional guards and audit fields.
func applyTransition(
	ctx context.Context,
	tasks store.TaskStore,
	current *domain.Task,
	event workflow.Event,
	w store.TransitionWrite,
) (*domain.Task, error) {
	tr, err := workflow.Apply(current.State(), event)
	if err != nil {
		return nil, err
	}
	w.TaskID = current.ID
	w.Transition = tr
	return tasks.ApplyTransition(ctx, w)
}

// assignable reports whether an annotator may be attached in status. Tasks
// without a draft are assignable only when the hold is bypassed.
func assignable(status domain.TaskStatus, bypass bool) bool {
	switch status {
	case domain.TaskStatusReadyForAnnotation, domain.TaskStatusInProgress, domain.TaskStatusReassigned:
		return true
	case domain.TaskStatusAwaitingDraft, domain.TaskStatusDraftFailed:
		return bypass
	default:
		return false
	}
}

// Assign implements TaskService.
func (s *taskServiceImpl) Assign(ctx context.Context, params AssignParams) (*AssignResult, error) {
	log := s.log(ctx).With(slog.String("task_id", params.TaskID.String()))

	current, err := s.tasks.GetByID(ctx, params.TaskID)
	if err != nil {
		return nil, NewServiceError("assign", "failed to load task", err)
	}

	if params.Assignee == nil {
		if current.AssignedTo == nil {
			return &AssignResult{Task: current}, nil
		}
		updated, err := s.tasks.Assign(ctx, store.AssignmentWrite{
			TaskID:           current.ID,
			Expected:         current.State(),
			ObservedAssignee: current.AssignedTo,
			Event:            workflow.EventUnassigned,
			ActorID:          params.ActorID,
		})
		if err != nil {
			return nil, NewServiceError("assign", "failed to unassign task", err)
		}
		return &AssignResult{Task: updated}, nil
	}

	assignee := *params.Assignee
	result := &AssignResult{Task: current}

	if current.AllocationHold {
		if !s.policy.AdminAssignBypassesHold {
			return nil, ErrAllocationHold
		}
		result.BypassedHold = true
	}
	if !assignable(current.Status, result.BypassedHold) {
		return nil, &domain.TransitionError{
			Status:      current.Status,
			DraftStatus: current.DraftStatus,
			Event:       string(workflow.EventAssigned),
		}
	}

	if current.PreviousAssignee != nil && *current.PreviousAssignee == assignee {
		if s.policy.BlockRepeatAssignment {
			return nil, ErrRepeatAssignment
		}
		result.RepeatAssignment = true
		log.Warn("task reassigned to the annotator whose work failed QA",
			slog.String("user_id", assignee.String()))
	}

	if current.IsAssignedTo(assignee) {
		return result, nil
	}

	detail := ""
	if result.BypassedHold {
		detail = "allocation hold bypassed"
		log.Warn("assigning task before a draft is available",
			slog.String("user_id", assignee.String()),
			slog.String("draft_status", string(current.DraftStatus)))
	}
	if result.RepeatAssignment {
		detail = joinDetail(detail, "repeat assignment")
	}

	updated, err := s.tasks.Assign(ctx, store.AssignmentWrite{
		TaskID:           current.ID,
		Expected:         current.State(),
		ObservedAssignee: current.AssignedTo,
		Assignee:         &assignee,
		RequireReleased:  !result.BypassedHold,
		Event:            workflow.EventAssigned,
		ActorID:          params.ActorID,
		Detail:           detail,
	})
	if err != nil {
		return nil, NewServiceError("assign", "failed to assign task", err)
	}
	result.Task = updated
	return result, nil
}

func joinDetail(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// Claim implements TaskService.
func (s *taskServiceImpl) Claim(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, error) {
	current, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("claim", "failed to load task", err)
	}

	switch {
	case current.IsAssignedTo(userID):
		return current, nil
	case current.AllocationHold:
		return nil, ErrAllocationHold
	case current.AssignedTo != nil:
		return nil, fmt.Errorf("%w: task already assigned", store.ErrConflict)
	case !current.AvailableForSelfSelection():
		return nil, &domain.TransitionError{
			Status:      current.Status,
			DraftStatus: current.DraftStatus,
			Event:       string(workflow.EventAssigned),
		}
	}

	updated, err := s.tasks.Assign(ctx, store.AssignmentWrite{
		TaskID:          current.ID,
		Expected:        current.State(),
		Assignee:        &userID,
		RequireReleased: true,
		Event:           workflow.EventAssigned,
		ActorID:         &userID,
		Detail:          "claimed",
	})
	if err != nil {
		return nil, NewServiceError("claim", "failed to claim task", err)
	}
	return updated, nil
}

// StartAnnotation implements TaskService.
func (s *taskServiceImpl) StartAnnotation(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, error) {
	current, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("start_annotation", "failed to load task", err)
	}
	if !current.IsAssignedTo(userID) {
		return nil, ErrNotAssignee
	}

	updated, err := applyTransition(ctx, s.tasks, current, workflow.EventAnnotationStarted, store.TransitionWrite{
		ExpectedAssignee: &userID,
		ActorID:          &userID,
	})
	if err != nil {
		return nil, NewServiceError("start_annotation", "failed to start annotation", err)
	}
	return updated, nil
}

// SubmitAnnotation implements TaskService.
func (s *taskServiceImpl) SubmitAnnotation(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, error) {
	current, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("submit_annotation", "failed to load task", err)
	}
	if !current.IsAssignedTo(userID) {
		return nil, ErrNotAssignee
	}
	if !workflow.Allowed(current.State(), workflow.EventAnnotationSubmitted) {
		_, err := workflow.Apply(current.State(), workflow.EventAnnotationSubmitted)
		return nil, err
	}

	draft, err := s.drafts.GetLiveByTask(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("submit_annotation", "failed to load live draft", err)
	}
	edit, err := s.reviews.LatestEdit(ctx, draft.ID)
	if errors.Is(err, store.ErrEditNotFound) {
		return nil, ErrNoEdit
	}
	if err != nil {
		return nil, NewServiceError("submit_annotation", "failed to load latest edit", err)
	}

	var updated *domain.Task
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st store.Stores) error {
		completed, err := applyTransition(ctx, st.Tasks, current, workflow.EventAnnotationSubmitted, store.TransitionWrite{
			ExpectedAssignee: &userID,
			ActorID:          &userID,
			Detail:           fmt.Sprintf("edit=%s", edit.ID),
		})
		if err != nil {
			return err
		}
		updated, err = applyTransition(ctx, st.Tasks, completed, workflow.EventQARequested, store.TransitionWrite{
			ActorID: &userID,
		})
		return err
	})
	if err != nil {
		return nil, NewServiceError("submit_annotation", "failed to submit annotation", err)
	}

	s.log(ctx).Info("annotation submitted for QA",
		slog.String("task_id", taskID.String()),
		slog.String("edit_id", edit.ID.String()))
	return updated, nil
}

// GetTask implements TaskService.
func (s *taskServiceImpl) GetTask(ctx context.Context, taskID uuid.UUID) (*TaskDetail, error) {
	current, err := s.tasks.GetByID(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("get_task", "failed to load task", err)
	}
	detail := &TaskDetail{Task: current}

	detail.History, err = s.tasks.History(ctx, taskID)
	if err != nil {
		return nil, NewServiceError("get_task", "failed to load history", err)
	}

	detail.Draft, err = s.drafts.GetLiveByTask(ctx, taskID)
	if errors.Is(err, store.ErrDraftNotFound) {
		return detail, nil
	}
	if err != nil {
		return nil, NewServiceError("get_task", "failed to load draft", err)
	}

	detail.LatestEdit, err = s.reviews.LatestEdit(ctx, detail.Draft.ID)
	if errors.Is(err, store.ErrEditNotFound) {
		detail.LatestEdit = nil
		return detail, nil
	}
	if err != nil {
		return nil, NewServiceError("get_task", "failed to load latest edit", err)
	}

	detail.LatestCheck, err = s.reviews.LatestCheck(ctx, detail.LatestEdit.ID)
	if errors.Is(err, store.ErrCheckNotFound) {
		detail.LatestCheck = nil
		return detail, nil
	}
	if err != nil {
		return nil, NewServiceError("get_task", "failed to load latest check", err)
	}
	return detail, nil
}

// ListTasks implements TaskService.
func (s *taskServiceImpl) ListTasks(ctx context.Context, filter store.TaskFilter) ([]*domain.Task, error) {
	if err := filter.Normalize(); err != nil {
		return nil, err
	}
	tasks, err := s.tasks.List(ctx, filter)
	if err != nil {
		return nil, NewServiceError("list_tasks", "failed to list tasks", err)
	}
	return tasks, nil
}

// ListAvailable implements TaskService.
func (s *taskServiceImpl) ListAvailable(ctx context.Context, projectID uuid.UUID, limit, offset int) ([]*domain.Task, error) {
	return s.ListTasks(ctx, store.TaskFilter{
		ProjectID: &projectID,
		Available: true,
		Limit:     limit,
		Offset:    offset,
	})
}

// PurgeProject implements TaskService.
func (s *taskServiceImpl) PurgeProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	if projectID == uuid.Nil {
		return 0, fmt.Errorf("%w: project id", domain.ErrEmptyID)
	}
	removed, err := s.tasks.DeleteByProject(ctx, projectID)
	if err != nil {
		return 0, NewServiceError("purge_project", "failed to delete project tasks", err)
	}
	s.log(ctx).Warn("project tasks purged",
		slog.String("project_id", projectID.String()),
		slog.Int64("tasks", removed))
	return removed, nil
}
