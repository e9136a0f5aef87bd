package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/api/shared"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/platform/logger"
	"github.com/phrazzld/guideline-api/internal/service"
	"github.com/phrazzld/guideline-api/internal/store"
)

// TaskHandler serves task lifecycle requests.
type TaskHandler struct {
	tasks  service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(tasks service.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /tasks.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	task, err := h.tasks.CreateTask(r.Context(), service.CreateTaskParams{
		TableID:   uuid.MustParse(req.TableID),
		ProjectID: uuid.MustParse(req.ProjectID),
		Priority:  req.Priority,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to create task")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, CreateTaskResponse{TaskID: task.ID.String(), Task: task})
}

// ListTasks handles GET /tasks with optional project_id, status,
// draft_status, assigned_to, limit and offset query parameters.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := taskFilter(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tasks, err := h.tasks.ListTasks(r.Context(), filter)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list tasks")
		return
	}
	h.respondWithPage(w, r, tasks, filter.Limit, filter.Offset)
}

func taskFilter(r *http.Request) (store.TaskFilter, error) {
	var filter store.TaskFilter
	var err error

	if filter.ProjectID, err = queryUUID(r, "project_id"); err != nil {
		return filter, err
	}
	if filter.AssignedTo, err = queryUUID(r, "assigned_to"); err != nil {
		return filter, err
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.TaskStatus(raw)
		filter.Status = &status
	}
	if raw := r.URL.Query().Get("draft_status"); raw != "" {
		status := domain.DraftStatus(raw)
		filter.DraftStatus = &status
	}
	filter.Limit, filter.Offset, err = pagination(r)
	return filter, err
}

func (h *TaskHandler) respondWithPage(w http.ResponseWriter, r *http.Request, tasks []*domain.Task, limit, offset int) {
	if limit == 0 {
		limit = store.DefaultListLimit
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{Tasks: tasks, Limit: limit, Offset: offset})
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	detail, err := h.tasks.GetTask(r.Context(), taskID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, detail)
}

// EnqueueGeneration handles POST /tasks/{id}/draft. It answers 202 when a job
// was published and 200 when the request was a no-op.
func (h *TaskHandler) EnqueueGeneration(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req EnqueueDraftRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.tasks.EnqueueGeneration(r.Context(), taskID, req.Force)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to enqueue generation")
		return
	}

	status := http.StatusOK
	if result.Enqueued {
		status = http.StatusAccepted
	}
	shared.RespondWithJSON(w, r, status, result)
}

// RetryGeneration handles POST /tasks/{id}/draft/retry.
func (h *TaskHandler) RetryGeneration(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	task, err := h.tasks.RetryGeneration(r.Context(), taskID, optionalActor(r))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to retry generation")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusAccepted, task)
}

// Assign handles PUT /tasks/{id}/assignee.
func (h *TaskHandler) Assign(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req AssignRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	params := service.AssignParams{TaskID: taskID, ActorID: optionalActor(r)}
	if req.Assignee != nil {
		assignee := uuid.MustParse(*req.Assignee)
		params.Assignee = &assignee
	}

	result, err := h.tasks.Assign(r.Context(), params)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to assign task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, result)
}

// Claim handles POST /tasks/{id}/claim.
func (h *TaskHandler) Claim(w http.ResponseWriter, r *http.Request) {
	h.annotatorAction(w, r, h.tasks.Claim, "Failed to claim task")
}

// StartAnnotation handles POST /tasks/{id}/start.
func (h *TaskHandler) StartAnnotation(w http.ResponseWriter, r *http.Request) {
	h.annotatorAction(w, r, h.tasks.StartAnnotation, "Failed to start annotation")
}

// SubmitAnnotation handles POST /tasks/{id}/submit.
func (h *TaskHandler) SubmitAnnotation(w http.ResponseWriter, r *http.Request) {
	h.annotatorAction(w, r, h.tasks.SubmitAnnotation, "Failed to submit annotation")
}

type annotatorOp func(ctx context.Context, taskID, userID uuid.UUID) (*domain.Task, error)

func (h *TaskHandler) annotatorAction(w http.ResponseWriter, r *http.Request, op annotatorOp, failure string) {
	taskID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := requireActor(w, r)
	if !ok {
		return
	}

	task, err := op(r.Context(), taskID, userID)
	if err != nil {
		HandleAPIError(w, r, err, failure)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, task)
}

// ListAvailable handles GET /projects/{id}/available.
func (h *TaskHandler) ListAvailable(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	limit, offset, err := pagination(r)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	tasks, err := h.tasks.ListAvailable(r.Context(), projectID, limit, offset)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list available tasks")
		return
	}
	h.respondWithPage(w, r, tasks, limit, offset)
}

// PurgeProject handles DELETE /projects/{id}/tasks.
func (h *TaskHandler) PurgeProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}

	deleted, err := h.tasks.PurgeProject(r.Context(), projectID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to purge project")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Warn("project purged over http",
		slog.String("project_id", projectID.String()),
		slog.Int64("deleted", deleted))
	shared.RespondWithJSON(w, r, http.StatusOK, PurgeResponse{Deleted: deleted})
}
