package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/api/middleware"
	"github.com/phrazzld/guideline-api/internal/config"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/generation"
	"github.com/phrazzld/guideline-api/internal/mocks"
	"github.com/phrazzld/guideline-api/internal/service"
	"github.com/phrazzld/guideline-api/internal/service/drafting"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/task"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type apiEnv struct {
	store  *mocks.MemoryStore
	queue  *task.MemoryQueue
	worker *drafting.RetryController
	router chi.Router
}

func newAPIEnv(t *testing.T, stats service.StatsService) *apiEnv {
	t.Helper()
	e := &apiEnv{
		store: mocks.NewMemoryStore(),
		queue: task.NewMemoryQueue(100, discardLogger()),
	}
	stores := store.Stores{Tasks: e.store.Tasks(), Drafts: e.store.Drafts(), Reviews: e.store.Reviews()}

	orch, err := drafting.NewOrchestrator(e.store, stores, e.store, mocks.NewGenerator(), generation.NewPriceTable(nil),
		drafting.GenerationOptions{Model: "gemini-2.0-flash"}, discardLogger())
	require.NoError(t, err)
	e.worker, err = drafting.NewRetryController(orch, e.store.Tasks(), e.queue, drafting.DefaultRetryPolicy(), discardLogger())
	require.NoError(t, err)

	tasks, err := service.NewTaskService(e.store, stores, e.store, e.queue, config.WorkflowConfig{}, discardLogger())
	require.NoError(t, err)
	reviews, err := service.NewReviewService(e.store, stores, discardLogger())
	require.NoError(t, err)
	if stats == nil {
		stats, err = service.NewStatsService(e.store, discardLogger())
		require.NoError(t, err)
	}

	taskHandler := NewTaskHandler(tasks, discardLogger())
	reviewHandler := NewReviewHandler(reviews, discardLogger())
	statsHandler := NewStatsHandler(stats)
	drafts, err := service.NewDraftService(e.store.Drafts(), discardLogger())
	require.NoError(t, err)
	draftHandler := NewDraftHandler(drafts)

	r := chi.NewRouter()
	r.Use(middleware.NewTraceMiddleware(discardLogger()))
	r.Use(middleware.Actor)
	r.Post("/tasks", taskHandler.CreateTask)
	r.Get("/tasks", taskHandler.ListTasks)
	r.Get("/tasks/{id}", taskHandler.GetTask)
	r.Post("/tasks/{id}/draft", taskHandler.EnqueueGeneration)
	r.Post("/tasks/{id}/draft/retry", taskHandler.RetryGeneration)
	r.Put("/tasks/{id}/assignee", taskHandler.Assign)
	r.Post("/tasks/{id}/claim", taskHandler.Claim)
	r.Post("/tasks/{id}/start", taskHandler.StartAnnotation)
	r.Post("/tasks/{id}/submit", taskHandler.SubmitAnnotation)
	r.Get("/drafts/{id}", draftHandler.GetDraft)
	r.Post("/drafts/{id}/edits", reviewHandler.RecordHumanEdit)
	r.Post("/edits/{id}/qa", reviewHandler.RecordQA)
	r.Get("/projects/{id}/progress", statsHandler.GetProgress)
	r.Get("/projects/{id}/costs", statsHandler.GetCosts)
	r.Get("/projects/{id}/available", taskHandler.ListAvailable)
	r.Get("/projects/{id}/drafts", draftHandler.ListProjectDrafts)
	r.Delete("/projects/{id}/tasks", taskHandler.PurgeProject)
	e.router = r
	return e
}

// do sends a request as user (uuid.Nil for none) and returns the recorder.
func (e *apiEnv) do(t *testing.T, method, path string, user uuid.UUID, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		req.Header.Set(middleware.UserIDHeader, user.String())
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func (e *apiEnv) putTable(projectID uuid.UUID) *domain.TableSchema {
	schema := &domain.TableSchema{
		ID:        uuid.New(),
		ProjectID: projectID,
		NRows:     2,
		NCols:     1,
		Cells: []domain.TableCell{
			{Row: 0, Col: 0, Text: "Fee", IsHeader: true},
			{Row: 1, Col: 0, Text: uuid.NewString()},
		},
		Meta: domain.TableMeta{Detector: "lattice", Confidence: 0.9},
	}
	e.store.PutTable(schema)
	return schema
}

// process hands every visible job to the drafting worker.
func (e *apiEnv) process(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		d, err := e.queue.Dequeue(ctx, time.Minute)
		if errors.Is(err, task.ErrQueueEmpty) {
			return
		}
		require.NoError(t, err)
		if e.worker.Handle(ctx, d).Ack {
			require.NoError(t, e.queue.Ack(ctx, d))
		} else {
			require.NoError(t, e.queue.Nack(ctx, d, time.Hour))
		}
	}
}

// readyTask creates a task over HTTP and runs its generation.
func (e *apiEnv) readyTask(t *testing.T, projectID uuid.UUID) uuid.UUID {
	t.Helper()
	schema := e.putTable(projectID)
	rr := e.do(t, http.MethodPost, "/tasks", uuid.Nil, CreateTaskRequest{
		TableID:   schema.ID.String(),
		ProjectID: projectID.String(),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[CreateTaskResponse](t, rr)
	e.process(t)
	return created.Task.ID
}
