package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/config"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/generation"
	"github.com/phrazzld/guideline-api/internal/mocks"
	"github.com/phrazzld/guideline-api/internal/service/drafting"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/task"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	store   *mocks.MemoryStore
	queue   *task.MemoryQueue
	gen     *mocks.Generator
	worker  *drafting.RetryController
	tasks   TaskService
	reviews ReviewService
	now     time.Time
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (e *testEnv) stores() store.Stores {
	return store.Stores{Tasks: e.store.Tasks(), Drafts: e.store.Drafts(), Reviews: e.store.Reviews()}
}

func newTestEnv(t *testing.T, policy config.WorkflowConfig, responses ...mocks.Response) *testEnv {
	t.Helper()
	e := &testEnv{
		store: mocks.NewMemoryStore(),
		gen:   mocks.NewGenerator(responses...),
		now:   time.Now().UTC(),
	}
	e.queue = task.NewMemoryQueue(100, discardLogger(), task.WithClock(func() time.Time { return e.now }))

	orch, err := drafting.NewOrchestrator(e.store, e.stores(), e.store, e.gen, generation.NewPriceTable(nil),
		drafting.GenerationOptions{Model: "gemini-2.0-flash", Temperature: 0.2, MaxOutputTokens: 800}, discardLogger())
	require.NoError(t, err)
	e.worker, err = drafting.NewRetryController(orch, e.store.Tasks(), e.queue, drafting.DefaultRetryPolicy(), discardLogger())
	require.NoError(t, err)

	e.tasks, err = NewTaskService(e.store, e.stores(), e.store, e.queue, policy, discardLogger())
	require.NoError(t, err)
	e.reviews, err = NewReviewService(e.store, e.stores(), discardLogger())
	require.NoError(t, err)
	return e
}

// advance moves the queue clock so delayed jobs become visible.
func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
}

// putTable registers a table with content unique to it.
func (e *testEnv) putTable(projectID uuid.UUID) *domain.TableSchema {
	label := uuid.NewString()
	schema := &domain.TableSchema{
		ID:        uuid.New(),
		ProjectID: projectID,
		NRows:     2,
		NCols:     2,
		Cells: []domain.TableCell{
			{Row: 0, Col: 0, Text: "Item", IsHeader: true},
			{Row: 0, Col: 1, Text: "Limit", IsHeader: true},
			{Row: 1, Col: 0, Text: label},
			{Row: 1, Col: 1, Text: "10"},
		},
		Meta: domain.TableMeta{Detector: "stream", Confidence: 0.8},
	}
	e.store.PutTable(schema)
	return schema
}

// process hands every visible job to the worker.
func (e *testEnv) process(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for {
		d, err := e.queue.Dequeue(ctx, time.Minute)
		if errors.Is(err, task.ErrQueueEmpty) {
			return
		}
		require.NoError(t, err)
		disposition := e.worker.Handle(ctx, d)
		if disposition.Ack {
			require.NoError(t, e.queue.Ack(ctx, d))
		} else {
			require.NoError(t, e.queue.Nack(ctx, d, time.Hour))
		}
	}
}

func (e *testEnv) createTask(t *testing.T, projectID uuid.UUID) *domain.Task {
	t.Helper()
	schema := e.putTable(projectID)
	created, err := e.tasks.CreateTask(context.Background(), CreateTaskParams{TableID: schema.ID, ProjectID: projectID})
	require.NoError(t, err)
	return created
}

func (e *testEnv) readyTask(t *testing.T) *domain.Task {
	t.Helper()
	created := e.createTask(t, uuid.New())
	e.process(t)
	ready := e.load(t, created.ID)
	require.Equal(t, domain.TaskStatusReadyForAnnotation, ready.Status)
	return ready
}

// inProgress claims and starts a ready task for user and returns its live draft.
func (e *testEnv) inProgress(t *testing.T, user uuid.UUID) (*domain.Task, *domain.Draft) {
	t.Helper()
	ctx := context.Background()
	ready := e.readyTask(t)

	_, err := e.tasks.Claim(ctx, ready.ID, user)
	require.NoError(t, err)
	started, err := e.tasks.StartAnnotation(ctx, ready.ID, user)
	require.NoError(t, err)

	draft, err := e.store.Drafts().GetLiveByTask(ctx, ready.ID)
	require.NoError(t, err)
	return started, draft
}

func (e *testEnv) load(t *testing.T, id uuid.UUID) *domain.Task {
	t.Helper()
	got, err := e.store.Tasks().GetByID(context.Background(), id)
	require.NoError(t, err)
	return got
}
