package drafting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/generation"
	"github.com/phrazzld/guideline-api/internal/mocks"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/task"
	"github.com/stretchr/testify/require"
)

const testModel = "gemini-2.0-flash"

// fixture wires an orchestrator and retry controller over in-memory fakes
// sharing one fake clock.
type fixture struct {
	store *mocks.MemoryStore
	gen   *mocks.Generator
	queue *task.MemoryQueue
	orch  *Orchestrator
	ctrl  *RetryController
	now   time.Time
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, responses ...mocks.Response) *fixture {
	t.Helper()

	f := &fixture{
		store: mocks.NewMemoryStore(),
		gen:   mocks.NewGenerator(responses...),
		now:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)
	f.queue = task.NewMemoryQueue(100, discardLogger(), task.WithClock(clock))

	stores := store.Stores{Tasks: f.store.Tasks(), Drafts: f.store.Drafts(), Reviews: f.store.Reviews()}
	orch, err := NewOrchestrator(f.store, stores, f.store, f.gen, nil,
		GenerationOptions{Model: testModel, Temperature: 0.3, MaxOutputTokens: 1000}, discardLogger())
	require.NoError(t, err)
	orch.now = clock
	f.orch = orch

	ctrl, err := NewRetryController(orch, stores.Tasks, f.queue, DefaultRetryPolicy(), discardLogger())
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

// table registers a rows x cols table whose cell texts depend on label.
func (f *fixture) table(rows, cols int, label string) *domain.TableSchema {
	schema := &domain.TableSchema{
		ID:        uuid.New(),
		ProjectID: uuid.New(),
		NRows:     rows,
		NCols:     cols,
		Meta:      domain.TableMeta{Detector: "lattice", Confidence: 0.92},
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			schema.Cells = append(schema.Cells, domain.TableCell{
				Row:      r,
				Col:      c,
				Text:     fmt.Sprintf("%s-%d-%d", label, r, c),
				IsHeader: r == 0,
			})
		}
	}
	f.store.PutTable(schema)
	return schema
}

func (f *fixture) newTask(t *testing.T, schema *domain.TableSchema) *domain.Task {
	t.Helper()
	created, err := domain.NewTask(schema.ID, schema.ProjectID, 0)
	require.NoError(t, err)
	require.NoError(t, f.store.Tasks().Create(context.Background(), created))
	return created
}

func (f *fixture) task(t *testing.T, id uuid.UUID) *domain.Task {
	t.Helper()
	got, err := f.store.Tasks().GetByID(context.Background(), id)
	require.NoError(t, err)
	return got
}

func delivery(job task.Job) *task.Delivery {
	return &task.Delivery{Job: job, Token: uuid.New(), Deliveries: 1}
}

// drain delivers every visible job to the controller until the queue has
// nothing visible, settling deliveries the way the runner does.
func (f *fixture) drain(t *testing.T) int {
	t.Helper()
	ctx := context.Background()
	handled := 0
	for {
		d, err := f.queue.Dequeue(ctx, time.Minute)
		if errors.Is(err, task.ErrQueueEmpty) {
			return handled
		}
		require.NoError(t, err)
		handled++

		disposition := f.ctrl.Handle(ctx, d)
		if disposition.Ack {
			require.NoError(t, f.queue.Ack(ctx, d))
		} else {
			require.NoError(t, f.queue.Nack(ctx, d, disposition.Delay))
		}
	}
}

func networkFailure() mocks.Response {
	return mocks.Fail(generation.KindNetwork, errors.New("dial tcp 10.0.0.1:443: connection refused"))
}
