package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/config"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/generation"
	"github.com/phrazzld/guideline-api/internal/mocks"
	"github.com/phrazzld/guideline-api/internal/ratelimit"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "info", ShutdownTimeout: time.Second},
		LLM: config.LLMConfig{
			Provider:        "mock",
			Model:           "gemini-2.0-flash",
			Temperature:     0.2,
			MaxOutputTokens: 500,
			RequestTimeout:  time.Second,
		},
		Task: config.TaskConfig{
			WorkerCount:        1,
			QueueBackend:       "memory",
			QueueCapacity:      10,
			PollInterval:       10 * time.Millisecond,
			VisibilityTimeout:  time.Minute,
			NackDelay:          time.Second,
			MaxRetries:         3,
			BaseDelay:          time.Minute,
			BackoffFactor:      2,
			StuckGenerationAge: 30 * time.Minute,
		},
		Maintenance: config.MaintenanceConfig{
			ErrorRedactionSchedule: "@hourly",
			StuckRecoverySchedule:  "@every 15m",
			RateLimitPruneSchedule: "@every 10m",
			ErrorRetention:         24 * time.Hour,
			BatchSize:              10,
		},
		RateLimit: config.RateLimitConfig{
			Enabled:  true,
			Backend:  "memory",
			Requests: 100,
			Window:   time.Minute,
			MaxKeys:  100,
		},
	}
}

type testApp struct {
	*application
	store  *mocks.MemoryStore
	router http.Handler
}

func newTestApp(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	memory := mocks.NewMemoryStore()
	limiter, err := ratelimit.NewMemoryStore(cfg.RateLimit.MaxKeys)
	require.NoError(t, err)

	app, err := assemble(cfg, logger, dependencies{
		tx:        memory,
		stores:    store.Stores{Tasks: memory.Tasks(), Drafts: memory.Drafts(), Reviews: memory.Reviews()},
		tables:    memory,
		stats:     memory,
		queue:     task.NewMemoryQueue(cfg.Task.QueueCapacity, logger),
		limiter:   limiter,
		generator: generation.NewMockGenerator(),
	})
	require.NoError(t, err)

	router, err := app.setupRouter()
	require.NoError(t, err)
	return &testApp{application: app, store: memory, router: router}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	rr := httptest.NewRecorder()
	a.router.ServeHTTP(rr, httptest.NewRequest(method, path, reader))
	return rr
}

func TestHealth(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, testConfig())

	rr := app.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Trace-ID"))
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/tasks", nil)
	req.Header.Set("Origin", "https://annotate.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	// Browsers send the requested header names lowercased.
	req.Header.Set("Access-Control-Request-Headers", "x-user-id")
	rr := httptest.NewRecorder()
	app.router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rr.Header().Get("Access-Control-Allow-Headers"))
}

// TestGenerationEndToEnd drives a task from creation to a generated draft
// through the HTTP routes and the running workers.
func TestGenerationEndToEnd(t *testing.T) {
	t.Parallel()
	app := newTestApp(t, testConfig())
	projectID := uuid.New()
	schema := &domain.TableSchema{
		ID:        uuid.New(),
		ProjectID: projectID,
		NRows:     1,
		NCols:     1,
		Cells:     []domain.TableCell{{Row: 0, Col: 0, Text: "Deductible", IsHeader: true}},
	}
	app.store.PutTable(schema)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, app.runner.Start(ctx))
	defer app.runner.Stop()

	rr := app.do(t, http.MethodPost, "/api/v1/tasks", map[string]interface{}{
		"table_id":   schema.ID.String(),
		"project_id": projectID.String(),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created struct {
		TaskID string `json:"task_id"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	require.Eventually(t, func() bool {
		rr := app.do(t, http.MethodGet, "/api/v1/tasks/"+created.TaskID, nil)
		var detail struct {
			Task domain.Task `json:"task"`
		}
		if json.Unmarshal(rr.Body.Bytes(), &detail) != nil {
			return false
		}
		return detail.Task.Status == domain.TaskStatusReadyForAnnotation
	}, 5*time.Second, 20*time.Millisecond)

	rr = app.do(t, http.MethodGet, "/api/v1/projects/"+projectID.String()+"/progress", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var progress domain.Progress
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &progress))
	assert.Equal(t, 1, progress.ByDraftStatus[domain.DraftStatusSucceeded])
}

func TestRateLimitedRoutes(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.RateLimit.Requests = 1
	app := newTestApp(t, cfg)

	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/api/v1/tasks", nil).Code)
	rr := app.do(t, http.MethodGet, "/api/v1/tasks", nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, app.do(t, http.MethodGet, "/health", nil).Code, "health is not limited")

	cfg = testConfig()
	cfg.RateLimit.Enabled = false
	cfg.RateLimit.Requests = 1
	open := newTestApp(t, cfg)
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, open.do(t, http.MethodGet, "/api/v1/tasks", nil).Code)
	}
}

func TestNewGenerator(t *testing.T) {
	t.Parallel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	gen, err := newGenerator(context.Background(), config.LLMConfig{Provider: "mock"}, logger)
	require.NoError(t, err)
	assert.Equal(t, "mock", gen.Name())

	_, err = newGenerator(context.Background(), config.LLMConfig{Provider: "claude"}, logger)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestValidateMigrateCommand(t *testing.T) {
	t.Parallel()
	for _, command := range []string{"up", "down", "status", "version"} {
		assert.NoError(t, validateMigrateCommand(command))
	}
	assert.Error(t, validateMigrateCommand("create"))
}

func TestAssembleRejectsInvalidSchedules(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Maintenance.StuckRecoverySchedule = "whenever"
	memory := mocks.NewMemoryStore()
	_, err := assemble(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), dependencies{
		tx:        memory,
		stores:    store.Stores{Tasks: memory.Tasks(), Drafts: memory.Drafts(), Reviews: memory.Reviews()},
		tables:    memory,
		stats:     memory,
		queue:     task.NewMemoryQueue(1, nil),
		generator: generation.NewMockGenerator(),
	})
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
