package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/guideline-api/internal/config"
	"github.com/phrazzld/guideline-api/internal/generation"
	"github.com/phrazzld/guideline-api/internal/maintenance"
	"github.com/phrazzld/guideline-api/internal/platform/gemini"
	"github.com/phrazzld/guideline-api/internal/platform/openai"
	"github.com/phrazzld/guideline-api/internal/platform/postgres"
	"github.com/phrazzld/guideline-api/internal/ratelimit"
	"github.com/phrazzld/guideline-api/internal/redact"
	"github.com/phrazzld/guideline-api/internal/service"
	"github.com/phrazzld/guideline-api/internal/service/drafting"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/task"
)

// dependencies are the storage and provider implementations the
// application is assembled from.
type dependencies struct {
	tx        store.Transactor
	stores    store.Stores
	tables    store.TableSource
	stats     store.StatsStore
	queue     task.Queue
	limiter   ratelimit.Store
	generator generation.Generator
}

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	taskService   service.TaskService
	reviewService service.ReviewService
	statsService  service.StatsService
	draftService  service.DraftService
	limiter       ratelimit.Store

	runner  *task.Runner
	sweeper *maintenance.Sweeper
	queue   task.Queue
}

// newApplication wires the Postgres backed application.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	transactor := postgres.NewTransactor(db, logger)
	deps := dependencies{
		tx:     transactor,
		stores: transactor.Stores(),
		tables: postgres.NewPostgresTableSource(db),
		stats:  postgres.NewPostgresStatsStore(db, logger),
	}

	switch cfg.Task.QueueBackend {
	case "memory":
		logger.Warn("using in-memory job queue: jobs are lost on restart")
		deps.queue = task.NewMemoryQueue(cfg.Task.QueueCapacity, logger)
	default:
		deps.queue = postgres.NewJobQueue(db, logger)
	}

	switch cfg.RateLimit.Backend {
	case "memory":
		limiter, err := ratelimit.NewMemoryStore(cfg.RateLimit.MaxKeys)
		if err != nil {
			return nil, fmt.Errorf("%w: rate limit max keys: %v", config.ErrConfiguration, err)
		}
		deps.limiter = limiter
	default:
		deps.limiter = postgres.NewRateLimitStore(db)
	}

	generator, err := newGenerator(ctx, cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	deps.generator = generator

	app, err := assemble(cfg, logger, deps)
	if err != nil {
		return nil, err
	}
	app.db = db
	return app, nil
}

// newGenerator builds the configured provider. The mock provider is only
// used when selected explicitly.
func newGenerator(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (generation.Generator, error) {
	log := logger.With(slog.String("component", "llm_generator"))
	switch cfg.Provider {
	case "gemini":
		return gemini.NewGeminiGenerator(ctx, log, cfg)
	case "openai":
		return openai.NewClient(log, cfg)
	case "mock":
		log.Warn("using mock generation provider")
		return generation.NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", config.ErrConfiguration, cfg.Provider)
	}
}

// assemble builds services, workers and the scheduler from deps.
func assemble(cfg *config.Config, logger *slog.Logger, deps dependencies) (*application, error) {
	app := &application{
		config:  cfg,
		logger:  logger,
		limiter: deps.limiter,
		queue:   deps.queue,
	}

	orchestrator, err := drafting.NewOrchestrator(
		deps.tx,
		deps.stores,
		deps.tables,
		deps.generator,
		generation.NewPriceTable(cfg.LLM.PriceOverrides()),
		drafting.GenerationOptions{
			Model:           cfg.LLM.Model,
			Temperature:     cfg.LLM.Temperature,
			MaxOutputTokens: cfg.LLM.MaxOutputTokens,
		},
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create generation orchestrator: %w", err)
	}

	controller, err := drafting.NewRetryController(orchestrator, deps.stores.Tasks, deps.queue, drafting.RetryPolicy{
		MaxRetries:    cfg.Task.MaxRetries,
		BaseDelay:     cfg.Task.BaseDelay,
		BackoffFactor: cfg.Task.BackoffFactor,
		NackDelay:     cfg.Task.NackDelay,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create retry controller: %w", err)
	}

	app.runner = task.NewRunner(deps.queue, task.RunnerConfig{
		WorkerCount:       cfg.Task.WorkerCount,
		PollInterval:      cfg.Task.PollInterval,
		VisibilityTimeout: cfg.Task.VisibilityTimeout,
		NackDelay:         cfg.Task.NackDelay,
	}, logger)
	app.runner.Register(task.JobTypeGenerateDraft, controller)

	var pruner ratelimit.Pruner
	if cfg.RateLimit.Enabled {
		pruner, _ = deps.limiter.(ratelimit.Pruner)
	}
	app.sweeper, err = maintenance.NewSweeper(deps.stores.Tasks, controller, pruner,
		maintenance.ConfigFrom(cfg.Maintenance, cfg.Task, cfg.RateLimit), logger)
	if err != nil {
		return nil, err
	}

	app.taskService, err = service.NewTaskService(deps.tx, deps.stores, deps.tables, deps.queue, cfg.Workflow, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}
	app.reviewService, err = service.NewReviewService(deps.tx, deps.stores, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create review service: %w", err)
	}
	app.statsService, err = service.NewStatsService(deps.stats, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats service: %w", err)
	}
	app.draftService, err = service.NewDraftService(deps.stores.Drafts, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create draft service: %w", err)
	}

	logger.Info("application initialized",
		slog.String("llm_provider", deps.generator.Name()),
		slog.String("model", cfg.LLM.Model),
		slog.Int("worker_count", cfg.Task.WorkerCount))
	return app, nil
}

// Run starts the workers, the scheduler and the HTTP server, and blocks
// until the server shuts down.
func (app *application) Run(ctx context.Context) error {
	router, err := app.setupRouter()
	if err != nil {
		return err
	}

	if err := app.runner.Start(ctx); err != nil {
		app.cleanup(ctx)
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	app.sweeper.Start()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup stops background work and closes the database.
func (app *application) cleanup(ctx context.Context) {
	if app.sweeper != nil {
		if err := app.sweeper.Stop(ctx); err != nil {
			app.logger.Warn("maintenance sweeps still running at shutdown",
				slog.String("error", redact.Error(err)))
		}
	}
	if app.runner != nil {
		app.runner.Stop()
	}
	if closer, ok := app.queue.(interface{ Close() }); ok {
		closer.Close()
	}
	if app.db != nil {
		closeDatabase(app.db, app.logger)
	}
}
