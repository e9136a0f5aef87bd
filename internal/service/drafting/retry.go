package drafting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/generation"
	"github.com/phrazzld/guideline-api/internal/platform/logger"
	"github.com/phrazzld/guideline-api/internal/redact"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/task"
	"github.com/phrazzld/guideline-api/internal/workflow"
)

// maxStoredErrorLength bounds the redacted last_error kept on a task.
const maxStoredErrorLength = 1000

// RetryPolicy bounds automatic generation retries.
type RetryPolicy struct {
	// MaxRetries is the number of automatic attempts per cycle. A cycle
	// starts at creation and at every manual retry.
	MaxRetries int

	// BaseDelay and BackoffFactor give the delay before automatic attempt
	// n+1 as BaseDelay * BackoffFactor^(n-1).
	BaseDelay     time.Duration
	BackoffFactor float64

	// NackDelay is the redelivery delay after a storage error.
	NackDelay time.Duration
}

// DefaultRetryPolicy returns a RetryPolicy with reasonable defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    3,
		BaseDelay:     60 * time.Second,
		BackoffFactor: 2.0,
		NackDelay:     5 * time.Second,
	}
}

// Backoff returns the delay after the failed automatic attempt number attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt-1)))
}

// RetryController handles generation jobs and records their failures.
type RetryController struct {
	orchestrator *Orchestrator
	tasks        store.TaskStore
	queue        task.Queue
	policy       RetryPolicy
	logger       *slog.Logger
}

var _ task.Handler = (*RetryController)(nil)

// NewRetryController creates a RetryController.
func NewRetryController(
	orchestrator *Orchestrator,
	tasks store.TaskStore,
	queue task.Queue,
	policy RetryPolicy,
	logger *slog.Logger,
) (*RetryController, error) {
	if orchestrator == nil {
		return nil, fmt.Errorf("%w: orchestrator is required", domain.ErrValidation)
	}
	if tasks == nil || queue == nil {
		return nil, fmt.Errorf("%w: task store and queue are required", domain.ErrValidation)
	}
	if policy.MaxRetries < 0 || policy.BackoffFactor < 1 || policy.BaseDelay < 0 {
		return nil, fmt.Errorf("%w: invalid retry policy", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RetryController{
		orchestrator: orchestrator,
		tasks:        tasks,
		queue:        queue,
		policy:       policy,
		logger:       logger.With(slog.String("component", "retry_controller")),
	}, nil
}

// Handle implements task.Handler.
func (c *RetryController) Handle(ctx context.Context, d *task.Delivery) task.Disposition {
	log := logger.FromContextOrDefault(ctx, c.logger).With(
		slog.String("job_id", d.ID.String()),
		slog.String("task_id", d.TaskID.String()),
		slog.Int("deliveries", d.Deliveries))

	out, err := c.orchestrator.Run(ctx, d.Job)
	if err == nil {
		return task.Done()
	}
	started := out != nil && out.Started != nil

	switch {
	case started && errors.Is(err, generation.ErrGeneration):
		log.Warn("generation attempt failed",
			slog.String("kind", string(generation.KindOf(err))),
			slog.String("error", redact.Error(err)))
		if _, failErr := c.Fail(ctx, out.Started, err, d.Force); failErr != nil {
			return c.failureNotRecorded(log, failErr)
		}
		return task.Done()

	case store.IsNotFoundError(err),
		errors.Is(err, domain.ErrInvalidStateTransition),
		errors.Is(err, store.ErrConflict):
		log.Info("dropping generation job", slog.String("reason", redact.Error(err)))
		return task.Done()

	case started:
		log.Error("storing generation result failed", slog.String("error", redact.Error(err)))
		cause := generation.NewError(c.orchestrator.generator.Name(), generation.KindUnknown, err)
		if _, failErr := c.Fail(ctx, out.Started, cause, d.Force); failErr != nil {
			return c.failureNotRecorded(log, failErr)
		}
		return task.Done()

	default:
		log.Warn("generation job failed before start, redelivering",
			slog.String("error", redact.Error(err)),
			slog.Duration("delay", c.policy.NackDelay))
		return task.Redeliver(c.policy.NackDelay)
	}
}

// failureNotRecorded leaves the task in GENERATING. A redelivery finds it
// there and is dropped; the abandoned generation sweep fails it later.
func (c *RetryController) failureNotRecorded(log *slog.Logger, err error) task.Disposition {
	if errors.Is(err, store.ErrConflict) {
		log.Info("task moved on before failure was recorded")
		return task.Done()
	}
	log.Error("recording generation failure failed", slog.String("error", redact.Error(err)))
	return task.Redeliver(c.policy.NackDelay)
}

// Fail records a failed attempt on a task in GENERATING and schedules the
// next automatic attempt while the cycle's budget lasts. It returns the
// updated task.
func (c *RetryController) Fail(ctx context.Context, started *domain.Task, cause error, force bool) (*domain.Task, error) {
	log := logger.FromContextOrDefault(ctx, c.logger).With(slog.String("task_id", started.ID.String()))

	attempts := started.AutomaticAttempts() + 1
	event := workflow.EventGenerationFailed
	if attempts >= c.policy.MaxRetries {
		event = workflow.EventGenerationExhausted
	}

	tr, err := workflow.Apply(started.State(), event)
	if err != nil {
		return nil, err
	}
	expected := started.RetryCount
	updated, err := c.tasks.ApplyTransition(ctx, store.TransitionWrite{
		TaskID:             started.ID,
		Transition:         tr,
		ExpectedRetryCount: &expected,
		LastError:          redact.ErrorMessage(cause, maxStoredErrorLength),
		Detail:             fmt.Sprintf("kind=%s attempt=%d", generation.KindOf(cause), attempts),
	})
	if err != nil {
		return nil, err
	}

	if event == workflow.EventGenerationExhausted {
		log.Warn("generation retries exhausted",
			slog.Int("retry_count", updated.RetryCount),
			slog.Int("attempts", attempts))
		return updated, nil
	}

	delay := c.policy.Backoff(attempts)
	job := task.NewGenerationJob(updated.ID, updated.RetryCount, force, updated.Priority)
	if err := c.queue.Enqueue(ctx, job, delay); err != nil {
		// The task stays at AWAITING_DRAFT/FAILED where a manual retry
		// picks it up.
		log.Error("scheduling generation retry failed",
			slog.String("error", redact.Error(err)))
		return updated, nil
	}

	log.Info("generation retry scheduled",
		slog.Int("retry_count", updated.RetryCount),
		slog.Duration("delay", delay))
	return updated, nil
}

// RecoverAbandoned fails a task whose generation never finished.
func (c *RetryController) RecoverAbandoned(ctx context.Context, stuck *domain.Task) (*domain.Task, error) {
	cause := generation.NewError("worker", generation.KindAbandoned,
		fmt.Errorf("generating since %s", stuck.UpdatedAt.Format(time.RFC3339)))
	return c.Fail(ctx, stuck, cause, false)
}
