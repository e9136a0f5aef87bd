package drafting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/generation"
	"github.com/phrazzld/guideline-api/internal/platform/logger"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/phrazzld/guideline-api/internal/task"
	"github.com/phrazzld/guideline-api/internal/workflow"
)

// GenerationOptions are the provider parameters of every attempt.
type GenerationOptions struct {
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Outcome describes an attempt that got past the start transition.
type Outcome struct {
	// Started is the task as it was right after entering GENERATING.
	Started *domain.Task

	// Task and Draft are set when the attempt succeeded.
	Task   *domain.Task
	Draft  *domain.Draft
	Reused bool
}

// trace is stored with every draft.
type trace struct {
	Provider      string                `json:"provider"`
	PromptVersion string                `json:"prompt_version"`
	Attempt       int                   `json:"attempt"`
	Force         bool                  `json:"force,omitempty"`
	ReusedFrom    string                `json:"reused_from,omitempty"`
	Validation    generation.Validation `json:"validation"`
}

// Orchestrator performs single generation attempts.
type Orchestrator struct {
	tx        store.Transactor
	tasks     store.TaskStore
	drafts    store.DraftStore
	tables    store.TableSource
	generator generation.Generator
	prices    *generation.PriceTable
	options   GenerationOptions
	logger    *slog.Logger
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator. tasks and drafts are used for
// reads outside transactions.
func NewOrchestrator(
	tx store.Transactor,
	stores store.Stores,
	tables store.TableSource,
	generator generation.Generator,
	prices *generation.PriceTable,
	options GenerationOptions,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if tx == nil || stores.Tasks == nil || stores.Drafts == nil {
		return nil, fmt.Errorf("%w: transactor and stores are required", domain.ErrValidation)
	}
	if tables == nil {
		return nil, fmt.Errorf("%w: table source is required", domain.ErrValidation)
	}
	if generator == nil {
		return nil, fmt.Errorf("%w: generator is required", generation.ErrInvalidConfig)
	}
	if options.Model == "" {
		return nil, fmt.Errorf("%w: model is required", generation.ErrInvalidConfig)
	}
	if prices == nil {
		prices = generation.NewPriceTable(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		tx:        tx,
		tasks:     stores.Tasks,
		drafts:    stores.Drafts,
		tables:    tables,
		generator: generator,
		prices:    prices,
		options:   options,
		logger:    logger.With(slog.String("component", "generation_orchestrator")),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run performs one attempt for job.
//
// Errors before the start transition leave the task untouched: store.ErrNotFound
// variants, *domain.TransitionError when the task is not waiting for a draft,
// and store.ErrConflict when another worker won the start. Once started, a
// provider failure is returned as *generation.Error together with an Outcome
// carrying the started task, so the caller can record the failure.
func (o *Orchestrator) Run(ctx context.Context, job task.Job) (*Outcome, error) {
	log := logger.FromContextOrDefault(ctx, o.logger).With(
		slog.String("task_id", job.TaskID.String()),
		slog.Int("attempt", job.Attempt))

	current, err := o.tasks.GetByID(ctx, job.TaskID)
	if err != nil {
		return nil, err
	}

	start, err := o.startWrite(current, job)
	if err != nil {
		return nil, err
	}

	schema, err := o.tables.GetTable(ctx, current.TableID)
	if err != nil {
		return nil, err
	}
	prompt, err := generation.BuildPrompt(schema)
	if err != nil {
		return nil, err
	}
	hash := generation.PromptHash(o.options.Model, prompt)

	var source *domain.Draft
	if !job.Force {
		source, err = o.drafts.FindReusable(ctx, hash)
		if err != nil && !errors.Is(err, store.ErrDraftNotFound) {
			return nil, err
		}
		// A task never reuses its own content: a draft of its own can only
		// exist when that draft is being replaced.
		if source != nil && source.TaskID == current.ID {
			log.Info("skipping reuse of the task's own draft", slog.String("draft_id", source.ID.String()))
			source = nil
		}
	}

	started, err := o.tasks.ApplyTransition(ctx, start)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			log.Info("generation already claimed by another worker")
		}
		return nil, err
	}
	out := &Outcome{Started: started}
	log.Info("generation started", slog.String("event", string(start.Transition.Event)))

	var draft *domain.Draft
	if source != nil {
		draft, err = o.reuse(started.ID, source, job)
		out.Reused = true
	} else {
		draft, err = o.generate(ctx, started.ID, prompt, hash, job)
	}
	if err != nil {
		return out, err
	}

	updated, err := o.complete(ctx, started, draft)
	if err != nil {
		return out, err
	}
	out.Task = updated
	out.Draft = draft

	log.Info("draft stored",
		slog.String("draft_id", draft.ID.String()),
		slog.Bool("reused", out.Reused),
		slog.Int("input_tokens", draft.Usage.InputTokens),
		slog.Int("output_tokens", draft.Usage.OutputTokens),
		slog.Float64("cost_usd", draft.Usage.CostUSD))
	return out, nil
}

// startWrite picks the start event for the task's current state. Retry jobs
// only start while the task still has the retry count they were published with.
func (o *Orchestrator) startWrite(current *domain.Task, job task.Job) (store.TransitionWrite, error) {
	event := workflow.EventGenerationStarted
	if current.DraftStatus == domain.DraftStatusFailed {
		event = workflow.EventRetryStarted
	}

	tr, err := workflow.Apply(current.State(), event)
	if err != nil {
		return store.TransitionWrite{}, err
	}

	var expected *int
	if event == workflow.EventRetryStarted {
		if current.RetryCount != job.Attempt {
			return store.TransitionWrite{}, fmt.Errorf("%w: retry job for attempt %d, task at %d",
				store.ErrConflict, job.Attempt, current.RetryCount)
		}
		attempt := job.Attempt
		expected = &attempt
	}
	return store.TransitionWrite{
		TaskID:             current.ID,
		Transition:         tr,
		ExpectedRetryCount: expected,
		Detail:             fmt.Sprintf("job=%s", job.ID),
	}, nil
}

func (o *Orchestrator) reuse(taskID uuid.UUID, source *domain.Draft, job task.Job) (*domain.Draft, error) {
	draft, err := domain.NewReusedDraft(taskID, source)
	if err != nil {
		return nil, err
	}
	draft.Trace, err = json.Marshal(trace{
		Provider:      o.generator.Name(),
		PromptVersion: source.PromptVersion,
		Attempt:       job.Attempt,
		ReusedFrom:    draft.Usage.OriginalDraftID.String(),
		Validation:    generation.ValidateDraft(source.Text),
	})
	if err != nil {
		return nil, fmt.Errorf("encode trace: %w", err)
	}
	return draft, nil
}

func (o *Orchestrator) generate(ctx context.Context, taskID uuid.UUID, prompt, hash string, job task.Job) (*domain.Draft, error) {
	// The provider call is not tied to the delivery lease.
	callCtx := context.WithoutCancel(ctx)

	began := time.Now()
	result, err := o.generator.Generate(callCtx, generation.Request{
		Prompt:          prompt,
		Model:           o.options.Model,
		Temperature:     o.options.Temperature,
		MaxOutputTokens: o.options.MaxOutputTokens,
	})
	elapsed := time.Since(began)
	if err != nil {
		var genErr *generation.Error
		if !errors.As(err, &genErr) {
			err = generation.NewError(o.generator.Name(), generation.KindUnknown, err)
		}
		return nil, err
	}

	validation := generation.ValidateDraft(result.Text)
	encoded, err := json.Marshal(trace{
		Provider:      o.generator.Name(),
		PromptVersion: generation.PromptVersion,
		Attempt:       job.Attempt,
		Force:         job.Force,
		Validation:    validation,
	})
	if err != nil {
		return nil, fmt.Errorf("encode trace: %w", err)
	}

	draft, err := domain.NewDraft(taskID, domain.GeneratedContent{
		ModelName:     o.options.Model,
		PromptVersion: generation.PromptVersion,
		PromptHash:    hash,
		Text:          result.Text,
		Usage: domain.Usage{
			InputTokens:  result.InputTokens,
			OutputTokens: result.OutputTokens,
			CostUSD:      o.prices.Cost(o.options.Model, result.InputTokens, result.OutputTokens),
		},
		Trace:       encoded,
		Elapsed:     elapsed,
		Temperature: o.options.Temperature,
	})
	if err != nil {
		return nil, generation.NewError(o.generator.Name(), generation.KindResponse, err)
	}
	return draft, nil
}

// complete stores the draft and marks the generation succeeded in one
// transaction. A live draft left by a forced regeneration is superseded.
func (o *Orchestrator) complete(ctx context.Context, started *domain.Task, draft *domain.Draft) (*domain.Task, error) {
	tr, err := workflow.Apply(started.State(), workflow.EventGenerationSucceeded)
	if err != nil {
		return nil, err
	}
	expected := started.RetryCount

	var updated *domain.Task
	err = o.tx.WithinTx(ctx, func(ctx context.Context, s store.Stores) error {
		if _, err := s.Drafts.Supersede(ctx, started.ID, o.now()); err != nil {
			return err
		}
		if err := s.Drafts.Create(ctx, draft); err != nil {
			return err
		}
		updated, err = s.Tasks.ApplyTransition(ctx, store.TransitionWrite{
			TaskID:             started.ID,
			Transition:         tr,
			ExpectedRetryCount: &expected,
			Detail:             fmt.Sprintf("draft=%s", draft.ID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
