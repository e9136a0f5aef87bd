package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

// Disposition is a handler's verdict on a delivery.
type Disposition struct {
	Ack   bool
	Delay time.Duration
}

// Done acknowledges the delivery.
func Done() Disposition {
	return Disposition{Ack: true}
}

// Redeliver releases the delivery to be retried after delay.
func Redeliver(delay time.Duration) Disposition {
	return Disposition{Delay: delay}
}

// Handler processes deliveries of one job type.
type Handler interface {
	Handle(ctx context.Context, d *Delivery) Disposition
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d *Delivery) Disposition

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, d *Delivery) Disposition {
	return f(ctx, d)
}

// RunnerConfig holds configuration for the task runner
type RunnerConfig struct {
	// WorkerCount determines how many concurrent pollers process jobs
	WorkerCount int

	// PollInterval is how long a poller sleeps when the queue is empty
	PollInterval time.Duration

	// VisibilityTimeout is the lease taken on each dequeued job
	VisibilityTimeout time.Duration

	// NackDelay is the redelivery delay after a handler panic
	NackDelay time.Duration
}

// DefaultRunnerConfig returns a RunnerConfig with reasonable defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		WorkerCount:       2,
		PollInterval:      time.Second,
		VisibilityTimeout: 5 * time.Minute,
		NackDelay:         5 * time.Second,
	}
}

// Runner pulls jobs from a Queue and dispatches them by type.
type Runner struct {
	queue    Queue
	config   RunnerConfig
	logger   *slog.Logger
	handlers map[JobType]Handler

	mu      sync.Mutex
	cancel  context.CancelFunc
	workers *conc.WaitGroup
}

// NewRunner creates a Runner. Invalid config values fall back to the defaults.
func NewRunner(queue Queue, config RunnerConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultRunnerConfig()
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", defaults.WorkerCount)
		config.WorkerCount = defaults.WorkerCount
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = defaults.VisibilityTimeout
	}
	if config.NackDelay < 0 {
		config.NackDelay = defaults.NackDelay
	}

	return &Runner{
		queue:    queue,
		config:   config,
		logger:   logger.With(slog.String("component", "task_runner")),
		handlers: make(map[JobType]Handler),
	}
}

// Register sets the handler for a job type. It must be called before Start.
func (r *Runner) Register(jobType JobType, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = handler
}

// Start launches the pollers.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return errors.New("task runner already started")
	}
	if len(r.handlers) == 0 {
		return errors.New("task runner has no handlers registered")
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.workers = conc.NewWaitGroup()

	for i := 0; i < r.config.WorkerCount; i++ {
		id := i
		r.workers.Go(func() { r.poll(ctx, id) })
	}

	r.logger.Info("task runner started", "worker_count", r.config.WorkerCount)
	return nil
}

// Stop cancels the pollers and waits for in-flight jobs to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	cancel, workers := r.cancel, r.workers
	r.cancel, r.workers = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	if recovered := workers.WaitAndRecover(); recovered != nil {
		r.logger.Error("task runner worker panicked", "panic", recovered.String())
	}
	r.logger.Info("task runner stopped")
}

func (r *Runner) poll(ctx context.Context, id int) {
	log := r.logger.With("worker_id", id)
	log.Debug("starting worker")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("stopping worker")
			return
		case <-timer.C:
		}

		processed, err := r.ProcessNext(ctx)
		switch {
		case errors.Is(err, ErrQueueClosed):
			log.Debug("task queue closed, stopping worker")
			return
		case err != nil && ctx.Err() == nil:
			log.Error("failed to process job", "error", err)
		}

		if processed {
			timer.Reset(0)
		} else {
			timer.Reset(r.config.PollInterval)
		}
	}
}

// ProcessNext leases and handles one job. It reports whether a job was
// processed; an empty queue is not an error.
func (r *Runner) ProcessNext(ctx context.Context) (bool, error) {
	delivery, err := r.queue.Dequeue(ctx, r.config.VisibilityTimeout)
	if errors.Is(err, ErrQueueEmpty) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to dequeue job: %w", err)
	}

	log := r.logger.With(
		"job_id", delivery.ID,
		"job_type", delivery.Type,
		"task_id", delivery.TaskID,
		"delivery", delivery.Deliveries,
	)

	r.mu.Lock()
	handler, ok := r.handlers[delivery.Type]
	r.mu.Unlock()
	if !ok {
		log.Error("no handler registered for job type, dropping job")
		return true, r.settle(ctx, delivery, Done())
	}

	var disposition Disposition
	var catcher panics.Catcher
	catcher.Try(func() {
		disposition = handler.Handle(ctx, delivery)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		log.Error("job handler panicked", "panic", recovered.String())
		disposition = Redeliver(r.config.NackDelay)
	}

	return true, r.settle(ctx, delivery, disposition)
}

func (r *Runner) settle(ctx context.Context, d *Delivery, disposition Disposition) error {
	// Settle even when the runner is stopping so finished work is not redelivered.
	ctx = context.WithoutCancel(ctx)
	if disposition.Ack {
		if err := r.queue.Ack(ctx, d); err != nil {
			return fmt.Errorf("failed to ack job %s: %w", d.ID, err)
		}
		return nil
	}
	if err := r.queue.Nack(ctx, d, disposition.Delay); err != nil {
		return fmt.Errorf("failed to nack job %s: %w", d.ID, err)
	}
	return nil
}
