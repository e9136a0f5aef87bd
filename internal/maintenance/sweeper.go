package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/guideline-api/internal/config"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/ratelimit"
	"github.com/phrazzld/guideline-api/internal/redact"
	"github.com/phrazzld/guideline-api/internal/store"
	"github.com/robfig/cron/v3"
)

// Recoverer fails a task stuck in GENERATING.
type Recoverer interface {
	RecoverAbandoned(ctx context.Context, stuck *domain.Task) (*domain.Task, error)
}

// Config schedules the sweeps. An empty schedule disables its sweep.
type Config struct {
	RedactionSchedule string
	RecoverySchedule  string
	PruneSchedule     string
	ErrorRetention    time.Duration
	StuckAge          time.Duration
	RateLimitWindow   time.Duration
	BatchSize         int
}

// ConfigFrom builds a Config from the application configuration.
func ConfigFrom(m config.MaintenanceConfig, t config.TaskConfig, r config.RateLimitConfig) Config {
	return Config{
		RedactionSchedule: m.ErrorRedactionSchedule,
		RecoverySchedule:  m.StuckRecoverySchedule,
		PruneSchedule:     m.RateLimitPruneSchedule,
		ErrorRetention:    m.ErrorRetention,
		StuckAge:          t.StuckGenerationAge,
		RateLimitWindow:   r.Window,
		BatchSize:         m.BatchSize,
	}
}

// parser accepts standard five field specs, an optional seconds field and
// descriptors such as @hourly or @every 15m.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Sweeper runs the maintenance sweeps on their schedules.
type Sweeper struct {
	tasks     store.TaskStore
	recoverer Recoverer
	pruner    ratelimit.Pruner
	config    Config
	cron      *cron.Cron
	logger    *slog.Logger
	now       func() time.Time
}

// NewSweeper creates a Sweeper. Invalid schedules are configuration errors.
// A nil pruner disables rate limit pruning.
func NewSweeper(tasks store.TaskStore, recoverer Recoverer, pruner ratelimit.Pruner, cfg Config, logger *slog.Logger) (*Sweeper, error) {
	if tasks == nil || recoverer == nil {
		return nil, fmt.Errorf("%w: task store and recoverer are required", domain.ErrValidation)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: maintenance batch size must be positive", config.ErrConfiguration)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "maintenance"))

	cronLog := cronLogger{logger: logger}
	s := &Sweeper{
		tasks:     tasks,
		recoverer: recoverer,
		pruner:    pruner,
		config:    cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}

	if err := s.schedule(cfg.RedactionSchedule, "error_redaction", s.RedactStaleErrors); err != nil {
		return nil, err
	}
	if err := s.schedule(cfg.RecoverySchedule, "stuck_recovery", s.RecoverStuck); err != nil {
		return nil, err
	}
	if pruner != nil {
		if cfg.RateLimitWindow <= 0 {
			return nil, fmt.Errorf("%w: rate limit window must be positive", config.ErrConfiguration)
		}
		if err := s.schedule(cfg.PruneSchedule, "rate_limit_prune", s.PruneRateLimits); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Sweeper) schedule(spec, name string, sweep func(context.Context) (int, error)) error {
	if spec == "" {
		s.logger.Info("maintenance sweep disabled", slog.String("sweep", name))
		return nil
	}
	_, err := s.cron.AddFunc(spec, func() {
		started := time.Now()
		n, err := sweep(context.Background())
		if err != nil {
			s.logger.Error("maintenance sweep failed",
				slog.String("sweep", name),
				slog.String("error", redact.Error(err)))
			return
		}
		s.logger.Info("maintenance sweep finished",
			slog.String("sweep", name),
			slog.Int("affected", n),
			slog.Duration("elapsed", time.Since(started)))
	})
	if err != nil {
		return fmt.Errorf("%w: %s schedule %q: %v", config.ErrConfiguration, name, spec, err)
	}
	return nil
}

// Start begins running the scheduled sweeps.
func (s *Sweeper) Start() {
	s.cron.Start()
	s.logger.Info("maintenance scheduler started", slog.Int("sweeps", len(s.cron.Entries())))
}

// Stop stops scheduling and waits for running sweeps or ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("maintenance scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RedactStaleErrors clears error text older than the retention period and
// returns the number of tasks redacted. A task whose error was replaced after
// it was read keeps the newer error.
func (s *Sweeper) RedactStaleErrors(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.ErrorRetention)
	stale, err := s.tasks.FindStaleErrors(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find stale errors: %w", err)
	}

	redacted := 0
	for _, t := range stale {
		if t.LastErrorAt == nil {
			continue
		}
		changed, err := s.tasks.RedactError(ctx, t.ID, *t.LastErrorAt)
		if err != nil {
			return redacted, fmt.Errorf("redact task %s: %w", t.ID, err)
		}
		if changed {
			redacted++
		}
	}
	return redacted, nil
}

// RecoverStuck fails generations that have not progressed for the
// configured age and returns the number of tasks recovered.
func (s *Sweeper) RecoverStuck(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.StuckAge)
	stuck, err := s.tasks.FindStuckGenerating(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("find stuck generations: %w", err)
	}

	recovered := 0
	for _, t := range stuck {
		if _, err := s.recoverer.RecoverAbandoned(ctx, t); err != nil {
			if errors.Is(err, store.ErrConflict) || errors.Is(err, domain.ErrInvalidStateTransition) {
				// The generation finished or was recovered elsewhere.
				continue
			}
			return recovered, fmt.Errorf("recover task %s: %w", t.ID, err)
		}
		s.logger.Warn("abandoned generation recovered",
			slog.String("task_id", t.ID.String()),
			slog.Time("updated_at", t.UpdatedAt))
		recovered++
	}
	return recovered, nil
}

// PruneRateLimits removes rate limit hits older than the window across all
// keys.
func (s *Sweeper) PruneRateLimits(ctx context.Context) (int, error) {
	if s.pruner == nil {
		return 0, nil
	}
	n, err := s.pruner.Prune(ctx, s.config.RateLimitWindow)
	if err != nil {
		return 0, fmt.Errorf("prune rate limit hits: %w", err)
	}
	return n, nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", redact.Error(err))...)
}
