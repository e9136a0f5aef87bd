package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/store"
)

// StatsService reports project progress and generation spend. Reports are
// aggregated from the stored rows on every call.
type StatsService interface {
	GetProgress(ctx context.Context, projectID uuid.UUID) (*domain.Progress, error)
	GetCosts(ctx context.Context, projectID uuid.UUID) (*domain.CostReport, error)
}

type statsServiceImpl struct {
	stats  store.StatsStore
	logger *slog.Logger
}

// NewStatsService creates a new StatsService.
func NewStatsService(stats store.StatsStore, logger *slog.Logger) (StatsService, error) {
	if stats == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "stats store cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &statsServiceImpl{
		stats:  stats,
		logger: logger.With(slog.String("component", "stats_service")),
	}, nil
}

// GetProgress implements StatsService.
func (s *statsServiceImpl) GetProgress(ctx context.Context, projectID uuid.UUID) (*domain.Progress, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: project id", domain.ErrEmptyID)
	}
	byStatus, byDraft, err := s.stats.CountByStatus(ctx, projectID)
	if err != nil {
		return nil, NewServiceError("get_progress", "failed to count tasks", err)
	}
	progress := domain.NewProgress(projectID, byStatus, byDraft)
	return &progress, nil
}

// GetCosts implements StatsService.
func (s *statsServiceImpl) GetCosts(ctx context.Context, projectID uuid.UUID) (*domain.CostReport, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("%w: project id", domain.ErrEmptyID)
	}
	rows, err := s.stats.CostsByModel(ctx, projectID)
	if err != nil {
		return nil, NewServiceError("get_costs", "failed to sum draft usage", err)
	}
	report := domain.NewCostReport(projectID, rows)
	return &report, nil
}
