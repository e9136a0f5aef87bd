package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/store"
)

// PostgresStatsStore implements store.StatsStore with on-demand aggregation.
type PostgresStatsStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresStatsStore creates a new PostgresStatsStore.
func NewPostgresStatsStore(db store.DBTX, logger *slog.Logger) *PostgresStatsStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresStatsStore{
		db:     db,
		logger: logger.With(slog.String("component", "stats_store")),
	}
}

var _ store.StatsStore = (*PostgresStatsStore)(nil)

// CountByStatus implements store.StatsStore.CountByStatus
func (s *PostgresStatsStore) CountByStatus(
	ctx context.Context,
	projectID uuid.UUID,
) (map[domain.TaskStatus]int, map[domain.DraftStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, draft_status, COUNT(*)
		FROM tasks
		WHERE project_id = $1
		GROUP BY status, draft_status`, projectID)
	if err != nil {
		return nil, nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	byStatus := make(map[domain.TaskStatus]int)
	byDraft := make(map[domain.DraftStatus]int)
	for rows.Next() {
		var (
			status domain.TaskStatus
			draft  domain.DraftStatus
			count  int
		)
		if err := rows.Scan(&status, &draft, &count); err != nil {
			return nil, nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		byStatus[status] += count
		byDraft[draft] += count
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating status counts: %w", err)
	}
	return byStatus, byDraft, nil
}

// CostsByModel implements store.StatsStore.CostsByModel
func (s *PostgresStatsStore) CostsByModel(ctx context.Context, projectID uuid.UUID) ([]domain.ModelCost, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.model_name,
			COUNT(*),
			COUNT(*) FILTER (WHERE d.reused),
			COALESCE(SUM(d.input_tokens), 0),
			COALESCE(SUM(d.output_tokens), 0),
			COALESCE(SUM(d.cost_usd), 0)::float8
		FROM drafts d
		JOIN tasks t ON t.id = d.task_id
		WHERE t.project_id = $1
		GROUP BY d.model_name
		ORDER BY d.model_name`, projectID)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	costs := []domain.ModelCost{}
	for rows.Next() {
		var row domain.ModelCost
		if err := rows.Scan(&row.Model, &row.Drafts, &row.ReusedDrafts,
			&row.InputTokens, &row.OutputTokens, &row.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan model cost: %w", err)
		}
		costs = append(costs, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating model costs: %w", err)
	}
	return costs, nil
}
