package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
)

// StatsStore aggregates task and draft rows on demand.
type StatsStore interface {
	// CountByStatus returns task counts per status and per draft status.
	CountByStatus(ctx context.Context, projectID uuid.UUID) (map[domain.TaskStatus]int, map[domain.DraftStatus]int, error)

	// CostsByModel sums draft usage per model, superseded drafts included.
	CostsByModel(ctx context.Context, projectID uuid.UUID) ([]domain.ModelCost, error)
}

// TableSource reads parsed table schemas produced upstream.
type TableSource interface {
	// GetTable returns the schema of a table. Returns ErrTableNotFound if missing.
	GetTable(ctx context.Context, id uuid.UUID) (*domain.TableSchema, error)
}
