package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/store"
)

// PostgresTableSource reads table schemas from the parsed_tables table,
// which the extraction pipeline owns.
type PostgresTableSource struct {
	db store.DBTX
}

// NewPostgresTableSource creates a new PostgresTableSource.
func NewPostgresTableSource(db store.DBTX) *PostgresTableSource {
	if db == nil {
		panic("db cannot be nil")
	}
	return &PostgresTableSource{db: db}
}

var _ store.TableSource = (*PostgresTableSource)(nil)

// GetTable implements store.TableSource.GetTable
func (s *PostgresTableSource) GetTable(ctx context.Context, id uuid.UUID) (*domain.TableSchema, error) {
	var (
		schema domain.TableSchema
		page   sql.NullInt32
		cells  []byte
		meta   []byte
	)

	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, page, n_rows, n_cols, cells, meta
		FROM parsed_tables WHERE id = $1`, id,
	).Scan(&schema.ID, &schema.ProjectID, &page, &schema.NRows, &schema.NCols, &cells, &meta)
	if err != nil {
		return nil, mapNotFound(err, store.ErrTableNotFound)
	}

	if page.Valid {
		p := int(page.Int32)
		schema.Page = &p
	}
	if err := json.Unmarshal(cells, &schema.Cells); err != nil {
		return nil, fmt.Errorf("%w: table %s cells: %v", store.ErrInvalidEntity, id, err)
	}
	if err := json.Unmarshal(meta, &schema.Meta); err != nil {
		return nil, fmt.Errorf("%w: table %s meta: %v", store.ErrInvalidEntity, id, err)
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}
	return &schema, nil
}

// PutTable inserts or replaces a table schema. The service never writes
// tables; this is used by seeding and tests.
func (s *PostgresTableSource) PutTable(ctx context.Context, schema *domain.TableSchema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	cells, err := json.Marshal(schema.Cells)
	if err != nil {
		return fmt.Errorf("marshal cells: %w", err)
	}
	meta, err := json.Marshal(schema.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	var page any
	if schema.Page != nil {
		page = *schema.Page
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO parsed_tables (id, project_id, page, n_rows, n_cols, cells, meta)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id, page = EXCLUDED.page,
			n_rows = EXCLUDED.n_rows, n_cols = EXCLUDED.n_cols,
			cells = EXCLUDED.cells, meta = EXCLUDED.meta`,
		schema.ID, schema.ProjectID, page, schema.NRows, schema.NCols, string(cells), string(meta),
	)
	return MapError(err)
}
