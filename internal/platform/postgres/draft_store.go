package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/store"
)

// PostgresDraftStore implements the store.DraftStore interface.
type PostgresDraftStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresDraftStore creates a new PostgreSQL implementation of the DraftStore interface.
func NewPostgresDraftStore(db store.DBTX, logger *slog.Logger) *PostgresDraftStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresDraftStore{
		db:     db,
		logger: logger.With(slog.String("component", "draft_store")),
	}
}

var _ store.DraftStore = (*PostgresDraftStore)(nil)

// Create implements store.DraftStore.Create
func (s *PostgresDraftStore) Create(ctx context.Context, draft *domain.Draft) error {
	if err := draft.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := `
		INSERT INTO drafts (id, task_id, model_name, prompt_version, prompt_hash, draft_text,
			input_tokens, output_tokens, total_tokens, cost_usd, reused, original_draft_id,
			trace, generation_time_ms, temperature, created_at, superseded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14, $15, $16, $17)
	`

	var superseded sql.NullTime
	if draft.SupersededAt != nil {
		superseded = sql.NullTime{Time: *draft.SupersededAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		draft.ID, draft.TaskID, draft.ModelName, draft.PromptVersion, draft.PromptHash, draft.Text,
		draft.Usage.InputTokens, draft.Usage.OutputTokens, draft.Usage.TotalTokens, draft.Usage.CostUSD,
		draft.Usage.Reused, nullUUID(draft.Usage.OriginalDraftID),
		nullJSON(draft.Trace), draft.GenerationTimeMS, draft.Temperature, draft.CreatedAt, superseded,
	)
	if err != nil {
		return MapError(err)
	}
	return nil
}

// Supersede implements store.DraftStore.Supersede
func (s *PostgresDraftStore) Supersede(ctx context.Context, taskID uuid.UUID, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE drafts SET superseded_at = $2 WHERE task_id = $1 AND superseded_at IS NULL`,
		taskID, at)
	if err != nil {
		return false, MapError(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetByID implements store.DraftStore.GetByID
func (s *PostgresDraftStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Draft, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id)
	draft, err := scanDraft(row)
	if err != nil {
		return nil, mapNotFound(err, store.ErrDraftNotFound)
	}
	return draft, nil
}

// GetLiveByTask implements store.DraftStore.GetLiveByTask
func (s *PostgresDraftStore) GetLiveByTask(ctx context.Context, taskID uuid.UUID) (*domain.Draft, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE task_id = $1 AND superseded_at IS NULL`, taskID)
	draft, err := scanDraft(row)
	if err != nil {
		return nil, mapNotFound(err, store.ErrDraftNotFound)
	}
	return draft, nil
}

// FindReusable implements store.DraftStore.FindReusable
func (s *PostgresDraftStore) FindReusable(ctx context.Context, promptHash string) (*domain.Draft, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+draftColumns+` FROM drafts
		WHERE prompt_hash = $1 AND reused = FALSE
		ORDER BY created_at ASC, id ASC
		LIMIT 1`, promptHash)
	draft, err := scanDraft(row)
	if err != nil {
		return nil, mapNotFound(err, store.ErrDraftNotFound)
	}
	return draft, nil
}

// List implements store.DraftStore.List
func (s *PostgresDraftStore) List(ctx context.Context, filter store.DraftFilter) ([]domain.DraftSummary, error) {
	args := []any{filter.ProjectID}
	var b strings.Builder
	b.WriteString(`
		SELECT d.id, d.task_id, t.table_id, d.model_name, d.prompt_version, char_length(d.draft_text),
			d.input_tokens, d.output_tokens, d.total_tokens, d.cost_usd::float8, d.reused,
			d.original_draft_id, d.generation_time_ms, d.created_at, d.superseded_at
		FROM drafts d
		JOIN tasks t ON t.id = d.task_id
		WHERE t.project_id = $1`)
	if filter.TaskID != nil {
		args = append(args, *filter.TaskID)
		fmt.Fprintf(&b, " AND d.task_id = $%d", len(args))
	}
	args = append(args, filter.Limit, filter.Offset)
	fmt.Fprintf(&b, " ORDER BY d.created_at DESC, d.id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	summaries := []domain.DraftSummary{}
	for rows.Next() {
		summary, err := scanDraftSummary(rows)
		if err != nil {
			return nil, MapError(err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return summaries, nil
}

// WithTx implements store.DraftStore.WithTx
func (s *PostgresDraftStore) WithTx(tx *sql.Tx) store.DraftStore {
	return &PostgresDraftStore{db: tx, logger: s.logger}
}
