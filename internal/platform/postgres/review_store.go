package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/domain"
	"github.com/phrazzld/guideline-api/internal/store"
)

// PostgresReviewStore implements the store.ReviewStore interface over the
// human_edits and qa_checks tables.
type PostgresReviewStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresReviewStore creates a new PostgreSQL implementation of the ReviewStore interface.
func NewPostgresReviewStore(db store.DBTX, logger *slog.Logger) *PostgresReviewStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresReviewStore{
		db:     db,
		logger: logger.With(slog.String("component", "review_store")),
	}
}

var _ store.ReviewStore = (*PostgresReviewStore)(nil)

const editColumns = `id, draft_id, user_id, edited_text, edit_reason, time_spent_minutes, created_at`

const checkColumns = `id, edit_id, reviewer_id, result, comments, review_time_minutes, created_at`

func scanEdit(row rowScanner) (*domain.HumanEdit, error) {
	var e domain.HumanEdit
	if err := row.Scan(&e.ID, &e.DraftID, &e.UserID, &e.EditedText, &e.EditReason,
		&e.TimeSpentMinutes, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return &e, nil
}

func scanCheck(row rowScanner) (*domain.QACheck, error) {
	var c domain.QACheck
	if err := row.Scan(&c.ID, &c.EditID, &c.ReviewerID, &c.Result, &c.Comments,
		&c.ReviewTimeMinutes, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return &c, nil
}

// CreateEdit implements store.ReviewStore.CreateEdit
func (s *PostgresReviewStore) CreateEdit(ctx context.Context, edit *domain.HumanEdit) error {
	if err := edit.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO human_edits (`+editColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		edit.ID, edit.DraftID, edit.UserID, edit.EditedText, edit.EditReason,
		edit.TimeSpentMinutes, edit.CreatedAt,
	)
	return MapError(err)
}

// GetEdit implements store.ReviewStore.GetEdit
func (s *PostgresReviewStore) GetEdit(ctx context.Context, id uuid.UUID) (*domain.HumanEdit, error) {
	edit, err := scanEdit(s.db.QueryRowContext(ctx,
		`SELECT `+editColumns+` FROM human_edits WHERE id = $1`, id))
	if err != nil {
		return nil, mapNotFound(err, store.ErrEditNotFound)
	}
	return edit, nil
}

// LatestEdit implements store.ReviewStore.LatestEdit
func (s *PostgresReviewStore) LatestEdit(ctx context.Context, draftID uuid.UUID) (*domain.HumanEdit, error) {
	edit, err := scanEdit(s.db.QueryRowContext(ctx, `
		SELECT `+editColumns+` FROM human_edits
		WHERE draft_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, draftID))
	if err != nil {
		return nil, mapNotFound(err, store.ErrEditNotFound)
	}
	return edit, nil
}

// CreateCheck implements store.ReviewStore.CreateCheck
func (s *PostgresReviewStore) CreateCheck(ctx context.Context, check *domain.QACheck) error {
	if err := check.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO qa_checks (`+checkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		check.ID, check.EditID, check.ReviewerID, check.Result, check.Comments,
		check.ReviewTimeMinutes, check.CreatedAt,
	)
	return MapError(err)
}

// LatestCheck implements store.ReviewStore.LatestCheck
func (s *PostgresReviewStore) LatestCheck(ctx context.Context, editID uuid.UUID) (*domain.QACheck, error) {
	check, err := scanCheck(s.db.QueryRowContext(ctx, `
		SELECT `+checkColumns+` FROM qa_checks
		WHERE edit_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, editID))
	if err != nil {
		return nil, mapNotFound(err, store.ErrCheckNotFound)
	}
	return check, nil
}

// WithTx implements store.ReviewStore.WithTx
func (s *PostgresReviewStore) WithTx(tx *sql.Tx) store.ReviewStore {
	return &PostgresReviewStore{db: tx, logger: s.logger}
}
