package postgres

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/phrazzld/guideline-api/internal/store"
)

// Transactor implements store.Transactor over a *sql.DB.
type Transactor struct {
	db      *sql.DB
	tasks   *PostgresTaskStore
	drafts  *PostgresDraftStore
	reviews *PostgresReviewStore
}

var _ store.Transactor = (*Transactor)(nil)

// NewTransactor creates a Transactor whose stores share logger.
func NewTransactor(db *sql.DB, logger *slog.Logger) *Transactor {
	return &Transactor{
		db:      db,
		tasks:   NewPostgresTaskStore(db, logger),
		drafts:  NewPostgresDraftStore(db, logger),
		reviews: NewPostgresReviewStore(db, logger),
	}
}

// Stores returns stores bound to the connection pool.
func (t *Transactor) Stores() store.Stores {
	return store.Stores{Tasks: t.tasks, Drafts: t.drafts, Reviews: t.reviews}
}

// WithinTx implements store.Transactor.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error {
	return store.RunInTransaction(ctx, t.db, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, store.Stores{
			Tasks:   t.tasks.WithTx(tx),
			Drafts:  t.drafts.WithTx(tx),
			Reviews: t.reviews.WithTx(tx),
		})
	})
}
