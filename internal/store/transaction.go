package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/guideline-api/internal/platform/logger"
	"github.com/phrazzld/guideline-api/internal/redact"
)

// TxFn is a unit of work run by RunInTransaction. Returning an error rolls
// the transaction back.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTransaction runs fn in a transaction on db and commits when fn returns
// nil. The error fn returns is passed through unchanged so callers can match
// store sentinels such as ErrConflict; a failed rollback is joined to it. A
// panic in fn rolls back and is re-raised.
func RunInTransaction(ctx context.Context, db *sql.DB, fn TxFn) error {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		log.Error("could not open store transaction", slog.String("error", redact.Error(err)))
		return fmt.Errorf("%w: begin store transaction: %w", ErrTransactionFailed, err)
	}

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("store transaction rollback after panic failed",
				slog.String("error", redact.Error(rbErr)),
				slog.Any("panic", p))
		} else {
			log.Error("store transaction rolled back after panic", slog.Any("panic", p))
		}
		panic(p)
	}()

	if err := fn(ctx, tx); err != nil {
		// ErrTxDone means the driver already rolled back, usually because
		// ctx was cancelled mid transaction.
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Error("store transaction rollback failed",
				slog.String("error", redact.Error(rbErr)),
				slog.String("cause", redact.Error(err)))
			return errors.Join(err, fmt.Errorf("roll back store transaction: %w", rbErr))
		}
		log.Debug("store transaction rolled back", slog.String("cause", redact.Error(err)))
		return err
	}

	if err := tx.Commit(); err != nil {
		log.Error("store transaction commit failed", slog.String("error", redact.Error(err)))
		return fmt.Errorf("%w: commit store transaction: %w", ErrTransactionFailed, err)
	}
	return nil
}
