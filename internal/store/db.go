package store

import (
	"context"
	"database/sql"
)

// DBTX is the query surface the Postgres stores run on. A store built over
// *sql.DB runs each statement on its own; one built over the *sql.Tx handed
// out by a Transactor joins that unit of work.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var (
	_ DBTX = (*sql.DB)(nil)
	_ DBTX = (*sql.Tx)(nil)
)
