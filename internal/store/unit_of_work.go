package store

import (
	"context"
)

// Stores bundles the stores written by a unit of work.
type Stores struct {
	Tasks   TaskStore
	Drafts  DraftStore
	Reviews ReviewStore
}

// Transactor runs fn with stores bound to a single transaction. The
// transaction is committed if fn returns nil and rolled back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
