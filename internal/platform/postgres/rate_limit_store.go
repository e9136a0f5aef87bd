package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/phrazzld/guideline-api/internal/ratelimit"
	"github.com/phrazzld/guideline-api/internal/store"
)

// RateLimitStore is a ratelimit.Store shared by every process using the
// database. Each key is serialized with a transaction-scoped advisory lock
// and holds at most limit rows.
type RateLimitStore struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ratelimit.Store  = (*RateLimitStore)(nil)
	_ ratelimit.Pruner = (*RateLimitStore)(nil)
)

// NewRateLimitStore creates a RateLimitStore.
func NewRateLimitStore(db *sql.DB) *RateLimitStore {
	return &RateLimitStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Allow implements ratelimit.Store.
func (s *RateLimitStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (ratelimit.Decision, error) {
	if err := ratelimit.Validate(limit, window); err != nil {
		return ratelimit.Decision{}, err
	}

	var decision ratelimit.Decision
	err := store.RunInTransaction(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		now := s.now()

		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return fmt.Errorf("lock rate limit key: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM rate_limit_hits WHERE key = $1 AND hit_at <= $2`, key, now.Add(-window)); err != nil {
			return fmt.Errorf("prune rate limit hits: %w", err)
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT hit_at FROM rate_limit_hits WHERE key = $1 ORDER BY hit_at ASC`, key)
		if err != nil {
			return fmt.Errorf("count rate limit hits: %w", err)
		}
		var hits []time.Time
		for rows.Next() {
			var hit time.Time
			if err := rows.Scan(&hit); err != nil {
				_ = rows.Close()
				return fmt.Errorf("scan rate limit hit: %w", err)
			}
			hits = append(hits, hit)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return fmt.Errorf("error iterating rate limit hits: %w", err)
		}
		_ = rows.Close()

		decision = ratelimit.Decide(hits, limit, window, now)
		if !decision.Allowed {
			return nil
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO rate_limit_hits (key, hit_at) VALUES ($1, $2)`, key, now)
		return err
	})
	if err != nil {
		return ratelimit.Decision{}, MapError(err)
	}
	return decision, nil
}

// Prune implements ratelimit.Pruner. Allow only prunes the key it checks, so
// this removes the rows of keys that stopped sending.
func (s *RateLimitStore) Prune(ctx context.Context, window time.Duration) (int, error) {
	if window <= 0 {
		return 0, ratelimit.ErrInvalidLimit
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM rate_limit_hits WHERE hit_at <= $1`, s.now().Add(-window))
	if err != nil {
		return 0, MapError(fmt.Errorf("prune rate limit hits: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, MapError(err)
	}
	return int(n), nil
}
