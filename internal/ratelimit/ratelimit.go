// Package ratelimit implements a sliding-window request limiter whose state
// can be shared between processes.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidLimit is returned when a limit or window is not positive.
var ErrInvalidLimit = errors.New("rate limit and window must be positive")

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int

	// RetryAfter is how long until the oldest hit in the window expires.
	// Zero when the request was allowed.
	RetryAfter time.Duration
}

// Store records hits and decides whether another one fits in the window.
type Store interface {
	// Allow records a hit for key when fewer than limit hits were recorded
	// within the trailing window.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// Pruner deletes recorded hits that fell out of the window for every key,
// including keys that no longer send requests. It returns the number of hits
// or keys removed.
type Pruner interface {
	Prune(ctx context.Context, window time.Duration) (int, error)
}

// Validate checks limit and window.
func Validate(limit int, window time.Duration) error {
	if limit <= 0 || window <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

// Decide builds a Decision from the hits already inside the window, oldest
// first. It does not record the new hit.
func Decide(hits []time.Time, limit int, window time.Duration, now time.Time) Decision {
	if len(hits) < limit {
		return Decision{Allowed: true, Limit: limit, Remaining: limit - len(hits) - 1}
	}

	retry := hits[0].Add(window).Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	return Decision{Allowed: false, Limit: limit, Remaining: 0, RetryAfter: retry}
}
