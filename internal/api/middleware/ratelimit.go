package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/phrazzld/guideline-api/internal/api/shared"
	"github.com/phrazzld/guideline-api/internal/platform/logger"
	"github.com/phrazzld/guideline-api/internal/ratelimit"
	"github.com/phrazzld/guideline-api/internal/redact"
)

// RateLimiter limits requests per user, or per client IP for anonymous
// requests.
type RateLimiter struct {
	store  ratelimit.Store
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewRateLimiter creates a RateLimiter allowing limit requests per window.
func NewRateLimiter(store ratelimit.Store, limit int, window time.Duration, logger *slog.Logger) (*RateLimiter, error) {
	if err := ratelimit.Validate(limit, window); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger.With(slog.String("component", "rate_limiter")),
	}, nil
}

// Handler enforces the limit. A failing store lets the request through.
func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		decision, err := l.store.Allow(r.Context(), key, l.limit, l.window)
		if err != nil {
			logger.FromContextOrDefault(r.Context(), l.logger).Error("rate limiter unavailable",
				slog.String("error", redact.Error(err)))
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			seconds := int(math.Ceil(decision.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			shared.RespondWithError(w, r, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if userID, ok := shared.GetUserID(r.Context()); ok {
		return "user:" + userID.String()
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
