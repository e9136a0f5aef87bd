package middleware

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/guideline-api/internal/api/shared"
	"github.com/phrazzld/guideline-api/internal/platform/logger"
)

// TraceHeader echoes the request trace id to clients.
const TraceHeader = "X-Trace-ID"

// NewTraceMiddleware adds a trace ID and a request scoped logger carrying it
// to the request context. It should run before every other middleware.
func NewTraceMiddleware(base *slog.Logger) func(http.Handler) http.Handler {
	if base == nil {
		base = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := shared.SetTraceID(r.Context())
			traceID := shared.GetTraceID(ctx)

			log := base.With(slog.String("trace_id", traceID))
			ctx = logger.WithLogger(ctx, log)
			w.Header().Set(TraceHeader, traceID)

			log.Debug("request started",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
