package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/guideline-api/internal/api/shared"
)

// UserIDHeader names the acting user. Authentication happens upstream; the
// service trusts the header.
const UserIDHeader = "X-User-ID"

// Actor moves a valid X-User-ID header into the request context. Requests
// without the header pass through, and a malformed header is rejected.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(UserIDHeader)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil || userID == uuid.Nil {
			shared.RespondWithError(w, r, http.StatusBadRequest, "X-User-ID must be a UUID")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.WithUserID(r.Context(), userID)))
	})
}
