package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/questlog/questlog/internal/logging"
)

// RequestID tags every request with a short ID, echoed in the
// X-Request-ID header and available to handlers via the context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

type contextKey string

const userIDKey contextKey = "userID"

// RequireUser reads the caller's identity from the X-User-ID header and
// rejects requests without one. The header is set by the authentication
// front in front of this service; handlers trust it.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || userID <= 0 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing or invalid user identity"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIDKey, userID)))
	})
}

// userFrom returns the caller's user ID placed by RequireUser.
func userFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(userIDKey).(int64)
	return id
}
