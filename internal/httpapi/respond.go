// Package httpapi is the HTTP edge: route wiring, caller identity and
// the mapping from service errors to status codes. Handlers stay thin;
// the linking and sync rules live in the services.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/questlog/questlog/internal/errs"
	"github.com/questlog/questlog/internal/logging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[API] Failed to encode response: %v", err)
	}
}

// writeError maps the service error taxonomy to HTTP status codes.
// Unclassified errors become opaque 500s; the detail stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrAuthentication):
		status = http.StatusUnauthorized
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, errs.ErrExternal):
		status = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("[API] [%s] Internal error: %v", logging.RequestIDFrom(r.Context()), err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
