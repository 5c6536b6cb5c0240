package httptransport

import (
	"encoding/json"
	"errors"
	"net/http"

	"aegis/pkg/sentinel"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError centralizes domain error translation so every handler returns
// the same JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := "Internal server error"
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		status, msg = http.StatusNotFound, "Not found"
	case errors.Is(err, sentinel.ErrInvalidState):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, sentinel.ErrConflict):
		status, msg = http.StatusConflict, "Conflict"
	case errors.Is(err, sentinel.ErrUnavailable):
		status, msg = http.StatusServiceUnavailable, "Service unavailable"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
