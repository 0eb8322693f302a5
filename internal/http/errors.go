// Package httpapi exposes the HTTP API layer of the service.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/priceradar/priceradar/internal/apperr"
	"github.com/priceradar/priceradar/internal/obs"
)

// jsonError represents a JSON error payload.
type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteJSONError writes a JSON error payload with the given status code.
func WriteJSONError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, jsonError{Error: message, Details: details})
}

// writeError maps err through apperr and writes it. Internal detail is only
// logged, never sent.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := apperr.StatusOf(err)
	if status >= http.StatusInternalServerError {
		obs.Logger.Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Str("path", r.URL.Path).Msg("request_failed")
	}
	WriteJSONError(w, status, msg, "")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
