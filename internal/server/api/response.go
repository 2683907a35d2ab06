// Package api provides the JSON HTTP API of the fixtureplay UI.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ayusman/fixtureplay/internal/builtin"
	"github.com/ayusman/fixtureplay/internal/connection"
	"github.com/ayusman/fixtureplay/internal/plugin"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeErr maps domain errors to a status code. Unknown renderers, fixtures
// and components are 404s, never 500s.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, connection.ErrUnrecognizedRenderer),
		errors.Is(err, connection.ErrInvalidFixture),
		errors.Is(err, builtin.ErrInvalidComponent),
		errors.Is(err, plugin.ErrUnregisteredPlugin):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, builtin.ErrNoRenderers):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decode reads a JSON request body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return false
	}
	return true
}
