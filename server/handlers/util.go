package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nomis52/scriptdash/catalog"
)

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is returned when an action succeeds.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, ErrorResponse{Error: fmt.Sprintf(format, args...)})
}

var errUnknownScript = errors.New("unknown script")

// lookupScript finds the named script in the current catalog.
func lookupScript(provider CatalogProvider, name string) (*catalog.Script, error) {
	c := provider.Catalog()
	if c == nil {
		return nil, fmt.Errorf("%w %q", errUnknownScript, name)
	}
	s, ok := c.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w %q", errUnknownScript, name)
	}
	return s, nil
}
