package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/nomis52/scriptdash/runner"
)

// CancelHandler handles requests to abort a running script.
type CancelHandler struct {
	logger *slog.Logger
	runner ScriptRunner
}

// NewCancelHandler creates a new CancelHandler.
func NewCancelHandler(logger *slog.Logger, r ScriptRunner) *CancelHandler {
	return &CancelHandler{
		logger: logger,
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *CancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("script")

	if err := h.runner.Cancel(name); err != nil {
		switch {
		case errors.Is(err, runner.ErrNotRunning), errors.Is(err, runner.ErrUnknownScript):
			writeError(w, http.StatusNotFound, "No running script found for '%s'.", name)
		default:
			h.logger.Error("failed to cancel script", "script", name, "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	h.logger.Info("aborted script", "script", name)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Aborted script '" + name + "'."})
}
