package handlers

import (
	"log/slog"
	"net/http"
)

// ReloadHandler handles requests to reload the script catalog from disk.
type ReloadHandler struct {
	logger   *slog.Logger
	reloader Reloader
}

// NewReloadHandler creates a new ReloadHandler.
func NewReloadHandler(logger *slog.Logger, reloader Reloader) *ReloadHandler {
	return &ReloadHandler{
		logger:   logger,
		reloader: reloader,
	}
}

// ServeHTTP implements http.Handler.
func (h *ReloadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("reloading script catalog")

	if err := h.reloader.Reload(); err != nil {
		h.logger.Error("failed to reload script catalog", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "failed to reload script catalog: " + err.Error(),
		})
		return
	}

	h.logger.Info("script catalog reloaded")
	w.WriteHeader(http.StatusNoContent)
}
