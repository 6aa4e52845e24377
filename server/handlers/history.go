package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/nomis52/scriptdash/history"
)

// HistoryHandler serves one page of run history, newest first.
type HistoryHandler struct {
	logger   *slog.Logger
	provider HistoryProvider
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(logger *slog.Logger, provider HistoryProvider) *HistoryHandler {
	return &HistoryHandler{
		logger:   logger,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}
	perPage, err := queryInt(r, "per_page", history.DefaultPerPage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid pagination parameters")
		return
	}

	result, err := h.provider.History(page, perPage)
	if err != nil {
		h.logger.Error("failed to read history", "error", err)
		msg := "An internal error occurred while reading history."
		if errors.Is(err, history.ErrCorrupt) {
			msg = "History file is corrupt."
		}
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: msg})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}

// ClearHistoryHandler removes all history records and their log files.
type ClearHistoryHandler struct {
	logger   *slog.Logger
	provider HistoryProvider
}

// NewClearHistoryHandler creates a new ClearHistoryHandler.
func NewClearHistoryHandler(logger *slog.Logger, provider HistoryProvider) *ClearHistoryHandler {
	return &ClearHistoryHandler{
		logger:   logger,
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *ClearHistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.provider.ClearHistory(); err != nil {
		h.logger.Error("failed to clear logs", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error: "An internal error occurred while clearing logs.",
		})
		return
	}

	h.logger.Info("cleared logs and history")
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logs and history cleared."})
}
