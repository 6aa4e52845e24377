package handlers

import "net/http"

// LogsHandler returns the live output of the latest run of every script.
type LogsHandler struct {
	provider LiveLogProvider
}

// NewLogsHandler creates a new LogsHandler.
func NewLogsHandler(provider LiveLogProvider) *LogsHandler {
	return &LogsHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logs := h.provider.LiveLogs()
	if logs == nil {
		logs = map[string][]string{}
	}
	writeJSON(w, http.StatusOK, logs)
}
