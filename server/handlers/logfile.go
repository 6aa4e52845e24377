package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/nomis52/scriptdash/logsink"
)

// LogFileResponse carries the content of one run's log file.
type LogFileResponse struct {
	Content string `json:"content"`
}

// LogFileHandler serves log files from the log directory by base name.
type LogFileHandler struct {
	logger *slog.Logger
	logDir string
}

// NewLogFileHandler creates a new LogFileHandler.
func NewLogFileHandler(logger *slog.Logger, logDir string) *LogFileHandler {
	return &LogFileHandler{
		logger: logger,
		logDir: logDir,
	}
}

// ServeHTTP implements http.Handler.
func (h *LogFileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	content, err := logsink.Read(h.logDir, name)
	if err != nil {
		if errors.Is(err, logsink.ErrInvalidLogName) {
			h.logger.Warn("rejected log file request", "name", name)
		} else if !errors.Is(err, fs.ErrNotExist) {
			h.logger.Error("failed to read log file", "name", name, "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "failed to read log file"})
			return
		}
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "Log file not found"})
		return
	}

	writeJSON(w, http.StatusOK, LogFileResponse{Content: content})
}
