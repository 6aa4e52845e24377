package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/nomis52/scriptdash/runner"
)

// maxRunBody bounds the size of a run request.
const maxRunBody = 64 << 10

// RunRequest defines the request body for POST /api/run/{script}.
type RunRequest struct {
	Args map[string]string `json:"args"`
}

// RunHandler handles requests to start a script.
type RunHandler struct {
	logger *slog.Logger
	runner ScriptRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(logger *slog.Logger, r ScriptRunner) *RunHandler {
	return &RunHandler{
		logger: logger,
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("script")

	values, err := readArgs(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: %v", err)
		return
	}

	if err := h.runner.RunWithValues(name, values); err != nil {
		switch {
		case errors.Is(err, runner.ErrUnknownScript):
			writeError(w, http.StatusNotFound, "Unknown script '%s'", name)
		case errors.Is(err, runner.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, "Script '%s' is already running.", name)
		case errors.Is(err, runner.ErrInvalidArguments):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		case errors.Is(err, runner.ErrShutdown):
			writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		default:
			h.logger.Error("failed to start script", "script", name, "error", err)
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		}
		return
	}

	h.logger.Info("started script", "script", name)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Started script '" + name + "'."})
}

// readArgs accepts either a JSON body or form fields. Empty bodies carry no
// arguments.
func readArgs(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRunBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var req RunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		return req.Args, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		values[k] = r.PostForm.Get(k)
	}
	return values, nil
}
