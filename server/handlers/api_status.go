package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/scriptdash/history"
	"github.com/nomis52/scriptdash/server/cron"
	"github.com/nomis52/scriptdash/server/types"
)

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Server   types.ServerProperties    `json:"server"`
	Scripts  map[string]history.Status `json:"scripts"`
	NextRun  NextRunResponse           `json:"next_run"`
	Schedule []cron.ScheduledRun       `json:"schedule"`
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nextRun := h.provider.NextRun()
	schedule := h.provider.Schedule()
	if schedule == nil {
		schedule = []cron.ScheduledRun{}
	}

	resp := APIStatusResponse{
		Server:  h.provider.Properties(),
		Scripts: h.provider.Statuses(),
		NextRun: NextRunResponse{
			Scheduled: nextRun != nil,
			NextRun:   nextRun,
		},
		Schedule: schedule,
	}

	writeJSON(w, http.StatusOK, resp)
}
