package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nomis52/scriptdash/history"
	"github.com/nomis52/scriptdash/server/cron"
	"github.com/nomis52/scriptdash/server/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIStatusHandler(t *testing.T) {
	next := time.Date(2025, 3, 2, 3, 0, 0, 0, time.UTC)
	provider := &mockAPIStatusProvider{
		props: types.ServerProperties{
			StartedAt: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			Hostname:  "dash",
			Version:   "1.4.2",
		},
		statuses: map[string]history.Status{"backup": history.StatusRunning},
		nextRun:  &next,
		schedule: []cron.ScheduledRun{{Scripts: []string{"backup"}, Schedule: "0 3 * * *", NextRun: next}},
	}
	handler := NewAPIStatusHandler(provider)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp APIStatusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "dash", resp.Server.Hostname)
	assert.Equal(t, "1.4.2", resp.Server.Version)
	assert.Equal(t, history.StatusRunning, resp.Scripts["backup"])
	assert.True(t, resp.NextRun.Scheduled)
	require.NotNil(t, resp.NextRun.NextRun)
	assert.True(t, next.Equal(*resp.NextRun.NextRun))
	require.Len(t, resp.Schedule, 1)
	assert.Equal(t, "0 3 * * *", resp.Schedule[0].Schedule)
}

func TestAPIStatusHandler_NoSchedule(t *testing.T) {
	handler := NewAPIStatusHandler(&mockAPIStatusProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
	assert.JSONEq(t, `{"scheduled": false}`, string(raw["next_run"]))
	assert.JSONEq(t, `[]`, string(raw["schedule"]))
}
