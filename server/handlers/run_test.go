package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/nomis52/scriptdash/logging"
	"github.com/nomis52/scriptdash/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveRun(t *testing.T, r *mockRunner, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("POST /api/run/{script}", NewRunHandler(logging.Discard(), r))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestRunHandler_JSONArgs(t *testing.T) {
	r := &mockRunner{}
	req := httptest.NewRequest(http.MethodPost, "/api/run/backup",
		strings.NewReader(`{"args": {"repo": "acme/widgets", "days": "7"}}`))
	req.Header.Set("Content-Type", "application/json")

	w := serveRun(t, r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp MessageResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "Started script 'backup'.", resp.Message)

	require.Len(t, r.runs, 1)
	assert.Equal(t, "backup", r.runs[0].name)
	assert.Equal(t, map[string]string{"repo": "acme/widgets", "days": "7"}, r.runs[0].values)
}

func TestRunHandler_FormArgs(t *testing.T) {
	r := &mockRunner{}
	form := url.Values{"repo": {"acme/widgets"}}
	req := httptest.NewRequest(http.MethodPost, "/api/run/backup", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	w := serveRun(t, r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, r.runs, 1)
	assert.Equal(t, map[string]string{"repo": "acme/widgets"}, r.runs[0].values)
}

func TestRunHandler_EmptyBody(t *testing.T) {
	r := &mockRunner{}
	req := httptest.NewRequest(http.MethodPost, "/api/run/cleanup", nil)
	req.Header.Set("Content-Type", "application/json")

	w := serveRun(t, r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, r.runs, 1)
	assert.Empty(t, r.runs[0].values)
}

func TestRunHandler_InvalidJSON(t *testing.T) {
	r := &mockRunner{}
	req := httptest.NewRequest(http.MethodPost, "/api/run/backup", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")

	w := serveRun(t, r, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request")
	assert.Empty(t, r.runs)
}

func TestRunHandler_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "unknown script",
			err:      fmt.Errorf("%w: %q", runner.ErrUnknownScript, "backup"),
			wantCode: http.StatusNotFound,
			wantBody: "Unknown script 'backup'",
		},
		{
			name:     "already running",
			err:      fmt.Errorf("%w: %q", runner.ErrAlreadyRunning, "backup"),
			wantCode: http.StatusConflict,
			wantBody: "Script 'backup' is already running.",
		},
		{
			name:     "invalid arguments",
			err:      fmt.Errorf("%w: unexpected flag --x", runner.ErrInvalidArguments),
			wantCode: http.StatusBadRequest,
			wantBody: "unexpected flag --x",
		},
		{
			name:     "shutting down",
			err:      runner.ErrShutdown,
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "other",
			err:      fmt.Errorf("boom"),
			wantCode: http.StatusInternalServerError,
			wantBody: "boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockRunner{runErr: tt.err}
			req := httptest.NewRequest(http.MethodPost, "/api/run/backup", nil)

			w := serveRun(t, r, req)

			assert.Equal(t, tt.wantCode, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Contains(t, resp.Error, tt.wantBody)
		})
	}
}
