package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nomis52/scriptdash/broadcast"
	"github.com/nomis52/scriptdash/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readEvent reads lines until a blank line and returns the event name and
// data payload, skipping comments.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventsHandler_StreamsEvents(t *testing.T) {
	b := broadcast.New()
	defer b.Close()

	srv := httptest.NewServer(NewEventsHandler(logging.Discard(), b))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The subscription is registered before the first byte is written.
	require.Equal(t, 1, b.Subscribers())

	b.PublishStatus("backup", "running")
	b.PublishLog("backup", "cloning")

	reader := bufio.NewReader(resp.Body)

	name, data := readEvent(t, reader)
	assert.Equal(t, "status_update", name)
	var ev broadcast.Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "backup", ev.Script)
	assert.Equal(t, "running", ev.Status)

	name, data = readEvent(t, reader)
	assert.Equal(t, "log_update", name)
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "cloning", ev.Line)
}

func TestEventsHandler_UnsubscribesOnDisconnect(t *testing.T) {
	b := broadcast.New()
	defer b.Close()

	srv := httptest.NewServer(NewEventsHandler(logging.Discard(), b))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, 1, b.Subscribers())

	cancel()
	resp.Body.Close()

	assert.Eventually(t, func() bool {
		return b.Subscribers() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEventsHandler_EndsWhenSourceCloses(t *testing.T) {
	b := broadcast.New()
	handler := NewEventsHandler(logging.Discard(), b)
	b.Close()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		handler.ServeHTTP(w, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after the source closed")
	}
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ": connected\n\n", w.Body.String())
}

func TestEventsHandler_KeepAlive(t *testing.T) {
	b := broadcast.New()
	defer b.Close()

	handler := NewEventsHandler(logging.Discard(), b)
	handler.keepAlive = 10 * time.Millisecond

	srv := httptest.NewServer(handler)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == ": keep-alive\n" {
			return
		}
	}
}
