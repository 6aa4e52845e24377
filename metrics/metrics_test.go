package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// remoteWriteServer decodes each request it receives onto the returned channel.
func remoteWriteServer(t *testing.T, status int) (*httptest.Server, chan []prompb.TimeSeries) {
	t.Helper()
	received := make(chan []prompb.TimeSeries, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/write", r.URL.Path)
		assert.Equal(t, "snappy", r.Header.Get("Content-Encoding"))
		assert.Equal(t, "application/x-protobuf", r.Header.Get("Content-Type"))
		assert.Equal(t, "0.1.0", r.Header.Get("X-Prometheus-Remote-Write-Version"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		decoded, err := snappy.Decode(nil, body)
		require.NoError(t, err)

		var req prompb.WriteRequest
		require.NoError(t, proto.Unmarshal(decoded, &req))
		received <- req.Timeseries
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, received
}

func findLabel(labels []prompb.Label, name string) string {
	for _, l := range labels {
		if l.Name == name {
			return l.Value
		}
	}
	return ""
}

func byName(series []prompb.TimeSeries) map[string]prompb.TimeSeries {
	result := make(map[string]prompb.TimeSeries)
	for _, ts := range series {
		key := findLabel(ts.Labels, "__name__") + "/" + findLabel(ts.Labels, "status")
		result[key] = ts
	}
	return result
}

func TestPushRegistry_FlushBatches(t *testing.T) {
	server, received := remoteWriteServer(t, http.StatusNoContent)
	reg := NewPushRegistry(PushConfig{
		URL:      server.URL + "/",
		Prefix:   "scriptdash",
		Job:      "scriptdash",
		Instance: "host1",
	})

	gauge, err := reg.NewGauge(prometheus.GaugeOpts{Name: "last"})
	require.NoError(t, err)
	gauge.Set(1)
	gauge.Set(42)

	vec, err := reg.NewCounterVec(prometheus.CounterOpts{Name: "runs_total"}, []string{"status"})
	require.NoError(t, err)
	vec.With(prometheus.Labels{"status": "success"}).Inc()
	vec.With(prometheus.Labels{"status": "success"}).Inc()
	vec.With(prometheus.Labels{"status": "error"}).Add(3)

	assert.Equal(t, 3, reg.Pending())
	require.NoError(t, reg.Flush(context.Background()))
	assert.Zero(t, reg.Pending())

	series := byName(<-received)
	require.Len(t, series, 3)

	last := series["scriptdash_last/"]
	assert.Equal(t, "scriptdash", findLabel(last.Labels, "job"))
	assert.Equal(t, "host1", findLabel(last.Labels, "instance"))
	require.Len(t, last.Samples, 1)
	assert.Equal(t, 42.0, last.Samples[0].Value)

	assert.Equal(t, 2.0, series["scriptdash_runs_total/success"].Samples[0].Value)
	assert.Equal(t, 3.0, series["scriptdash_runs_total/error"].Samples[0].Value)

	names := make([]string, 0)
	for _, l := range last.Labels {
		names = append(names, l.Name)
	}
	assert.True(t, sort.StringsAreSorted(names))
}

func TestPushRegistry_FlushEmpty(t *testing.T) {
	reg := NewPushRegistry(PushConfig{URL: "http://127.0.0.1:1"})
	assert.NoError(t, reg.Flush(context.Background()))
}

func TestPushRegistry_FlushFailureKeepsPending(t *testing.T) {
	server, received := remoteWriteServer(t, http.StatusInternalServerError)
	reg := NewPushRegistry(PushConfig{URL: server.URL, Timeout: 5 * time.Second})

	gv, err := reg.NewGaugeVec(prometheus.GaugeOpts{Name: "g"}, []string{"script"})
	require.NoError(t, err)
	gv.With(prometheus.Labels{"script": "echo_test"}).Set(1)

	err = reg.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	<-received
	assert.Equal(t, 1, reg.Pending())
}

func TestPushCounter_NegativePanics(t *testing.T) {
	reg := NewPushRegistry(PushConfig{URL: "http://localhost"})
	c, err := reg.NewCounter(prometheus.CounterOpts{Name: "c"})
	require.NoError(t, err)
	assert.Panics(t, func() { c.Add(-1) })
}

func TestSeriesKey_OrderIndependent(t *testing.T) {
	a := seriesKey("m", map[string]string{"a": "1", "b": "2"})
	b := seriesKey("m", map[string]string{"b": "2", "a": "1"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, seriesKey("m", map[string]string{"a": "1"}))
}

func TestScrapeRegistry(t *testing.T) {
	registry, err := NewScrapeRegistry(WithNamespace("scriptdash"))
	require.NoError(t, err)

	gauge, err := registry.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "A test gauge"})
	require.NoError(t, err)
	gauge.Set(42.0)

	counter, err := registry.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "A test counter"})
	require.NoError(t, err)
	counter.Inc()

	_, err = registry.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "dup"})
	assert.Error(t, err)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "scriptdash_test_gauge 42")
	assert.Contains(t, body, "scriptdash_test_counter 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestRunMetrics(t *testing.T) {
	registry, err := NewScrapeRegistry()
	require.NoError(t, err)
	m, err := NewRunMetrics(registry)
	require.NoError(t, err)

	m.RunStarted("echo_test")
	m.RunFinished("echo_test", "success", time.Unix(1700000000, 0), 1500*time.Millisecond)
	m.PersistenceFailed("history")
	m.SetObservers(2)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	registry.Handler().ServeHTTP(w, req)
	body := w.Body.String()

	assert.Contains(t, body, `script_runs_total{script="echo_test",status="success"} 1`)
	assert.Contains(t, body, `script_running{script="echo_test"} 0`)
	assert.Contains(t, body, `script_last_run_duration_seconds{script="echo_test"} 1.5`)
	assert.Contains(t, body, `persistence_failures_total{kind="history"} 1`)
	assert.Contains(t, body, "event_observers 2")

	// Registering twice fails on the same registry.
	_, err = NewRunMetrics(registry)
	assert.Error(t, err)
}
