package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

// DefaultTimeout bounds a single remote write request.
const DefaultTimeout = 30 * time.Second

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint, e.g. "http://vm:8428".
	URL string
	// Prefix is prepended to every metric name, followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration
}

// PushRegistry implements Registry for push-based collection. Updates are
// buffered, keeping only the latest value of each series, and sent in one
// remote write request by Flush.
type PushRegistry struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string

	mu      sync.Mutex
	pending map[string]pendingSample
}

type pendingSample struct {
	name   string
	labels map[string]string
	value  float64
	ts     time.Time
}

// NewPushRegistry creates a PushRegistry that writes to cfg.URL.
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &PushRegistry{
		url:        strings.TrimRight(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		pending:    make(map[string]pendingSample),
	}
}

// NewGauge creates a push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{reg: r, name: opts.Name}, nil
}

// NewGaugeVec creates a push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{reg: r, name: opts.Name}, nil
}

// NewCounter creates a push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{reg: r, name: opts.Name}, nil
}

// NewCounterVec creates a push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{reg: r, name: opts.Name, counters: make(map[string]*pushCounter)}, nil
}

// Pending returns the number of series waiting to be flushed.
func (r *PushRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush sends every pending series in a single remote write request. On
// failure the samples stay pending so a later Flush can retry them.
func (r *PushRegistry) Flush(ctx context.Context) error {
	r.mu.Lock()
	samples := make([]pendingSample, 0, len(r.pending))
	keys := make([]string, 0, len(r.pending))
	for k, s := range r.pending {
		keys = append(keys, k)
		samples = append(samples, s)
	}
	r.mu.Unlock()

	if len(samples) == 0 {
		return nil
	}

	req := &prompb.WriteRequest{
		Timeseries: make([]prompb.TimeSeries, 0, len(samples)),
	}
	for _, s := range samples {
		req.Timeseries = append(req.Timeseries, r.toTimeSeries(s))
	}

	data, err := proto.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Encoding", "snappy")
	httpReq.Header.Set("Content-Type", "application/x-protobuf")
	httpReq.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	r.mu.Lock()
	for i, k := range keys {
		// Keep values updated while the request was in flight.
		if cur, ok := r.pending[k]; ok && cur.ts.Equal(samples[i].ts) {
			delete(r.pending, k)
		}
	}
	r.mu.Unlock()
	return nil
}

func (r *PushRegistry) record(name string, labels map[string]string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[seriesKey(name, labels)] = pendingSample{
		name:   name,
		labels: labels,
		value:  value,
		ts:     time.Now(),
	}
}

func (r *PushRegistry) toTimeSeries(s pendingSample) prompb.TimeSeries {
	metricName := s.name
	if r.prefix != "" {
		metricName = r.prefix + "_" + s.name
	}

	labels := make([]prompb.Label, 0, len(s.labels)+3)
	labels = append(labels, prompb.Label{Name: "__name__", Value: metricName})
	if r.job != "" {
		labels = append(labels, prompb.Label{Name: "job", Value: r.job})
	}
	if r.instance != "" {
		labels = append(labels, prompb.Label{Name: "instance", Value: r.instance})
	}
	for k, v := range s.labels {
		labels = append(labels, prompb.Label{Name: k, Value: v})
	}
	// Remote write receivers expect labels sorted by name.
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })

	return prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: s.value, Timestamp: s.ts.UnixMilli()}},
	}
}

type pushGauge struct {
	reg    *PushRegistry
	name   string
	labels map[string]string
}

func (g *pushGauge) Set(v float64) {
	g.reg.record(g.name, g.labels, v)
}

type pushGaugeVec struct {
	reg  *PushRegistry
	name string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{reg: g.reg, name: g.name, labels: labels}
}

type pushCounter struct {
	reg    *PushRegistry
	name   string
	labels map[string]string

	mu    sync.Mutex
	value float64
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.mu.Lock()
	c.value += v
	value := c.value
	c.mu.Unlock()
	c.reg.record(c.name, c.labels, value)
}

type pushCounterVec struct {
	reg  *PushRegistry
	name string

	mu       sync.Mutex
	counters map[string]*pushCounter
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	key := seriesKey(c.name, labels)

	c.mu.Lock()
	defer c.mu.Unlock()

	if counter, ok := c.counters[key]; ok {
		return counter
	}
	counter := &pushCounter{reg: c.reg, name: c.name, labels: labels}
	c.counters[key] = counter
	return counter
}

// seriesKey identifies a series independently of label map ordering.
func seriesKey(name string, labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteString("," + k + "=" + labels[k])
	}
	return b.String()
}
