// Package metrics exposes script run metrics in Prometheus form.
//
// Two registries implement the same interfaces:
//   - ScrapeRegistry backs the server's /metrics endpoint.
//   - PushRegistry batches samples and sends them to a remote write endpoint
//     such as VictoriaMetrics, for one-shot runs from the command line.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge is a metric that represents a single numerical value that can go up and down.
type Gauge interface {
	Set(float64)
}

// Counter is a metric that represents a single monotonically increasing counter.
type Counter interface {
	Inc()
	// Add panics if v is negative.
	Add(v float64)
}

// GaugeVec is a Gauge with labels.
type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

// CounterVec is a Counter with labels.
type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates and registers metrics.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}
