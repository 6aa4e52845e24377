package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RunMetrics records the outcome of script runs.
type RunMetrics struct {
	runs          CounterVec
	running       GaugeVec
	lastDuration  GaugeVec
	lastRun       GaugeVec
	writeFailures CounterVec
	observers     Gauge
}

// NewRunMetrics creates the script run metrics in reg.
func NewRunMetrics(reg Registry) (*RunMetrics, error) {
	m := &RunMetrics{}
	var err error

	if m.runs, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "script_runs_total",
		Help: "Completed script runs by final status.",
	}, []string{"script", "status"}); err != nil {
		return nil, fmt.Errorf("creating runs metric: %w", err)
	}
	if m.running, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "script_running",
		Help: "1 while the script is running, 0 otherwise.",
	}, []string{"script"}); err != nil {
		return nil, fmt.Errorf("creating running metric: %w", err)
	}
	if m.lastDuration, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "script_last_run_duration_seconds",
		Help: "Duration of the most recent run of the script.",
	}, []string{"script"}); err != nil {
		return nil, fmt.Errorf("creating duration metric: %w", err)
	}
	if m.lastRun, err = reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "script_last_run_timestamp_seconds",
		Help: "Unix time the most recent run of the script finished.",
	}, []string{"script", "status"}); err != nil {
		return nil, fmt.Errorf("creating timestamp metric: %w", err)
	}
	if m.writeFailures, err = reg.NewCounterVec(prometheus.CounterOpts{
		Name: "persistence_failures_total",
		Help: "Failed writes of history records or log files.",
	}, []string{"kind"}); err != nil {
		return nil, fmt.Errorf("creating persistence failure metric: %w", err)
	}
	if m.observers, err = reg.NewGauge(prometheus.GaugeOpts{
		Name: "event_observers",
		Help: "Connected event stream observers.",
	}); err != nil {
		return nil, fmt.Errorf("creating observers metric: %w", err)
	}
	return m, nil
}

// RunStarted marks script as running.
func (m *RunMetrics) RunStarted(script string) {
	m.running.With(prometheus.Labels{"script": script}).Set(1)
}

// RunFinished records a completed run.
func (m *RunMetrics) RunFinished(script, status string, end time.Time, duration time.Duration) {
	m.running.With(prometheus.Labels{"script": script}).Set(0)
	m.runs.With(prometheus.Labels{"script": script, "status": status}).Inc()
	m.lastDuration.With(prometheus.Labels{"script": script}).Set(duration.Seconds())
	m.lastRun.With(prometheus.Labels{"script": script, "status": status}).Set(float64(end.Unix()))
}

// PersistenceFailed counts a failed history or log write. kind is "history"
// or "log".
func (m *RunMetrics) PersistenceFailed(kind string) {
	m.writeFailures.With(prometheus.Labels{"kind": kind}).Inc()
}

// SetObservers records the number of connected observers.
func (m *RunMetrics) SetObservers(n int) {
	m.observers.Set(float64(n))
}
