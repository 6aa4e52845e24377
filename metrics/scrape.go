package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeRegistry implements Registry on top of a Prometheus registry that
// is served over HTTP.
type ScrapeRegistry struct {
	prom      *prometheus.Registry
	namespace string
}

// ScrapeOption configures a ScrapeRegistry.
type ScrapeOption func(*ScrapeRegistry)

// WithNamespace prefixes every metric created through the registry.
func WithNamespace(ns string) ScrapeOption {
	return func(r *ScrapeRegistry) {
		r.namespace = ns
	}
}

// NewScrapeRegistry creates a registry with the Go runtime and process
// collectors already registered.
func NewScrapeRegistry(opts ...ScrapeOption) (*ScrapeRegistry, error) {
	reg := prometheus.NewRegistry()

	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("registering go collector: %w", err)
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, fmt.Errorf("registering process collector: %w", err)
	}

	r := &ScrapeRegistry{
		prom: reg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Handler returns an http.Handler for the /metrics endpoint.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// NewGauge creates and registers a new Gauge.
func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	opts.Namespace = r.ns(opts.Namespace)
	g := prometheus.NewGauge(opts)
	if err := r.prom.Register(g); err != nil {
		return nil, fmt.Errorf("registering gauge %q: %w", opts.Name, err)
	}
	return g, nil
}

// NewGaugeVec creates and registers a new GaugeVec.
func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	opts.Namespace = r.ns(opts.Namespace)
	g := prometheus.NewGaugeVec(opts, labels)
	if err := r.prom.Register(g); err != nil {
		return nil, fmt.Errorf("registering gauge vec %q: %w", opts.Name, err)
	}
	return &scrapeGaugeVec{vec: g}, nil
}

// NewCounter creates and registers a new Counter.
func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	opts.Namespace = r.ns(opts.Namespace)
	c := prometheus.NewCounter(opts)
	if err := r.prom.Register(c); err != nil {
		return nil, fmt.Errorf("registering counter %q: %w", opts.Name, err)
	}
	return c, nil
}

// NewCounterVec creates and registers a new CounterVec.
func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	opts.Namespace = r.ns(opts.Namespace)
	c := prometheus.NewCounterVec(opts, labels)
	if err := r.prom.Register(c); err != nil {
		return nil, fmt.Errorf("registering counter vec %q: %w", opts.Name, err)
	}
	return &scrapeCounterVec{vec: c}, nil
}

func (r *ScrapeRegistry) ns(explicit string) string {
	if explicit != "" {
		return explicit
	}
	return r.namespace
}

// prometheus.Gauge and prometheus.Counter satisfy Gauge and Counter
// directly; only the vectors need adapting because With returns the
// concrete prometheus types.
type scrapeGaugeVec struct {
	vec *prometheus.GaugeVec
}

func (g *scrapeGaugeVec) With(labels prometheus.Labels) Gauge {
	return g.vec.With(labels)
}

type scrapeCounterVec struct {
	vec *prometheus.CounterVec
}

func (c *scrapeCounterVec) With(labels prometheus.Labels) Counter {
	return c.vec.With(labels)
}
