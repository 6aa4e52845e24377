package runner

import (
	"time"

	"github.com/nomis52/scriptdash/catalog"
	"github.com/nomis52/scriptdash/history"
	"github.com/nomis52/scriptdash/process"
)

// CatalogProvider provides the current script catalog.
type CatalogProvider interface {
	Catalog() *catalog.Catalog
}

// CatalogFunc adapts a function to CatalogProvider.
type CatalogFunc func() *catalog.Catalog

// Catalog implements CatalogProvider.
func (f CatalogFunc) Catalog() *catalog.Catalog {
	return f()
}

// StaticCatalog returns a provider that always returns c.
func StaticCatalog(c *catalog.Catalog) CatalogProvider {
	return CatalogFunc(func() *catalog.Catalog { return c })
}

// Publisher receives log and status events. Implementations must not block.
type Publisher interface {
	PublishLog(script, line string)
	PublishStatus(script, status string)
}

// Metrics records run outcomes.
type Metrics interface {
	RunStarted(script string)
	RunFinished(script, status string, end time.Time, duration time.Duration)
	PersistenceFailed(kind string)
}

// Option configures a Registry.
type Option func(*Registry)

// WithStore sets the history store. The default keeps history in memory.
func WithStore(store history.Store) Option {
	return func(r *Registry) {
		r.store = store
	}
}

// WithLauncher sets how processes are started.
func WithLauncher(l process.Launcher) Option {
	return func(r *Registry) {
		r.launcher = l
	}
}

// WithPublisher sets where events are published.
func WithPublisher(p Publisher) Option {
	return func(r *Registry) {
		r.publisher = p
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// WithInterpreter sets the argv prefix used to run scripts.
func WithInterpreter(argv []string) Option {
	return func(r *Registry) {
		r.interpreter = argv
	}
}

// WithEnv adds variables to the environment of every script.
func WithEnv(env map[string]string) Option {
	return func(r *Registry) {
		r.env = env
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

type nopPublisher struct{}

func (nopPublisher) PublishLog(string, string)    {}
func (nopPublisher) PublishStatus(string, string) {}

type nopMetrics struct{}

func (nopMetrics) RunStarted(string)                                   {}
func (nopMetrics) RunFinished(string, string, time.Time, time.Duration) {}
func (nopMetrics) PersistenceFailed(string)                            {}
