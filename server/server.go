// Package server provides the HTTP server for the scriptdash dashboard.
//
// The server runs catalog scripts on request, streams their output to
// browsers and keeps the run history shared with command line runs.
//
// # Endpoints
//
//   - GET / - Web UI dashboard
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/scripts - Catalog entries with their current status
//   - POST /api/run/{script} - Starts a script
//   - POST /api/cancel/{script} - Aborts a running script
//   - GET /api/logs - Live output of the latest run of each script
//   - GET /api/logfile/{name} - Content of one run's log file
//   - GET /api/history - Paginated run history, newest first
//   - POST /api/history/clear - Removes all history and log files
//   - GET /api/events - Server-Sent Events stream of log and status updates
//   - GET /api/status - Server properties, script states and schedule
//   - GET /api/env - Server environment with secrets masked
//   - GET /api/download/{script} - The script file as an attachment
//   - GET /config - Returns current configuration as YAML
//   - POST /reload - Reloads configuration and catalog from disk
//   - GET /metrics - Prometheus metrics
//
// # Architecture
//
// Config-derived dependencies (the config itself and the script catalog)
// are swapped atomically on reload. A run uses the catalog entry that was
// current when it started. The run registry, history store, event
// broadcaster and schedules are created once and live as long as the
// server.
//
// # Example
//
//	srv, err := server.New("/etc/scriptdash/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nomis52/scriptdash/broadcast"
	"github.com/nomis52/scriptdash/buildinfo"
	"github.com/nomis52/scriptdash/catalog"
	"github.com/nomis52/scriptdash/config"
	"github.com/nomis52/scriptdash/history"
	"github.com/nomis52/scriptdash/logging"
	"github.com/nomis52/scriptdash/metrics"
	"github.com/nomis52/scriptdash/process"
	"github.com/nomis52/scriptdash/runner"
	"github.com/nomis52/scriptdash/server/cron"
	"github.com/nomis52/scriptdash/server/handlers"
	"github.com/nomis52/scriptdash/server/types"
)

//go:embed static
var staticFiles embed.FS

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 15 * time.Second
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config  *config.Config
	catalog *catalog.Catalog
}

// Server is the HTTP server for the scriptdash web interface.
type Server struct {
	addr       string
	configPath string
	cronSpec   string
	logger     *slog.Logger
	logLevel   func(string) error
	deps       atomic.Pointer[serverDeps]

	startedAt   time.Time
	hostname    string
	store       *history.FileStore
	broadcaster *broadcast.Broadcaster
	scrape      *metrics.ScrapeRegistry
	registry    *runner.Registry
	cron        *cron.CronTriggerManager
	handler     http.Handler
	httpServer  *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithCron adds schedules to the ones in the config file, written in the
// "script1,script2:cron;script3:cron" format.
func WithCron(spec string) Option {
	return func(s *Server) error {
		s.cronSpec = spec
		return nil
	}
}

// WithListenAddr overrides the listener address from the config file.
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		s.addr = addr
		return nil
	}
}

// WithLogger replaces the logger built from the config file.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		s.logLevel = nil
		return nil
	}
}

// New creates a new Server with the given config path and options.
// It loads the configuration and catalog and initializes all dependencies.
func New(configPath string, opts ...Option) (*Server, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	hostname, _ := os.Hostname()
	s := &Server{
		addr:       cfg.Listener.Addr,
		configPath: configPath,
		logger:     logger.Logger,
		logLevel:   logger.SetLevel,
		startedAt:  time.Now().UTC(),
		hostname:   hostname,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	cat, err := catalog.Load(cfg.ScriptsFile)
	if err != nil {
		return nil, err
	}
	s.deps.Store(&serverDeps{config: &cfg, catalog: cat})
	s.logger.Info("configuration loaded", "config_path", configPath, "scripts", cat.Len())

	if err := s.build(&cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// build creates the long-lived dependencies from the initial config.
func (s *Server) build(cfg *config.Config) error {
	store, err := history.NewFileStore(cfg.HistoryFile, cfg.LogDir, s.logger,
		history.WithMaxRecords(cfg.History.MaxRecords))
	if err != nil {
		return err
	}
	s.store = store

	s.scrape, err = metrics.NewScrapeRegistry(metrics.WithNamespace(cfg.Monitoring.MetricsPrefix))
	if err != nil {
		return fmt.Errorf("failed to create metrics registry: %w", err)
	}
	runMetrics, err := metrics.NewRunMetrics(s.scrape)
	if err != nil {
		return fmt.Errorf("failed to create run metrics: %w", err)
	}

	s.broadcaster = broadcast.New(broadcast.WithSubscriberHook(runMetrics.SetObservers))

	launcher := process.NewExec(
		process.WithGracePeriod(cfg.Runner.GracePeriod),
		process.WithLogger(s.logger),
	)
	s.registry = runner.New(s.logger, s, cfg.LogDir,
		runner.WithStore(store),
		runner.WithLauncher(launcher),
		runner.WithPublisher(s.broadcaster),
		runner.WithMetrics(runMetrics),
		runner.WithInterpreter(cfg.Runner.Interpreter),
		runner.WithEnv(cfg.Runner.Env),
	)

	specs, err := s.triggerSpecs(cfg)
	if err != nil {
		return err
	}
	if len(specs) > 0 {
		s.cron, err = cron.NewCronTriggerManager(specs, s.registry, s.logger)
		if err != nil {
			return fmt.Errorf("creating cron triggers: %w", err)
		}
	}

	s.handler = s.routes()
	return nil
}

func (s *Server) triggerSpecs(cfg *config.Config) ([]cron.TriggerSpec, error) {
	available := make(map[string]bool)
	for _, name := range s.Catalog().Names() {
		available[name] = true
	}

	specs, err := cron.FromSchedules(cfg.Schedules, available)
	if err != nil {
		return nil, fmt.Errorf("invalid schedules: %w", err)
	}
	if s.cronSpec != "" {
		extra, err := cron.ParseTriggerSpecs(s.cronSpec, available)
		if err != nil {
			return nil, fmt.Errorf("invalid cron spec: %w", err)
		}
		specs = append(specs, extra...)
	}
	return specs, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Registry returns the run registry.
func (s *Server) Registry() *runner.Registry {
	return s.registry
}

// Reload reads the config and catalog from disk and swaps them in. The
// listener, log directory, history file and schedules only change on
// restart.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	cat, err := catalog.Load(cfg.ScriptsFile)
	if err != nil {
		return err
	}

	if s.logLevel != nil {
		level := cfg.Logging.Level
		if level == "" {
			level = "info"
		}
		if err := s.logLevel(level); err != nil {
			s.logger.Warn("failed to change log level", "level", level, "error", err)
		}
	}

	s.deps.Store(&serverDeps{
		config:  &cfg,
		catalog: cat,
	})
	s.logger.Info("configuration loaded", "config_path", s.configPath, "scripts", cat.Len())
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.deps.Load().config
}

// Catalog returns the current script catalog.
func (s *Server) Catalog() *catalog.Catalog {
	return s.deps.Load().catalog
}

// Properties describes the running instance.
func (s *Server) Properties() types.ServerProperties {
	return types.ServerProperties{
		Build:     buildinfo.Get(),
		Version:   buildinfo.ReadVersion(s.Config().VersionFile),
		StartedAt: s.startedAt,
		Hostname:  s.hostname,
	}
}

// Statuses returns the state of every script by delegating to the registry.
func (s *Server) Statuses() map[string]history.Status {
	return s.registry.Statuses()
}

// NextRun returns the next scheduled run time, or nil if nothing is scheduled.
func (s *Server) NextRun() *time.Time {
	if s.cron == nil || s.cron.Len() == 0 {
		return nil
	}
	next := s.cron.NextRun()
	return &next
}

// Schedule lists the configured schedules.
func (s *Server) Schedule() []cron.ScheduledRun {
	if s.cron == nil {
		return nil
	}
	return s.cron.Schedule()
}

// Run starts the HTTP server and blocks until the context is cancelled.
// On shutdown, event streams are closed first, then the HTTP server drains
// and finally running scripts are terminated and recorded.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.Config()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if cfg.Listener.TLSEnabled() {
		loader, err := NewCertLoader(cfg.Listener.TLSCert, cfg.Listener.TLSKey, s.logger)
		if err != nil {
			ln.Close()
			return err
		}
		s.httpServer.TLSConfig = loader.TLSConfig()
	}

	g, gctx := errgroup.WithContext(ctx)

	if s.cron != nil {
		s.logger.Info("starting cron triggers", "triggers", s.cron.Len(), "next_run", s.cron.NextRun())
		s.cron.Start(gctx)
		g.Go(func() error {
			s.cron.Wait()
			return nil
		})
	}

	g.Go(func() error {
		s.logger.Info("starting server",
			"addr", ln.Addr().String(),
			"tls", cfg.Listener.TLSEnabled(),
			"config_path", s.configPath,
		)
		var err error
		if s.httpServer.TLSConfig != nil {
			err = s.httpServer.ServeTLS(ln, "", "")
		} else {
			err = s.httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	s.broadcaster.Close()
	httpErr := s.httpServer.Shutdown(shutdownCtx)
	runErr := s.registry.Shutdown(shutdownCtx)
	return errors.Join(httpErr, runErr)
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /metrics", s.scrape.Handler())
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(s.logger, s))

	mux.Handle("GET /api/scripts", handlers.NewScriptsHandler(s, s.registry))
	mux.Handle("POST /api/run/{script}", handlers.NewRunHandler(s.logger, s.registry))
	mux.Handle("POST /api/cancel/{script}", handlers.NewCancelHandler(s.logger, s.registry))
	mux.Handle("GET /api/logs", handlers.NewLogsHandler(s.registry))
	mux.Handle("GET /api/logfile/{name}", handlers.NewLogFileHandler(s.logger, s.Config().LogDir))
	mux.Handle("GET /api/history", handlers.NewHistoryHandler(s.logger, s.registry))
	mux.Handle("POST /api/history/clear", handlers.NewClearHistoryHandler(s.logger, s.registry))
	mux.Handle("GET /api/events", handlers.NewEventsHandler(s.logger, s.broadcaster))
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("GET /api/env", handlers.NewEnvHandler(s))
	mux.Handle("GET /api/download/{script}", handlers.NewDownloadHandler(s.logger, s))

	// Static files (web UI)
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		s.logger.Error("failed to create static file system", "error", err)
		return mux
	}
	mux.Handle("GET /", http.FileServer(http.FS(staticFS)))
	return mux
}
