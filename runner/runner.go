// Package runner owns the execution state of every catalog script.
//
// The Registry enforces at most one run per script name. A run request is
// validated synchronously and then executed by a background task which
// streams output to the run's log file, the live log buffer and the event
// publisher. The task always reaches finalization: it closes the log file,
// appends the history record and only then publishes the terminal status.
//
//	reg := runner.New(logger, runner.StaticCatalog(cat), "/var/log/github-scripts",
//		runner.WithStore(store),
//		runner.WithPublisher(broadcaster),
//	)
//	if err := reg.Run("report_open_prs", []string{"--repo", "scriptdash"}); err != nil {
//		if errors.Is(err, runner.ErrAlreadyRunning) {
//			// a run of this script is in progress
//		}
//	}
//	statuses := reg.Statuses()
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nomis52/scriptdash/catalog"
	"github.com/nomis52/scriptdash/history"
	"github.com/nomis52/scriptdash/logging"
	"github.com/nomis52/scriptdash/process"
)

// AbortedLine is appended to the log of a run cancelled by a user.
const AbortedLine = "Script was aborted by user."

var (
	// ErrUnknownScript is returned for names missing from the catalog.
	ErrUnknownScript = errors.New("unknown script")
	// ErrAlreadyRunning is returned when the script has a run in progress.
	ErrAlreadyRunning = errors.New("script is already running")
	// ErrNotRunning is returned when cancelling a script with no live process.
	ErrNotRunning = errors.New("script is not running")
	// ErrInvalidArguments is returned when arguments fail validation.
	ErrInvalidArguments = catalog.ErrInvalidArguments
	// ErrShutdown is returned for run requests after Shutdown.
	ErrShutdown = errors.New("runner is shutting down")
)

// Registry tracks and executes script runs.
type Registry struct {
	logger      *slog.Logger
	catalogs    CatalogProvider
	logDir      string
	launcher    process.Launcher
	store       history.Store
	publisher   Publisher
	metrics     Metrics
	interpreter []string
	env         map[string]string
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	states map[string]*execution
	logs   *logging.LineCollector
	closed bool
}

// execution is the in-memory state of one script name.
type execution struct {
	status history.Status
	active *activeRun
	last   *history.Record
}

// activeRun is a run that has been accepted and not yet finalized.
type activeRun struct {
	record    history.Record
	handle    process.Handle
	aborted   bool
	finishing bool
	done      chan struct{}
}

// New creates a Registry that writes run logs into logDir.
func New(logger *slog.Logger, catalogs CatalogProvider, logDir string, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		logger:    logger,
		catalogs:  catalogs,
		logDir:    logDir,
		store:     history.NewMemoryStore(),
		publisher: nopPublisher{},
		metrics:   nopMetrics{},
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		states:    make(map[string]*execution),
		logs:      logging.NewLineCollector(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.launcher == nil {
		r.launcher = process.NewExec(process.WithLogger(logger))
	}
	return r
}

// Run starts script name with the flat flag/value list args. It returns as
// soon as the run is accepted; progress is reported through the publisher.
// Rejected requests leave all state untouched.
func (r *Registry) Run(name string, args []string) error {
	script, ok := r.catalogs.Catalog().Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScript, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrShutdown
	}
	if st, ok := r.states[name]; ok && st.active != nil {
		return fmt.Errorf("%w: %q", ErrAlreadyRunning, name)
	}
	if err := script.ValidateArgs(args); err != nil {
		return err
	}

	start := history.StartTime(r.now())
	run := &activeRun{
		record: history.Record{
			ID:      uuid.NewString(),
			Script:  name,
			Args:    append([]string(nil), args...),
			Start:   start,
			Status:  history.StatusRunning,
			LogFile: history.LogFileName(name, start),
		},
		done: make(chan struct{}),
	}

	st := r.stateLocked(name)
	st.status = history.StatusRunning
	st.active = run
	r.logs.Reset(name)
	r.publisher.PublishStatus(name, history.StatusRunning.String())
	r.metrics.RunStarted(name)

	r.logger.Info("starting script", "script", name, "run_id", run.record.ID, "log_file", run.record.LogFile)

	r.wg.Add(1)
	go r.execute(script, run)
	return nil
}

// RunWithValues starts script name with arguments given as a name to value
// map, as submitted by a form. Empty values take the declared defaults.
func (r *Registry) RunWithValues(name string, values map[string]string) error {
	script, ok := r.catalogs.Catalog().Get(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownScript, name)
	}
	return r.Run(name, script.ArgVector(values))
}

// Cancel stops the in-progress run of name. The status becomes aborted
// immediately; the process is asked to terminate and the run task records
// the outcome once it exits.
func (r *Registry) Cancel(name string) error {
	r.mu.Lock()
	st, ok := r.states[name]
	if !ok || st.active == nil || st.active.finishing {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrNotRunning, name)
	}
	run := st.active
	if !run.aborted {
		run.aborted = true
		st.status = history.StatusAborted
		r.publisher.PublishStatus(name, history.StatusAborted.String())
		r.logger.Info("aborting script", "script", name, "run_id", run.record.ID)
	}
	h := run.handle
	r.mu.Unlock()

	// Without a handle the process hasn't started yet; the run task sees
	// the aborted flag and stops it.
	if h == nil {
		return nil
	}
	if err := h.Terminate(); err != nil {
		return fmt.Errorf("failed to terminate %q: %w", name, err)
	}
	return nil
}

// Wait blocks until name has no run in progress or ctx is done.
func (r *Registry) Wait(ctx context.Context, name string) error {
	r.mu.Lock()
	var done chan struct{}
	if st, ok := r.states[name]; ok && st.active != nil {
		done = st.active.done
	}
	r.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current status of name. Scripts that never ran are idle.
func (r *Registry) Status(name string) history.Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st, ok := r.states[name]; ok {
		return st.status
	}
	return history.StatusIdle
}

// Statuses returns the status of every catalog script.
func (r *Registry) Statuses() map[string]history.Status {
	names := r.catalogs.Catalog().Names()

	r.mu.Lock()
	defer r.mu.Unlock()

	result := make(map[string]history.Status, len(names))
	for _, name := range names {
		result[name] = history.StatusIdle
	}
	for name, st := range r.states {
		result[name] = st.status
	}
	return result
}

// LastRun returns the record of the most recent finished run of name.
func (r *Registry) LastRun(name string) (history.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[name]
	if !ok || st.last == nil {
		return history.Record{}, false
	}
	return *st.last, true
}

// Running returns the names of scripts with a run in progress.
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var names []string
	for name, st := range r.states {
		if st.active != nil {
			names = append(names, name)
		}
	}
	return names
}

// LiveLogs returns a snapshot of the live log buffers keyed by script name.
func (r *Registry) LiveLogs() map[string][]string {
	return r.logs.All()
}

// LiveLog returns a snapshot of the live log buffer of name.
func (r *Registry) LiveLog(name string) []string {
	return r.logs.Lines(name)
}

// History returns one page of run history, newest first.
func (r *Registry) History(page, perPage int) (history.Page, error) {
	return r.store.Page(page, perPage)
}

// ClearHistory deletes all history records and their log files, and
// empties the live buffers of scripts that aren't running.
func (r *Registry) ClearHistory() error {
	if err := r.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.logs.All() {
		if st, ok := r.states[name]; ok && st.active != nil {
			continue
		}
		r.logs.Remove(name)
	}
	r.logger.Info("history cleared")
	return nil
}

// Shutdown rejects new runs, terminates running processes and waits for
// their run tasks to finalize or for ctx to be done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs to finish: %w", ctx.Err())
	}
}

func (r *Registry) stateLocked(name string) *execution {
	st, ok := r.states[name]
	if !ok {
		st = &execution{status: history.StatusIdle}
		r.states[name] = st
	}
	return st
}
