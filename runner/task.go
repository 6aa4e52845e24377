package runner

import (
	"fmt"
	"log/slog"

	"github.com/nomis52/scriptdash/catalog"
	"github.com/nomis52/scriptdash/history"
	"github.com/nomis52/scriptdash/logsink"
	"github.com/nomis52/scriptdash/process"
)

// execute is the body of the background task of one run.
func (r *Registry) execute(script *catalog.Script, run *activeRun) {
	defer r.wg.Done()

	name := script.Name
	logger := r.logger.With("script", name, "run_id", run.record.ID)

	sink, err := logsink.Open(r.logDir, run.record.LogFile)
	if err != nil {
		logger.Error("failed to open log file", "error", err)
		r.metrics.PersistenceFailed("log")
	}
	out := &output{registry: r, script: name, sink: sink, logger: logger}

	exitCode := -1
	runErr := capturePanic(func() error {
		code, err := r.stream(script, run, out)
		exitCode = code
		return err
	})
	if runErr != nil {
		logger.Error("script run failed", "error", runErr)
		out.emit("Exception: " + runErr.Error())
	}

	r.mu.Lock()
	run.finishing = true
	run.handle = nil
	aborted := run.aborted
	r.mu.Unlock()

	status := history.StatusError
	switch {
	case aborted:
		status = history.StatusAborted
		out.emit(AbortedLine)
	case runErr == nil && exitCode == 0:
		status = history.StatusSuccess
	}

	if err := sink.Close(); err != nil {
		logger.Error("failed to finalize log file", "error", err)
		r.metrics.PersistenceFailed("log")
	}

	end := r.now()
	record := run.record
	record.Finish(end, status)
	if err := r.store.Append(record); err != nil {
		logger.Error("failed to append history record", "error", err)
		r.metrics.PersistenceFailed("history")
	}
	r.metrics.RunFinished(name, status.String(), end, end.Sub(record.Start))

	r.mu.Lock()
	st := r.stateLocked(name)
	st.status = status
	st.active = nil
	st.last = &record
	r.publisher.PublishStatus(name, status.String())
	r.mu.Unlock()
	close(run.done)

	logger.Info("script finished",
		"status", status.String(),
		"exit_code", exitCode,
		"duration", record.Duration,
	)
}

// stream starts the process and forwards its output until it exits.
func (r *Registry) stream(script *catalog.Script, run *activeRun, out *output) (int, error) {
	r.mu.Lock()
	aborted := run.aborted
	r.mu.Unlock()
	if aborted {
		return -1, nil
	}

	h, err := r.launcher.Start(r.ctx, process.Command{
		Interpreter: r.interpreter,
		Path:        script.Path,
		Args:        run.record.Args,
		Env:         r.env,
	})
	if err != nil {
		return -1, err
	}

	r.mu.Lock()
	run.handle = h
	aborted = run.aborted
	r.mu.Unlock()
	if aborted {
		// Cancelled while the process was starting.
		if err := h.Terminate(); err != nil {
			out.logger.Warn("failed to terminate cancelled process", "error", err)
		}
	}

	for line := range h.Lines() {
		out.emit(line)
	}
	return h.Wait()
}

// output fans a run's lines out to the log file, the live buffer and the
// publisher, in order.
type output struct {
	registry  *Registry
	script    string
	sink      *logsink.Sink
	logger    *slog.Logger
	sinkError bool
}

func (o *output) emit(line string) {
	if err := o.sink.WriteLine(line); err != nil && !o.sinkError {
		// Reported once; the sink keeps buffering for Close.
		o.sinkError = true
		o.logger.Warn("failed to write log line", "error", err)
		o.registry.metrics.PersistenceFailed("log")
	}
	o.registry.logs.Append(o.script, line)
	o.registry.publisher.PublishLog(o.script, line)
}

// capturePanic runs fn and converts a panic into an error.
func capturePanic(fn func() error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return fn()
}
