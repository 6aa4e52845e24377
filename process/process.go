// Package process starts catalog scripts as child processes and streams
// their combined output line by line.
//
// Each child runs in its own process group. Terminate sends SIGTERM to the
// whole group and escalates to SIGKILL when the group is still alive after
// the grace period, so helpers spawned by a script don't outlive it.
package process

import (
	"context"
	"iter"
	"log/slog"
	"time"
)

// DefaultGracePeriod is how long Terminate waits before sending SIGKILL.
const DefaultGracePeriod = 10 * time.Second

// Command describes a child process.
type Command struct {
	// Interpreter is prepended to the script path, e.g. ["python3"].
	// When empty the script is executed directly.
	Interpreter []string
	// Path is the script to run.
	Path string
	// Args are passed after the script path.
	Args []string
	// Env is added to the inherited environment.
	Env map[string]string
	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// Argv returns the full argument vector of the command.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Interpreter)+1+len(c.Args))
	argv = append(argv, c.Interpreter...)
	argv = append(argv, c.Path)
	return append(argv, c.Args...)
}

// Launcher starts child processes.
type Launcher interface {
	// Start spawns the command. Cancelling ctx terminates the process.
	Start(ctx context.Context, cmd Command) (Handle, error)
}

// Handle controls a started child process.
type Handle interface {
	// Lines yields each line of combined stdout and stderr, without the
	// line terminator or trailing whitespace, until the output closes.
	// It must be consumed exactly once.
	Lines() iter.Seq[string]
	// Wait blocks until the process exits and returns its exit code.
	// A process killed by a signal reports the negated signal number.
	Wait() (int, error)
	// Terminate asks the process group to stop. A second call while the
	// process is still running kills it immediately. Calling it after
	// the process has exited is a no-op.
	Terminate() error
	// Pid returns the process ID.
	Pid() int
}

// Option configures an Exec launcher.
type Option func(*Exec)

// WithGracePeriod sets the delay between SIGTERM and SIGKILL.
func WithGracePeriod(d time.Duration) Option {
	return func(e *Exec) {
		e.gracePeriod = d
	}
}

// WithLogger sets the logger used for process lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exec) {
		e.logger = logger
	}
}
