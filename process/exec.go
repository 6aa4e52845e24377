package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unicode"
)

// Exec is a Launcher backed by os/exec.
type Exec struct {
	gracePeriod time.Duration
	logger      *slog.Logger
}

// NewExec creates an Exec launcher.
func NewExec(opts ...Option) *Exec {
	e := &Exec{
		gracePeriod: DefaultGracePeriod,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start implements Launcher.
func (e *Exec) Start(ctx context.Context, c Command) (Handle, error) {
	if c.Path == "" {
		return nil, errors.New("command path is required")
	}
	argv := c.Argv()

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = buildEnv(c.Env)
	cmd.Stdin = nil
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("failed to start %s: %w", c.Path, err)
	}
	// The child holds its own copy of the write end. Closing ours means the
	// reader sees EOF once every process in the group is gone.
	pw.Close()

	h := &execHandle{
		cmd:         cmd,
		output:      pr,
		gracePeriod: e.gracePeriod,
		logger:      e.logger.With("pid", cmd.Process.Pid, "path", c.Path),
		done:        make(chan struct{}),
	}
	go h.wait()
	go h.watch(ctx)

	h.logger.Debug("process started", "argv", argv)
	return h, nil
}

type execHandle struct {
	cmd         *exec.Cmd
	output      *os.File
	gracePeriod time.Duration
	logger      *slog.Logger

	done     chan struct{}
	exitCode int
	waitErr  error

	linesUsed   atomic.Bool
	terminateMu sync.Mutex
	terminating bool
}

func (h *execHandle) Pid() int {
	return h.cmd.Process.Pid
}

func (h *execHandle) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !h.linesUsed.CompareAndSwap(false, true) {
			return
		}
		defer h.output.Close()

		reader := bufio.NewReader(h.output)
		for {
			line, err := reader.ReadString('\n')
			if line != "" {
				if !yield(strings.TrimRightFunc(line, unicode.IsSpace)) {
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
					h.logger.Warn("error reading process output", "error", err)
				}
				return
			}
		}
	}
}

func (h *execHandle) Wait() (int, error) {
	<-h.done
	if h.linesUsed.CompareAndSwap(false, true) {
		h.output.Close()
	}
	return h.exitCode, h.waitErr
}

// Terminate sends SIGTERM to the process group and SIGKILL once the grace
// period expires. A later call kills the group immediately.
func (h *execHandle) Terminate() error {
	select {
	case <-h.done:
		return nil
	default:
	}

	h.terminateMu.Lock()
	defer h.terminateMu.Unlock()

	pgid := -h.cmd.Process.Pid
	if h.terminating {
		h.logger.Warn("terminate repeated, killing process group")
		return h.signal(pgid, syscall.SIGKILL)
	}

	h.logger.Info("terminating process group", "grace_period", h.gracePeriod)
	if err := h.signal(pgid, syscall.SIGTERM); err != nil {
		return err
	}
	h.terminating = true

	go func() {
		timer := time.NewTimer(h.gracePeriod)
		defer timer.Stop()
		select {
		case <-h.done:
		case <-timer.C:
			h.logger.Warn("process ignored SIGTERM, killing")
			_ = syscall.Kill(pgid, syscall.SIGKILL)
		}
	}()
	return nil
}

// signal delivers sig to the process group. A group that is already gone
// is not an error.
func (h *execHandle) signal(pgid int, sig syscall.Signal) error {
	if err := syscall.Kill(pgid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("failed to signal process group: %w", err)
	}
	return nil
}

func (h *execHandle) wait() {
	defer close(h.done)

	err := h.cmd.Wait()
	if err == nil {
		h.exitCode = 0
		return
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			h.exitCode = -int(ws.Signal())
		} else {
			h.exitCode = exitErr.ExitCode()
		}
		return
	}
	h.exitCode = -1
	h.waitErr = fmt.Errorf("failed waiting for process: %w", err)
}

func (h *execHandle) watch(ctx context.Context) {
	select {
	case <-h.done:
	case <-ctx.Done():
		if err := h.Terminate(); err != nil {
			h.logger.Warn("failed to terminate process on context cancel", "error", err)
		}
	}
}

// buildEnv returns the inherited environment plus extra, with Python output
// buffering disabled so lines stream as they are printed.
func buildEnv(extra map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return append(env, "PYTHONUNBUFFERED=1")
}
