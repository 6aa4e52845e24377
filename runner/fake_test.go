package runner

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/nomis52/scriptdash/process"
)

// fakeLauncher hands out fakeHandles controlled by the test.
type fakeLauncher struct {
	mu           sync.Mutex
	err          error
	panicMsg     string
	terminateErr error
	// gate, when set, holds Start until it is closed. Start signals
	// waiting first.
	gate    chan struct{}
	waiting chan struct{}
	handles  []*fakeHandle
	commands []process.Command
	started  chan *fakeHandle
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{started: make(chan *fakeHandle, 8)}
}

func (l *fakeLauncher) Start(ctx context.Context, cmd process.Command) (process.Handle, error) {
	if l.gate != nil {
		l.waiting <- struct{}{}
		<-l.gate
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.panicMsg != "" {
		panic(l.panicMsg)
	}
	l.commands = append(l.commands, cmd)
	if l.err != nil {
		return nil, l.err
	}
	h := &fakeHandle{
		lines:        make(chan string, 16),
		exit:         make(chan int, 1),
		terminateErr: l.terminateErr,
	}
	l.handles = append(l.handles, h)
	l.started <- h
	return h, nil
}

// fakeHandle emits lines sent on lines until it is closed, then reports the
// exit code sent on exit.
type fakeHandle struct {
	lines chan string
	exit  chan int

	mu           sync.Mutex
	terminated   int
	terminateErr error
}

func (h *fakeHandle) Lines() iter.Seq[string] {
	return func(yield func(string) bool) {
		for line := range h.lines {
			if !yield(line) {
				return
			}
		}
	}
}

func (h *fakeHandle) Wait() (int, error) {
	return <-h.exit, nil
}

func (h *fakeHandle) Terminate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminated++
	return h.terminateErr
}

func (h *fakeHandle) Pid() int {
	return 4242
}

func (h *fakeHandle) Terminations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

// finish ends the output stream and exits with code.
func (h *fakeHandle) finish(code int) {
	close(h.lines)
	h.exit <- code
}

// recordingMetrics counts metric calls.
type recordingMetrics struct {
	mu       sync.Mutex
	started  []string
	finished []string
	failures []string
}

func (m *recordingMetrics) RunStarted(script string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, script)
}

func (m *recordingMetrics) RunFinished(script, status string, _ time.Time, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, script+":"+status)
}

func (m *recordingMetrics) PersistenceFailed(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, kind)
}
