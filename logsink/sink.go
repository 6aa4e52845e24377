// Package logsink writes the output of a single run to its log file.
//
// A Sink keeps every line in memory and appends it to the log file as soon
// as it arrives, so a crash mid-run still leaves the partial log on disk.
// Close finalizes the file; if the file could never be opened, Close makes a
// last attempt to write the buffered lines in one go.
package logsink

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Sink is the log buffer and log file of one run.
type Sink struct {
	path string

	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	lines  []string
	failed bool
	closed bool
}

// Open creates the log file name inside dir. The returned Sink is always
// usable: when the file can't be created the error is returned alongside a
// memory-only Sink so the run can continue.
func Open(dir, name string) (*Sink, error) {
	s := &Sink{
		path:  filepath.Join(dir, name),
		lines: make([]string, 0),
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		s.failed = true
		return s, fmt.Errorf("failed to create log file %s: %w", s.path, err)
	}
	s.f = f
	s.w = bufio.NewWriter(f)
	return s, nil
}

// Path returns the location of the log file.
func (s *Sink) Path() string {
	return s.path
}

// WriteLine appends a line to the buffer and the log file. The line is
// flushed immediately. A write error switches the sink to memory-only mode
// until Close.
func (s *Sink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("log sink is closed")
	}
	s.lines = append(s.lines, line)

	if s.w == nil {
		return nil
	}
	if _, err := s.w.WriteString(line + "\n"); err != nil {
		s.dropFile()
		return fmt.Errorf("failed to write log file %s: %w", s.path, err)
	}
	if err := s.w.Flush(); err != nil {
		s.dropFile()
		return fmt.Errorf("failed to flush log file %s: %w", s.path, err)
	}
	return nil
}

// Lines returns a copy of the buffered lines.
func (s *Sink) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]string, len(s.lines))
	copy(result, s.lines)
	return result
}

// Close flushes and syncs the log file. If incremental writes failed the
// whole buffer is rewritten. After Close returns nil the log file exists and
// holds every line.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.f != nil {
		err := s.w.Flush()
		if err == nil {
			err = s.f.Sync()
		}
		if cerr := s.f.Close(); err == nil {
			err = cerr
		}
		s.f = nil
		s.w = nil
		if err == nil {
			return nil
		}
		s.failed = true
	}

	if !s.failed {
		return nil
	}
	content := strings.Join(s.lines, "\n")
	if len(s.lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(s.path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write log file %s: %w", s.path, err)
	}
	return nil
}

func (s *Sink) dropFile() {
	s.f.Close()
	s.f = nil
	s.w = nil
	s.failed = true
}
