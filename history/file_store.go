package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

// FileStore persists run history as a JSON array in a single file.
//
// Every mutation runs as read-modify-write inside an exclusive flock on
// "<path>.lock". The new contents are written to a temporary file in the
// same directory and renamed over the old file, so the history file is
// valid JSON at every instant.
type FileStore struct {
	path       string
	logDir     string
	maxRecords int
	logger     *slog.Logger
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithMaxRecords limits the number of kept records. When an append exceeds
// the limit the oldest records are dropped and their log files removed.
// Zero means unlimited.
func WithMaxRecords(n int) FileStoreOption {
	return func(s *FileStore) {
		s.maxRecords = n
	}
}

// NewFileStore creates a store backed by the file at path. Log files named
// by records are resolved relative to logDir.
func NewFileStore(path, logDir string, logger *slog.Logger, opts ...FileStoreOption) (*FileStore, error) {
	s := &FileStore{
		path:   path,
		logDir: logDir,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return s, nil
}

// Path returns the location of the history file.
func (s *FileStore) Path() string {
	return s.path
}

// Append adds a record to the history file.
// Unparseable existing contents are treated as an empty history.
func (s *FileStore) Append(r Record) error {
	return s.update(func(records []Record) []Record {
		records = append(records, r)
		if s.maxRecords > 0 && len(records) > s.maxRecords {
			records = s.prune(records)
		}
		return records
	})
}

// prune keeps the newest maxRecords records, preserving insertion order, and
// removes the log files of the dropped ones.
func (s *FileStore) prune(records []Record) []Record {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sortNewestFirst(sorted)

	drop := make(map[string]bool, len(sorted)-s.maxRecords)
	for _, old := range sorted[s.maxRecords:] {
		drop[old.key()] = true
		s.removeLog(old.LogFile)
	}

	kept := make([]Record, 0, s.maxRecords)
	for _, rec := range records {
		if !drop[rec.key()] {
			kept = append(kept, rec)
		}
	}
	return kept
}

// Page reads the whole history and returns the requested page, newest first.
func (s *FileStore) Page(page, perPage int) (Page, error) {
	records, err := s.Records()
	if err != nil {
		return Page{}, err
	}
	return paginate(records, page, perPage), nil
}

// Records returns all records in insertion order.
func (s *FileStore) Records() ([]Record, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	records, err := decode(data)
	if err != nil {
		return nil, errors.Join(ErrCorrupt, err)
	}
	return records, nil
}

// Clear deletes the log file of every record and empties the history.
// Log files that can't be removed are skipped.
func (s *FileStore) Clear() error {
	return s.update(func(records []Record) []Record {
		for _, r := range records {
			s.removeLog(r.LogFile)
		}
		return []Record{}
	})
}

// update runs fn inside the critical section. The lock is released on every
// return path.
func (s *FileStore) update(fn func([]Record) []Record) (err error) {
	lock, err := lockFile(s.path+".lock")
	if err != nil {
		return err
	}
	defer func() {
		if uerr := lock.unlock(); uerr != nil && err == nil {
			err = fmt.Errorf("failed to unlock history: %w", uerr)
		}
	}()

	records := s.readOrEmpty()
	records = fn(records)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	return writeAtomic(s.path, data)
}

func (s *FileStore) readOrEmpty() []Record {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to read history file, starting empty", "path", s.path, "error", err)
		}
		return []Record{}
	}

	records, err := decode(data)
	if err != nil {
		s.logger.Warn("failed to parse history file, starting empty", "path", s.path, "error", err)
		return []Record{}
	}
	return records
}

func (s *FileStore) removeLog(name string) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return
	}
	path := filepath.Join(s.logDir, name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove log file", "path", path, "error", err)
	}
}

func decode(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// writeAtomic writes data to a temporary file next to path and renames it
// into place.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp history file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close history: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod history: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}
