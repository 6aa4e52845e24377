package logsink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidLogName is returned for names that don't refer to a log file
// directly inside the log directory.
var ErrInvalidLogName = errors.New("invalid log file name")

// Resolve maps a user supplied log file name to a path inside dir. Only
// plain base names ending in ".log" are accepted; anything that could
// escape dir is rejected.
func Resolve(dir, name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) ||
		name != filepath.Base(name) || !strings.HasSuffix(name, ".log") {
		return "", fmt.Errorf("%w: %q", ErrInvalidLogName, name)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve log directory: %w", err)
	}
	path := filepath.Join(root, name)
	if filepath.Dir(path) != root {
		return "", fmt.Errorf("%w: %q", ErrInvalidLogName, name)
	}
	return path, nil
}

// Read returns the content of the named log file in dir.
func Read(dir, name string) (string, error) {
	path, err := Resolve(dir, name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read log file: %w", err)
	}
	return string(data), nil
}
