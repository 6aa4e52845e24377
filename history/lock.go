package history

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// fileLock is an advisory lock shared with every process using the same
// history file.
type fileLock struct {
	f *os.File
}

// lockFile takes an exclusive flock on path, creating it if needed. It
// blocks until the lock is granted.
func lockFile(path string) (*fileLock, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}

	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return &fileLock{f: f}, nil
}

// unlock releases the lock. Closing the descriptor drops the lock even if
// the explicit unlock fails.
func (l *fileLock) unlock() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}
