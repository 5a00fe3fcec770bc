// Package filelock guards a task directory against concurrent taskloop
// runs. Two orchestrators writing the same .task/ artifacts would race on
// iteration counters and session markers, so a run takes an advisory lock
// file before its first tick.
//
// The lock is a file created with O_EXCL containing the holder's PID. A
// leftover lock whose process is gone is treated as stale and replaced, so
// a crashed run never wedges the pipeline.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// ErrLocked is returned when another live process holds the lock.
var ErrLocked = errors.New("task directory is locked by another run")

// LockName is the lock file name inside the task directory.
const LockName = ".lock"

// Lock is a held task-directory lock. Release it with Unlock.
type Lock struct {
	path string
}

// Acquire takes the lock for taskDir on behalf of the current process.
// A stale lock left by a dead process is removed and re-acquired once.
func Acquire(taskDir string) (*Lock, error) {
	if err := os.MkdirAll(taskDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create task directory: %w", err)
	}
	path := filepath.Join(taskDir, LockName)

	if err := tryCreate(path); err == nil {
		return &Lock{path: path}, nil
	} else if !os.IsExist(err) {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}

	holder, err := readHolder(path)
	if err == nil && processAlive(holder) {
		return nil, fmt.Errorf("%w: pid %d", ErrLocked, holder)
	}

	// Stale or unreadable lock; replace it. The remove-then-create window
	// is accepted for an advisory lock.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to remove stale lock: %w", err)
	}
	if err := tryCreate(path); err != nil {
		if os.IsExist(err) {
			return nil, ErrLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	return &Lock{path: path}, nil
}

// Unlock releases the lock. Safe to call once per acquired lock.
func (l *Lock) Unlock() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock file: %w", err)
	}
	return nil
}

// Path returns the lock file location.
func (l *Lock) Path() string { return l.path }

func tryCreate(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, writeErr := fmt.Fprintf(f, "%d\n", os.Getpid())
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

func readHolder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// processAlive reports whether a PID refers to a running process. Signal 0
// probes existence without delivering anything; permission errors mean the
// process exists but belongs to someone else.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
