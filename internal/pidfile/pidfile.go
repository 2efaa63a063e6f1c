// Package pidfile guards against duplicate monitors and carries stop requests between processes.
package pidfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrNotRunning means there is no PID file.
	ErrNotRunning = errors.New("monitor not running")
	// ErrStale means the PID file names a process that no longer exists; the file is removed.
	ErrStale = errors.New("stale pid file")
	// ErrAlreadyRunning means a live process owns the PID file.
	ErrAlreadyRunning = errors.New("monitor already running")
	// ErrStillRunning means a stop was requested but the process did not exit in time.
	ErrStillRunning = errors.New("monitor still running")
)

// StopPath is the sentinel file whose presence asks the monitor at path to stop.
func StopPath(path string) string { return path + ".stop" }

// Read returns the PID stored at path.
func Read(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, ErrNotRunning
	}
	if err != nil {
		return 0, fmt.Errorf("pidfile: read: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("pidfile: malformed %q", strings.TrimSpace(string(raw)))
	}
	return pid, nil
}

// Alive reports whether pid names a running process.
func Alive(pid int) bool {
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

// Acquire writes the current PID to path. A live owner yields ErrAlreadyRunning; a stale file
// and a leftover stop sentinel are cleared first.
func Acquire(path string) error {
	if pid, err := Read(path); err == nil {
		if pid != os.Getpid() && Alive(pid) {
			return fmt.Errorf("%w: pid=%d", ErrAlreadyRunning, pid)
		}
		_ = os.Remove(path)
	}
	_ = os.Remove(StopPath(path))
	return Write(path, os.Getpid())
}

// Write stores pid at path, creating parent directories.
func Write(path string, pid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("pidfile: mkdir: %w", err)
	}
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return fmt.Errorf("pidfile: write: %w", err)
	}
	return nil
}

// Remove deletes the PID file and any stop sentinel. Missing files are not an error.
func Remove(path string) error {
	_ = os.Remove(StopPath(path))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("pidfile: remove: %w", err)
	}
	return nil
}

// RequestStop drops the stop sentinel next to path.
func RequestStop(path string) error {
	if err := os.WriteFile(StopPath(path), []byte(time.Now().UTC().Format(time.RFC3339)), 0o644); err != nil {
		return fmt.Errorf("pidfile: request stop: %w", err)
	}
	return nil
}

// StopRequested reports whether the stop sentinel exists.
func StopRequested(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(StopPath(path))
	return err == nil
}

// Stop asks the monitor owning path to finish its current round and exit, then waits for the
// PID file to disappear. The sentinel is honored at the next iteration boundary; SIGTERM
// shortens a pending sleep.
func Stop(ctx context.Context, path string, wait time.Duration) (int, error) {
	pid, err := Read(path)
	if err != nil {
		return 0, err
	}
	if !Alive(pid) {
		_ = Remove(path)
		return pid, fmt.Errorf("%w: pid=%d", ErrStale, pid)
	}
	if err := RequestStop(path); err != nil {
		return pid, err
	}
	if proc, err := os.FindProcess(pid); err == nil {
		_ = proc.Signal(syscall.SIGTERM)
	}

	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return pid, ctx.Err()
		case <-deadline.C:
			return pid, fmt.Errorf("%w: pid=%d", ErrStillRunning, pid)
		case <-tick.C:
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) || !Alive(pid) {
				_ = os.Remove(StopPath(path))
				return pid, nil
			}
		}
	}
}
