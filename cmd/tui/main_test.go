package main

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"polyarb-go/internal/pidfile"
)

func TestShutdownMonitorStopsThroughPIDFile(t *testing.T) {
	bin, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	child := exec.Command(bin, "30")
	if err := child.Start(); err != nil {
		t.Fatalf("start child: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = child.Wait()
		close(done)
	}()

	path := filepath.Join(t.TempDir(), "monitor.pid")
	if err := pidfile.Write(path, child.Process.Pid); err != nil {
		t.Fatalf("write pid file: %v", err)
	}

	if err := shutdownMonitor(path, done, 5*time.Second); err != nil {
		t.Fatalf("shutdownMonitor returned error: %v", err)
	}
	select {
	case <-done:
	default:
		t.Fatal("expected child to have exited")
	}
	if _, err := os.Stat(pidfile.StopPath(path)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected stop sentinel to be cleaned up, got %v", err)
	}
}

func TestShutdownMonitorSkipsFinishedLauncher(t *testing.T) {
	done := make(chan struct{})
	close(done)
	if err := shutdownMonitor(filepath.Join(t.TempDir(), "missing.pid"), done, time.Second); err != nil {
		t.Fatalf("expected no error for finished launcher, got %v", err)
	}
}
