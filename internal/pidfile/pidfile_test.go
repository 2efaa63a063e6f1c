package pidfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "monitor.pid")

	require.NoError(t, Acquire(path))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, Alive(pid))

	require.NoError(t, Remove(path))
	_, err = Read(path)
	assert.ErrorIs(t, err, ErrNotRunning)
	assert.NoError(t, Remove(path))
}

func TestAcquireClearsStaleAndSentinel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.pid")
	require.NoError(t, Write(path, 999999999))
	require.NoError(t, RequestStop(path))
	assert.True(t, StopRequested(path))

	require.NoError(t, Acquire(path))
	assert.False(t, StopRequested(path))
	pid, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireRefusesLiveOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.pid")
	// The parent of the test binary is alive for the duration of the test.
	require.NoError(t, Write(path, os.Getppid()))
	err := Acquire(path)
	assert.True(t, errors.Is(err, ErrAlreadyRunning), "got %v", err)
}

func TestReadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid"), 0o644))
	_, err := Read(path)
	assert.Error(t, err)
}

func TestStopStaleRemovesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.pid")
	require.NoError(t, Write(path, 999999999))

	_, err := Stop(context.Background(), path, time.Second)
	assert.ErrorIs(t, err, ErrStale)
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestStopWithoutPIDFile(t *testing.T) {
	_, err := Stop(context.Background(), filepath.Join(t.TempDir(), "none.pid"), time.Second)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestAliveRejectsNonPositive(t *testing.T) {
	assert.False(t, Alive(0))
	assert.False(t, Alive(-5))
	assert.False(t, StopRequested(""))
}
