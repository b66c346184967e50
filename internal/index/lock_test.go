package index

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coa-dev/codesearch/internal/cserr"
)

func TestWriteLockAcquireRelease(t *testing.T) {
	dir := t.TempDir()

	l := NewWriteLock(dir)
	require.NoError(t, l.Acquire(time.Second))
	assert.True(t, l.Locked())

	// Pid sidecar written.
	data, err := os.ReadFile(filepath.Join(dir, pidFileName))
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	require.NoError(t, l.Release())
	assert.False(t, l.Locked())
	assert.NoFileExists(t, filepath.Join(dir, pidFileName))

	// Release twice is safe.
	require.NoError(t, l.Release())
}

func TestWriteLockContention(t *testing.T) {
	dir := t.TempDir()

	first := NewWriteLock(dir)
	require.NoError(t, first.Acquire(time.Second))
	defer first.Release()

	// flock is per-process on some platforms, so contention from the same
	// process may not block; a dead-pid sweep must not break a live lock.
	assert.False(t, SweepStaleLock(dir), "live owner must not be swept")
}

func TestSweepStaleLockRemovesDeadOwner(t *testing.T) {
	dir := t.TempDir()

	// Fabricate a lock owned by a certainly-dead pid.
	require.NoError(t, os.WriteFile(filepath.Join(dir, lockFileName), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, pidFileName), []byte("999999999"), 0o644))

	assert.True(t, SweepStaleLock(dir))
	assert.NoFileExists(t, filepath.Join(dir, pidFileName))
	assert.NoFileExists(t, filepath.Join(dir, lockFileName))

	// After the sweep the lock is acquirable.
	l := NewWriteLock(dir)
	require.NoError(t, l.Acquire(time.Second))
	require.NoError(t, l.Release())
}

func TestSweepStaleLockGarbagePid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, pidFileName), []byte("not-a-pid"), 0o644))

	assert.True(t, SweepStaleLock(dir))
}

func TestLockHeldErrorIsRetryable(t *testing.T) {
	err := cserr.LockHeld("/some/index")
	assert.True(t, cserr.IsRetryable(err))
}
