package index

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"github.com/coa-dev/codesearch/internal/cserr"
)

const (
	lockFileName = ".write.lock"
	pidFileName  = ".write.pid"
)

// WriteLock is the OS-level write lock for one index directory.
// At most one process holds it; a pid sidecar lets the startup reconciler
// identify and sweep locks whose owner died.
type WriteLock struct {
	dir     string
	flock   *flock.Flock
	pidPath string
	locked  bool
}

// NewWriteLock creates a write lock for the given index directory.
func NewWriteLock(indexDir string) *WriteLock {
	return &WriteLock{
		dir:     indexDir,
		flock:   flock.New(filepath.Join(indexDir, lockFileName)),
		pidPath: filepath.Join(indexDir, pidFileName),
	}
}

// Acquire obtains the lock, retrying until timeout. On the first failure it
// sweeps a stale lock (dead owning process) once, then keeps retrying.
// Returns LockHeld when the timeout expires.
func (l *WriteLock) Acquire(timeout time.Duration) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	deadline := time.Now().Add(timeout)
	swept := false

	for {
		acquired, err := l.flock.TryLock()
		if err != nil {
			return fmt.Errorf("failed to acquire write lock: %w", err)
		}
		if acquired {
			l.locked = true
			return l.writePid()
		}

		if !swept {
			swept = true
			if SweepStaleLock(l.dir) {
				continue
			}
		}

		if time.Now().After(deadline) {
			return cserr.LockHeld(l.dir)
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// Release drops the lock and removes the pid sidecar.
// Safe to call multiple times.
func (l *WriteLock) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	_ = os.Remove(l.pidPath)
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release write lock: %w", err)
	}
	return nil
}

// Locked reports whether this process holds the lock.
func (l *WriteLock) Locked() bool {
	return l.locked
}

func (l *WriteLock) writePid() error {
	pid := strconv.Itoa(os.Getpid())
	if err := os.WriteFile(l.pidPath, []byte(pid), 0o644); err != nil {
		return fmt.Errorf("failed to write pid file: %w", err)
	}
	return nil
}

// SweepStaleLock removes the lock and pid files from an index directory when
// the recorded owner process no longer exists. Returns true if a stale lock
// was removed.
func SweepStaleLock(indexDir string) bool {
	pidPath := filepath.Join(indexDir, pidFileName)
	data, err := os.ReadFile(pidPath)
	if err != nil {
		return false
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		// Unparseable pid file: treat as stale.
		_ = os.Remove(pidPath)
		_ = os.Remove(filepath.Join(indexDir, lockFileName))
		return true
	}

	if processAlive(pid) {
		return false
	}

	_ = os.Remove(pidPath)
	_ = os.Remove(filepath.Join(indexDir, lockFileName))
	return true
}

// processAlive reports whether a process with the given pid exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 performs the existence check without delivering a signal.
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
