package store

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// stateLockName is the lock file guarding state.json inside .cto.
const stateLockName = "state.lock"

// stateLock serializes counter allocation across cto processes sharing a
// project directory. The in-process mutex on FileBackend does not reach a
// second `cto sprint` or `cto ticket create` running in another shell.
type stateLock struct {
	path string
	file *os.File
}

func newStateLock(dir string) *stateLock {
	return &stateLock{path: filepath.Join(dir, stateLockName)}
}

// acquire blocks until this process holds .cto/state.lock exclusively.
func (l *stateLock) acquire() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", stateLockName, err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return fmt.Errorf("lock %s: %w", stateLockName, err)
	}
	l.file = f
	return nil
}

// release drops the lock. Closing the descriptor releases it as well, so a
// failed unlock still frees the file for the next process.
func (l *stateLock) release() error {
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil
	unlockErr := syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	if err := f.Close(); err != nil {
		return err
	}
	if unlockErr != nil {
		return fmt.Errorf("unlock %s: %w", stateLockName, unlockErr)
	}
	return nil
}

// withStateLock runs fn while holding the project's state lock.
func withStateLock(dir string, fn func() error) (err error) {
	l := newStateLock(dir)
	if err := l.acquire(); err != nil {
		return err
	}
	defer func() {
		if rerr := l.release(); err == nil && rerr != nil {
			err = rerr
		}
	}()
	return fn()
}
