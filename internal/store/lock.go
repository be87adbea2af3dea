package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	pderrors "github.com/Aman-CERP/pdfrag/internal/errors"
)

// LockFileName is the cross-process write lock in the data directory.
const LockFileName = "index.lock"

// lockRetryDelay is how often Acquire re-checks a held lock.
const lockRetryDelay = 50 * time.Millisecond

// FileLock is the data directory write lock. One process at a time may
// ingest into or delete the indexes of a data directory. A FileLock is not
// safe for concurrent use; callers serialize their own runs.
type FileLock struct {
	fl   *flock.Flock
	held bool
}

// NewFileLock returns the write lock of dataDir. Nothing is created until
// the lock is taken.
func NewFileLock(dataDir string) *FileLock {
	return &FileLock{fl: flock.New(filepath.Join(dataDir, LockFileName))}
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.fl.Path() }

// TryLock takes the lock if it is free and reports whether it did.
func (l *FileLock) TryLock() (bool, error) {
	if err := l.ensureDir(); err != nil {
		return false, err
	}
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", l.Path(), err)
	}
	l.held = l.held || ok
	return ok, nil
}

// Acquire takes the lock, waiting up to wait for another holder to let go.
// A zero wait does not wait at all. Failing to get the lock in time is a
// StoreUnavailableError.
func (l *FileLock) Acquire(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		ok, err := l.TryLock()
		if err != nil {
			return pderrors.StoreUnavailableError("cannot take the index write lock", err)
		}
		if !ok {
			return l.busy()
		}
		return nil
	}

	if err := l.ensureDir(); err != nil {
		return pderrors.StoreUnavailableError("cannot take the index write lock", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ok, err := l.fl.TryLockContext(waitCtx, lockRetryDelay)
	switch {
	case ok:
		l.held = true
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil || stderrors.Is(err, context.DeadlineExceeded):
		return l.busy()
	default:
		return pderrors.StoreUnavailableError("cannot take the index write lock", err)
	}
}

// Unlock releases the lock. Releasing a lock that is not held does nothing.
func (l *FileLock) Unlock() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.Path(), err)
	}
	return nil
}

func (l *FileLock) ensureDir() error {
	if err := os.MkdirAll(filepath.Dir(l.Path()), 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

func (l *FileLock) busy() error {
	return pderrors.StoreUnavailableError(
		fmt.Sprintf("another process is writing the index (%s)", l.Path()), nil).
		WithSuggestion("Wait for the running 'pdfrag index' or server ingest to finish")
}
