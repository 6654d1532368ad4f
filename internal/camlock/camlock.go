// Package camlock provides the cross-process camera lease. Unrelated
// programs sharing one capture device (the counting worker and the
// zone-configuration tool) serialize on an advisory file lock keyed by
// device index; waiters block until the holder releases.
package camlock

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// How often a blocked Acquire re-attempts the lock between context
// checks.
const retryDelay = 25 * time.Millisecond

// Lock is a blocking, cross-process mutual-exclusion token bound to a
// specific device index.
type Lock struct {
	fl *flock.Flock
}

// New returns a lock for the given device index. The lock file lives
// under dir and is shared with any other program using the same
// convention.
func New(dir string, deviceIndex int) *Lock {
	path := filepath.Join(dir, fmt.Sprintf("camera_%d.lock", deviceIndex))
	return &Lock{fl: flock.New(path)}
}

// Path returns the underlying lock file path.
func (l *Lock) Path() string {
	return l.fl.Path()
}

// Acquire blocks until the lock is held or the context expires, so a
// wedged holder can never stall the caller past its deadline. Fairness
// among waiters is whatever the OS provides.
func (l *Lock) Acquire(ctx context.Context) error {
	ok, err := l.fl.TryLockContext(ctx, retryDelay)
	if err != nil {
		return fmt.Errorf("acquire camera lock %s: %w", l.fl.Path(), err)
	}
	if !ok {
		return fmt.Errorf("acquire camera lock %s: not acquired", l.fl.Path())
	}
	return nil
}

// TryAcquire attempts the lock without blocking.
func (l *Lock) TryAcquire() (bool, error) {
	ok, err := l.fl.TryLock()
	if err != nil {
		return false, fmt.Errorf("try camera lock %s: %w", l.fl.Path(), err)
	}
	return ok, nil
}

// Release drops the lock. Safe to call when the lock is not held.
func (l *Lock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("release camera lock %s: %w", l.fl.Path(), err)
	}
	return nil
}
