package store

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/k4r01q/rung/internal/errs"
	"github.com/k4r01q/rung/internal/logs"
)

// Lock acquisition is bounded: concurrent rung invocations should fail fast
// with Busy rather than queue behind each other.
const (
	lockTimeout    = 2 * time.Second
	lockRetryDelay = 100 * time.Millisecond
)

// Lock takes the in-process mutex and the filesystem advisory lock at
// .git/rung/lock. Shared locks are for read-only commands; mutators take
// exclusive. Fails with Busy after the bounded retry window.
func (s *Store) Lock(exclusive bool) error {
	logs.Debug("Acquiring repo lock (exclusive=%v)...", exclusive)
	start := time.Now()
	s.mu.Lock()

	if err := os.MkdirAll(filepath.Dir(s.fl.Path()), 0o755); err != nil {
		s.mu.Unlock()
		return errs.Wrap(err, errs.KindCorruptState, "failed to create lock directory")
	}

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	var ok bool
	var err error
	if exclusive {
		ok, err = s.fl.TryLockContext(ctx, lockRetryDelay)
	} else {
		ok, err = s.fl.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil || !ok {
		s.mu.Unlock()
		return errs.New(errs.KindBusy, "another rung process holds the repository lock").
			WithSuggestion("wait for it to finish, then retry")
	}
	logs.Debug("Repo lock acquired (waited %v).", time.Since(start))
	return nil
}

// Unlock releases both locks.
func (s *Store) Unlock() {
	if err := s.fl.Unlock(); err != nil {
		logs.Warn("Failed to release file lock: %v", err)
	}
	s.mu.Unlock()
	logs.Debug("Repo lock released.")
}
