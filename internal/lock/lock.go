package lock

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/HRDAG/dsg/internal/dsgerr"
)

// Lock is a distributed, file-based mutual-exclusion lock on one
// repository, backed by whichever Backend the caller supplies (typically
// the RemoteFilesystem, since the remote is the shared point of
// coordination across hosts; spec §4.10).
type Lock struct {
	backend    Backend
	userID     string
	operation  string
	timeout    time.Duration
	staleAfter time.Duration

	lockID   string
	acquired bool
}

// Option configures a Lock.
type Option func(*Lock)

// WithTimeout overrides the default 10-minute acquisition timeout.
func WithTimeout(d time.Duration) Option {
	return func(l *Lock) { l.timeout = d }
}

// WithStaleAfter overrides the default 30-minute staleness window.
func WithStaleAfter(d time.Duration) Option {
	return func(l *Lock) { l.staleAfter = d }
}

// New builds a Lock for the given user and operation tag ("sync", "init",
// "clone").
func New(backend Backend, userID, operation string, opts ...Option) *Lock {
	l := &Lock{
		backend:    backend,
		userID:     userID,
		operation:  operation,
		timeout:    DefaultTimeout,
		staleAfter: StaleAfter,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Acquire blocks (subject to ctx and l.timeout) until the lock is ours,
// or returns a LockTimeout/LockConflict error (spec §4.10 step 1-3).
func (l *Lock) Acquire(ctx context.Context) error {
	if l.acquired {
		return nil
	}

	l.lockID = uuid.NewString()
	deadline := time.Now().Add(l.timeout)
	pollInterval := adaptivePollInterval(l.timeout)

	for {
		ok, err := l.tryAcquire(ctx)
		if err != nil {
			return dsgerr.Wrap(dsgerr.KindLockConflict, "lock: acquisition error", err)
		}
		if ok {
			l.acquired = true
			return nil
		}

		if time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return dsgerr.Wrap(dsgerr.KindLockTimeout, "lock: context canceled while waiting", ctx.Err())
		case <-time.After(pollInterval):
		}
	}

	current, _ := l.currentRecord(ctx)
	if current != nil {
		return dsgerr.New(dsgerr.KindLockConflict,
			"lock: repository locked by "+current.UserID+" for "+current.Operation+" since "+current.Timestamp).
			WithHint("wait for the other operation to finish, or confirm it is dead and let the lock go stale")
	}
	return dsgerr.New(dsgerr.KindLockTimeout, "lock: timed out waiting for repository lock")
}

// adaptivePollInterval mirrors the original's "shorter for short
// timeouts, longer for long timeouts" policy (spec §4.10).
func adaptivePollInterval(timeout time.Duration) time.Duration {
	interval := timeout / 10
	if interval > time.Second {
		interval = time.Second
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

// tryAcquire performs one non-blocking acquisition attempt per spec
// §4.10 steps 1-3: check the tombstone, then the lock file, then write
// ours and verify by re-reading (defeating write-write races through a
// non-atomic backend).
func (l *Lock) tryAcquire(ctx context.Context) (bool, error) {
	tombstoneValid, err := l.hasValidTombstone(ctx)
	if err != nil {
		return false, err
	}

	if !tombstoneValid {
		exists, err := l.backend.FileExists(ctx, LockFile)
		if err != nil {
			return false, err
		}
		if exists {
			current, err := l.currentRecord(ctx)
			if err != nil {
				return false, err
			}
			if current != nil && !current.isStale(l.staleAfter) {
				return false, nil // held by an active holder
			}
		}
	}

	rec := newRecord(l.userID, l.operation, l.lockID)
	data, err := rec.marshal()
	if err != nil {
		return false, err
	}
	if err := l.backend.WriteFile(ctx, LockFile, data); err != nil {
		return false, err
	}

	// Re-read to defeat write-write races against a non-atomic backend.
	time.Sleep(5 * time.Millisecond)
	verify, err := l.currentRecord(ctx)
	if err != nil {
		return false, err
	}
	if verify == nil || verify.LockID != l.lockID {
		return false, nil
	}

	// Clear the tombstone now that we hold the lock.
	if err := l.backend.WriteFile(ctx, TombstoneFile, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Lock) hasValidTombstone(ctx context.Context) (bool, error) {
	exists, err := l.backend.FileExists(ctx, TombstoneFile)
	if err != nil || !exists {
		return false, err
	}
	data, err := l.backend.ReadFile(ctx, TombstoneFile)
	if err != nil {
		return false, nil // an unreadable tombstone does not count as a release; the lock file is checked next
	}
	return len(data) > 0, nil
}

func (l *Lock) currentRecord(ctx context.Context) (*Record, error) {
	exists, err := l.backend.FileExists(ctx, LockFile)
	if err != nil || !exists {
		return nil, err
	}
	data, err := l.backend.ReadFile(ctx, LockFile)
	if err != nil {
		return nil, nil
	}
	return parseRecord(data)
}

// Release writes a tombstone carrying our lock id. Idempotent: releasing
// a lock this instance does not hold is a no-op, never an error (spec
// §4.10: "never errors out a completed operation").
func (l *Lock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	rec := newRecord(l.userID, l.operation, l.lockID)
	data, _ := rec.marshal()
	_ = l.backend.WriteFile(ctx, TombstoneFile, data)
	l.acquired = false
	l.lockID = ""
	return nil
}

// Status is a read-only introspection of the current lock holder,
// without attempting acquisition (supplemented feature, grounded on
// original_source/system/locking.py's is_locked(); used by `dsg status`
// per SPEC_FULL.md §6).
func (l *Lock) Status(ctx context.Context) (info *Record, locked bool, err error) {
	tombstoneValid, err := l.hasValidTombstone(ctx)
	if err != nil {
		return nil, false, err
	}
	if tombstoneValid {
		return nil, false, nil
	}

	rec, err := l.currentRecord(ctx)
	if err != nil {
		return nil, false, err
	}
	if rec == nil {
		return nil, false, nil
	}
	if rec.isStale(l.staleAfter) {
		// self-heal: a stale lock is as good as gone, write the
		// tombstone now instead of leaving every future caller to
		// rediscover the same staleness (SPEC_FULL.md §6).
		data, _ := rec.marshal()
		_ = l.backend.WriteFile(ctx, TombstoneFile, data)
		return nil, false, nil
	}
	return rec, true, nil
}
