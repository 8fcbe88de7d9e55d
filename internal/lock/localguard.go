package lock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrLocalLockHeld is returned by LocalGuard.Lock when another process
// already holds the local repository root.
var ErrLocalLockHeld = errors.New("lock: repository root already locked by another local process")

// localLockFile is the process-local advisory lock, kept separate from
// LockFile since the latter lives in the distributed record's namespace
// and may be on a remote backend that cannot be flock'd.
const localLockFile = ".dsg/local.lock"

// LocalGuard is a process-local advisory flock on the repository root:
// while one process holds it, a second process on the same machine gets
// ErrLocalLockHeld immediately instead of polling. Lock.Acquire does not
// consult it, and the sync/init/clone paths do not acquire it.
type LocalGuard struct {
	fl *flock.Flock
}

// NewLocalGuard builds a LocalGuard for the repository rooted at dir.
func NewLocalGuard(repoRoot string) *LocalGuard {
	return &LocalGuard{fl: flock.New(filepath.Join(repoRoot, localLockFile))}
}

// Lock acquires the local lock without blocking.
func (g *LocalGuard) Lock() error {
	if err := os.MkdirAll(filepath.Dir(g.fl.Path()), 0o755); err != nil {
		return fmt.Errorf("lock: create local lock dir: %w", err)
	}
	locked, err := g.fl.TryLock()
	if err != nil {
		return fmt.Errorf("lock: local flock: %w", err)
	}
	if !locked {
		return ErrLocalLockHeld
	}
	return nil
}

// Unlock releases the local lock. A no-op if this guard never acquired
// it.
func (g *LocalGuard) Unlock() error {
	if !g.fl.Locked() {
		return nil
	}
	return g.fl.Unlock()
}
