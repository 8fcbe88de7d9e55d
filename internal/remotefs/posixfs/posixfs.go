// Package posixfs implements dsg's RemoteFilesystem for backends
// without snapshot semantics (e.g. XFS over SSH): staging is a sibling
// directory, and commit is a best-effort two-step rename, explicitly
// not atomic (spec §4.8).
package posixfs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/manifest"
)

// Filesystem is the plain-POSIX RemoteFilesystem implementation.
//
// Commit is NOT atomic: a crash between the two renames leaves the
// live repository name missing for a window. This is documented and
// accepted — it is adequate only because the distributed lock (spec
// §4.10) guarantees no other reader is active during a transaction.
type Filesystem struct {
	Root string // e.g. <mount>/<repo>

	txID       string
	stagingDir string
	deletes    []string
}

// New builds a posixfs Filesystem rooted at the repository's live path.
func New(root string) *Filesystem {
	return &Filesystem{Root: root}
}

func (f *Filesystem) stagingPath() string { return f.Root + ".staging-" + f.txID }
func (f *Filesystem) oldPath() string     { return f.Root + ".old-" + f.txID }

// Begin creates the sibling staging directory, seeded by copying the
// live tree so files not touched by this sync still exist after
// promotion (spec §4.8 implies a full replacement, not a merge).
func (f *Filesystem) Begin(ctx context.Context, txID string) error {
	f.txID = txID
	f.stagingDir = f.stagingPath()

	if err := copyTree(f.Root, f.stagingDir); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "posixfs: seed staging from live tree", err)
	}
	return nil
}

// StagedPath returns the sibling-staging path for relPath.
func (f *Filesystem) StagedPath(relPath string) string {
	return filepath.Join(f.stagingDir, relPath)
}

// WriteSymlink recreates a symlink directly inside staging, bypassing
// content streaming (spec §4.5).
func (f *Filesystem) WriteSymlink(relPath, target string) error {
	dest := f.StagedPath(relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "posixfs: mkdir symlink parent", err)
	}
	os.Remove(dest)
	if err := os.Symlink(target, dest); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "posixfs: create symlink", err)
	}
	return nil
}

// RecordDelete marks relPath for removal inside staging at commit.
func (f *Filesystem) RecordDelete(relPath string) {
	f.deletes = append(f.deletes, relPath)
}

// Commit applies tombstones inside staging, then performs the
// documented non-atomic two-step rename: live -> old, staging -> live,
// then best-effort removes old (spec §4.8).
func (f *Filesystem) Commit(ctx context.Context) error {
	for _, rel := range f.deletes {
		os.RemoveAll(filepath.Join(f.stagingDir, rel))
	}

	old := f.oldPath()
	if err := os.Rename(f.Root, old); err != nil {
		return dsgerr.Wrap(dsgerr.KindTransactionCommit, "posixfs: rename live to old", err)
	}
	if err := os.Rename(f.stagingDir, f.Root); err != nil {
		// The live name is now missing. This is the documented
		// inconsistency window (spec §4.8); surface it as fatal rather
		// than attempt an automatic un-rename that could race further.
		return dsgerr.New(dsgerr.KindTransactionCommit,
			"posixfs: live repository name is missing after a failed promote; "+
				"the pre-sync tree is preserved at "+old).WithHint(
			"manually rename " + old + " back to " + f.Root + " to restore service")
	}

	os.RemoveAll(old)
	return nil
}

// Rollback discards the staging tree; the live repository was never
// touched (commit had not yet renamed it).
func (f *Filesystem) Rollback(ctx context.Context) error {
	return os.RemoveAll(f.stagingDir)
}

// ReadLastSync loads the remote manifest (spec §3: "Remote: the
// backend's .dsg/last-sync.json") from the live, pre-transaction tree.
// Absence means the repository has never been synced.
func (f *Filesystem) ReadLastSync() (*manifest.Manifest, error) {
	path := filepath.Join(f.Root, ".dsg", "last-sync.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return manifest.FromFile(path)
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == src {
				return os.MkdirAll(dst, 0o755) // live tree doesn't exist yet: init transaction
			}
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case info.IsDir():
			return os.MkdirAll(target, info.Mode())
		case info.Mode()&os.ModeSymlink != 0:
			linkTarget, err := os.Readlink(p)
			if err != nil {
				return err
			}
			return os.Symlink(linkTarget, target)
		default:
			return copyFile(p, target, info.Mode())
		}
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = out.ReadFrom(in)
	return err
}
