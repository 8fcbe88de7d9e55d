// Package clientfs implements dsg's local staging area and commit
// protocol: files are written into a per-transaction staging tree
// under .dsg/staging/<tx-id>/, then atomically promoted onto the
// working copy at commit time (spec §4.6).
package clientfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/manifest"
)

const (
	stagingDirName     = "staging"
	backupDirName      = "backup"
	markerFileName     = "transaction-in-progress"
	lastSyncFileName   = "last-sync.json"
	lastSyncBackupName = "last-sync.json.bak"
	tombstonesFileName = "tombstones.list"
)

// ClientFilesystem stages writes and deletes for one transaction on the
// local working copy, then promotes or discards them (spec §4.6).
type ClientFilesystem struct {
	root          string // project root containing .dsg/
	txID          string
	stagingDir    string
	backupOnWrite bool // project config's backup_on_conflict

	// tombstones names files to unlink on commit.
	tombstones map[string]bool
	// lastSyncBackedUp tracks whether Begin snapshotted last-sync.json.
	lastSyncBackedUp bool
}

// New builds a ClientFilesystem rooted at projectRoot for transaction
// txID.
func New(projectRoot, txID string, backupOnConflict bool) *ClientFilesystem {
	return &ClientFilesystem{
		root:          projectRoot,
		txID:          txID,
		stagingDir:    filepath.Join(projectRoot, ".dsg", stagingDirName, txID),
		backupOnWrite: backupOnConflict,
		tombstones:    map[string]bool{},
	}
}

func (c *ClientFilesystem) dsgDir() string    { return filepath.Join(c.root, ".dsg") }
func (c *ClientFilesystem) backupDir() string { return filepath.Join(c.dsgDir(), backupDirName) }
func (c *ClientFilesystem) markerPath() string {
	return filepath.Join(c.backupDir(), markerFileName)
}
func (c *ClientFilesystem) lastSyncPath() string {
	return filepath.Join(c.dsgDir(), lastSyncFileName)
}
func (c *ClientFilesystem) tombstonesPath() string {
	return filepath.Join(c.backupDir(), tombstonesFileName)
}

// Begin creates the staging tree and, if a last-sync.json exists,
// snapshots it so Rollback can restore it (spec §4.6).
func (c *ClientFilesystem) Begin(ctx context.Context) error {
	if err := os.MkdirAll(c.stagingDir, 0o755); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: create staging dir", err)
	}
	if err := os.MkdirAll(c.backupDir(), 0o755); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: create backup dir", err)
	}

	if data, err := os.ReadFile(c.lastSyncPath()); err == nil {
		if err := os.WriteFile(filepath.Join(c.backupDir(), lastSyncBackupName), data, 0o644); err != nil {
			return dsgerr.Wrap(dsgerr.KindIO, "clientfs: backup last-sync.json", err)
		}
		c.lastSyncBackedUp = true
	}

	return os.WriteFile(c.markerPath(), []byte(c.txID), 0o644)
}

// StagePath returns where the given repo-relative path's staged content
// should be written.
func (c *ClientFilesystem) StagePath(relPath string) string {
	return filepath.Join(c.stagingDir, filepath.FromSlash(relPath))
}

// WriteStaged writes content into the staging tree for relPath.
func (c *ClientFilesystem) WriteStaged(relPath string, r io.Reader) error {
	dest := c.StagePath(relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: mkdir staged parent", err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: create staged file", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: write staged file", err)
	}
	return nil
}

// StageSymlink records a symlink to recreate at commit time, bypassing
// content streaming (spec §4.5).
func (c *ClientFilesystem) StageSymlink(relPath, target string) error {
	dest := c.StagePath(relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: mkdir staged parent", err)
	}
	os.Remove(dest)
	if err := os.Symlink(target, dest); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: create staged symlink", err)
	}
	return nil
}

// Delete records relPath for removal at commit, appending it to
// tombstones.list under the backup dir so a crash between the remote's
// commit and this transaction's own unlink loop leaves something on
// disk for RecoverCrashed to finish (spec §4.6, §9 S-6: "recovery
// observes the tombstone ... and completes the rename of pending
// client files").
func (c *ClientFilesystem) Delete(relPath string) error {
	c.tombstones[relPath] = true

	f, err := os.OpenFile(c.tombstonesPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: record tombstone", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, relPath); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: record tombstone", err)
	}
	return nil
}

// Commit promotes every staged file onto the working copy and unlinks
// every tombstoned path (spec §4.6). cacheManifest supplies the prior
// recorded state used to detect silent clobbers.
func (c *ClientFilesystem) Commit(ctx context.Context, cacheManifest *manifest.Manifest) error {
	if err := filepath.WalkDir(c.stagingDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(c.stagingDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		return c.promote(rel, p, cacheManifest)
	}); err != nil {
		return dsgerr.Wrap(dsgerr.KindTransactionCommit, "clientfs: promote staged files", err)
	}

	for rel := range c.tombstones {
		target := filepath.Join(c.root, filepath.FromSlash(rel))
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return dsgerr.Wrap(dsgerr.KindTransactionCommit, "clientfs: remove "+rel, err)
		}
	}

	return c.cleanup()
}

// promote moves one staged file onto its working-copy path, backing up
// a silently-clobbered existing file first if configured to do so.
func (c *ClientFilesystem) promote(rel, stagedPath string, cacheManifest *manifest.Manifest) error {
	target := filepath.Join(c.root, filepath.FromSlash(rel))

	if c.backupOnWrite && cacheManifest != nil {
		if cached := cacheManifest.Get(rel); cached != nil {
			if info, err := os.Lstat(target); err == nil {
				if wouldClobber(info, cached) {
					if err := backupAside(target); err != nil {
						return err
					}
				}
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("mkdir target parent: %w", err)
	}
	if err := os.Rename(stagedPath, target); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", stagedPath, target, err)
	}
	return nil
}

// wouldClobber reports whether the on-disk file diverges from what the
// cache manifest recorded, i.e. promoting staged content over it would
// silently discard local changes the cache never saw.
func wouldClobber(info os.FileInfo, cached *manifest.Entry) bool {
	if cached.Type != manifest.EntryFile || cached.File == nil {
		return false
	}
	if info.Size() != cached.File.Filesize {
		return true
	}
	recorded, err := time.Parse(time.RFC3339Nano, cached.File.MTime)
	if err != nil {
		return true
	}
	return info.ModTime().UnixMilli() != recorded.UnixMilli()
}

// backupAside renames the existing file to <name>~<UTC timestamp>-<4
// hex>~ before it is overwritten (spec §4.6).
func backupAside(target string) error {
	suffix := fmt.Sprintf("~%s-%s~", time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:4])
	return os.Rename(target, target+suffix)
}

// cleanup removes the staging tree and the transaction marker once
// commit has fully succeeded.
func (c *ClientFilesystem) cleanup() error {
	if err := os.RemoveAll(c.stagingDir); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: remove staging dir", err)
	}
	os.Remove(c.tombstonesPath())
	return os.Remove(c.markerPath())
}

// Rollback discards the staging tree and, if Begin snapshotted
// last-sync.json, restores it (spec §4.6).
func (c *ClientFilesystem) Rollback(ctx context.Context) error {
	var errs []error
	if err := os.RemoveAll(c.stagingDir); err != nil {
		errs = append(errs, err)
	}
	if c.lastSyncBackedUp {
		data, err := os.ReadFile(filepath.Join(c.backupDir(), lastSyncBackupName))
		if err == nil {
			if err := os.WriteFile(c.lastSyncPath(), data, 0o644); err != nil {
				errs = append(errs, err)
			}
		}
	}
	os.Remove(c.markerPath())
	if len(errs) > 0 {
		return dsgerr.Wrap(dsgerr.KindTransactionRollback, "clientfs: rollback", errs[0])
	}
	return nil
}

// RecoverCrashed completes or discards an interrupted transaction found
// on the next open (spec §4.6: "Crash recovery"). It looks for the
// marker file; if present, it renames any .pending-<txid> files over
// their targets (the staged tree itself, since staging already holds
// exactly the files promote() would have moved), finishes any tombstoned
// deletes recorded in tombstones.list, and clears the marker (spec §9
// S-6: "recovery observes the tombstone + backup and completes the
// rename of pending client files").
func RecoverCrashed(projectRoot string) error {
	dsgDir := filepath.Join(projectRoot, ".dsg")
	backupDir := filepath.Join(dsgDir, backupDirName)
	marker := filepath.Join(backupDir, markerFileName)
	data, err := os.ReadFile(marker)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: read crash marker", err)
	}

	txID := string(data)
	stagingDir := filepath.Join(dsgDir, stagingDirName, txID)
	if _, err := os.Stat(stagingDir); err == nil {
		if err := filepath.WalkDir(stagingDir, func(p string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			rel, err := filepath.Rel(stagingDir, p)
			if err != nil {
				return err
			}
			target := filepath.Join(projectRoot, rel)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			return os.Rename(p, target)
		}); err != nil {
			return dsgerr.Wrap(dsgerr.KindIO, "clientfs: resume pending promote", err)
		}
		os.RemoveAll(stagingDir)
	}

	if err := finishTombstones(projectRoot, filepath.Join(backupDir, tombstonesFileName)); err != nil {
		return err
	}

	return os.Remove(marker)
}

// finishTombstones unlinks every path a crashed transaction had
// recorded for deletion in tombstones.list, then removes the list
// itself. A missing list means either nothing was ever tombstoned, or
// a prior run already finished and cleared it.
func finishTombstones(projectRoot, tombstonesPath string) error {
	data, err := os.ReadFile(tombstonesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dsgerr.Wrap(dsgerr.KindIO, "clientfs: read tombstones", err)
	}

	for _, rel := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if rel == "" {
			continue
		}
		target := filepath.Join(projectRoot, filepath.FromSlash(rel))
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			return dsgerr.Wrap(dsgerr.KindIO, "clientfs: finish tombstoned delete "+rel, err)
		}
	}

	return os.Remove(tombstonesPath)
}
