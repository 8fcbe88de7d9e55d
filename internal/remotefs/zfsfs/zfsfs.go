// Package zfsfs implements dsg's atomic RemoteFilesystem over ZFS:
// each repository is a dataset, synced through a clone-then-promote
// sequence so readers never observe a mid-sync state (spec §4.7).
package zfsfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/manifest"
)

// Filesystem is the ZFS RemoteFilesystem implementation.
type Filesystem struct {
	Pool      string
	Repo      string
	MountBase string
	Runner    Runner
	UID, GID  int

	txID           string
	isInit         bool
	cloneName      string
	mountPoint     string
	pendingDeletes []string
}

// New builds a ZFS-backed Filesystem for <pool>/<repo> mounted under
// mountBase.
func New(pool, repo, mountBase string, runner Runner) *Filesystem {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Filesystem{Pool: pool, Repo: repo, MountBase: mountBase, Runner: runner}
}

func (f *Filesystem) dataset() string     { return fmt.Sprintf("%s/%s", f.Pool, f.Repo) }
func (f *Filesystem) mount(name string) string { return filepath.Join(f.MountBase, name) }

func (f *Filesystem) zfs(ctx context.Context, args ...string) error {
	out, err := f.Runner.Run(ctx, "zfs", args...)
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindZFSOperation, fmt.Sprintf("zfs %v: %s", args, string(out)), err)
	}
	return nil
}

// Begin auto-detects init vs sync (spec §4.7: "if the main dataset does
// not exist, this is an init transaction").
func (f *Filesystem) Begin(ctx context.Context, txID string) error {
	f.txID = txID
	exists, err := f.datasetExists(ctx, f.dataset())
	if err != nil {
		return err
	}
	f.isInit = !exists

	if f.isInit {
		return f.beginInit(ctx)
	}
	return f.beginSync(ctx)
}

func (f *Filesystem) datasetExists(ctx context.Context, name string) (bool, error) {
	_, err := f.Runner.Run(ctx, "zfs", "list", "-H", name)
	if err != nil {
		return false, nil // zfs list exits non-zero when the dataset is absent
	}
	return true, nil
}

func (f *Filesystem) beginInit(ctx context.Context) error {
	tmpName := fmt.Sprintf("%s-init-%s", f.Repo, f.txID)
	tmpDataset := fmt.Sprintf("%s/%s", f.Pool, tmpName)
	tmpMount := f.mount(tmpName)

	if err := f.zfs(ctx, "create", "-o", "mountpoint="+tmpMount, tmpDataset); err != nil {
		return err
	}
	if f.UID != 0 || f.GID != 0 {
		if err := os.Chown(tmpMount, f.UID, f.GID); err != nil {
			return dsgerr.Wrap(dsgerr.KindZFSOperation, "zfsfs: chown init dataset", err)
		}
	}

	f.cloneName = tmpDataset
	f.mountPoint = tmpMount
	return nil
}

func (f *Filesystem) beginSync(ctx context.Context) error {
	snapTemp := fmt.Sprintf("%s@sync-temp-%s", f.dataset(), f.txID)
	cloneName := fmt.Sprintf("%s/%s-sync-%s", f.Pool, f.Repo, f.txID)
	cloneMount := f.mount(fmt.Sprintf("%s-sync-%s", f.Repo, f.txID))

	if err := f.zfs(ctx, "snapshot", snapTemp); err != nil {
		return err
	}
	if err := f.zfs(ctx, "clone", "-o", "mountpoint="+cloneMount, snapTemp, cloneName); err != nil {
		return err
	}

	f.cloneName = cloneName
	f.mountPoint = cloneMount
	return nil
}

// StagedPath returns the absolute path for relPath under the temporary
// init dataset's mount (init) or the clone's mount (sync).
func (f *Filesystem) StagedPath(relPath string) string {
	return filepath.Join(f.mountPoint, relPath)
}

// WriteSymlink recreates a symlink directly inside the clone, bypassing
// content streaming (spec §4.5).
func (f *Filesystem) WriteSymlink(relPath, target string) error {
	dest := f.StagedPath(relPath)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "zfsfs: mkdir symlink parent", err)
	}
	os.Remove(dest)
	if err := os.Symlink(target, dest); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "zfsfs: create symlink", err)
	}
	return nil
}

// RecordDelete marks relPath for removal inside the clone at commit.
func (f *Filesystem) RecordDelete(relPath string) {
	f.pendingDeletes = append(f.pendingDeletes, relPath)
}

// Commit promotes the init dataset to canonical, or clone-promotes the
// sync dataset over the live one (spec §4.7).
func (f *Filesystem) Commit(ctx context.Context) error {
	for _, rel := range f.pendingDeletes {
		os.RemoveAll(filepath.Join(f.mountPoint, rel))
	}
	f.pendingDeletes = nil

	if f.isInit {
		return f.commitInit(ctx)
	}
	return f.commitSync(ctx)
}

func (f *Filesystem) commitInit(ctx context.Context) error {
	if err := f.zfs(ctx, "rename", f.cloneName, f.dataset()); err != nil {
		return err
	}
	if err := f.zfs(ctx, "set", "mountpoint="+f.mount(f.Repo), f.dataset()); err != nil {
		return err
	}
	return f.zfs(ctx, "snapshot", f.dataset()+"@init-snapshot")
}

func (f *Filesystem) commitSync(ctx context.Context) error {
	preSync := f.dataset() + "@pre-sync-" + f.txID
	if err := f.zfs(ctx, "snapshot", preSync); err != nil {
		return err
	}
	if err := f.zfs(ctx, "promote", f.cloneName); err != nil {
		return err
	}

	oldName := fmt.Sprintf("%s/%s-old-%s", f.Pool, f.Repo, f.txID)
	if err := f.zfs(ctx, "rename", f.dataset(), oldName); err != nil {
		return err
	}
	if err := f.zfs(ctx, "rename", f.cloneName, f.dataset()); err != nil {
		return err
	}

	// Cleanup: failures here must not roll back a successful promotion
	// (spec §4.7: "destroys run with failure-ignored semantics").
	f.zfs(ctx, "destroy", f.dataset()+"@sync-temp-"+f.txID)
	f.zfs(ctx, "destroy", "-r", oldName)
	return nil
}

// Rollback destroys whatever staging artifacts Begin/commitSync
// created, restoring the live dataset from the pre-sync snapshot if one
// was already taken (spec §4.7).
func (f *Filesystem) Rollback(ctx context.Context) error {
	preSync := f.dataset() + "@pre-sync-" + f.txID
	if exists, _ := f.datasetExists(ctx, preSync); exists {
		f.zfs(ctx, "rollback", preSync)
		f.zfs(ctx, "destroy", preSync)
	}
	if f.cloneName != "" {
		f.zfs(ctx, "destroy", "-r", f.cloneName)
	}
	if !f.isInit {
		f.zfs(ctx, "destroy", f.dataset()+"@sync-temp-"+f.txID)
	}
	return nil
}

// ReadLastSync loads the remote manifest from the live, pre-transaction
// dataset mount (spec §3: "Remote: the backend's .dsg/last-sync.json").
// Absence means the dataset has never been initialized.
func (f *Filesystem) ReadLastSync() (*manifest.Manifest, error) {
	path := filepath.Join(f.mount(f.Repo), ".dsg", "last-sync.json")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return manifest.FromFile(path)
}
