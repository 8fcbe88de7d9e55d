package lifecycle

import (
	"context"

	"github.com/HRDAG/dsg/internal/clientfs"
	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/lock"
	"github.com/HRDAG/dsg/internal/manifest"
	"github.com/HRDAG/dsg/internal/planner"
	"github.com/HRDAG/dsg/internal/txn"
)

// CloneResult summarizes a completed clone.
type CloneResult struct {
	SnapshotID string
	Plan       *planner.Plan
}

// GetPlan lets cli's reporting helpers print a summary without a type
// switch over every lifecycle *Result.
func (r *CloneResult) GetPlan() *planner.Plan { return r.Plan }

// Clone populates an empty working copy from the remote's current
// snapshot (spec §8 S-2): every path the remote holds downloads, and
// the local .dsg/last-sync.json ends up byte-identical to the remote's
// by reusing its Metadata directly rather than minting a new snapshot.
// Clone performs zero uploads — planner.Build's usual metadata-files
// append is skipped, since the download target already has the
// canonical .dsg/last-sync.json/.dsg/sync-messages.json and re-sending
// them back would be a no-op write at best.
func (r *Repo) Clone(ctx context.Context) (*CloneResult, error) {
	if err := r.recoverCrashed(); err != nil {
		return nil, err
	}

	remote, err := r.Remote.ReadLastSync()
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindConfig, "lifecycle: read remote manifest", err)
	}
	if remote == nil || remote.Meta == nil {
		return nil, dsgerr.New(dsgerr.KindSync, "lifecycle: clone target has never been synced").
			WithHint("run init on the remote before cloning")
	}

	plan := &planner.Plan{DownloadFiles: remote.SortedPaths()}

	l := lock.New(r.Lock, r.User, "clone")
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}
	defer l.Release(ctx)

	txID := txn.NewTransactionID()
	client := clientfs.New(r.Root, txID, r.BackupOnConflict)
	tx := txn.New(client, r.Remote, r.Transport, localOpener(r.Root), symlinkReader(r.Root), txn.WithID(txID))

	if err := tx.Begin(ctx); err != nil {
		return nil, err
	}
	if err := tx.SyncFiles(ctx, plan); err != nil {
		tx.Rollback(ctx, err)
		return nil, err
	}
	if err := r.persistSnapshot(remote); err != nil {
		tx.Rollback(ctx, err)
		return nil, err
	}
	if err := tx.Commit(ctx, manifest.New()); err != nil {
		return nil, err
	}

	return &CloneResult{SnapshotID: remote.Meta.SnapshotID, Plan: plan}, nil
}

// PreviewClone reports what Clone would download without locking or
// transacting (spec §6 CLI surface's --dry-run flag).
func (r *Repo) PreviewClone(ctx context.Context) (*planner.Plan, error) {
	remote, err := r.Remote.ReadLastSync()
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindConfig, "lifecycle: read remote manifest", err)
	}
	if remote == nil || remote.Meta == nil {
		return nil, dsgerr.New(dsgerr.KindSync, "lifecycle: clone target has never been synced")
	}
	return &planner.Plan{DownloadFiles: remote.SortedPaths()}, nil
}
