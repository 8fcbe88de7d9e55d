package lifecycle

import (
	"context"

	"github.com/HRDAG/dsg/internal/clientfs"
	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/lock"
	"github.com/HRDAG/dsg/internal/manifest"
	"github.com/HRDAG/dsg/internal/merger"
	"github.com/HRDAG/dsg/internal/planner"
	"github.com/HRDAG/dsg/internal/txn"
)

// InitResult summarizes a completed init.
type InitResult struct {
	SnapshotID string
	Plan       *planner.Plan
}

// GetPlan lets cli's reporting helpers print a summary without a type
// switch over every lifecycle *Result.
func (r *InitResult) GetPlan() *planner.Plan { return r.Plan }

// Init creates snapshot s1 from the current working copy and commits it
// to a fresh remote backend (spec §8 S-1). The remote's own Begin/Commit
// detect the absence of a dataset/directory and switch into their
// init-mode path (zfsfs creates the dataset and an init-snapshot;
// posixfs creates the target directory); lifecycle itself only needs to
// treat every local path as upload-only, since there is no prior cache
// or remote manifest to merge against.
func (r *Repo) Init(ctx context.Context, message string) (*InitResult, error) {
	if err := r.recoverCrashed(); err != nil {
		return nil, err
	}

	local, err := r.scanLocal()
	if err != nil {
		return nil, err
	}
	if local.Len() == 0 {
		return nil, dsgerr.New(dsgerr.KindScan, "lifecycle: nothing to init, working copy is empty")
	}

	states := merger.Merge(local, manifest.New(), manifest.New())
	plan := planner.Build(states)
	if plan.HasConflicts() {
		// Unreachable with an empty cache/remote (every state classifies
		// as only_L), kept as a defensive invariant check.
		return nil, dsgerr.New(dsgerr.KindSync, "lifecycle: init produced unexpected conflicts")
	}

	l := lock.New(r.Lock, r.User, "init")
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}
	defer l.Release(ctx)

	if err := commitSnapshot(local, nil, message, "init", r.now(), r.User); err != nil {
		return nil, err
	}

	txID := txn.NewTransactionID()
	client := clientfs.New(r.Root, txID, r.BackupOnConflict)
	tx := txn.New(client, r.Remote, r.Transport, localOpener(r.Root), symlinkReader(r.Root), txn.WithID(txID))

	if err := tx.Begin(ctx); err != nil {
		return nil, err
	}
	if err := r.persistSnapshot(local); err != nil {
		tx.Rollback(ctx, err)
		return nil, err
	}
	if err := tx.SyncFiles(ctx, plan); err != nil {
		tx.Rollback(ctx, err)
		return nil, err
	}
	if err := tx.Commit(ctx, manifest.New()); err != nil {
		return nil, err
	}

	return &InitResult{SnapshotID: local.Meta.SnapshotID, Plan: plan}, nil
}

// PreviewInit reports what Init would upload without acquiring a lock,
// minting a snapshot, or opening a transaction (spec §6 CLI surface's
// --dry-run flag).
func (r *Repo) PreviewInit(ctx context.Context) (*planner.Plan, error) {
	local, err := r.scanLocal()
	if err != nil {
		return nil, err
	}
	states := merger.Merge(local, manifest.New(), manifest.New())
	return planner.Build(states), nil
}
