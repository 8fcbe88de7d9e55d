package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/HRDAG/dsg/internal/clientfs"
	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/lock"
	"github.com/HRDAG/dsg/internal/manifest"
	"github.com/HRDAG/dsg/internal/merger"
	"github.com/HRDAG/dsg/internal/planner"
	"github.com/HRDAG/dsg/internal/txn"
)

// SyncResult summarizes what a Sync call did, for CLI reporting.
type SyncResult struct {
	SnapshotID string
	Plan       *planner.Plan
	// Empty is true when the plan performed no file operations beyond
	// the always-present metadata upload (spec §8).
	Empty bool
}

// GetPlan lets cli's reporting helpers print a summary without a type
// switch over every lifecycle *Result.
func (r *SyncResult) GetPlan() *planner.Plan { return r.Plan }

// applyResolutions folds a conflicts.txt's user annotations into states,
// turning each resolved conflict into its actionable two-way-equal
// equivalent (spec §6) and returning which paths still need
// resolution. ResolveCache is not supported: neither the local working
// copy nor the remote keeps the cache's byte content once it has been
// superseded on both sides, so there is nothing to restore from (the
// backends this spec defines retain current content only, not arbitrary
// prior blobs — unlike ZFS's own snapshot history, which this layer
// does not expose for reverting a single file).
func applyResolutions(states map[string]merger.SyncState, resolutions map[string]Resolution) (unresolved []string, uploads, downloads []string, err error) {
	for path, st := range states {
		if !st.IsConflict() {
			continue
		}
		res, ok := resolutions[path]
		if !ok {
			unresolved = append(unresolved, path)
			continue
		}
		switch res {
		case ResolveLocal:
			uploads = append(uploads, path)
		case ResolveRemote:
			downloads = append(downloads, path)
		case ResolveCache:
			return nil, nil, nil, dsgerr.New(dsgerr.KindNotSupported,
				"lifecycle: resolving "+path+" to the cache version is not supported").
				WithHint("choose L or R in conflicts.txt instead")
		default:
			unresolved = append(unresolved, path)
		}
	}
	sort.Strings(unresolved)
	sort.Strings(uploads)
	sort.Strings(downloads)
	return unresolved, uploads, downloads, nil
}

// Sync performs one three-way sync (spec §4.3-§4.5, scenarios S-3..S-5).
//
// If unresolved conflicts remain (no conflicts.txt, or one with blank
// annotations), Sync writes/refreshes conflicts.txt and returns a
// KindSync error without mutating the remote, exactly once per spec §4.4
// ("fails fast before any transaction begins"). If every conflict has
// been annotated, Sync applies the resolutions, runs the transaction,
// and removes conflicts.txt on success.
func (r *Repo) Sync(ctx context.Context, message string) (*SyncResult, error) {
	if err := r.recoverCrashed(); err != nil {
		return nil, err
	}

	local, err := r.scanLocal()
	if err != nil {
		return nil, err
	}
	cache, err := r.readCache()
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindConfig, "lifecycle: read cache manifest", err)
	}
	if cache == nil {
		cache = manifest.New()
	}
	remote, err := r.Remote.ReadLastSync()
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindConfig, "lifecycle: read remote manifest", err)
	}
	if remote == nil {
		remote = manifest.New()
	}

	resolutions, err := r.readConflictsFile()
	if err != nil {
		return nil, err
	}

	states := merger.Merge(local, cache, remote)
	unresolved, resolvedUploads, resolvedDownloads, err := applyResolutions(states, resolutions)
	if err != nil {
		return nil, err
	}

	if len(unresolved) > 0 {
		if err := r.writeConflictsFile(unresolved); err != nil {
			return nil, err
		}
		return nil, dsgerr.New(dsgerr.KindSync,
			"lifecycle: sync blocked by unresolved conflicts; annotate conflicts.txt and re-run").
			WithHint("edit " + r.conflictsPath() + " with L, C, or R for each path")
	}

	// Build the plan from the non-conflict states, then fold in the
	// resolved conflicts' explicit directions.
	nonConflict := map[string]merger.SyncState{}
	for path, st := range states {
		if !st.IsConflict() {
			nonConflict[path] = st
		}
	}
	plan := planner.Build(nonConflict)
	plan.UploadFiles = append(plan.UploadFiles, resolvedUploads...)
	plan.DownloadFiles = append(plan.DownloadFiles, resolvedDownloads...)
	sort.Strings(plan.UploadFiles)
	sort.Strings(plan.DownloadFiles)

	result := &SyncResult{Plan: plan, Empty: plan.IsEmpty()}
	if result.Empty {
		// Spec §8: "a no-op that nonetheless rewrites identical
		// manifests and leaves the snapshot chain unchanged" — refresh
		// the local cache copy (content is unchanged) without opening a
		// transaction or minting a new snapshot id.
		if remote.Meta != nil {
			result.SnapshotID = remote.Meta.SnapshotID
			if err := os.MkdirAll(filepath.Dir(r.lastSyncPath()), 0o755); err != nil {
				return nil, dsgerr.Wrap(dsgerr.KindIO, "lifecycle: create .dsg dir", err)
			}
			if err := remote.ToFile(r.lastSyncPath(), true); err != nil {
				return nil, dsgerr.Wrap(dsgerr.KindIO, "lifecycle: refresh last-sync.json", err)
			}
		}
		return result, nil
	}

	l := lock.New(r.Lock, r.User, "sync")
	if err := l.Acquire(ctx); err != nil {
		return nil, err
	}
	defer l.Release(ctx)

	// Every downloaded path will hold the remote's content once SyncFiles
	// runs, and every locally-deleted path will be gone — reconcile the
	// snapshot manifest to match post-sync reality rather than the
	// pre-sync local scan, which still describes what used to be there.
	newManifest := local
	for _, path := range plan.DownloadFiles {
		if e := remote.Get(path); e != nil {
			if err := newManifest.Put(e); err != nil {
				return nil, dsgerr.Wrap(dsgerr.KindSync, "lifecycle: reconcile downloaded entry "+path, err)
			}
		}
	}
	for _, path := range plan.DeleteLocal {
		newManifest.Delete(path)
	}

	parentMeta := remote.Meta
	if err := commitSnapshot(newManifest, parentMeta, message, "sync", r.now(), r.User); err != nil {
		return nil, err
	}

	txID := txn.NewTransactionID()
	client := clientfs.New(r.Root, txID, r.BackupOnConflict)
	tx := txn.New(client, r.Remote, r.Transport, localOpener(r.Root), symlinkReader(r.Root), txn.WithID(txID))

	if err := tx.Begin(ctx); err != nil {
		return nil, err
	}
	// persistSnapshot must run before SyncFiles: uploadOne reads
	// .dsg/last-sync.json (and .dsg/sync-messages.json) straight off the
	// working copy, via the same localOpener used for every other upload,
	// so the new snapshot's bytes must already be on disk before the
	// metadata-files upload in plan.UploadFiles runs. clientfs.Begin
	// already snapshotted the prior last-sync.json above, so Rollback can
	// still restore it if anything below fails.
	if err := r.persistSnapshot(newManifest); err != nil {
		tx.Rollback(ctx, err)
		return nil, err
	}
	if err := tx.SyncFiles(ctx, plan); err != nil {
		tx.Rollback(ctx, err)
		return nil, err
	}
	if err := tx.Commit(ctx, cache); err != nil {
		return nil, err
	}

	if err := r.removeConflictsFile(); err != nil {
		return nil, err
	}

	result.SnapshotID = newManifest.Meta.SnapshotID
	return result, nil
}
