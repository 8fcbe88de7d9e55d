// Package lifecycle orchestrates the repository-level operations
// (spec §8 scenarios S-1..S-6): init, clone, and sync each load the
// manifests they need, drive internal/merger and internal/planner, and
// open an internal/txn.Transaction under an internal/lock.Lock. Nothing
// in this package knows how a ZFS dataset or an SFTP session works; it
// only knows the shape every RemoteFilesystem/Transport must expose.
package lifecycle

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/HRDAG/dsg/internal/clientfs"
	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/lock"
	"github.com/HRDAG/dsg/internal/manifest"
	"github.com/HRDAG/dsg/internal/merger"
	"github.com/HRDAG/dsg/internal/planner"
	"github.com/HRDAG/dsg/internal/repocfg"
	"github.com/HRDAG/dsg/internal/scanner"
	"github.com/HRDAG/dsg/internal/transport"
	"github.com/HRDAG/dsg/internal/txn"
)

// RemoteFilesystem is everything lifecycle needs from a remote backend:
// the txn.RemoteFilesystem transaction surface, plus a way to read the
// currently-committed manifest before a transaction begins.
type RemoteFilesystem interface {
	txn.RemoteFilesystem
	// ReadLastSync loads the remote's current .dsg/last-sync.json, or
	// returns (nil, nil) if the repository has never been synced.
	ReadLastSync() (*manifest.Manifest, error)
}

// Repo bundles the collaborators one invocation of init/clone/sync needs.
// Callers (internal/cli) construct these from a loaded repocfg.Config and
// the resolved transport/backend for that project.
type Repo struct {
	Root      string // local working-copy root, containing .dsg/
	User      string // spec §3 FileRef.user / Metadata.created_by
	Config    *repocfg.Config
	Remote    RemoteFilesystem
	Transport transport.Transport
	Lock      lock.Backend

	// HashContent controls whether Scan computes real content hashes
	// (true for normal operation; tests may disable it for speed).
	HashContent bool
	// NormalizePaths controls whether Scan applies NFC path
	// normalization (spec §6 CLI surface's --normalize flag).
	NormalizePaths bool
	// BackupOnConflict mirrors the resolved user config's
	// backup_on_conflict (internal/userconfig), threaded through to
	// clientfs so silently-clobbered files are backed up on promote.
	BackupOnConflict bool
	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

func (r *Repo) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Repo) lastSyncPath() string {
	return filepath.Join(r.Root, ".dsg", "last-sync.json")
}

func (r *Repo) archivePath(snapshotID string) string {
	return filepath.Join(r.Root, ".dsg", "archive", snapshotID+"-sync.json.gz")
}

// scanLocal produces the Local manifest by walking the working copy.
func (r *Repo) scanLocal() (*manifest.Manifest, error) {
	cfg := r.Config.ScannerConfig(r.User, r.HashContent, r.NormalizePaths)
	res, err := scanner.Scan(r.Root, &cfg)
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindScan, "lifecycle: scan working copy", err)
	}
	return res.Manifest, nil
}

// readCache loads the Cache manifest (.dsg/last-sync.json), or nil if
// this repository has never been synced locally.
func (r *Repo) readCache() (*manifest.Manifest, error) {
	path := r.lastSyncPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return manifest.FromFile(path)
}

// nextSnapshotID derives "sN" from a parent snapshot id ("s(N-1)" ->
// "sN"; nil parent -> "s1").
func nextSnapshotID(parent *string) (string, error) {
	if parent == nil {
		return "s1", nil
	}
	var n int
	if _, err := fmt.Sscanf(*parent, "s%d", &n); err != nil {
		return "", dsgerr.Wrap(dsgerr.KindConfig, "lifecycle: parse parent snapshot id "+*parent, err)
	}
	return fmt.Sprintf("s%d", n+1), nil
}

// commitSnapshot replaces manifest m's Meta with fresh metadata: a
// snapshot id chained off parent, CreatedAt/CreatedBy from when and
// user, the given message and notes, and the computed hashes. Any
// existing m.Meta is discarded.
func commitSnapshot(m *manifest.Manifest, parent *manifest.Metadata, message, notes string, when time.Time, user string) error {
	var parentID *string
	var parentHash string
	if parent != nil {
		id := parent.SnapshotID
		parentID = &id
		parentHash = parent.SnapshotHash
	}

	id, err := nextSnapshotID(parentID)
	if err != nil {
		return err
	}

	entriesHash := m.EntriesHash()
	m.Meta = &manifest.Metadata{
		ManifestVersion:  "1.0",
		SnapshotID:       id,
		CreatedAt:        when.Format(time.RFC3339),
		CreatedBy:        user,
		EntryCount:       m.Len(),
		EntriesHash:      entriesHash,
		SnapshotMessage:  message,
		SnapshotPrevious: parentID,
		SnapshotHash:     manifest.ComputeSnapshotHash(entriesHash, message, parentHash),
		SnapshotNotes:    notes,
	}
	return nil
}

// localOpener opens relPath under root for reading during upload.
func localOpener(root string) txn.LocalOpener {
	return func(relPath string) (io.ReadCloser, int64, error) {
		f, err := os.Open(filepath.Join(root, relPath))
		if err != nil {
			return nil, 0, err
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, 0, err
		}
		return f, info.Size(), nil
	}
}

// symlinkReader reports whether relPath under root is a symlink, and
// its target if so.
func symlinkReader(root string) txn.SymlinkReader {
	return func(relPath string) (string, bool, error) {
		info, err := os.Lstat(filepath.Join(root, relPath))
		if err != nil {
			if os.IsNotExist(err) {
				return "", false, nil
			}
			return "", false, err
		}
		if info.Mode()&os.ModeSymlink == 0 {
			return "", false, nil
		}
		target, err := os.Readlink(filepath.Join(root, relPath))
		return target, true, err
	}
}

// recoverCrashed resumes any client-side promote a prior process left
// half-done (spec §8 S-6): a transaction-in-progress marker plus a
// staged file means the remote and local last-sync.json already agree
// on the new snapshot, but renaming staged files onto their live paths
// never finished. Every entry point runs this before touching the
// working copy, since a crash could have happened after the previous
// invocation's Commit started promoting but before it returned.
func (r *Repo) recoverCrashed() error {
	if err := clientfs.RecoverCrashed(r.Root); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "lifecycle: recover crashed transaction", err)
	}
	return nil
}

// persistSnapshot writes the local archive+last-sync.json pair for a
// newly committed manifest, matching spec §6's on-disk layout.
func (r *Repo) persistSnapshot(m *manifest.Manifest) error {
	if err := os.MkdirAll(filepath.Join(r.Root, ".dsg", "archive"), 0o755); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "lifecycle: create archive dir", err)
	}
	if err := m.WriteArchive(r.archivePath(m.Meta.SnapshotID)); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "lifecycle: write archive", err)
	}
	if err := m.ToFile(r.lastSyncPath(), true); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "lifecycle: write last-sync.json", err)
	}
	if err := r.appendSyncMessage(m); err != nil {
		return err
	}
	return nil
}
