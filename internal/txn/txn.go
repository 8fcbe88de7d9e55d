// Package txn implements the transaction coordinator: the scoped
// begin/sync_files/commit/rollback lifecycle that drives a
// ClientFilesystem, a RemoteFilesystem, and a Transport through one
// sync (spec §4.5).
package txn

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/manifest"
	"github.com/HRDAG/dsg/internal/planner"
	"github.com/HRDAG/dsg/internal/transport"
)

// ClientFilesystem is the local-side collaborator, satisfied by
// internal/clientfs.ClientFilesystem.
type ClientFilesystem interface {
	Begin(ctx context.Context) error
	WriteStaged(relPath string, r io.Reader) error
	StageSymlink(relPath, target string) error
	Delete(relPath string) error
	Commit(ctx context.Context, cacheManifest *manifest.Manifest) error
	Rollback(ctx context.Context) error
}

// RemoteFilesystem is the remote-side collaborator, satisfied by
// internal/remotefs/{zfsfs,posixfs}.Filesystem.
type RemoteFilesystem interface {
	Begin(ctx context.Context, txID string) error
	StagedPath(relPath string) string
	WriteSymlink(relPath, target string) error
	RecordDelete(relPath string)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transaction holds the three collaborators plus the plan it is
// executing (spec §4.5).
type Transaction struct {
	ID        string
	client    ClientFilesystem
	remote    RemoteFilesystem
	transport transport.Transport
	backoff   transport.BackoffConfig

	localOpen   func(relPath string) (io.ReadCloser, int64, error)
	symlinkOpen func(relPath string) (string, bool, error) // (target, isSymlink, error)

	committed bool
}

// NewTransactionID generates a tx-XXXXXXXX id (spec §4.5: "8 random
// hex").
func NewTransactionID() string {
	return "tx-" + uuid.NewString()[:8]
}

// Option configures a Transaction.
type Option func(*Transaction)

// WithBackoff overrides the default retry/backoff policy.
func WithBackoff(cfg transport.BackoffConfig) Option {
	return func(t *Transaction) { t.backoff = cfg }
}

// WithID overrides the generated transaction id. Callers that must
// construct their ClientFilesystem/RemoteFilesystem collaborators
// before the Transaction exists (internal/lifecycle, so a
// clientfs.ClientFilesystem can be given its staging directory up
// front) generate the id themselves via NewTransactionID and pass it to
// both the collaborators and this option, so every party agrees on one
// transaction id.
func WithID(id string) Option {
	return func(t *Transaction) { t.ID = id }
}

// LocalOpener opens a local file for upload, returning a stream and its
// declared size.
type LocalOpener func(relPath string) (io.ReadCloser, int64, error)

// SymlinkReader reads a local symlink's target, reporting whether
// relPath is in fact a symlink.
type SymlinkReader func(relPath string) (target string, isSymlink bool, err error)

// New builds a Transaction. localOpen and readSymlink let the
// coordinator stay filesystem-agnostic about how client-local content
// is read; internal/lifecycle wires these against the real project
// root.
func New(client ClientFilesystem, remote RemoteFilesystem, tr transport.Transport,
	localOpen LocalOpener, readSymlink SymlinkReader, opts ...Option) *Transaction {
	t := &Transaction{
		ID:          NewTransactionID(),
		client:      client,
		remote:      remote,
		transport:   tr,
		backoff:     transport.DefaultBackoff(),
		localOpen:   localOpen,
		symlinkOpen: readSymlink,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin starts staging in order: client, remote, transport session
// (spec §4.5 step 1).
func (t *Transaction) Begin(ctx context.Context) error {
	if err := t.client.Begin(ctx); err != nil {
		return dsgerr.Wrap(dsgerr.KindTransactionCommit, "txn: client begin", err)
	}
	if err := t.remote.Begin(ctx, t.ID); err != nil {
		return dsgerr.Wrap(dsgerr.KindTransactionCommit, "txn: remote begin", err)
	}
	if err := t.transport.BeginSession(ctx); err != nil {
		return dsgerr.Wrap(dsgerr.KindTransactionCommit, "txn: transport begin session", err)
	}
	return nil
}

// SyncFiles drives the plan's upload/download/delete batches (spec
// §4.5 step 2). Batches run one at a time per spec §5 ("upload batch
// completes before delete-remote batch"); within a batch, transfers run
// concurrently via errgroup, grounded on the teacher's
// errgroup.WithContext fan-out in internal/client/daemon.go.
func (t *Transaction) SyncFiles(ctx context.Context, plan *planner.Plan) error {
	if err := t.uploadBatch(ctx, plan.UploadFiles); err != nil {
		return err
	}
	if err := t.downloadBatch(ctx, plan.DownloadFiles); err != nil {
		return err
	}
	for _, rel := range plan.DeleteLocal {
		if err := t.client.Delete(rel); err != nil {
			return err
		}
	}
	for _, rel := range plan.DeleteRemote {
		t.remote.RecordDelete(rel)
	}
	return nil
}

func (t *Transaction) uploadBatch(ctx context.Context, paths []string) error {
	return runBatch(ctx, paths, func(ctx context.Context, rel string) error {
		return transport.Retry(ctx, t.backoff, transport.DefaultClassifier, func(ctx context.Context) error {
			return t.uploadOne(ctx, rel)
		})
	})
}

func (t *Transaction) downloadBatch(ctx context.Context, paths []string) error {
	return runBatch(ctx, paths, func(ctx context.Context, rel string) error {
		return transport.Retry(ctx, t.backoff, transport.DefaultClassifier, func(ctx context.Context) error {
			return t.downloadOne(ctx, rel)
		})
	})
}

// uploadOne streams one file client -> remote staging (spec §4.5:
// "per-file upload"). Symlinks bypass content streaming: the link
// target is recreated directly inside the remote's staging area.
func (t *Transaction) uploadOne(ctx context.Context, rel string) error {
	if target, isLink, err := t.symlinkOpen(rel); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "txn: read local symlink "+rel, err)
	} else if isLink {
		return t.remote.WriteSymlink(rel, target)
	}

	r, size, err := t.localOpen(rel)
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "txn: open local file "+rel, err)
	}
	defer r.Close()

	tf, err := t.transport.TransferToRemote(ctx, r, size)
	if err != nil {
		return err
	}
	defer tf.Close()

	// The transport only guarantees size-verified bytes land in its own
	// staging temp file; landing them at the remote's staged path is
	// this coordinator's job, mirroring downloadOne's symmetric move
	// into the client's staging area via WriteStaged.
	f, err := os.Open(tf.Path())
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "txn: reopen uploaded temp file", err)
	}
	defer f.Close()

	return writeRemoteStaged(t.remote.StagedPath(rel), f)
}

// writeRemoteStaged copies r into the remote filesystem's staged path
// for one file, creating parent directories as needed.
func writeRemoteStaged(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "txn: mkdir remote staged parent", err)
	}
	out, err := os.Create(path)
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "txn: create remote staged file "+path, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "txn: write remote staged file "+path, err)
	}
	return nil
}

// downloadOne streams one file remote -> client staging. Symlinks
// bypass content streaming: the remote staging area (a ZFS clone or a
// seeded POSIX staging directory) already holds a full copy of the
// pre-transaction tree, so reading the link target there needs no
// network round trip through Transport.
func (t *Transaction) downloadOne(ctx context.Context, rel string) error {
	remotePath := t.remote.StagedPath(rel)

	if info, err := os.Lstat(remotePath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(remotePath)
		if err != nil {
			return dsgerr.Wrap(dsgerr.KindIO, "txn: read remote symlink "+rel, err)
		}
		return t.client.StageSymlink(rel, target)
	}

	tf, err := t.transport.TransferToLocal(ctx, remotePath, -1)
	if err != nil {
		return err
	}
	defer tf.Close()

	f, err := os.Open(tf.Path())
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "txn: reopen downloaded temp file", err)
	}
	defer f.Close()

	return t.client.WriteStaged(rel, f)
}

// Commit finalizes the transaction remote-first, then client (spec
// §4.5 step 3). A client commit failure after a successful remote
// commit is a fatal, unrecoverable inconsistency: it is reported, not
// rolled back, since the remote has already moved forward.
func (t *Transaction) Commit(ctx context.Context, cacheManifest *manifest.Manifest) (err error) {
	defer func() {
		if endErr := t.transport.EndSession(ctx); endErr != nil {
			slog.Warn("txn: end transport session", "tx", t.ID, "error", endErr)
		}
	}()

	if err := t.remote.Commit(ctx); err != nil {
		return dsgerr.Wrap(dsgerr.KindTransactionCommit, "txn: remote commit", err)
	}

	if err := t.client.Commit(ctx, cacheManifest); err != nil {
		return dsgerr.Wrap(dsgerr.KindTransactionCommit,
			"txn: FATAL inconsistency — remote committed but client commit failed; "+
				"repository state now differs between client and remote", err).
			WithHint("re-run sync to reconcile the client against the now-canonical remote state")
	}

	t.committed = true
	return nil
}

// Rollback reverses a transaction that did not reach a successful
// commit: remote first, then client, swallowing per-component
// rollback failures into a log while preserving the original exception
// (spec §4.5 step 4).
func (t *Transaction) Rollback(ctx context.Context, cause error) error {
	defer func() {
		if endErr := t.transport.EndSession(ctx); endErr != nil {
			slog.Warn("txn: end transport session during rollback", "tx", t.ID, "error", endErr)
		}
	}()

	if t.committed {
		return nil
	}

	if err := t.remote.Rollback(ctx); err != nil {
		slog.Warn("txn: remote rollback failed", "tx", t.ID, "error", err)
	}
	if err := t.client.Rollback(ctx); err != nil {
		slog.Warn("txn: client rollback failed", "tx", t.ID, "error", err)
	}

	return cause
}

// runBatch fans a batch of per-path operations out across goroutines
// and waits for all of them, short-circuiting on the first error
// (grounded on errgroup.WithContext, teacher's
// internal/client/daemon.go).
func runBatch(ctx context.Context, paths []string, op func(ctx context.Context, rel string) error) error {
	if len(paths) == 0 {
		return nil
	}
	eg, egCtx := errgroup.WithContext(ctx)
	for _, rel := range paths {
		rel := rel
		eg.Go(func() error { return op(egCtx, rel) })
	}
	return eg.Wait()
}
