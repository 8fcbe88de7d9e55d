// Package remotefs defines the RemoteFilesystem contract and its two
// implementations: zfsfs (atomic clone-then-promote commits) and
// posixfs (best-effort two-step rename for backends without snapshot
// semantics), per spec §4.7-4.8.
package remotefs

import "context"

// RemoteFilesystem is the transaction coordinator's remote-side
// collaborator (spec §4.5).
type RemoteFilesystem interface {
	// Begin prepares isolated staging for txID: a dataset clone for ZFS,
	// a sibling staging directory for plain-POSIX.
	Begin(ctx context.Context, txID string) error

	// StagedPath returns the absolute path, inside the staging area,
	// that relPath's uploaded content should land at.
	StagedPath(relPath string) string

	// WriteSymlink recreates a symlink directly inside the staging area,
	// bypassing content streaming (spec §4.5).
	WriteSymlink(relPath, target string) error

	// RecordDelete marks relPath for removal on commit.
	RecordDelete(relPath string)

	// Commit atomically (ZFS) or best-effort (POSIX) promotes staging to
	// the live repository.
	Commit(ctx context.Context) error

	// Rollback discards staging, restoring the live repository to its
	// pre-transaction state.
	Rollback(ctx context.Context) error
}
