package transport

import (
	"context"
	"io"
)

// TempFile is a handle to a transport-staged file; Close must always
// run, even on failure, so the staging area never accumulates orphans
// (spec §4.5: "temp file cleanup runs in a guaranteed-release block").
type TempFile interface {
	Path() string
	Close() error
}

// Transport moves file content between the client host and whatever
// staging area the remote filesystem exposes. Symlinks bypass this
// entirely (spec §4.5): callers detect a symlink Entry and ask the
// remote/client filesystem to recreate the link target directly.
type Transport interface {
	BeginSession(ctx context.Context) error
	EndSession(ctx context.Context) error

	// TransferToRemote streams size bytes from r into a remote-side
	// staging temp file. size is the declared stream length; the
	// transport must verify the byte count it actually wrote against
	// size and return a non-retryable integrity error on mismatch.
	TransferToRemote(ctx context.Context, r io.Reader, size int64) (TempFile, error)

	// TransferToLocal streams size bytes from the remote path into a
	// local-side staging temp file.
	TransferToLocal(ctx context.Context, remotePath string, size int64) (TempFile, error)
}
