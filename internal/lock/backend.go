// Package lock implements dsg's distributed file-based lock protecting a
// repository against concurrent sync/init/clone (spec §4.10), plus a
// process-local fast-path mutex grounded on the teacher's use of
// gofrs/flock over the repository's metadata directory.
package lock

import "context"

// Backend is the minimal file operation surface the distributed lock
// needs from either a local client filesystem or a remote backend
// (spec §4.10: "the abstract backend cannot delete files, only overwrite").
// Neither internal/clientfs nor internal/remotefs provides these
// methods; the CLI supplies a plain-file implementation
// (internal/cli/remote.go).
type Backend interface {
	FileExists(ctx context.Context, relPath string) (bool, error)
	ReadFile(ctx context.Context, relPath string) ([]byte, error)
	WriteFile(ctx context.Context, relPath string, data []byte) error
}
