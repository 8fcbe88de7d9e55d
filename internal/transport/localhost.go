package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/HRDAG/dsg/internal/dsgerr"
)

// localTempFile is a TempFile backed by a real file under the
// localhost staging directory.
type localTempFile struct {
	path string
	f    *os.File
}

func (t *localTempFile) Path() string { return t.path }

func (t *localTempFile) Close() error {
	if t.f != nil {
		if err := t.f.Close(); err != nil {
			return err
		}
	}
	if err := os.Remove(t.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Localhost is used whenever the remote host resolves to this machine
// (hostname match or loopback): transfers are plain file copies through
// a temp directory, no network round trip (spec §4.9).
type Localhost struct {
	stagingDir string
}

// NewLocalhost builds a Localhost transport rooted at
// "<project>/.dsg/tmp/" as the spec names it.
func NewLocalhost(projectRoot string) *Localhost {
	return &Localhost{stagingDir: filepath.Join(projectRoot, ".dsg", "tmp")}
}

func (l *Localhost) BeginSession(ctx context.Context) error {
	return os.MkdirAll(l.stagingDir, 0o755)
}

func (l *Localhost) EndSession(ctx context.Context) error {
	return nil
}

func (l *Localhost) TransferToRemote(ctx context.Context, r io.Reader, size int64) (TempFile, error) {
	return l.stream(r, size)
}

func (l *Localhost) TransferToLocal(ctx context.Context, remotePath string, size int64) (TempFile, error) {
	f, err := os.Open(remotePath)
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindIO, "localhost: open remote path", err)
	}
	defer f.Close()
	return l.stream(f, size)
}

func (l *Localhost) stream(r io.Reader, size int64) (TempFile, error) {
	name := filepath.Join(l.stagingDir, "xfer-"+uuid.NewString())
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindIO, "localhost: create temp file", err)
	}

	n, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(name)
		return nil, dsgerr.Wrap(dsgerr.KindIO, "localhost: copy stream", copyErr)
	}
	if closeErr != nil {
		os.Remove(name)
		return nil, dsgerr.Wrap(dsgerr.KindIO, "localhost: close temp file", closeErr)
	}
	if size >= 0 && n != size {
		os.Remove(name)
		return nil, dsgerr.New(dsgerr.KindTransactionIntegrity,
			fmt.Sprintf("localhost: transferred %d bytes, declared size was %d", n, size))
	}

	return &localTempFile{path: name}, nil
}
