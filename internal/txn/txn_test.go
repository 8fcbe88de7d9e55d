package txn

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HRDAG/dsg/internal/manifest"
	"github.com/HRDAG/dsg/internal/planner"
	"github.com/HRDAG/dsg/internal/transport"
)

type fakeClient struct {
	mu        sync.Mutex
	begun     bool
	staged    map[string]string
	symlinks  map[string]string
	deletes   []string
	committed bool
	rolled    bool
	commitErr error
}

func newFakeClient() *fakeClient {
	return &fakeClient{staged: map[string]string{}, symlinks: map[string]string{}}
}

func (c *fakeClient) Begin(ctx context.Context) error { c.begun = true; return nil }
func (c *fakeClient) WriteStaged(relPath string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.staged[relPath] = string(data)
	return nil
}
func (c *fakeClient) StageSymlink(relPath, target string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symlinks[relPath] = target
	return nil
}
func (c *fakeClient) Delete(relPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes = append(c.deletes, relPath)
	return nil
}
func (c *fakeClient) Commit(ctx context.Context, m *manifest.Manifest) error {
	if c.commitErr != nil {
		return c.commitErr
	}
	c.committed = true
	return nil
}
func (c *fakeClient) Rollback(ctx context.Context) error { c.rolled = true; return nil }

type fakeRemote struct {
	mu        sync.Mutex
	begun     bool
	stagingDir string
	symlinks  map[string]string
	deletes   []string
	committed bool
	rolled    bool
	commitErr error
}

func newFakeRemote(t *testing.T) *fakeRemote {
	return &fakeRemote{stagingDir: t.TempDir(), symlinks: map[string]string{}}
}

func (r *fakeRemote) Begin(ctx context.Context, txID string) error { r.begun = true; return nil }
func (r *fakeRemote) StagedPath(relPath string) string {
	return filepath.Join(r.stagingDir, relPath)
}

// staged returns the content written to relPath's staged path, for
// assertions that uploadOne actually landed bytes at StagedPath.
func (r *fakeRemote) staged(relPath string) string {
	data, err := os.ReadFile(r.StagedPath(relPath))
	if err != nil {
		return ""
	}
	return string(data)
}
func (r *fakeRemote) WriteSymlink(relPath, target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.symlinks[relPath] = target
	return nil
}
func (r *fakeRemote) RecordDelete(relPath string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes = append(r.deletes, relPath)
}
func (r *fakeRemote) Commit(ctx context.Context) error {
	if r.commitErr != nil {
		return r.commitErr
	}
	r.committed = true
	return nil
}
func (r *fakeRemote) Rollback(ctx context.Context) error { r.rolled = true; return nil }

type fakeTransport struct {
	mu       sync.Mutex
	sessions int
	tmpDir   string
}

func newFakeTransport(t *testing.T) *fakeTransport {
	return &fakeTransport{tmpDir: t.TempDir()}
}

func (t *fakeTransport) BeginSession(ctx context.Context) error { t.sessions++; return nil }
func (t *fakeTransport) EndSession(ctx context.Context) error   { t.sessions--; return nil }
func (t *fakeTransport) TransferToRemote(ctx context.Context, r io.Reader, size int64) (transport.TempFile, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(t.tmpDir, "remote-tmp")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return fakeTempFile(path), nil
}
func (t *fakeTransport) TransferToLocal(ctx context.Context, remotePath string, size int64) (transport.TempFile, error) {
	data, err := os.ReadFile(remotePath)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(t.tmpDir, "local-tmp")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return fakeTempFile(path), nil
}

type fakeTempFile string

func (f fakeTempFile) Path() string { return string(f) }
func (f fakeTempFile) Close() error { return nil }

func localOpener(files map[string]string) LocalOpener {
	return func(relPath string) (io.ReadCloser, int64, error) {
		data := files[relPath]
		return io.NopCloser(bytes.NewBufferString(data)), int64(len(data)), nil
	}
}

func noSymlinks(relPath string) (string, bool, error) { return "", false, nil }

func TestTransactionCommitOrder(t *testing.T) {
	client := newFakeClient()
	remote := newFakeRemote(t)
	tr := newFakeTransport(t)

	tx := New(client, remote, tr, localOpener(map[string]string{"a.csv": "hello"}), noSymlinks)
	require.NoError(t, tx.Begin(context.Background()))

	p := &planner.Plan{UploadFiles: []string{"a.csv"}}
	require.NoError(t, tx.SyncFiles(context.Background(), p))
	require.NoError(t, tx.Commit(context.Background(), manifest.New()))

	assert.True(t, remote.committed)
	assert.True(t, client.committed)
	assert.Equal(t, "hello", remote.staged("a.csv"), "uploaded bytes must land at the remote's staged path")
	assert.Equal(t, 0, tr.sessions, "transport session must end on the way out")
}

func TestFatalInconsistencyWhenClientCommitFailsAfterRemote(t *testing.T) {
	client := newFakeClient()
	client.commitErr = errors.New("disk full")
	remote := newFakeRemote(t)
	tr := newFakeTransport(t)

	tx := New(client, remote, tr, localOpener(nil), noSymlinks)
	require.NoError(t, tx.Begin(context.Background()))

	err := tx.Commit(context.Background(), manifest.New())
	require.Error(t, err)
	assert.True(t, remote.committed, "remote must have committed before the fatal client failure")
}

func TestRollbackRollsBackBothSidesAndReturnsCause(t *testing.T) {
	client := newFakeClient()
	remote := newFakeRemote(t)
	tr := newFakeTransport(t)

	tx := New(client, remote, tr, localOpener(nil), noSymlinks)
	require.NoError(t, tx.Begin(context.Background()))

	cause := errors.New("upload failed")
	got := tx.Rollback(context.Background(), cause)
	assert.Equal(t, cause, got)
	assert.True(t, remote.rolled)
	assert.True(t, client.rolled)
}

func TestSymlinkUploadBypassesTransport(t *testing.T) {
	client := newFakeClient()
	remote := newFakeRemote(t)
	tr := newFakeTransport(t)

	symlinks := func(rel string) (string, bool, error) {
		if rel == "link.csv" {
			return "../data/real.csv", true, nil
		}
		return "", false, nil
	}

	tx := New(client, remote, tr, localOpener(nil), symlinks)
	require.NoError(t, tx.Begin(context.Background()))

	p := &planner.Plan{UploadFiles: []string{"link.csv"}}
	require.NoError(t, tx.SyncFiles(context.Background(), p))

	assert.Equal(t, "../data/real.csv", remote.symlinks["link.csv"])
}
