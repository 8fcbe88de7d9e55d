package posixfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitPromotesStagingOverLive(t *testing.T) {
	base := t.TempDir()
	live := filepath.Join(base, "repo")
	require.NoError(t, os.MkdirAll(live, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(live, "old.csv"), []byte("old"), 0o644))

	fs := New(live)
	require.NoError(t, fs.Begin(context.Background(), "tx-00000001"))

	require.NoError(t, os.WriteFile(filepath.Join(fs.StagedPath("new.csv")), []byte("new"), 0o644))

	require.NoError(t, fs.Commit(context.Background()))

	got, err := os.ReadFile(filepath.Join(live, "new.csv"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	got, err = os.ReadFile(filepath.Join(live, "old.csv"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))

	_, err = os.Stat(fs.oldPath())
	assert.True(t, os.IsNotExist(err), "old staging path should be cleaned up")
}

func TestRollbackDiscardsStagingLeavesLiveUntouched(t *testing.T) {
	base := t.TempDir()
	live := filepath.Join(base, "repo")
	require.NoError(t, os.MkdirAll(live, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(live, "a.csv"), []byte("a"), 0o644))

	fs := New(live)
	require.NoError(t, fs.Begin(context.Background(), "tx-00000002"))
	require.NoError(t, fs.Rollback(context.Background()))

	_, err := os.Stat(fs.stagingDir)
	assert.True(t, os.IsNotExist(err))

	got, err := os.ReadFile(filepath.Join(live, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
}

func TestDeleteRemovesFromStagingBeforePromote(t *testing.T) {
	base := t.TempDir()
	live := filepath.Join(base, "repo")
	require.NoError(t, os.MkdirAll(live, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(live, "gone.csv"), []byte("x"), 0o644))

	fs := New(live)
	require.NoError(t, fs.Begin(context.Background(), "tx-00000003"))
	fs.RecordDelete("gone.csv")
	require.NoError(t, fs.Commit(context.Background()))

	_, err := os.Stat(filepath.Join(live, "gone.csv"))
	assert.True(t, os.IsNotExist(err))
}
