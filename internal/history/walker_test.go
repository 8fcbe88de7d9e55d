package history

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HRDAG/dsg/internal/manifest"
)

// buildTestRepo recreates the fixture from the original implementation's
// test_history.py: two archived snapshots (s1, s2) plus a current
// manifest, with output/results.txt added in s1, modified in s2, and
// deleted from current, and analysis/summary.md new in current.
func buildTestRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	archiveDir := filepath.Join(root, ".dsg", "archive")
	require.NoError(t, os.MkdirAll(archiveDir, 0o755))

	s1 := manifest.New()
	require.NoError(t, s1.Put(fileEntry("input/data.csv", "alice", 1024, "2025-06-01T10:00:00-08:00", "hash123")))
	require.NoError(t, s1.Put(fileEntry("output/results.txt", "alice", 512, "2025-06-01T10:00:00-08:00", "hash456")))
	s1.Meta = &manifest.Metadata{
		ManifestVersion: "0.1.0", SnapshotID: "s1", CreatedAt: "2025-06-01T10:00:00-08:00",
		CreatedBy: "alice", EntryCount: 2, EntriesHash: "abc123", SnapshotMessage: "Initial data import",
	}
	writeGzipManifest(t, filepath.Join(archiveDir, "s1-sync.json.gz"), s1)

	s2 := manifest.New()
	require.NoError(t, s2.Put(fileEntry("input/data.csv", "alice", 1024, "2025-06-01T10:00:00-08:00", "hash123")))
	require.NoError(t, s2.Put(fileEntry("output/results.txt", "bob", 768, "2025-06-01T14:00:00-08:00", "hash789")))
	s2.Meta = &manifest.Metadata{
		ManifestVersion: "0.1.0", SnapshotID: "s2", CreatedAt: "2025-06-01T14:00:00-08:00",
		CreatedBy: "bob", EntryCount: 2, EntriesHash: "def456", SnapshotMessage: "Updated analysis results",
	}
	writeGzipManifest(t, filepath.Join(archiveDir, "s2-sync.json.gz"), s2)

	cur := manifest.New()
	require.NoError(t, cur.Put(fileEntry("input/data.csv", "alice", 1024, "2025-06-01T10:00:00-08:00", "hash123")))
	require.NoError(t, cur.Put(fileEntry("analysis/summary.md", "alice", 256, "2025-06-02T12:00:00-08:00", "hash999")))
	cur.Meta = &manifest.Metadata{
		ManifestVersion: "0.1.0", SnapshotID: "current", CreatedAt: "2025-06-02T12:00:00-08:00",
		CreatedBy: "alice", EntryCount: 2, EntriesHash: "xyz999", SnapshotMessage: "Added new analysis file",
	}
	require.NoError(t, cur.ToFile(filepath.Join(root, ".dsg", "last-sync.json"), true))

	return root
}

func fileEntry(path, user string, size int64, mtime, hash string) *manifest.Entry {
	return &manifest.Entry{Type: manifest.EntryFile, File: &manifest.FileRef{
		Path: path, User: user, Filesize: size, MTime: mtime, Hash: hash,
	}}
}

func writeGzipManifest(t *testing.T, path string, m *manifest.Manifest) {
	t.Helper()
	data, err := m.toJSON(true)
	require.NoError(t, err)

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	_, err = gz.Write(data)
	require.NoError(t, err)
}

func TestGetArchiveFiles(t *testing.T) {
	w := New(buildTestRepo(t))
	files, err := w.GetArchiveFiles()
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, 1, files[0].Num)
	assert.Equal(t, 2, files[1].Num)
}

func TestParseSnapshotNumber(t *testing.T) {
	cases := []struct {
		name string
		want int
		ok   bool
	}{
		{"s5-sync.json.gz", 5, true},
		{"s10.json.gz", 10, true},
		{"42-sync.json.gz", 42, true},
		{"invalid.txt", 0, false},
	}
	for _, c := range cases {
		n, ok := parseSnapshotNumber(c.name)
		assert.Equal(t, c.ok, ok, c.name)
		if ok {
			assert.Equal(t, c.want, n, c.name)
		}
	}
}

func TestLoadManifestFromArchive(t *testing.T) {
	w := New(buildTestRepo(t))
	files, err := w.GetArchiveFiles()
	require.NoError(t, err)

	m, err := w.loadManifestFromArchive(files[0].Path)
	require.NoError(t, err)
	require.NotNil(t, m.Meta)
	assert.Equal(t, "s1", m.Meta.SnapshotID)
	assert.Equal(t, "alice", m.Meta.CreatedBy)
	assert.Equal(t, "Initial data import", m.Meta.SnapshotMessage)
	assert.Equal(t, 2, m.Len())
}

func TestLoadCurrentManifest(t *testing.T) {
	w := New(buildTestRepo(t))
	m, err := w.loadCurrentManifest()
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "current", m.Meta.SnapshotID)
	assert.NotNil(t, m.Get("analysis/summary.md"))
}

func TestWalkHistoryNoFilters(t *testing.T) {
	w := New(buildTestRepo(t))
	entries, err := w.WalkHistory(LogOptions{})
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.Equal(t, "current", entries[0].SnapshotID)
	assert.Equal(t, "s2", entries[1].SnapshotID)
	assert.Equal(t, "s1", entries[2].SnapshotID)
}

func TestWalkHistoryWithLimit(t *testing.T) {
	w := New(buildTestRepo(t))
	entries, err := w.WalkHistory(LogOptions{Limit: 2})
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "current", entries[0].SnapshotID)
	assert.Equal(t, "s2", entries[1].SnapshotID)
}

func TestWalkHistoryWithAuthorFilter(t *testing.T) {
	w := New(buildTestRepo(t))
	entries, err := w.WalkHistory(LogOptions{Author: "alice"})
	require.NoError(t, err)

	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "alice", e.CreatedBy)
	}
	assert.Equal(t, "current", entries[0].SnapshotID)
	assert.Equal(t, "s1", entries[1].SnapshotID)
}

func TestWalkHistoryWithSinceFilter(t *testing.T) {
	w := New(buildTestRepo(t))
	entries, err := w.WalkHistory(LogOptions{Since: "2025-06-01T12:00:00-08:00"})
	require.NoError(t, err)

	require.Len(t, entries, 2)
	assert.Equal(t, "current", entries[0].SnapshotID)
	assert.Equal(t, "s2", entries[1].SnapshotID)
}
