package scanner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestScanBasic(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "input", "a.csv"), "12345678")
	writeFile(t, filepath.Join(root, "output", "b.csv"), "data")
	writeFile(t, filepath.Join(root, "notdata", "c.csv"), "ignored top-level")
	require.NoError(t, os.Symlink("a.csv", filepath.Join(root, "input", "b")))

	cfg := &Config{DataDirs: []string{"input", "output"}, User: "pball@example.com", HashContent: true}
	res, err := Scan(root, cfg)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Manifest.Len())
	a := res.Manifest.Get("input/a.csv")
	require.NotNil(t, a)
	assert.Equal(t, int64(8), a.File.Filesize)
	assert.NotEqual(t, "", a.File.Hash)

	link := res.Manifest.Get("input/b")
	require.NotNil(t, link)
	assert.Equal(t, "a.csv", link.Link.Reference)

	assert.Contains(t, res.Ignored, "notdata")
}

func TestScanPrunesAlwaysIgnored(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "input", ".git", "config"), "x")
	writeFile(t, filepath.Join(root, "input", "__pycache__", "x.pyc"), "x")
	writeFile(t, filepath.Join(root, "input", ".hidden", "x.txt"), "x")
	writeFile(t, filepath.Join(root, "input", "keep.csv"), "data")

	cfg := &Config{DataDirs: []string{"input"}, HashContent: false}
	res, err := Scan(root, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Manifest.Len())
	assert.NotNil(t, res.Manifest.Get("input/keep.csv"))
}

func TestScanIgnoreRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "input", "keep.csv"), "data")
	writeFile(t, filepath.Join(root, "input", "skip.tmp"), "data")
	writeFile(t, filepath.Join(root, "input", "named.log"), "data")

	cfg := &Config{
		DataDirs:        []string{"input"},
		IgnoredSuffixes: []string{".tmp"},
		IgnoredNames:    []string{"named.log"},
	}
	res, err := Scan(root, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Manifest.Len())
	assert.NotNil(t, res.Manifest.Get("input/keep.csv"))
}

func TestScanIdempotent(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "input", "a.csv"), "12345678")

	cfg := &Config{DataDirs: []string{"input"}, HashContent: true}
	res1, err := Scan(root, cfg)
	require.NoError(t, err)
	res2, err := Scan(root, cfg)
	require.NoError(t, err)

	assert.Equal(t, res1.Manifest.EntriesHash(), res2.Manifest.EntriesHash())
}

func TestScanUnreadableFileIsWarnedNotFatal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "input", "a.csv"), "data")
	badDir := filepath.Join(root, "input", "denied")
	require.NoError(t, os.MkdirAll(badDir, 0o755))
	writeFile(t, filepath.Join(badDir, "b.csv"), "data")
	require.NoError(t, os.Chmod(badDir, 0o000))
	t.Cleanup(func() { os.Chmod(badDir, 0o755) })

	cfg := &Config{DataDirs: []string{"input"}, HashContent: true}
	res, err := Scan(root, cfg)
	require.NoError(t, err)
	assert.NotNil(t, res.Manifest.Get("input/a.csv"))
}
