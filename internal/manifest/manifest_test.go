package manifest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry(path, hash string) *Entry {
	return &Entry{Type: EntryFile, File: &FileRef{
		Path: path, User: "pball@example.com", Filesize: 8,
		MTime: "2025-01-01T00:00:00.000Z", Hash: hash,
	}}
}

func TestManifestRoundTrip(t *testing.T) {
	m := New()
	require.NoError(t, m.Put(sampleEntry("input/a.csv", "abc123")))
	require.NoError(t, m.Put(&Entry{Type: EntryLink, Link: &LinkRef{Path: "input/b", Reference: "a.csv"}}))
	m.Meta = &Metadata{
		ManifestVersion: "1", SnapshotID: "s1", CreatedBy: "pball@example.com",
		EntryCount: m.Len(), EntriesHash: m.EntriesHash(), SnapshotNotes: "init",
	}
	m.Meta.SnapshotHash = m.ComputeSnapshotHash("initial snapshot", "")

	data, err := m.toJSON(true)
	require.NoError(t, err)

	m2, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, m.Paths(), m2.Paths())
	assert.Equal(t, m.EntriesHash(), m2.EntriesHash())
	assert.Equal(t, m.Meta.SnapshotHash, m2.Meta.SnapshotHash)

	data2, err := m2.toJSON(true)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(data2))
}

func TestEntriesHashStableUnderKeyOrder(t *testing.T) {
	m1 := New()
	require.NoError(t, m1.Put(sampleEntry("a", "h1")))
	require.NoError(t, m1.Put(sampleEntry("b", "h2")))

	m2 := New()
	require.NoError(t, m2.Put(sampleEntry("a", "h1")))
	require.NoError(t, m2.Put(sampleEntry("b", "h2")))

	assert.Equal(t, m1.EntriesHash(), m2.EntriesHash())
}

func TestEqShallowIgnoresHashAndUser(t *testing.T) {
	a := sampleEntry("x", UnknownHash)
	b := sampleEntry("x", "deadbeef")
	b.File.User = "other@example.com"
	assert.True(t, EqShallow(a, b))
	assert.False(t, EqDeep(a, b))
}

func TestEqDeepRequiresRealHashes(t *testing.T) {
	a := sampleEntry("x", "deadbeef")
	b := sampleEntry("x", "deadbeef")
	assert.True(t, EqDeep(a, b))

	c := sampleEntry("x", UnknownHash)
	assert.False(t, EqDeep(a, c))
}

func TestValidatePathsRejectsEscape(t *testing.T) {
	m := New()
	require.NoError(t, m.Put(sampleEntry("../escape.csv", "h")))
	err := m.ValidatePaths()
	assert.Error(t, err)
}

func TestDropDanglingLinks(t *testing.T) {
	m := New()
	require.NoError(t, m.Put(sampleEntry("input/a.csv", "h1")))
	require.NoError(t, m.Put(&Entry{Type: EntryLink, Link: &LinkRef{Path: "input/ok", Reference: "a.csv"}}))
	require.NoError(t, m.Put(&Entry{Type: EntryLink, Link: &LinkRef{Path: "input/dangling", Reference: "missing.csv"}}))
	require.NoError(t, m.Put(&Entry{Type: EntryLink, Link: &LinkRef{Path: "input/escape", Reference: "../../etc/passwd"}}))

	dropped := m.DropDanglingLinks()
	assert.ElementsMatch(t, []string{"input/dangling", "input/escape"}, dropped)
	assert.NotNil(t, m.Get("input/ok"))
	assert.Nil(t, m.Get("input/dangling"))
}

func TestComputeSnapshotHashDeterministic(t *testing.T) {
	h1 := ComputeSnapshotHash("eh", "msg", "")
	h2 := ComputeSnapshotHash("eh", "msg", "")
	assert.Equal(t, h1, h2)

	h3 := ComputeSnapshotHash("eh", "other msg", "")
	assert.NotEqual(t, h1, h3)
}
