package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBlameModifiedFile(t *testing.T) {
	w := New(buildTestRepo(t))
	entries, err := w.GetFileBlame("output/results.txt")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "add", entries[0].EventType)
	assert.Equal(t, "s1", entries[0].SnapshotID)
	assert.Equal(t, "alice", entries[0].CreatedBy)
	assert.Equal(t, "hash456", entries[0].FileHash)

	assert.Equal(t, "modify", entries[1].EventType)
	assert.Equal(t, "s2", entries[1].SnapshotID)
	assert.Equal(t, "bob", entries[1].CreatedBy)
	assert.Equal(t, "hash789", entries[1].FileHash)

	assert.Equal(t, "delete", entries[2].EventType)
	assert.Equal(t, "current", entries[2].SnapshotID)
	assert.Equal(t, "alice", entries[2].CreatedBy)
	assert.Equal(t, "", entries[2].FileHash)
}

func TestFileBlameUnchangedFile(t *testing.T) {
	w := New(buildTestRepo(t))
	entries, err := w.GetFileBlame("input/data.csv")
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "add", entries[0].EventType)
	assert.Equal(t, "s1", entries[0].SnapshotID)
	assert.Equal(t, "alice", entries[0].CreatedBy)
	assert.Equal(t, "hash123", entries[0].FileHash)
}

func TestFileBlameNewFile(t *testing.T) {
	w := New(buildTestRepo(t))
	entries, err := w.GetFileBlame("analysis/summary.md")
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "add", entries[0].EventType)
	assert.Equal(t, "current", entries[0].SnapshotID)
	assert.Equal(t, "alice", entries[0].CreatedBy)
	assert.Equal(t, "hash999", entries[0].FileHash)
}

func TestFileBlameNonexistentFile(t *testing.T) {
	w := New(buildTestRepo(t))
	entries, err := w.GetFileBlame("nonexistent/file.txt")
	require.NoError(t, err)
	assert.Len(t, entries, 0)
}

func TestLogEntrySnapshotNum(t *testing.T) {
	assert.Equal(t, 42, LogEntry{SnapshotID: "s42"}.SnapshotNum())
	assert.Equal(t, 15, LogEntry{SnapshotID: "15"}.SnapshotNum())
	assert.Equal(t, 0, LogEntry{SnapshotID: "invalid"}.SnapshotNum())
}

func TestLogEntryFormattedDatetime(t *testing.T) {
	e := LogEntry{CreatedAt: "2025-06-02T15:30:45-08:00"}
	assert.Equal(t, "2025-06-02 15:30:45", e.FormattedDatetime())
}

func TestBlameEntrySnapshotNum(t *testing.T) {
	assert.Equal(t, 7, BlameEntry{SnapshotID: "s7"}.SnapshotNum())
}

func TestBlameEntryFormattedDatetime(t *testing.T) {
	e := BlameEntry{CreatedAt: "2025-06-02T08:15:30-08:00"}
	assert.Equal(t, "2025-06-02 08:15:30", e.FormattedDatetime())
}
