// Package history implements the History Walker (spec §4.11): reading
// archived manifests in .dsg/archive/ plus the current last-sync.json to
// answer log and blame queries, and a secondary sqlite index for faster
// repeated queries over large archives.
package history

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/manifest"
)

// ArchiveFile pairs a parsed snapshot number with the archive file it
// came from, in ascending snapshot order.
type ArchiveFile struct {
	Num  int
	Path string
}

// Walker reads a repository's .dsg/archive/ directory and last-sync.json.
type Walker struct {
	RepoRoot string
}

// New builds a Walker rooted at a repository's working directory.
func New(repoRoot string) *Walker {
	return &Walker{RepoRoot: repoRoot}
}

func (w *Walker) archiveDir() string   { return filepath.Join(w.RepoRoot, ".dsg", "archive") }
func (w *Walker) lastSyncPath() string { return filepath.Join(w.RepoRoot, ".dsg", "last-sync.json") }

var snapshotNumRe = regexp.MustCompile(`^(\d+)`)

// parseSnapshotNumber extracts the leading integer from an archive
// filename, accepting both "sN-sync.json.gz", "sN.json.gz", and a bare
// leading number (spec §4.11 names "sN-sync.json.gz" but the parser is
// deliberately permissive of older naming).
func parseSnapshotNumber(filename string) (int, bool) {
	name := strings.TrimPrefix(filename, "s")
	m := snapshotNumRe.FindString(name)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

// GetArchiveFiles lists .dsg/archive/*.json.gz, ascending by snapshot
// number.
func (w *Walker) GetArchiveFiles() ([]ArchiveFile, error) {
	entries, err := os.ReadDir(w.archiveDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dsgerr.Wrap(dsgerr.KindHistory, "history: read archive directory", err)
	}

	var out []ArchiveFile
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json.gz") {
			continue
		}
		num, ok := parseSnapshotNumber(e.Name())
		if !ok {
			continue
		}
		out = append(out, ArchiveFile{Num: num, Path: filepath.Join(w.archiveDir(), e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Num < out[j].Num })
	return out, nil
}

// loadManifestFromArchive gunzips and parses one archived manifest.
func (w *Walker) loadManifestFromArchive(path string) (*manifest.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindHistory, "history: open archive "+path, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindHistory, "history: gunzip archive "+path, err)
	}
	defer gz.Close()

	data, err := io.ReadAll(gz)
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindHistory, "history: read archive "+path, err)
	}
	return manifest.FromJSON(data)
}

// loadCurrentManifest loads .dsg/last-sync.json, or nil if absent.
func (w *Walker) loadCurrentManifest() (*manifest.Manifest, error) {
	m, err := manifest.FromFile(w.lastSyncPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, dsgerr.Wrap(dsgerr.KindHistory, "history: read last-sync.json", err)
	}
	return m, nil
}

// LogEntry is one row of repository history, newest-first in WalkHistory
// output (spec §4.11 log()).
type LogEntry struct {
	SnapshotID      string `db:"snapshot_id"`
	CreatedAt       string `db:"created_at"`
	CreatedBy       string `db:"created_by"`
	EntryCount      int    `db:"entry_count"`
	EntriesHash     string `db:"entries_hash"`
	SnapshotMessage string `db:"snapshot_message"`
}

// SnapshotNum parses the numeric suffix of SnapshotID ("s42" -> 42, "15"
// -> 15), returning 0 for an unparseable id.
func (e LogEntry) SnapshotNum() int {
	n, ok := parseSnapshotNumber(e.SnapshotID)
	if !ok {
		return 0
	}
	return n
}

// FormattedDatetime renders CreatedAt as "2006-01-02 15:04:05", dropping
// the zone offset, matching the original CLI's display format.
func (e LogEntry) FormattedDatetime() string {
	t, err := time.Parse(time.RFC3339, e.CreatedAt)
	if err != nil {
		return e.CreatedAt
	}
	return t.Format("2006-01-02 15:04:05")
}

// LogOptions filters WalkHistory.
type LogOptions struct {
	Limit  int    // 0 = unlimited
	Author string // exact match on created_by, "" = no filter
	Since  string // RFC3339-parseable lower bound, "" = no filter
}

// WalkHistory returns log entries newest-first: the current manifest (if
// present) followed by archived snapshots in descending N order (spec
// §4.11).
func (w *Walker) WalkHistory(opts LogOptions) ([]LogEntry, error) {
	var sinceT time.Time
	if opts.Since != "" {
		t, err := parseNaiveTimestamp(opts.Since)
		if err != nil {
			return nil, dsgerr.Wrap(dsgerr.KindHistory, "history: parse --since", err)
		}
		sinceT = t
	}

	var out []LogEntry

	cur, err := w.loadCurrentManifest()
	if err != nil {
		return nil, err
	}
	if cur != nil && cur.Meta != nil {
		out = append(out, logEntryFromMeta(cur.Meta))
	}

	archives, err := w.GetArchiveFiles()
	if err != nil {
		return nil, err
	}
	for i := len(archives) - 1; i >= 0; i-- {
		m, err := w.loadManifestFromArchive(archives[i].Path)
		if err != nil {
			return nil, err
		}
		if m.Meta != nil {
			out = append(out, logEntryFromMeta(m.Meta))
		}
	}

	filtered := out[:0]
	for _, e := range out {
		if opts.Author != "" && e.CreatedBy != opts.Author {
			continue
		}
		if !sinceT.IsZero() {
			t, err := parseNaiveTimestamp(e.CreatedAt)
			if err != nil || t.Before(sinceT) {
				continue
			}
		}
		filtered = append(filtered, e)
	}
	out = filtered

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func logEntryFromMeta(meta *manifest.Metadata) LogEntry {
	return LogEntry{
		SnapshotID:      meta.SnapshotID,
		CreatedAt:       meta.CreatedAt,
		CreatedBy:       meta.CreatedBy,
		EntryCount:      meta.EntryCount,
		EntriesHash:     meta.EntriesHash,
		SnapshotMessage: meta.SnapshotMessage,
	}
}

// parseNaiveTimestamp parses the wall-clock portion of an ISO-8601
// timestamp, discarding any UTC offset, so a bare "--since
// 2025-06-01T12:00:00" compares against offset-bearing manifest
// timestamps on their local wall-clock value rather than as different
// absolute instants — matching the original CLI's offset-less --since
// arguments.
func parseNaiveTimestamp(s string) (time.Time, error) {
	wallClock := s
	if i := strings.IndexAny(s, "Zz"); i >= 0 {
		wallClock = s[:i]
	} else if i := strings.LastIndexAny(s, "+-"); i > 10 { // skip the date's own '-'
		wallClock = s[:i]
	}
	return time.Parse("2006-01-02T15:04:05", wallClock)
}
