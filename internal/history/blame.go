package history

import "github.com/HRDAG/dsg/internal/manifest"

// BlameEntry is one event in a file's modification history (spec
// §4.11 blame()).
type BlameEntry struct {
	SnapshotID string `db:"snapshot_id"`
	CreatedAt  string `db:"created_at"`
	CreatedBy  string `db:"created_by"`
	EventType  string `db:"event_type"` // "add" | "modify" | "delete" | "revert" | "recreate"
	FileHash   string `db:"file_hash"`  // empty for "delete"
}

// SnapshotNum parses the numeric suffix of SnapshotID.
func (e BlameEntry) SnapshotNum() int {
	n, ok := parseSnapshotNumber(e.SnapshotID)
	if !ok {
		return 0
	}
	return n
}

// FormattedDatetime renders CreatedAt as "2006-01-02 15:04:05".
func (e BlameEntry) FormattedDatetime() string {
	return LogEntry{CreatedAt: e.CreatedAt}.FormattedDatetime()
}

func entryHash(e *manifest.Entry) string {
	if e == nil {
		return ""
	}
	if e.Type == manifest.EntryFile && e.File != nil {
		return e.File.Hash
	}
	if e.Type == manifest.EntryLink && e.Link != nil {
		return e.Link.Reference
	}
	return ""
}

// GetFileBlame walks every snapshot (archives ascending, then current)
// and classifies each transition for one path into an add/modify/delete
// event by 2-way comparison against the immediately preceding snapshot
// that mentioned the path. Once three or more observations exist, it
// additionally recognizes revert (content matches the grand-predecessor
// rather than the immediate predecessor) and recreate (re-added after a
// delete) events by also comparing against the snapshot before that,
// per spec §4.11's 3-way variant.
func (w *Walker) GetFileBlame(path string) ([]BlameEntry, error) {
	manifests, err := w.allManifestsChronological()
	if err != nil {
		return nil, err
	}

	var out []BlameEntry
	var seenEntries []*manifest.Entry // history of non-nil entries observed so far, oldest-first
	var prevPresent *manifest.Entry   // entry in the immediately preceding snapshot (nil if absent there)
	hasPrev := false

	for _, m := range manifests {
		if m.Meta == nil {
			continue
		}
		cur := m.Get(path)

		switch {
		case !hasPrev:
			if cur != nil {
				out = append(out, blameEvent(m, cur, "add"))
				seenEntries = append(seenEntries, cur)
			}
		case prevPresent == nil && cur != nil:
			eventType := "add"
			if len(seenEntries) > 0 {
				eventType = "recreate"
			}
			out = append(out, blameEvent(m, cur, eventType))
			seenEntries = append(seenEntries, cur)
		case prevPresent != nil && cur == nil:
			out = append(out, blameEvent(m, nil, "delete"))
		case prevPresent != nil && cur != nil:
			if entryHash(prevPresent) != entryHash(cur) {
				eventType := "modify"
				if len(seenEntries) >= 2 && entryHash(seenEntries[len(seenEntries)-2]) == entryHash(cur) {
					eventType = "revert"
				}
				out = append(out, blameEvent(m, cur, eventType))
				seenEntries = append(seenEntries, cur)
			}
		}

		prevPresent = cur
		hasPrev = true
	}

	return out, nil
}

func blameEvent(m *manifest.Manifest, e *manifest.Entry, eventType string) BlameEntry {
	return BlameEntry{
		SnapshotID: m.Meta.SnapshotID,
		CreatedAt:  m.Meta.CreatedAt,
		CreatedBy:  m.Meta.CreatedBy,
		EventType:  eventType,
		FileHash:   entryHash(e),
	}
}

// allManifestsChronological loads every archived snapshot (ascending)
// plus the current manifest, oldest first.
func (w *Walker) allManifestsChronological() ([]*manifest.Manifest, error) {
	var out []*manifest.Manifest

	archives, err := w.GetArchiveFiles()
	if err != nil {
		return nil, err
	}
	for _, a := range archives {
		m, err := w.loadManifestFromArchive(a.Path)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}

	cur, err := w.loadCurrentManifest()
	if err != nil {
		return nil, err
	}
	if cur != nil {
		out = append(out, cur)
	}

	return out, nil
}
