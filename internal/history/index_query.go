package history

import (
	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/manifest"
)

// Rebuild repopulates the sqlite index from a Walker's archived snapshots
// plus the current manifest. It is idempotent: every call truncates and
// rewrites both tables, so the index can always be thrown away and
// regenerated from the gzip archive, its durable source of truth.
func (idx *Index) Rebuild(w *Walker) error {
	manifests, err := w.allManifestsChronological()
	if err != nil {
		return err
	}

	tx, err := idx.db.Beginx()
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindHistory, "history: begin index rebuild", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM entries`); err != nil {
		return dsgerr.Wrap(dsgerr.KindHistory, "history: clear entries table", err)
	}
	if _, err := tx.Exec(`DELETE FROM snapshots`); err != nil {
		return dsgerr.Wrap(dsgerr.KindHistory, "history: clear snapshots table", err)
	}

	seen := map[string]bool{} // path -> has ever had a non-nil entry
	prev := map[string]*manifest.Entry{}
	prevPrev := map[string]*manifest.Entry{}

	for _, m := range manifests {
		if m.Meta == nil {
			continue
		}
		num := LogEntry{SnapshotID: m.Meta.SnapshotID}.SnapshotNum()
		if _, err := tx.Exec(
			`INSERT INTO snapshots (snapshot_id, snapshot_num, created_at, created_by, entry_count, entries_hash, snapshot_message)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.Meta.SnapshotID, num, m.Meta.CreatedAt, m.Meta.CreatedBy, m.Meta.EntryCount, m.Meta.EntriesHash, m.Meta.SnapshotMessage,
		); err != nil {
			return dsgerr.Wrap(dsgerr.KindHistory, "history: insert snapshot row", err)
		}

		cur := map[string]*manifest.Entry{}
		m.Entries(func(path string, e *manifest.Entry) { cur[path] = e })

		touched := map[string]bool{}
		for p := range cur {
			touched[p] = true
		}
		for p := range prev {
			touched[p] = true
		}

		for path := range touched {
			curEntry := cur[path]
			prevEntry := prev[path]

			var eventType string
			switch {
			case prevEntry == nil && curEntry != nil:
				eventType = "add"
				if seen[path] {
					eventType = "recreate"
				}
			case prevEntry != nil && curEntry == nil:
				eventType = "delete"
			case prevEntry != nil && curEntry != nil:
				if entryHash(prevEntry) == entryHash(curEntry) {
					continue // unchanged: no event this snapshot
				}
				eventType = "modify"
				if grand := prevPrev[path]; grand != nil && entryHash(grand) == entryHash(curEntry) {
					eventType = "revert"
				}
			default:
				continue
			}

			if curEntry != nil {
				seen[path] = true
			}

			if _, err := tx.Exec(
				`INSERT INTO entries (snapshot_num, snapshot_id, path, event_type, file_hash, created_at, created_by)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				num, m.Meta.SnapshotID, path, eventType, entryHash(curEntry), m.Meta.CreatedAt, m.Meta.CreatedBy,
			); err != nil {
				return dsgerr.Wrap(dsgerr.KindHistory, "history: insert entry row", err)
			}
		}

		prevPrev = prev
		prev = cur
	}

	if err := tx.Commit(); err != nil {
		return dsgerr.Wrap(dsgerr.KindHistory, "history: commit index rebuild", err)
	}
	return nil
}

// Log queries the index for log entries, newest-first, honoring the same
// filters as Walker.WalkHistory.
func (idx *Index) Log(opts LogOptions) ([]LogEntry, error) {
	query := `SELECT snapshot_id, created_at, created_by, entry_count, entries_hash, snapshot_message
	          FROM snapshots WHERE 1=1`
	var args []any

	if opts.Author != "" {
		query += ` AND created_by = ?`
		args = append(args, opts.Author)
	}
	query += ` ORDER BY snapshot_num DESC`

	var all []LogEntry
	if err := idx.db.Select(&all, query, args...); err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindHistory, "history: query index log", err)
	}

	// --since compares wall-clock values ignoring UTC offset (matches
	// Walker.WalkHistory), which a SQL string comparison on created_at
	// can't express, so it is applied here in Go rather than in the query.
	out := all
	if opts.Since != "" {
		sinceT, err := parseNaiveTimestamp(opts.Since)
		if err != nil {
			return nil, dsgerr.Wrap(dsgerr.KindHistory, "history: parse --since", err)
		}
		out = out[:0]
		for _, e := range all {
			t, err := parseNaiveTimestamp(e.CreatedAt)
			if err != nil || t.Before(sinceT) {
				continue
			}
			out = append(out, e)
		}
	}

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// Blame queries the index for one path's event sequence, oldest first.
func (idx *Index) Blame(path string) ([]BlameEntry, error) {
	var out []BlameEntry
	err := idx.db.Select(&out,
		`SELECT snapshot_id, created_at, created_by, event_type, file_hash
		 FROM entries WHERE path = ? ORDER BY snapshot_num ASC`, path)
	if err != nil {
		return nil, dsgerr.Wrap(dsgerr.KindHistory, "history: query index blame", err)
	}
	return out, nil
}
