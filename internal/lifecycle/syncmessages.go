package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/manifest"
)

const syncMessagesVersion = "1.0"

// syncMessageEntry is one line of the snapshot-message ledger (spec §6:
// "history of snapshot messages, version-tagged").
type syncMessageEntry struct {
	SnapshotID string `json:"snapshot_id"`
	CreatedAt  string `json:"created_at"`
	CreatedBy  string `json:"created_by"`
	Message    string `json:"message"`
}

type syncMessagesFile struct {
	Version  string             `json:"version"`
	Messages []syncMessageEntry `json:"messages"`
}

func (r *Repo) syncMessagesPath() string {
	return filepath.Join(r.Root, ".dsg", "sync-messages.json")
}

// appendSyncMessage records m's snapshot under the project's running
// message ledger, creating the ledger on the first snapshot.
func (r *Repo) appendSyncMessage(m *manifest.Manifest) error {
	path := r.syncMessagesPath()

	doc := syncMessagesFile{Version: syncMessagesVersion}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return dsgerr.Wrap(dsgerr.KindConfig, "lifecycle: parse sync-messages.json", err)
		}
	} else if !os.IsNotExist(err) {
		return dsgerr.Wrap(dsgerr.KindIO, "lifecycle: read sync-messages.json", err)
	}
	if doc.Version == "" {
		doc.Version = syncMessagesVersion
	}

	doc.Messages = append(doc.Messages, syncMessageEntry{
		SnapshotID: m.Meta.SnapshotID,
		CreatedAt:  m.Meta.CreatedAt,
		CreatedBy:  m.Meta.CreatedBy,
		Message:    m.Meta.SnapshotMessage,
	})

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return dsgerr.Wrap(dsgerr.KindConfig, "lifecycle: marshal sync-messages.json", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return dsgerr.Wrap(dsgerr.KindIO, "lifecycle: write sync-messages.json", err)
	}
	return nil
}
