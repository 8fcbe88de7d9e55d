// Package planner translates a path->SyncState map into the four
// disjoint file-operation lists the transaction coordinator executes
// (spec §4.4).
package planner

import (
	"fmt"
	"sort"

	"github.com/HRDAG/dsg/internal/merger"
)

// MetadataFiles are always appended to UploadFiles so that committed
// remote state contains the manifest describing itself (spec §4.4).
var MetadataFiles = []string{".dsg/last-sync.json", ".dsg/sync-messages.json"}

// Plan is the set of file operations a sync transaction must execute.
type Plan struct {
	UploadFiles   []string
	DownloadFiles []string
	DeleteLocal   []string
	DeleteRemote  []string
	// Conflicts lists paths whose SyncState is a conflict state, omitted
	// from every operation list (spec §4.4).
	Conflicts []string
}

// cacheOnlyStates produce no file operation; the caller only needs to
// refresh the cache manifest on commit.
var cacheOnlyStates = map[merger.SyncState]bool{
	merger.StateCacheMissingLEqR: true,
	merger.StateOnlyCache:        true,
	merger.StateLEqRNeC:          true,
}

// Build maps a path->SyncState classification to a Plan. Conflict states
// are collected into Plan.Conflicts and omitted from every operation
// list; the caller must check len(Plan.Conflicts) == 0 before opening a
// transaction (spec §4.4: "the operation fails fast before any
// transaction begins").
func Build(states map[string]merger.SyncState) *Plan {
	p := &Plan{}
	for path, st := range states {
		switch {
		case st.IsConflict():
			p.Conflicts = append(p.Conflicts, path)
		case st == merger.StateOnlyLocal || st == merger.StateCEqRNeL:
			p.UploadFiles = append(p.UploadFiles, path)
		case st == merger.StateOnlyRemote || st == merger.StateLEqCNeR:
			p.DownloadFiles = append(p.DownloadFiles, path)
		case st == merger.StateRemoteDeletedLEqC:
			p.DeleteLocal = append(p.DeleteLocal, path)
		case st == merger.StateDeletedLocalCEqR:
			p.DeleteRemote = append(p.DeleteRemote, path)
		case cacheOnlyStates[st]:
			// no file operation; cache refresh only
		case st == merger.StateAllEqual || st == merger.StateNone:
			// no operation
		default:
			panic(fmt.Sprintf("planner: unhandled sync state %q for path %q", st, path))
		}
	}

	sort.Strings(p.UploadFiles)
	sort.Strings(p.DownloadFiles)
	sort.Strings(p.DeleteLocal)
	sort.Strings(p.DeleteRemote)
	sort.Strings(p.Conflicts)

	p.UploadFiles = append(p.UploadFiles, MetadataFiles...)
	return p
}

// HasConflicts reports whether the plan has any unresolved conflicts.
func (p *Plan) HasConflicts() bool {
	return len(p.Conflicts) > 0
}

// IsEmpty reports whether the plan performs no file operations beyond
// the always-present metadata upload (spec §8: "Sync with an empty plan
// is a no-op").
func (p *Plan) IsEmpty() bool {
	return len(p.DownloadFiles) == 0 && len(p.DeleteLocal) == 0 && len(p.DeleteRemote) == 0 &&
		len(p.UploadFiles) == len(MetadataFiles)
}
