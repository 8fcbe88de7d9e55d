// Package manifest implements dsg's content-addressed file inventory: the
// FileRef/LinkRef entry model, the insertion-ordered Manifest container,
// and the snapshot-hash chain that links one manifest to its parent.
package manifest

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// UnknownHash is the sentinel recorded when a file's content hash has not
// yet been computed (spec §3: FileRef.hash).
const UnknownHash = "__UNKNOWN__"

// EntryType discriminates the ManifestEntry tagged union.
type EntryType string

const (
	EntryFile EntryType = "file"
	EntryLink EntryType = "link"
)

// FileRef describes a regular file captured in a snapshot.
type FileRef struct {
	Path     string `json:"path"`
	User     string `json:"user"`
	Filesize int64  `json:"filesize"`
	MTime    string `json:"mtime"` // ISO-8601 with offset, ms-significant
	Hash     string `json:"hash"`
}

// LinkRef describes a symbolic link captured in a snapshot.
type LinkRef struct {
	Path      string `json:"path"`
	Reference string `json:"reference"`
}

// Entry is the tagged union of FileRef | LinkRef, discriminated on Type.
type Entry struct {
	Type EntryType
	File *FileRef
	Link *LinkRef
}

// Path returns the entry's repository-relative path regardless of kind.
func (e *Entry) Path() string {
	if e.File != nil {
		return e.File.Path
	}
	if e.Link != nil {
		return e.Link.Path
	}
	return ""
}

type entryWire struct {
	Type      EntryType `json:"type"`
	Path      string    `json:"path"`
	User      string    `json:"user,omitempty"`
	Filesize  int64     `json:"filesize,omitempty"`
	MTime     string    `json:"mtime,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	Reference string    `json:"reference,omitempty"`
}

// MarshalJSON renders the tagged union flat, matching the canonical
// manifest JSON shape in spec §6.
func (e Entry) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EntryFile:
		if e.File == nil {
			return nil, fmt.Errorf("manifest: file entry missing FileRef")
		}
		return json.Marshal(entryWire{
			Type:     EntryFile,
			Path:     e.File.Path,
			User:     e.File.User,
			Filesize: e.File.Filesize,
			MTime:    e.File.MTime,
			Hash:     e.File.Hash,
		})
	case EntryLink:
		if e.Link == nil {
			return nil, fmt.Errorf("manifest: link entry missing LinkRef")
		}
		return json.Marshal(entryWire{
			Type:      EntryLink,
			Path:      e.Link.Path,
			Reference: e.Link.Reference,
		})
	default:
		return nil, fmt.Errorf("manifest: unknown entry type %q", e.Type)
	}
}

// UnmarshalJSON parses the tagged union, dispatching on "type".
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w entryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Type {
	case EntryFile:
		e.Type = EntryFile
		e.File = &FileRef{
			Path:     w.Path,
			User:     w.User,
			Filesize: w.Filesize,
			MTime:    w.MTime,
			Hash:     w.Hash,
		}
	case EntryLink:
		e.Type = EntryLink
		e.Link = &LinkRef{
			Path:      w.Path,
			Reference: w.Reference,
		}
	default:
		return fmt.Errorf("manifest: unknown entry type %q", w.Type)
	}
	return nil
}

// msFloor floors an ISO-8601 timestamp to millisecond precision, the
// granularity spec §4.1's eq_shallow requires.
func msFloor(iso string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, iso)
	if err != nil {
		return 0, fmt.Errorf("manifest: invalid mtime %q: %w", iso, err)
	}
	return int64(math.Floor(float64(t.UnixNano()) / 1e6)), nil
}

// EqShallow reports whether two entries are equal ignoring hash and user:
// same type, path, filesize, and millisecond-floored mtime (spec §4.1).
func EqShallow(a, b *Entry) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Type != b.Type {
		return false
	}
	switch a.Type {
	case EntryFile:
		if a.File.Path != b.File.Path || a.File.Filesize != b.File.Filesize {
			return false
		}
		am, aerr := msFloor(a.File.MTime)
		bm, berr := msFloor(b.File.MTime)
		if aerr != nil || berr != nil {
			return false
		}
		return am == bm
	case EntryLink:
		return a.Link.Path == b.Link.Path && a.Link.Reference == b.Link.Reference
	default:
		return false
	}
}

// EqDeep is EqShallow plus equal hash, requiring both sides to carry a
// real (non-sentinel) hash. Symlinks have no hash, so deep equality for
// links reduces to shallow equality.
func EqDeep(a, b *Entry) bool {
	if !EqShallow(a, b) {
		return false
	}
	if a.Type == EntryLink {
		return true
	}
	if a.File.Hash == UnknownHash || b.File.Hash == UnknownHash {
		return false
	}
	return a.File.Hash == b.File.Hash
}

// canonicalString renders an entry as the tab-delimited line folded into
// entries_hash (spec §4.1), stable across JSON key-order variance.
func canonicalString(e *Entry) string {
	var b strings.Builder
	switch e.Type {
	case EntryFile:
		fmt.Fprintf(&b, "file\t%s\t%s\t%d\t%s\t%s", e.File.Path, e.File.User, e.File.Filesize, e.File.MTime, e.File.Hash)
	case EntryLink:
		fmt.Fprintf(&b, "link\t%s\t%s", e.Link.Path, e.Link.Reference)
	}
	return b.String()
}
