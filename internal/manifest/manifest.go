package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
)

// Metadata carries the per-snapshot bookkeeping fields described in
// spec §3. ProjectConfig is an opaque embedded blob for auditability,
// kept as raw JSON so manifest does not depend on the config package.
type Metadata struct {
	ManifestVersion   string          `json:"manifest_version"`
	SnapshotID        string          `json:"snapshot_id"`
	CreatedAt         string          `json:"created_at"`
	CreatedBy         string          `json:"created_by"`
	EntryCount        int             `json:"entry_count"`
	EntriesHash       string          `json:"entries_hash"`
	SnapshotMessage   string          `json:"snapshot_message"`
	SnapshotPrevious  *string         `json:"snapshot_previous"`
	SnapshotHash      string          `json:"snapshot_hash"`
	SnapshotNotes     string          `json:"snapshot_notes"`
	ProjectConfig     json.RawMessage `json:"project_config,omitempty"`
}

// Manifest is an insertion-ordered path -> Entry mapping plus optional
// Metadata. It is treated as immutable once SnapshotHash has been
// computed into its Metadata.
type Manifest struct {
	order   []string
	entries map[string]*Entry
	Meta    *Metadata
}

// New returns an empty Manifest.
func New() *Manifest {
	return &Manifest{entries: make(map[string]*Entry)}
}

// Put inserts or replaces the entry at its own Path, preserving original
// insertion order on replace (spec invariant: k == e.path).
func (m *Manifest) Put(e *Entry) error {
	p := e.Path()
	if p == "" {
		return fmt.Errorf("manifest: entry has empty path")
	}
	if _, exists := m.entries[p]; !exists {
		m.order = append(m.order, p)
	}
	m.entries[p] = e
	return nil
}

// Get returns the entry at path, or nil if absent.
func (m *Manifest) Get(path string) *Entry {
	return m.entries[path]
}

// Delete removes the entry at path, if present.
func (m *Manifest) Delete(path string) {
	if _, ok := m.entries[path]; !ok {
		return
	}
	delete(m.entries, path)
	for i, p := range m.order {
		if p == path {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.order) }

// Paths returns all paths in insertion order.
func (m *Manifest) Paths() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// SortedPaths returns all paths sorted lexically, used by the merger to
// iterate the union of L/C/R keys deterministically (spec §4.3).
func (m *Manifest) SortedPaths() []string {
	out := m.Paths()
	sort.Strings(out)
	return out
}

// Entries iterates entries in insertion order, calling fn for each.
func (m *Manifest) Entries(fn func(path string, e *Entry)) {
	for _, p := range m.order {
		fn(p, m.entries[p])
	}
}

// EntriesHash folds each entry's canonical tab-delimited stringification,
// in insertion order, into a running xxh3_64 (spec §4.1). Stable across
// JSON round-trips that preserve order.
func (m *Manifest) EntriesHash() string {
	h := xxh3.New()
	for _, p := range m.order {
		h.WriteString(canonicalString(m.entries[p]))
		h.WriteString("\n")
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// ComputeSnapshotHash derives the deterministic hash of
// (entries_hash, message, prev_snapshot_hash) per spec §3.
func ComputeSnapshotHash(entriesHash, message, prevSnapshotHash string) string {
	h := xxh3.New()
	h.WriteString(entriesHash)
	h.WriteString("\x00")
	h.WriteString(message)
	h.WriteString("\x00")
	h.WriteString(prevSnapshotHash)
	return fmt.Sprintf("%016x", h.Sum64())
}

// ComputeSnapshotHash computes and does not store the snapshot hash for
// this manifest's current entries, given a commit message and the parent
// snapshot's hash (empty string for the first snapshot).
func (m *Manifest) ComputeSnapshotHash(message, prevSnapshotHash string) string {
	return ComputeSnapshotHash(m.EntriesHash(), message, prevSnapshotHash)
}

// ValidatePaths checks that every path is relative (no leading "/") and
// has no ".." segment. It does not check NFC normalization or symlink
// targets; link targets are checked by CreateEntry and DropDanglingLinks.
func (m *Manifest) ValidatePaths() error {
	for _, p := range m.order {
		if strings.HasPrefix(p, "/") {
			return fmt.Errorf("manifest: path %q must not be absolute", p)
		}
		if containsDotDot(p) {
			return fmt.Errorf("manifest: path %q escapes repository root", p)
		}
	}
	return nil
}

func containsDotDot(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return true
		}
	}
	return false
}

// DropDanglingLinks removes LinkRef entries whose reference, resolved
// against the link's parent, does not name a FileRef already present in
// this manifest, or which escapes the repository (spec §3 invariant,
// spec §4.2 "dropped with a warning, not an error"). Returns the list of
// dropped paths for the caller to fold into scan warnings.
func (m *Manifest) DropDanglingLinks() []string {
	var dropped []string
	for _, p := range m.Paths() {
		e := m.entries[p]
		if e.Type != EntryLink {
			continue
		}
		resolved := path.Join(path.Dir(e.Link.Path), e.Link.Reference)
		resolved = path.Clean(resolved)
		if strings.HasPrefix(resolved, "..") || strings.HasPrefix(resolved, "/") {
			dropped = append(dropped, p)
			m.Delete(p)
			continue
		}
		target := m.entries[resolved]
		if target == nil || target.Type != EntryFile {
			dropped = append(dropped, p)
			m.Delete(p)
		}
	}
	return dropped
}

// ToFile serializes the manifest to path as pretty JSON. When
// includeMetadata is false, Meta is omitted from the wire format
// (used for content-only comparisons).
func (m *Manifest) ToFile(filePath string, includeMetadata bool) error {
	data, err := m.toJSON(includeMetadata)
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0o644)
}

func (m *Manifest) toJSON(includeMetadata bool) ([]byte, error) {
	doc := wireManifest{Entries: orderedEntries{m: m}}
	if includeMetadata {
		doc.Metadata = m.Meta
	}
	return json.MarshalIndent(doc, "", "  ")
}

// FromFile loads a Manifest from a JSON file produced by ToFile.
func FromFile(filePath string) (*Manifest, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromJSON(data)
}

// FromJSON loads a Manifest from its canonical JSON representation.
func FromJSON(data []byte) (*Manifest, error) {
	var doc wireManifest
	doc.Entries.m = New()
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	m := doc.Entries.m
	m.Meta = doc.Metadata
	return m, nil
}

// wireManifest is the top-level JSON object: {entries, metadata?}.
type wireManifest struct {
	Entries  orderedEntries `json:"entries"`
	Metadata *Metadata      `json:"metadata,omitempty"`
}

// orderedEntries marshals/unmarshals the "entries" object as an
// insertion-ordered path->Entry map, matching spec §3's "insertion-
// ordered mapping" requirement (encoding/json sorts map keys by default,
// so we hand-roll object encoding to preserve order).
type orderedEntries struct {
	m *Manifest
}

func (o orderedEntries) MarshalJSON() ([]byte, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, p := range o.m.Paths() {
		if i > 0 {
			b.WriteByte(',')
		}
		keyBytes, err := json.Marshal(p)
		if err != nil {
			return nil, err
		}
		valBytes, err := json.Marshal(o.m.entries[p])
		if err != nil {
			return nil, err
		}
		b.Write(keyBytes)
		b.WriteByte(':')
		b.Write(valBytes)
	}
	b.WriteByte('}')
	return []byte(b.String()), nil
}

func (o *orderedEntries) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("manifest: expected object for entries")
	}
	if o.m == nil {
		o.m = New()
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("manifest: entries key must be string")
		}
		var e Entry
		if err := dec.Decode(&e); err != nil {
			return fmt.Errorf("manifest: decode entry %q: %w", key, err)
		}
		if err := o.m.Put(&e); err != nil {
			return err
		}
	}
	return nil
}
