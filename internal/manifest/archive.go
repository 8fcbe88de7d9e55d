package manifest

import (
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
)

// WriteArchive gzips the manifest's canonical JSON (with metadata) to
// filePath, matching the `.dsg/archive/sN-sync.json.gz` layout of spec §6.
func (m *Manifest) WriteArchive(filePath string) error {
	data, err := m.toJSON(true)
	if err != nil {
		return err
	}
	f, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("manifest: create archive %s: %w", filePath, err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		return fmt.Errorf("manifest: write archive %s: %w", filePath, err)
	}
	return gw.Close()
}

// ReadArchive loads a manifest from a gzip-compressed archive member.
func ReadArchive(filePath string) (*Manifest, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("manifest: open archive %s: %w", filePath, err)
	}
	defer gr.Close()

	data, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("manifest: read archive %s: %w", filePath, err)
	}
	return FromJSON(data)
}
