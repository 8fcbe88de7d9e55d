package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"
)

const hashChunkSize = 8 * 1024

// CreateEntry stats pathOnDisk and returns the ManifestEntry recorded
// under relPath: a FileRef with its content hashed via xxh3_64, or a
// LinkRef carrying the raw (unfollowed) symlink target string. relPath,
// and for symlinks the target resolved against relPath's directory, are
// rejected if absolute or escaping the repository. basePath is not
// consulted.
func CreateEntry(pathOnDisk, basePath, relPath, user string, hashContent bool) (*Entry, error) {
	if strings.HasPrefix(relPath, "/") {
		return nil, fmt.Errorf("manifest: path %q must not be absolute", relPath)
	}
	for _, seg := range strings.Split(relPath, "/") {
		if seg == ".." {
			return nil, fmt.Errorf("manifest: path %q must not contain '..'", relPath)
		}
	}

	info, err := os.Lstat(pathOnDisk)
	if err != nil {
		return nil, fmt.Errorf("manifest: stat %s: %w", pathOnDisk, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(pathOnDisk)
		if err != nil {
			return nil, fmt.Errorf("manifest: readlink %s: %w", pathOnDisk, err)
		}
		if filepath.IsAbs(target) {
			return nil, fmt.Errorf("manifest: link %q has absolute target %q", relPath, target)
		}
		resolved := filepath.Join(filepath.Dir(relPath), filepath.ToSlash(target))
		resolved = filepath.ToSlash(filepath.Clean(resolved))
		if resolved == ".." || strings.HasPrefix(resolved, "../") {
			return nil, fmt.Errorf("manifest: link %q target %q escapes repository", relPath, target)
		}
		return &Entry{Type: EntryLink, Link: &LinkRef{
			Path:      relPath,
			Reference: filepath.ToSlash(target),
		}}, nil
	}

	hash := UnknownHash
	if hashContent {
		hash, err = hashFile(pathOnDisk)
		if err != nil {
			return nil, fmt.Errorf("manifest: hash %s: %w", pathOnDisk, err)
		}
	}

	return &Entry{Type: EntryFile, File: &FileRef{
		Path:     relPath,
		User:     user,
		Filesize: info.Size(),
		MTime:    info.ModTime().Format(time.RFC3339Nano),
		Hash:     hash,
	}}, nil
}

// hashFile streams file content in hashChunkSize chunks through xxh3_64,
// per spec §4.1.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxh3.New()
	buf := make([]byte, hashChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// NFC normalizes a repository-relative path's components to Unicode
// Normalization Form C (spec §4.2, §9).
func NFC(relPath string) string {
	return norm.NFC.String(relPath)
}

// NeedsNFC reports whether relPath is not already NFC-normalized.
func NeedsNFC(relPath string) bool {
	return !norm.NFC.IsNormalString(relPath)
}
