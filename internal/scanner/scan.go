package scanner

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/HRDAG/dsg/internal/manifest"
)

// Result is the output of a scan: the Manifest built, the list of
// repo-relative paths that were ignored, and any non-fatal warnings
// (spec §4.2: "Scan never aborts on per-file errors").
type Result struct {
	Manifest *manifest.Manifest
	Ignored  []string
	Warnings []string
}

// Scan walks root, applying cfg's ignore rules, and returns a Manifest of
// the kept files and symlinks.
func Scan(root string, cfg *Config) (*Result, error) {
	res := &Result{Manifest: manifest.New()}

	topEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scanner: read root %s: %w", root, err)
	}

	for _, top := range topEntries {
		name := top.Name()
		if !top.IsDir() {
			continue // only declared top-level data_dirs are scanned
		}
		if !cfg.isDataDir(name) {
			res.Ignored = append(res.Ignored, name)
			continue
		}
		if err := walkDataDir(filepath.Join(root, name), name, cfg, res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func walkDataDir(absDir, relDir string, cfg *Config, res *Result) error {
	return filepath.WalkDir(absDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("scanner: walk error at %s: %v", p, err))
			return nil
		}
		rel := relFromRoot(absDir, relDir, p)

		base := d.Name()
		if d.IsDir() {
			if shouldPruneDir(base) {
				res.Ignored = append(res.Ignored, rel)
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(base, ".") {
			res.Ignored = append(res.Ignored, rel)
			return nil
		}
		if cfg.nameIgnored(base) || cfg.suffixIgnored(base) || cfg.pathIgnored(rel) {
			res.Ignored = append(res.Ignored, rel)
			return nil
		}

		finalRel := rel
		if cfg.NormalizePaths && manifest.NeedsNFC(rel) {
			normalized := manifest.NFC(rel)
			if renamed, err := tryRenameNFC(p, normalized, relDir); err == nil {
				finalRel = normalized
				p = renamed
			} else {
				res.Warnings = append(res.Warnings, fmt.Sprintf("scanner: could not normalize %q: %v", rel, err))
			}
		}

		e, err := manifest.CreateEntry(p, "", finalRel, cfg.User, cfg.HashContent)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("scanner: skipping %s: %v", finalRel, err))
			return nil
		}
		if err := res.Manifest.Put(e); err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("scanner: skipping %s: %v", finalRel, err))
		}
		return nil
	})
}

func relFromRoot(absDir, relDir, p string) string {
	sub, err := filepath.Rel(absDir, p)
	if err != nil || sub == "." {
		return relDir
	}
	return filepath.ToSlash(filepath.Join(relDir, sub))
}

func shouldPruneDir(name string) bool {
	if prune, listed := alwaysIgnoredDirs[name]; listed {
		return prune
	}
	if name == ".dsg" || name == ".zfs" {
		return true // never descend, but not reported as a generic dotfile ignore
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	return false
}

// tryRenameNFC renames the on-disk entry at p to its NFC-normalized
// sibling path when the parent directory is writable and the
// destination does not already exist (spec §4.2, §9).
func tryRenameNFC(p, normalizedRel, relDir string) (string, error) {
	dir := filepath.Dir(p)
	base := filepath.Base(normalizedRel)
	dest := filepath.Join(dir, base)
	if dest == p {
		return p, nil
	}
	if _, err := os.Stat(dest); err == nil {
		return "", fmt.Errorf("destination %q already exists", dest)
	}
	if err := os.Rename(p, dest); err != nil {
		return "", err
	}
	slog.Debug("scanner: normalized path to NFC", "from", p, "to", dest)
	return dest, nil
}
