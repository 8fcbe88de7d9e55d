// Package scanner walks a working directory and produces a manifest of
// the files and symlinks dsg considers "inside" the repository, applying
// ignore rules and NFC path normalization (spec §4.2).
package scanner

import "github.com/bmatcuk/doublestar/v4"

// Config declares the per-project scan rules from spec §4.2 /
// .dsgconfig.yml's project.ignore block.
type Config struct {
	DataDirs       []string
	IgnoredNames   []string
	IgnoredSuffixes []string
	IgnoredPaths   []string
	User           string
	HashContent    bool
	NormalizePaths bool
}

// alwaysIgnoredDirs lists directory names pruned unconditionally,
// regardless of project configuration (spec §4.2).
var alwaysIgnoredDirs = map[string]bool{
	".dsg":        true,
	".git":        true,
	".snap":       true,
	".zfs":        true,
	"HEAD":        true,
	"lost+found":  true,
	"__pycache__": true,
}

func (c *Config) isDataDir(name string) bool {
	for _, d := range c.DataDirs {
		if d == name {
			return true
		}
	}
	return false
}

func (c *Config) nameIgnored(name string) bool {
	for _, n := range c.IgnoredNames {
		if n == name {
			return true
		}
	}
	return false
}

func (c *Config) suffixIgnored(name string) bool {
	for _, s := range c.IgnoredSuffixes {
		if len(name) >= len(s) && name[len(name)-len(s):] == s {
			return true
		}
	}
	return false
}

func (c *Config) pathIgnored(relPath string) bool {
	for _, p := range c.IgnoredPaths {
		if p == relPath {
			return true
		}
		if ok, _ := doublestar.Match(p, relPath); ok {
			return true
		}
	}
	return false
}
