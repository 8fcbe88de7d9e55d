// Package repocfg parses a repository's .dsgconfig.yml (spec §6): the
// transport selection, the ssh/zfs or ssh/xfs backend it names, and the
// project's data_dirs/ignore rules that scope what the scanner considers
// part of the repository.
package repocfg

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/HRDAG/dsg/internal/scanner"
)

// Transport enumerates the transports a repository may declare.
type Transport string

const (
	TransportSSH    Transport = "ssh"
	TransportRclone Transport = "rclone"
	TransportIPFS   Transport = "ipfs"
)

// BackendType enumerates the remote filesystem backends an ssh transport
// may declare.
type BackendType string

const (
	BackendZFS BackendType = "zfs"
	BackendXFS BackendType = "xfs"
)

// SSHConfig is the ssh-transport sub-object.
type SSHConfig struct {
	Host string      `yaml:"host"`
	Path string      `yaml:"path"`
	Type BackendType `yaml:"type"`
	// Pool names the zpool a zfs-backed repository's dataset lives
	// under; unused for xfs. Optional because most single-purpose
	// storage hosts have exactly one pool.
	Pool string `yaml:"pool,omitempty"`
}

// ZFSPool returns the configured zpool name, defaulting to "dsg" when
// the project config doesn't set one.
func (s *SSHConfig) ZFSPool() string {
	if s.Pool == "" {
		return "dsg"
	}
	return s.Pool
}

// IgnoreRules are the project-level exclusions the scanner applies
// (spec §3): exact basenames, suffixes, and paths to skip.
type IgnoreRules struct {
	Names    []string `yaml:"names,omitempty"`
	Suffixes []string `yaml:"suffixes,omitempty"`
	Paths    []string `yaml:"paths,omitempty"`
}

// ProjectConfig is the project sub-object: which top-level directories
// belong to the repository, and what to ignore within them.
type ProjectConfig struct {
	DataDirs []string    `yaml:"data_dirs"`
	Ignore   IgnoreRules `yaml:"ignore"`
}

// Config is a parsed .dsgconfig.yml.
type Config struct {
	Name      string        `yaml:"name"`
	Transport Transport     `yaml:"transport"`
	SSH       *SSHConfig    `yaml:"ssh,omitempty"`
	Project   ProjectConfig `yaml:"project"`

	Path string `yaml:"-"`
}

// LoadFromFile reads and parses a .dsgconfig.yml from disk.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadFromReader(path, f)
}

// LoadFromReader parses a .dsgconfig.yml from an already-open reader.
func LoadFromReader(path string, r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("repocfg: parse %s: %w", path, err)
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants spec §6 requires of a project config.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("repocfg: %s: name is required", c.Path)
	}

	switch c.Transport {
	case TransportSSH, TransportRclone, TransportIPFS:
	default:
		return fmt.Errorf("repocfg: %s: transport %q must be one of ssh, rclone, ipfs", c.Path, c.Transport)
	}

	if c.Transport == TransportSSH {
		if c.SSH == nil {
			return fmt.Errorf("repocfg: %s: transport ssh requires an ssh: section", c.Path)
		}
		if c.SSH.Host == "" || c.SSH.Path == "" {
			return fmt.Errorf("repocfg: %s: ssh.host and ssh.path are required", c.Path)
		}
		switch c.SSH.Type {
		case BackendZFS, BackendXFS:
		default:
			return fmt.Errorf("repocfg: %s: ssh.type %q must be one of zfs, xfs", c.Path, c.SSH.Type)
		}
	}

	if len(c.Project.DataDirs) == 0 {
		return fmt.Errorf("repocfg: %s: project.data_dirs must list at least one directory", c.Path)
	}

	return nil
}

// Save writes the config back to its Path as 2-space-indented YAML,
// matching the teacher's aclspec.RuleSet.Save encoder configuration.
func (c *Config) Save() error {
	f, err := os.Create(c.Path)
	if err != nil {
		return fmt.Errorf("repocfg: create %s: %w", c.Path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(c)
}

// ScannerConfig builds the scanner.Config this project's ignore rules
// and data_dirs imply, for the given user and scan options.
func (c *Config) ScannerConfig(user string, hashContent, normalizePaths bool) scanner.Config {
	return scanner.Config{
		DataDirs:        c.Project.DataDirs,
		IgnoredNames:    c.Project.Ignore.Names,
		IgnoredSuffixes: c.Project.Ignore.Suffixes,
		IgnoredPaths:    c.Project.Ignore.Paths,
		User:            user,
		HashContent:     hashContent,
		NormalizePaths:  normalizePaths,
	}
}

// InDataDir reports whether a repository-relative path's top-level
// component is one of Project.DataDirs (spec §3: "files outside any
// listed top-level are ignored").
func (c *Config) InDataDir(relPath string) bool {
	top := relPath
	for i, r := range relPath {
		if r == '/' {
			top = relPath[:i]
			break
		}
	}
	for _, d := range c.Project.DataDirs {
		if d == top {
			return true
		}
	}
	return false
}
