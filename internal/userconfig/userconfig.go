// Package userconfig resolves the layered, personal dsg.yml (spec §6):
// system-wide defaults overridden by increasingly user-specific files,
// with system-level files forbidden from carrying personal identity
// fields.
package userconfig

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/HRDAG/dsg/internal/dsgerr"
)

// Config is the merged view of every dsg.yml layer.
type Config struct {
	UserName           string `yaml:"user_name,omitempty"`
	UserID             string `yaml:"user_id,omitempty"`
	BackupOnConflict   *bool  `yaml:"backup_on_conflict,omitempty"`
	DefaultHost        string `yaml:"default_host,omitempty"`
	DefaultProjectPath string `yaml:"default_project_path,omitempty"`

	// Path records the last layer file merged into this Config, for
	// error messages; it is not itself part of any one layer.
	Path string `yaml:"-"`
}

// layer is one file in the precedence chain.
type layer struct {
	path     string
	isSystem bool
}

// personalFields names the fields a system-level layer must not set.
var personalFields = []string{"user_name", "user_id"}

// Layers returns the dsg.yml precedence chain, lowest precedence first:
// /etc/dsg/dsg.yml < ~/.config/dsg/dsg.yml < $XDG_CONFIG_HOME/dsg/dsg.yml
// < $DSG_CONFIG_HOME/dsg.yml. A layer whose path cannot be determined
// (e.g. no home directory) is simply omitted, not an error.
func Layers() []layer {
	var layers []layer
	layers = append(layers, layer{path: "/etc/dsg/dsg.yml", isSystem: true})

	if home, err := os.UserHomeDir(); err == nil {
		layers = append(layers, layer{path: filepath.Join(home, ".config", "dsg", "dsg.yml")})
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		layers = append(layers, layer{path: filepath.Join(xdg, "dsg", "dsg.yml")})
	}
	if dch := os.Getenv("DSG_CONFIG_HOME"); dch != "" {
		layers = append(layers, layer{path: filepath.Join(dch, "dsg.yml")})
	}
	return layers
}

// Load resolves the full precedence chain and returns the merged config.
// Missing layers are skipped silently; a layer that exists but fails to
// parse, or a system layer that sets a personal field, is an error.
func Load() (*Config, error) {
	cfg := &Config{}
	for _, l := range Layers() {
		data, err := os.ReadFile(l.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, dsgerr.Wrap(dsgerr.KindConfig, fmt.Sprintf("read %s", l.path), err)
		}
		if err := cfg.mergeLayer(l.path, l.isSystem, data); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// mergeLayer parses one layer's bytes and overlays its non-zero fields
// onto cfg, rejecting personal fields when isSystem is set.
func (cfg *Config) mergeLayer(path string, isSystem bool, data []byte) error {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return dsgerr.Wrap(dsgerr.KindConfig, fmt.Sprintf("parse %s", path), err)
	}

	if isSystem {
		for _, field := range personalFields {
			if _, present := raw[field]; present {
				return dsgerr.New(dsgerr.KindConfig,
					fmt.Sprintf("%s: system config must not set personal field %q", path, field)).
					WithHint("move user_name/user_id to a user-level dsg.yml")
			}
		}
	}

	var layerCfg Config
	if err := yaml.Unmarshal(data, &layerCfg); err != nil {
		return dsgerr.Wrap(dsgerr.KindConfig, fmt.Sprintf("parse %s", path), err)
	}

	if layerCfg.UserName != "" {
		cfg.UserName = layerCfg.UserName
	}
	if layerCfg.UserID != "" {
		cfg.UserID = layerCfg.UserID
	}
	if layerCfg.BackupOnConflict != nil {
		cfg.BackupOnConflict = layerCfg.BackupOnConflict
	}
	if layerCfg.DefaultHost != "" {
		cfg.DefaultHost = layerCfg.DefaultHost
	}
	if layerCfg.DefaultProjectPath != "" {
		cfg.DefaultProjectPath = layerCfg.DefaultProjectPath
	}
	cfg.Path = path
	return nil
}

// LoadFromReader parses a single dsg.yml layer in isolation, without
// consulting the precedence chain; used by validate-config and tests.
func LoadFromReader(path string, r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := cfg.mergeLayer(path, false, data); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ShouldBackupOnConflict reports the effective backup_on_conflict
// setting, defaulting to true (spec's conflict-resolution flow backs up
// the non-local side unless explicitly disabled).
func (cfg *Config) ShouldBackupOnConflict() bool {
	if cfg.BackupOnConflict == nil {
		return true
	}
	return *cfg.BackupOnConflict
}
