package repocfg

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
name: my-project
transport: ssh
ssh:
  host: repo.example.org
  path: /data/my-project
  type: zfs
project:
  data_dirs: [input, output, frozen]
  ignore:
    names: [.DS_Store]
    suffixes: [.tmp]
    paths: ["output/scratch/**"]
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader("test.yml", strings.NewReader(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "my-project", cfg.Name)
	assert.Equal(t, TransportSSH, cfg.Transport)
	require.NotNil(t, cfg.SSH)
	assert.Equal(t, "repo.example.org", cfg.SSH.Host)
	assert.Equal(t, BackendZFS, cfg.SSH.Type)
	assert.Equal(t, []string{"input", "output", "frozen"}, cfg.Project.DataDirs)
}

func TestValidateRejectsBadTransport(t *testing.T) {
	cfg := &Config{Name: "x", Transport: "ftp", Project: ProjectConfig{DataDirs: []string{"input"}}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsSSHWithoutSubObject(t *testing.T) {
	cfg := &Config{Name: "x", Transport: TransportSSH, Project: ProjectConfig{DataDirs: []string{"input"}}}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsMissingDataDirs(t *testing.T) {
	cfg := &Config{Name: "x", Transport: TransportRclone}
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestInDataDir(t *testing.T) {
	cfg := &Config{Project: ProjectConfig{DataDirs: []string{"input", "output"}}}
	assert.True(t, cfg.InDataDir("input/a/b.csv"))
	assert.True(t, cfg.InDataDir("output"))
	assert.False(t, cfg.InDataDir("scratch/a.csv"))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, ".dsgconfig.yml")

	cfg := &Config{
		Name: "roundtrip", Transport: TransportRclone,
		Project: ProjectConfig{DataDirs: []string{"input"}},
		Path:    path,
	}
	require.NoError(t, cfg.Save())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Name, loaded.Name)
	assert.Equal(t, cfg.Transport, loaded.Transport)
}

func TestScannerConfigTranslatesIgnoreRules(t *testing.T) {
	cfg, err := LoadFromReader("test.yml", strings.NewReader(validYAML))
	require.NoError(t, err)

	sc := cfg.ScannerConfig("alice@example.com", true, true)
	assert.Equal(t, []string{".DS_Store"}, sc.IgnoredNames)
	assert.Equal(t, []string{".tmp"}, sc.IgnoredSuffixes)
	assert.Equal(t, "alice@example.com", sc.User)
}
