package cli

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HRDAG/dsg/internal/remotefs/posixfs"
	"github.com/HRDAG/dsg/internal/remotefs/zfsfs"
	"github.com/HRDAG/dsg/internal/repocfg"
	"github.com/HRDAG/dsg/internal/transport"
)

func testSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromSigner(priv)
	require.NoError(t, err)
	return signer
}

func TestIsLocalHost(t *testing.T) {
	assert.True(t, isLocalHost(""))
	assert.True(t, isLocalHost("localhost"))
	assert.True(t, isLocalHost("127.0.0.1"))
	assert.False(t, isLocalHost("backup.example.org"))

	hostname, err := os.Hostname()
	require.NoError(t, err)
	assert.True(t, isLocalHost(hostname))
}

func TestResolveRemoteZFSOverLocalhost(t *testing.T) {
	cfg := &repocfg.Config{
		Name:      "myproj",
		Transport: repocfg.TransportSSH,
		SSH: &repocfg.SSHConfig{
			Host: "localhost",
			Path: "/pool/mnt",
			Type: repocfg.BackendZFS,
		},
	}

	remotefs, tr, lockBackend, err := resolveRemote(cfg, "/work/myproj", nil)
	require.NoError(t, err)
	assert.IsType(t, &zfsfs.Filesystem{}, remotefs)
	assert.IsType(t, &transport.Localhost{}, tr)

	fb, ok := lockBackend.(*fileLockBackend)
	require.True(t, ok)
	assert.Equal(t, "/pool/mnt/myproj", fb.root)
}

func TestResolveRemoteXFSOverRemoteHostRequiresSigner(t *testing.T) {
	cfg := &repocfg.Config{
		Name:      "myproj",
		Transport: repocfg.TransportSSH,
		SSH: &repocfg.SSHConfig{
			Host: "backup.example.org",
			Path: "/srv/dsg",
			Type: repocfg.BackendXFS,
		},
	}

	_, _, _, err := resolveRemote(cfg, "/work/myproj", nil)
	require.Error(t, err)

	remotefs, tr, _, err := resolveRemote(cfg, "/work/myproj", testSigner(t))
	require.NoError(t, err)
	assert.IsType(t, &posixfs.Filesystem{}, remotefs)
	assert.IsType(t, &transport.SSH{}, tr)
}

func TestResolveRemoteUnsupportedTransport(t *testing.T) {
	cfg := &repocfg.Config{
		Name:      "myproj",
		Transport: repocfg.TransportRclone,
	}
	_, _, _, err := resolveRemote(cfg, "/work/myproj", nil)
	require.Error(t, err)
}
