package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/HRDAG/dsg/internal/dsgerr"
	"github.com/HRDAG/dsg/internal/lifecycle"
	"github.com/HRDAG/dsg/internal/lock"
	"github.com/HRDAG/dsg/internal/remotefs/posixfs"
	"github.com/HRDAG/dsg/internal/remotefs/zfsfs"
	"github.com/HRDAG/dsg/internal/repocfg"
	"github.com/HRDAG/dsg/internal/transport"
)

// sshSigner is golang.org/x/crypto/ssh.Signer, aliased so callers outside
// this package don't need the crypto/ssh import just to pass one along.
type sshSigner = ssh.Signer

// remoteMountRoot resolves the absolute path this host sees the
// repository's backend at: MountBase/<Name> for both backends, since
// zfsfs.Begin/Commit always "zfs set mountpoint=" to exactly that path
// regardless of the pool's own default mountpoint. ssh.path may lead
// with "~" for a localhost backend rooted under an operator's home
// directory; expandHome resolves it against this host, which is only
// correct when the backend is actually this machine.
func remoteMountRoot(cfg *repocfg.Config) string {
	return filepath.Join(expandHome(cfg.SSH.Path), cfg.Name)
}

// expandHome resolves a leading "~" against the current user's home
// directory, leaving path untouched if that fails or doesn't apply.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// isLocalHost reports whether host names the machine dsg is running on,
// so sync/clone/init against a repository on this box skip SSH/SFTP
// entirely and move bytes with a plain file copy.
func isLocalHost(host string) bool {
	if host == "" || host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	if name, err := os.Hostname(); err == nil && name == host {
		return true
	}
	return false
}

// fileLockBackend implements lock.Backend directly against a local
// path, used for the lock record that lives at <mount root>/.dsg/ on
// whichever host can reach it as a filesystem (spec §4.10: the
// distributed lock's storage is just files, not a dedicated service).
type fileLockBackend struct {
	root string
}

func (b *fileLockBackend) abs(relPath string) string { return filepath.Join(b.root, relPath) }

func (b *fileLockBackend) FileExists(ctx context.Context, relPath string) (bool, error) {
	_, err := os.Stat(b.abs(relPath))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (b *fileLockBackend) ReadFile(ctx context.Context, relPath string) ([]byte, error) {
	return os.ReadFile(b.abs(relPath))
}

func (b *fileLockBackend) WriteFile(ctx context.Context, relPath string, data []byte) error {
	path := b.abs(relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// resolveRemote builds the RemoteFilesystem, Transport, and lock.Backend
// one lifecycle.Repo needs from a loaded project config, per spec §4.7-
// §4.10. Every backend here manipulates the mount root via direct os
// calls; the SSH transport's job is solely moving declared byte streams
// into that same path over SFTP (spec §4.9 separates content transport
// from staging/commit) — so a non-local ssh host's mount root must
// already be reachable on this machine (e.g. sshfs/NFS), exactly as the
// ZFS/POSIX backends assume when they call os.Rename/os.MkdirAll
// directly rather than shelling a remote command.
func resolveRemote(cfg *repocfg.Config, localRoot string, signer sshSigner) (lifecycle.RemoteFilesystem, transport.Transport, lock.Backend, error) {
	switch cfg.Transport {
	case repocfg.TransportSSH:
		if cfg.SSH == nil {
			return nil, nil, nil, dsgerr.New(dsgerr.KindConfig, "cli: transport ssh requires an ssh: section")
		}

		var remotefs lifecycle.RemoteFilesystem
		switch cfg.SSH.Type {
		case repocfg.BackendZFS:
			remotefs = zfsfs.New(cfg.SSH.ZFSPool(), cfg.Name, expandHome(cfg.SSH.Path), nil)
		case repocfg.BackendXFS:
			remotefs = posixfs.New(remoteMountRoot(cfg))
		default:
			return nil, nil, nil, dsgerr.New(dsgerr.KindConfig, "cli: ssh.type must be one of zfs, xfs")
		}

		var tr transport.Transport
		if isLocalHost(cfg.SSH.Host) {
			tr = transport.NewLocalhost(localRoot)
		} else {
			if signer == nil {
				return nil, nil, nil, dsgerr.New(dsgerr.KindAuthentication,
					"cli: no SSH identity available for "+cfg.SSH.Host).
					WithHint("place a key at ~/.ssh/id_ed25519 or ~/.ssh/id_rsa")
			}
			tr = transport.NewSSH(transport.SSHConfig{
				Host:       cfg.SSH.Host,
				User:       sshUsername(),
				Signer:     signer,
				StagingDir: filepath.Join(localRoot, ".dsg", "tmp"),
			})
		}

		return remotefs, tr, &fileLockBackend{root: remoteMountRoot(cfg)}, nil

	case repocfg.TransportRclone, repocfg.TransportIPFS:
		return nil, nil, nil, dsgerr.New(dsgerr.KindNotSupported,
			fmt.Sprintf("cli: transport %q is not yet implemented", cfg.Transport)).
			WithHint("use transport: ssh")
	default:
		return nil, nil, nil, dsgerr.New(dsgerr.KindConfig, "cli: unknown transport "+string(cfg.Transport))
	}
}

func sshUsername() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "dsg"
}
