package cli

import (
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
)

// candidateIdentityFiles lists the private key paths dsg tries, in
// order, for an ssh-transport repository (spec §9 names SSH key auth,
// not a password flow).
func candidateIdentityFiles(home string) []string {
	return []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
}

// loadSigner reads the first usable private key off disk. It returns a
// nil signer (not an error) when none of the candidates exist, so
// callers that never need SSH (localhost repositories) don't pay for a
// missing-key error they'd never hit.
func loadSigner() (sshSigner, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, nil
	}
	for _, path := range candidateIdentityFiles(home) {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, err
		}
		return signer, nil
	}
	return nil, nil
}
