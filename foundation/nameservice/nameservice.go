// Package nameservice reads the public keys in a profile folder and creates
// a name service lookup from signer fingerprint to account name.
package nameservice

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/openchain/blockchain/foundation/blockchain/signature"
)

// NameService maintains a map of signer fingerprints for name lookup.
type NameService struct {
	accounts map[string]string
}

// New constructs a name service with the accounts from the profile folder.
// Files that don't hold a valid public key are skipped.
func New(root string) (*NameService, error) {
	ns := NameService{
		accounts: make(map[string]string),
	}

	fn := func(fileName string, info fs.FileInfo, err error) error {
		if err != nil {
			return fmt.Errorf("walkdir failure: %w", err)
		}

		if info.IsDir() || filepath.Ext(fileName) != ".der" {
			return nil
		}

		der, err := os.ReadFile(fileName)
		if err != nil {
			return err
		}

		if _, err := signature.ParsePublicKey(der); err != nil {
			return nil
		}

		ns.accounts[signature.Fingerprint(der)] = strings.TrimSuffix(filepath.Base(fileName), ".der")

		return nil
	}

	if err := filepath.Walk(root, fn); err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	return &ns, nil
}

// Lookup returns the name for the specified signer, or the fingerprint
// itself when the signer is unknown.
func (ns *NameService) Lookup(fingerprint string) string {
	name, exists := ns.accounts[fingerprint]
	if !exists {
		return fingerprint
	}
	return name
}

// Copy returns a copy of the map of fingerprints and names.
func (ns *NameService) Copy() map[string]string {
	cpy := make(map[string]string, len(ns.accounts))
	for fingerprint, name := range ns.accounts {
		cpy[fingerprint] = name
	}
	return cpy
}
