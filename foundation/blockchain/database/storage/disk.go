// Package storage handles the lower level support for reading and writing
// blocks to disk.
package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/openchain/blockchain/foundation/blockchain/database"
)

// blockExt is the file extension of a stored block.
const blockExt = ".block"

// Disk represents the serialization implementation for reading and storing
// blocks in their own separate files on disk, named by block address. This
// implements the database.Storage interface.
type Disk struct {
	dbPath string
	legacy bool
}

// NewDisk constructs a Disk value for use. When legacy is true files are
// named with the uppercase, zero byte trimmed form of the address used by
// existing block directories.
func NewDisk(dbPath string, legacy bool) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	return &Disk{dbPath: dbPath, legacy: legacy}, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// Path forms the path to the block with the specified address.
func (d *Disk) Path(address string) string {
	name := strings.ToLower(address)
	if d.legacy {
		name = database.LegacyAddress(name)
	}

	return filepath.Join(d.dbPath, name+blockExt)
}

// Exists reports whether a block file is present for the address.
func (d *Disk) Exists(address string) (bool, error) {
	_, err := os.Stat(d.Path(address))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}

	return false, err
}

// Write stores the block bytes under the address. The data is written to a
// temporary file first and then linked into place, so a block file is
// either absent or complete, and an existing file is never replaced.
func (d *Disk) Write(address string, data []byte) error {
	tmp, err := os.CreateTemp(d.dbPath, ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Link(tmp.Name(), d.Path(address)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return database.ErrBlockCollision
		}
		return err
	}

	return nil
}

// Open returns a reader positioned at the start of the block file.
func (d *Disk) Open(address string) (io.ReadCloser, error) {
	f, err := os.Open(d.Path(address))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", database.ErrBlockNotFound, address)
		}
		return nil, err
	}

	return f, nil
}

// Addresses returns the canonical address of every block file.
func (d *Disk) Addresses() ([]string, error) {
	entries, err := os.ReadDir(d.dbPath)
	if err != nil {
		return nil, err
	}

	var addresses []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != blockExt {
			continue
		}

		address := strings.ToLower(strings.TrimSuffix(name, blockExt))
		if d.legacy {
			address = strings.TrimLeft(address, " ")
		}
		if d.legacy && len(address) < database.AddressLength {
			address = strings.Repeat("0", database.AddressLength-len(address)) + address
		}
		addresses = append(addresses, address)
	}

	return addresses, nil
}
