// Package database handles the lower level support for blocks: the binary
// layout and address of a block, the proof of work that seals it, and the
// content addressed store that persists it.
package database

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/multierr"
)

// Set of error variables for the block store.
var (
	ErrBlockCollision = errors.New("block already exists")
	ErrBlockNotFound  = errors.New("block not found")
	ErrInvalidAddress = errors.New("invalid block address")
)

// zeroAddress is an address no real block hashes to.
var zeroAddress = strings.Repeat("0", AddressLength)

// Storage interface represents the behavior required to be implemented by
// any package providing support for storing and reading blocks by address.
type Storage interface {
	Path(address string) string
	Exists(address string) (bool, error)
	Write(address string, data []byte) error
	Open(address string) (io.ReadCloser, error)
	Addresses() ([]string, error)
	Close() error
}

// Indexer interface represents the behavior required by a secondary index
// that is told about every block before it is written. Blocks handed to the
// indexer have already been mined or validated.
type Indexer interface {
	InsertBlock(block Block) error
}

// =============================================================================

// Config represents the settings for a block database.
type Config struct {
	Storage   Storage
	Indexer   Indexer
	EvHandler func(v string, args ...any)
}

// Database persists and loads blocks keyed by their address. Stored blocks
// are never rewritten.
type Database struct {
	storage   Storage
	indexer   Indexer
	evHandler func(v string, args ...any)
}

// New constructs a block database over the storage.
func New(cfg Config) (*Database, error) {
	if cfg.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if cfg.EvHandler == nil {
		cfg.EvHandler = func(v string, args ...any) {}
	}

	db := Database{
		storage:   cfg.Storage,
		indexer:   cfg.Indexer,
		evHandler: cfg.EvHandler,
	}

	return &db, nil
}

// Close closes the underlying storage.
func (db *Database) Close() error {
	return db.storage.Close()
}

// PathFor returns the location the block is stored at.
func (db *Database) PathFor(block Block) (string, error) {
	address, err := block.Address()
	if err != nil {
		return "", err
	}

	return db.storage.Path(address), nil
}

// Save writes the block under its address. If a block already exists at
// that address the content is identical by construction, so the call is a
// no-op reported as ErrBlockCollision.
func (db *Database) Save(block Block) (string, error) {
	data, err := block.Encode()
	if err != nil {
		return "", err
	}

	address, err := block.Address()
	if err != nil {
		return "", err
	}

	exists, err := db.storage.Exists(address)
	if err != nil {
		return "", fmt.Errorf("checking block %s: %w", address, err)
	}
	if exists {
		db.evHandler("database: Save: block[%s] already exists", address)
		return address, ErrBlockCollision
	}

	if db.indexer != nil {
		if err := db.indexer.InsertBlock(block); err != nil {
			return "", fmt.Errorf("indexing block %s: %w", address, err)
		}
	}

	if err := db.storage.Write(address, data); err != nil {
		if errors.Is(err, ErrBlockCollision) {
			db.evHandler("database: Save: block[%s] already exists", address)
			return address, ErrBlockCollision
		}
		return "", fmt.Errorf("writing block %s: %w", address, err)
	}

	db.evHandler("database: Save: block[%s] size[%d] written", address, block.Header.TotalSize)

	return address, nil
}

// Load reads the block stored at the address.
func (db *Database) Load(address string) (Block, error) {
	if err := CheckAddress(address); err != nil {
		return Block{}, err
	}

	rc, err := db.storage.Open(address)
	if err != nil {
		return Block{}, err
	}
	defer rc.Close()

	block, err := ReadBlock(rc)
	if err != nil {
		return Block{}, fmt.Errorf("reading block %s: %w", address, err)
	}

	return block, nil
}

// CheckAddress makes sure the address is a full length hex block address
// before it is used to name anything in storage.
func CheckAddress(address string) error {
	if len(address) != AddressLength {
		return fmt.Errorf("%w: %d characters, need %d", ErrInvalidAddress, len(address), AddressLength)
	}
	if _, err := hex.DecodeString(address); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	return nil
}

// StatusCheck returns nil if the storage can be reached.
func (db *Database) StatusCheck() error {
	if _, err := db.storage.Exists(zeroAddress); err != nil {
		return fmt.Errorf("storage unreachable: %w", err)
	}
	return nil
}

// Addresses returns the address of every stored block.
func (db *Database) Addresses() ([]string, error) {
	return db.storage.Addresses()
}

// Reindex hands every stored block to the indexer again. This rebuilds a
// lost or new index from the block files. Blocks that fail to load or index
// are skipped and their errors combined, so one bad file does not hide the
// rest of the store.
func (db *Database) Reindex() (int, error) {
	if db.indexer == nil {
		return 0, errors.New("no indexer configured")
	}

	addresses, err := db.storage.Addresses()
	if err != nil {
		return 0, err
	}

	var indexed int
	var errs error
	for _, address := range addresses {
		block, err := db.Load(address)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		if err := db.indexer.InsertBlock(block); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("indexing block %s: %w", address, err))
			continue
		}

		indexed++
	}

	return indexed, errs
}
