// Package index maintains a queryable index of stored blocks in badger. The
// block files stay the source of truth; the index can always be rebuilt
// from them.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v3"
	"github.com/openchain/blockchain/foundation/blockchain/database"
)

// ErrNotFound is returned when a block is not in the index.
var ErrNotFound = errors.New("block not indexed")

// Key prefixes used in the index.
const (
	blockPrefix  = "blk:"
	signerPrefix = "sig:"
)

// Record represents what is indexed for each block.
type Record struct {
	Address     string `json:"address"`
	Signer      string `json:"signer"`
	TimeStamp   string `json:"timestamp"`
	Nonce       uint64 `json:"nonce"`
	TotalSize   uint64 `json:"total_size"`
	PayloadSize int    `json:"payload_size"`
}

// Index is a badger backed implementation of the database.Indexer interface.
type Index struct {
	db *badger.DB
}

// Open opens the index stored in the directory. An empty directory keeps
// the index in memory.
func Open(dir string) (*Index, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the index.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// InsertBlock records the block. Inserting the same block again leaves the
// index unchanged.
func (idx *Index) InsertBlock(block database.Block) error {
	address, err := block.Address()
	if err != nil {
		return err
	}

	rec := Record{
		Address:     address,
		Signer:      block.Signer(),
		TimeStamp:   block.Header.TimeStamp,
		Nonce:       block.Header.Nonce,
		TotalSize:   block.Header.TotalSize,
		PayloadSize: len(block.Payload),
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return idx.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(blockPrefix+address), data); err != nil {
			return err
		}

		return txn.Set([]byte(signerPrefix+rec.Signer+":"+address), []byte{})
	})
}

// Lookup returns the record for the address.
func (idx *Index) Lookup(address string) (Record, error) {
	var rec Record

	err := idx.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(blockPrefix + address))
		if err != nil {
			return err
		}

		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, address)
	}
	if err != nil {
		return Record{}, err
	}

	return rec, nil
}

// List returns every indexed block ordered by timestamp then address.
func (idx *Index) List() ([]Record, error) {
	var recs []Record

	err := idx.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(blockPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec Record
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			recs = append(recs, rec)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sortRecords(recs)
	return recs, nil
}

// BySigner returns the blocks signed by the key with the fingerprint.
func (idx *Index) BySigner(signer string) ([]Record, error) {
	var addresses []string

	err := idx.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(signerPrefix + signer + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			addresses = append(addresses, string(it.Item().Key()[len(prefix):]))
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	recs := make([]Record, 0, len(addresses))
	for _, address := range addresses {
		rec, err := idx.Lookup(address)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	sortRecords(recs)
	return recs, nil
}

// sortRecords orders records by timestamp, then address.
func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].TimeStamp != recs[j].TimeStamp {
			return recs[i].TimeStamp < recs[j].TimeStamp
		}
		return recs[i].Address < recs[j].Address
	})
}
