// Package cache keeps recently read and written blocks in memory in front of
// another storage. Stored blocks never change, so entries are never stale.
package cache

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"github.com/openchain/blockchain/foundation/blockchain/database"
)

// Cache represents a database.Storage that serves hits from memory.
type Cache struct {
	next   database.Storage
	blocks *lru.Cache
}

// New constructs a cache holding up to size blocks in front of next.
func New(next database.Storage, size int) (*Cache, error) {
	blocks, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("constructing block cache: %w", err)
	}

	c := Cache{
		next:   next,
		blocks: blocks,
	}

	return &c, nil
}

// Close closes the underlying storage.
func (c *Cache) Close() error {
	c.blocks.Purge()
	return c.next.Close()
}

// Path returns the location of the block in the underlying storage.
func (c *Cache) Path(address string) string {
	return c.next.Path(address)
}

// Exists reports whether the block is cached or stored.
func (c *Cache) Exists(address string) (bool, error) {
	if c.blocks.Contains(strings.ToLower(address)) {
		return true, nil
	}
	return c.next.Exists(address)
}

// Write stores the block and caches it once the write succeeded.
func (c *Cache) Write(address string, data []byte) error {
	if err := c.next.Write(address, data); err != nil {
		return err
	}

	c.blocks.Add(strings.ToLower(address), bytes.Clone(data))

	return nil
}

// Open returns the cached block or reads it through from the underlying
// storage.
func (c *Cache) Open(address string) (io.ReadCloser, error) {
	key := strings.ToLower(address)

	if v, ok := c.blocks.Get(key); ok {
		return io.NopCloser(bytes.NewReader(v.([]byte))), nil
	}

	rc, err := c.next.Open(address)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}

	c.blocks.Add(key, data)

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Addresses returns the addresses of the underlying storage.
func (c *Cache) Addresses() ([]string, error) {
	return c.next.Addresses()
}

// Len returns the number of cached blocks.
func (c *Cache) Len() int {
	return c.blocks.Len()
}
