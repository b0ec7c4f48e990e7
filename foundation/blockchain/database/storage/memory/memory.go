// Package memory implements the ability to read and write blocks to memory
// using a map keyed by address.
package memory

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/openchain/blockchain/foundation/blockchain/database"
)

// Memory represents the serialization implementation for reading and storing
// blocks in memory. This implements the database.Storage interface.
type Memory struct {
	mu     sync.RWMutex
	blocks map[string][]byte
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{
		blocks: make(map[string][]byte),
	}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Path returns a pseudo location for the address.
func (m *Memory) Path(address string) string {
	return "memory://" + strings.ToLower(address)
}

// Exists reports whether a block is stored for the address.
func (m *Memory) Exists(address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.blocks[strings.ToLower(address)]
	return exists, nil
}

// Write stores a copy of the block bytes. Existing blocks are never replaced.
func (m *Memory) Write(address string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(address)
	if _, exists := m.blocks[key]; exists {
		return database.ErrBlockCollision
	}

	m.blocks[key] = bytes.Clone(data)
	return nil
}

// Open returns a reader over the stored block bytes.
func (m *Memory) Open(address string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, exists := m.blocks[strings.ToLower(address)]
	if !exists {
		return nil, fmt.Errorf("%w: %s", database.ErrBlockNotFound, address)
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// Addresses returns the stored addresses in sorted order.
func (m *Memory) Addresses() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	addresses := make([]string, 0, len(m.blocks))
	for address := range m.blocks {
		addresses = append(addresses, address)
	}
	sort.Strings(addresses)

	return addresses, nil
}
