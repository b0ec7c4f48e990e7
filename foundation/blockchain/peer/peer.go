// Package peer maintains the set of known nodes and sends sealed blocks to
// them. A receiving node validates and stores each block on its own; there
// is no agreement on a chain between nodes.
package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
)

// Peer represents information about a node in the network.
type Peer struct {
	Host string
}

// New contructs a new peer value.
func New(host string) Peer {
	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == host
}

// =============================================================================

// Set represents the data representation to maintain a set of known peers.
type Set struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewSet constructs a new set to manage node peer information.
func NewSet() *Set {
	return &Set{
		set: make(map[Peer]struct{}),
	}
}

// Add adds a new node to the set.
func (ps *Set) Add(peer Peer) bool {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	_, exists := ps.set[peer]
	if !exists {
		ps.set[peer] = struct{}{}
		return true
	}

	return false
}

// Remove removes a node from the set.
func (ps *Set) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, peer)
}

// Copy returns the known peers other than the specified host, sorted
// by host.
func (ps *Set) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	var peers []Peer
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	sort.Slice(peers, func(i, j int) bool { return peers[i].Host < peers[j].Host })

	return peers
}

// =============================================================================

// ShareStatus is what a node answers when it receives a block.
type ShareStatus struct {
	Status  string `json:"status"`
	Address string `json:"address"`
}

// Client sends blocks to peers.
type Client struct {
	BaseURL string // Format string with a %s for the host, like "http://%s/v1".
	HTTP    *http.Client
}

// SendBlock posts the serialized block to the peer.
func (c Client) SendBlock(ctx context.Context, peer Peer, data []byte) (ShareStatus, error) {
	url := fmt.Sprintf(c.BaseURL, peer.Host) + "/blocks"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return ShareStatus{}, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return ShareStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, err := io.ReadAll(resp.Body)
		if err != nil {
			return ShareStatus{}, err
		}
		return ShareStatus{}, errors.New(string(msg))
	}

	var status ShareStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return ShareStatus{}, err
	}

	return status, nil
}
