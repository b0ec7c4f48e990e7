// Package events fans out node activity, such as mined and stored blocks,
// to any number of registered listeners.
package events

import (
	"fmt"
	"sync"
)

// messageBuffer is how many messages a listener can fall behind before
// messages are dropped for it. Websocket writes can be slow.
const messageBuffer = 100

// Events maintains a mapping of listener id to channel.
type Events struct {
	mu        sync.RWMutex
	listeners map[string]chan string
}

// New constructs an events hub.
func New() *Events {
	return &Events{
		listeners: make(map[string]chan string),
	}
}

// Acquire returns the channel for the listener id, registering it first if
// it is new.
func (evt *Events) Acquire(id string) <-chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.listeners[id]; exists {
		return ch
	}

	ch := make(chan string, messageBuffer)
	evt.listeners[id] = ch

	return ch
}

// Release unregisters the listener and closes its channel.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.listeners[id]
	if !exists {
		return fmt.Errorf("listener %q does not exist", id)
	}

	delete(evt.listeners, id)
	close(ch)

	return nil
}

// Send delivers the message to every listener that has room for it. Send
// never blocks on a slow listener.
func (evt *Events) Send(msg string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.listeners {
		select {
		case ch <- msg:
		default:
		}
	}
}

// Shutdown unregisters every listener and closes their channels.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.listeners {
		delete(evt.listeners, id)
		close(ch)
	}
}
