package session

import (
	"sync"

	"chat-relay/pkg/logger"
)

// Directory tracks every live session on this instance by connection ID and
// is the single write-side entry point for outbound delivery.
type Directory struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

func NewDirectory() *Directory {
	return &Directory{clients: make(map[string]*Client)}
}

func (d *Directory) add(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[c.id] = c
}

func (d *Directory) remove(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.clients, connID)
}

// Send queues a payload for one connection. A connection whose send buffer
// is full is dropped: a consumer that slow will not catch up, and blocking
// here would stall delivery for the whole room.
func (d *Directory) Send(connID string, payload []byte) {
	d.mu.RLock()
	c := d.clients[connID]
	d.mu.RUnlock()

	if c == nil {
		return
	}
	if !c.enqueue(payload) {
		logger.Warn("Send buffer full for connection %s, dropping connection", connID)
		c.Close()
	}
}

// Count reports the number of live sessions on this instance.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients)
}
