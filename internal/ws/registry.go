// Package ws carries the live push channel: a websocket endpoint plus a
// registry of at most one open connection per user. Delivery through it is a
// latency optimization only; the durable notification row is the guarantee.
package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/peedutronix/credit-keeper/internal/metrics"
)

const writeWait = 5 * time.Second

type client struct {
	connID string
	conn   *websocket.Conn
	mu     sync.Mutex // serializes writes to conn
}

func (c *client) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(messageType, data)
}

// Registry maps a user identity to its single live channel.
// Registering again for the same user replaces and closes the old channel.
type Registry struct {
	mu      sync.RWMutex
	clients map[int]*client
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[int]*client)}
}

// Register installs conn as the user's channel and returns a connection id
// used to unregister exactly this connection later.
func (reg *Registry) Register(userID int, conn *websocket.Conn) string {
	c := &client{connID: uuid.NewString(), conn: conn}

	reg.mu.Lock()
	old := reg.clients[userID]
	reg.clients[userID] = c
	reg.mu.Unlock()

	if old != nil {
		old.conn.Close()
	} else {
		metrics.WSConnections.Inc()
	}

	log.Printf("[WS] User %d connected (conn %s)", userID, c.connID)
	return c.connID
}

// Unregister drops the user's channel if it is still the one identified by
// connID. A replaced connection's deferred unregister must not evict its
// successor.
func (reg *Registry) Unregister(userID int, connID string) {
	reg.mu.Lock()
	c, ok := reg.clients[userID]
	if ok && c.connID == connID {
		delete(reg.clients, userID)
	} else {
		ok = false
	}
	reg.mu.Unlock()

	if ok {
		c.conn.Close()
		metrics.WSConnections.Dec()
		log.Printf("[WS] User %d disconnected (conn %s)", userID, connID)
	}
}

// Send makes one bounded delivery attempt to the user's channel. A missing or
// dead channel returns false; callers treat that as routine.
func (reg *Registry) Send(userID int, payload any) bool {
	reg.mu.RLock()
	c, ok := reg.clients[userID]
	reg.mu.RUnlock()
	if !ok {
		return false
	}

	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[WS] Failed to marshal payload for user %d: %v", userID, err)
		return false
	}

	if err := c.write(websocket.TextMessage, data); err != nil {
		log.Printf("[WS] Send to user %d failed, dropping channel: %v", userID, err)
		reg.Unregister(userID, c.connID)
		return false
	}
	return true
}
