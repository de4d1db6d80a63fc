// Package hub tracks the set of open client connections and delivers
// serialized events to all of them. Membership in the hub is the only
// authority for "is this client reachable": a connection that fails a send
// is removed, and the failure never propagates to the caller.
package hub

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Conn is the subset of *websocket.Conn the hub needs. Tests substitute
// an in-memory implementation.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one registered connection. Writes are serialized through a
// per-client mutex because gorilla connections do not support concurrent
// writers.
type Client struct {
	conn    Conn
	writeMu sync.Mutex
}

func (c *Client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub is the connection broadcaster.
type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	logger  *logrus.Entry
}

// New creates an empty Hub.
func New(logger *logrus.Entry) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		logger:  logger,
	}
}

// Add registers a connection and returns its client handle.
func (h *Hub) Add(conn Conn) *Client {
	client := &Client{conn: conn}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.WithField("connections", total).Info("Client connected")
	return client
}

// Remove unregisters a connection and closes it.
func (h *Hub) Remove(client *Client) {
	h.mu.Lock()
	_, present := h.clients[client]
	delete(h.clients, client)
	total := len(h.clients)
	h.mu.Unlock()

	if present {
		_ = client.conn.Close()
		h.logger.WithField("connections", total).Info("Client disconnected")
	}
}

// Broadcast sends data to a snapshot of the current connection set. A send
// failure on one connection only causes that connection's removal; the
// broadcast continues to the others and never returns an error.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	snapshot := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		snapshot = append(snapshot, client)
	}
	h.mu.Unlock()

	if len(snapshot) == 0 {
		return
	}

	var failed []*Client
	for _, client := range snapshot {
		if err := client.send(data); err != nil {
			h.logger.WithError(err).Warn("Dropping connection after send failure")
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		h.Remove(client)
	}
}

// Count returns the number of registered connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll removes and closes every connection. Used at shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		_ = client.conn.Close()
	}
}
