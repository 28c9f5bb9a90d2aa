// Package stream pushes tracking results to websocket subscribers so
// external applications can follow target poses and status transitions
// live.
package stream

import (
	"log"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is one connected websocket subscriber
type Client struct {
	// ID uniquely identifies the connection
	ID   string
	conn *websocket.Conn
}

// Hub fans tracking messages out to all connected clients
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

// NewHub returns an initialised Hub.  Run must be called for the hub to
// process connections and messages
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run processes client registration and message broadcast until Stop is
// called.  Run blocks, call it on its own goroutine
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("stream client %s connected, total: %d", client.ID, total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.conn.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("stream client %s disconnected, total: %d", client.ID, total)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				err := client.conn.WriteMessage(websocket.TextMessage, message)
				if err != nil {
					log.Printf("stream client %s write failed: %v", client.ID, err)
					delete(h.clients, client)
					client.conn.Close()
				}
			}
			h.mutex.Unlock()

		case <-h.done:
			h.mutex.Lock()
			for client := range h.clients {
				client.conn.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and closes all client connections
func (h *Hub) Stop() {
	close(h.done)
}

// Register adds a client connection to the hub
func (h *Hub) Register(conn *websocket.Conn) *Client {
	client := &Client{
		ID:   uuid.New().String(),
		conn: conn,
	}

	h.register <- client

	return client
}

// Unregister removes a client connection from the hub
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast queues a message for delivery to every connected client.
// Messages are dropped when the hub's queue is full
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	return len(h.clients)
}
