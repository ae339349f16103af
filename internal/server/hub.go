package server

import (
	"context"
	"sync"

	"github.com/root4loot/goutils/log"
	"github.com/root4loot/thumbnailer/internal/session"
)

// Message is what websocket clients receive.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Hub fans session snapshots out to connected websocket clients.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan session.Snapshot
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan session.Snapshot, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run dispatches until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	log.Debug("WebSocket hub started")
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Debugf("Client registered (%d connected)", h.ClientCount())

		case client := <-h.unregister:
			h.remove(client)
			log.Debugf("Client unregistered (%d connected)", h.ClientCount())

		case snapshot := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- Message{Type: "session", Data: snapshot}:
				default:
					close(client.send)
					delete(h.clients, client)
					log.Warn("Client channel full, disconnected")
				}
			}
			h.mu.Unlock()

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues snapshot for every client. It never blocks; a snapshot is
// dropped when the queue is full.
func (h *Hub) Broadcast(snapshot session.Snapshot) {
	select {
	case h.broadcast <- snapshot:
	default:
		log.Warn("Broadcast channel full, dropping snapshot")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
