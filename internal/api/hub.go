package api

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"obd-emissions-monitor/internal/models"
)

// Hub broadcasts live ticks to connected websocket clients. A monitoring
// session attaches itself to the hub for the duration of a trip; the live
// endpoint refuses connections while nothing is attached.
type Hub struct {
	log      *zap.Logger
	attached atomic.Bool

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

// NewHub returns an empty hub with no session attached.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// Attach marks a session as feeding the hub.
func (h *Hub) Attach() {
	h.attached.Store(true)
}

// Detach marks the session gone and drops every connected client.
func (h *Hub) Detach() {
	h.attached.Store(false)

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

// Attached reports whether a session currently feeds the hub.
func (h *Hub) Attached() bool {
	return h.attached.Load()
}

// Broadcast sends the tick as JSON to every connected client, dropping
// clients whose writes fail. Safe to call from the session goroutine
// while the server accepts connections concurrently.
func (h *Hub) Broadcast(t models.Tick) {
	payload, err := json.Marshal(t)
	if err != nil {
		h.log.Error("marshal tick", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.log.Debug("drop live client", zap.Error(err))
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		conn.Close()
		delete(h.clients, conn)
	}
}
