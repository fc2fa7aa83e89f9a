// Package faultfeed streams dispatched fault events to WebSocket
// subscribers. The hub observes the dispatch guard and broadcasts one
// JSON message per fault to every connected client.
package faultfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"faultgate/internal/dispatch"
	"faultgate/internal/infrastructure"
)

// Message is the wire format broadcast for each dispatched fault.
type Message struct {
	Type      string         `json:"type"`
	Event     dispatch.Event `json:"event"`
	Timestamp string         `json:"timestamp"`
}

// Message type constants.
const (
	TypeConnection = "connection"
	TypeFault      = "fault"
)

// Hub maintains the set of active clients and broadcasts fault events
// to them.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu     sync.RWMutex
	logger *slog.Logger

	totalConnections int64
	messagesSent     int64
	messagesDropped  int64

	quit    chan struct{}
	done    chan struct{}
	running bool
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	logger = logger.With(slog.String("component", "faultfeed.hub"))

	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		logger:     logger,
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start starts the hub's main loop.
func (h *Hub) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.mu.Unlock()

	go h.Run()
}

// Run processes register, unregister and broadcast requests until Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			h.logger.Info("fault feed hub shutting down")
			h.disconnectAll()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.totalConnections++
			h.mu.Unlock()

			h.logger.Info("feed client registered",
				slog.Int("total_clients", count),
				slog.String("client_id", client.id),
				slog.String("remote_addr", client.remoteAddr))

			h.greet(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				count := len(h.clients)
				h.mu.Unlock()

				h.logger.Info("feed client unregistered",
					slog.Int("total_clients", count),
					slog.String("client_id", client.id),
					slog.Duration("connection_duration", time.Since(client.connectedAt)))
			} else {
				h.mu.Unlock()
			}

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// greet sends a connection acknowledgement to a newly registered client.
func (h *Hub) greet(client *Client) {
	msg := map[string]any{
		"type": TypeConnection,
		"data": map[string]any{
			"status":    "connected",
			"client_id": client.id,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.send <- jsonData:
	default:
		h.logger.Warn("failed to send connection message, client buffer full",
			slog.String("client_id", client.id))
	}
}

// deliver fans a message out to all clients, dropping ones whose send
// buffer is full.
func (h *Hub) deliver(message []byte) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.send <- message:
			h.mu.Lock()
			h.messagesSent++
			h.mu.Unlock()
		default:
			h.mu.Lock()
			h.messagesDropped++
			close(client.send)
			delete(h.clients, client)
			h.mu.Unlock()

			h.logger.Warn("feed client send buffer full, disconnecting",
				slog.String("client_id", client.id))
		}
	}
}

// Observer returns a dispatch observer that broadcasts every fault
// event to connected clients. Broadcasting never blocks dispatch: when
// the hub's queue is full the event is dropped.
func (h *Hub) Observer() dispatch.Observer {
	return func(ev dispatch.Event) {
		msg := Message{
			Type:      TypeFault,
			Event:     ev,
			Timestamp: ev.Time.Format(time.RFC3339),
		}

		jsonData, err := json.Marshal(msg)
		if err != nil {
			h.logger.Error("failed to marshal fault event",
				slog.String("error", err.Error()),
				slog.String("kind", ev.Kind))
			return
		}

		select {
		case h.broadcast <- jsonData:
		default:
			h.mu.Lock()
			h.messagesDropped++
			h.mu.Unlock()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Stats returns a snapshot of the hub's counters.
func (h *Hub) Stats(ctx context.Context) map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]any{
		"active_clients":    len(h.clients),
		"total_connections": h.totalConnections,
		"messages_sent":     h.messagesSent,
		"messages_dropped":  h.messagesDropped,
	}
}

// disconnectAll closes every client's send channel. Only the Run
// goroutine calls this, so no send can race the close.
func (h *Hub) disconnectAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// Stop gracefully stops the hub and waits for the Run goroutine to
// disconnect all clients.
func (h *Hub) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	h.mu.Unlock()

	close(h.quit)
	<-h.done
}
