package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/edukinara/happybar-sub000/internal/counting"
)

// AppStateHandler receives app state reports from connected devices
type AppStateHandler func(state string)

// Hub maintains the set of active clients and fans engine events out to them
type Hub struct {
	// Registered clients map: DeviceID -> Client
	clients map[string]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	onAppState AppStateHandler
	log        *zap.Logger

	// Mutex for thread-safe access to clients map
	mu sync.RWMutex
}

// NewHub creates a new Hub instance
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		clients:    make(map[string]*Client),
		log:        log.Named("ws"),
	}
}

// OnAppState installs the handler for APP_STATE messages
func (h *Hub) OnAppState(fn AppStateHandler) {
	h.mu.Lock()
	h.onAppState = fn
	h.mu.Unlock()
}

func (h *Hub) appStateHandler() AppStateHandler {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.onAppState
}

// Run starts the hub's main loop; it returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if client.closed {
				// replaced by a newer connection of the same device
				h.mu.Unlock()
				continue
			}
			// a client that identifies itself is re-keyed, not duplicated
			for id, c := range h.clients {
				if c == client && id != client.DeviceID {
					delete(h.clients, id)
				}
			}
			if old, ok := h.clients[client.DeviceID]; ok && old != client {
				old.closeLocked()
			}
			h.clients[client.DeviceID] = client
			h.mu.Unlock()
			h.log.Debug("device connected", zap.String("device_id", client.DeviceID))

		case client := <-h.unregister:
			h.mu.Lock()
			if c, ok := h.clients[client.DeviceID]; ok && c == client {
				delete(h.clients, client.DeviceID)
				client.closeLocked()
				h.log.Debug("device disconnected", zap.String("device_id", client.DeviceID))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				select {
				case c.send <- message:
				default:
					// slow client; it will catch up on the next rehydrate
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				c.closeLocked()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// closeLocked closes the client's send channel once; h.mu must be held
func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// enqueue hands c to the run loop unless it has stopped
func (h *Hub) enqueue(ch chan *Client, c *Client) bool {
	select {
	case ch <- c:
		return true
	case <-h.done:
		return false
	}
}

// Publish implements counting.Notifier. Events are dropped when the
// broadcast buffer is full.
func (h *Hub) Publish(ev counting.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("failed to marshal event", zap.String("type", string(ev.Type)), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("event dropped, broadcast buffer full", zap.String("type", string(ev.Type)))
	}
}

// SendToDevice sends a message to a specific device
func (h *Hub) SendToDevice(deviceID string, message interface{}) bool {
	jsonMsg, err := json.Marshal(message)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return false
	}

	// Run closes send channels under the write lock
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[deviceID]
	if !ok || client.closed {
		return false
	}

	select {
	case client.send <- jsonMsg:
		return true
	default:
		// Buffer full or client dead
		return false
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

var _ counting.Notifier = (*Hub)(nil)
