package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/welldanyogia/webrana-confchat/internal/metrics"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeUnreadChanged MessageType = "unread_changed"
	MessageTypePing          MessageType = "ping"
	MessageTypePong          MessageType = "pong"
	MessageTypeError         MessageType = "error"
)

// WSMessage represents a WebSocket message. Hints carry no counts; clients
// re-fetch the unread summary when they receive one.
type WSMessage struct {
	Type    MessageType `json:"type"`
	PaperID string      `json:"paperId,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Hub tracks connected viewers and routes unread_changed hints to them
type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// userID -> set of that user's connections
	byUser map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	hints      chan *hint
	done       chan struct{}

	mu      sync.RWMutex
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// hint targets either explicit users or every admin except one
type hint struct {
	userIDs      []string
	admins       bool
	exceptUserID string
	message      []byte
}

// NewHub creates a new Hub instance
func NewHub(logger *slog.Logger, m *metrics.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		byUser:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		hints:      make(chan *hint, 256),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run starts the hub's main loop and returns when ctx is cancelled
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.clients = make(map[*Client]bool)
			h.byUser = make(map[string]map[*Client]bool)
			h.mu.Unlock()
			h.updateGauge()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if h.byUser[client.userID] == nil {
				h.byUser[client.userID] = make(map[*Client]bool)
			}
			h.byUser[client.userID][client] = true
			h.mu.Unlock()
			h.updateGauge()
			if h.logger != nil {
				h.logger.Debug("client registered", slog.String("user_id", client.userID))
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				if conns := h.byUser[client.userID]; conns != nil {
					delete(conns, client)
					if len(conns) == 0 {
						delete(h.byUser, client.userID)
					}
				}
			}
			h.mu.Unlock()
			h.updateGauge()
			if h.logger != nil {
				h.logger.Debug("client unregistered", slog.String("user_id", client.userID))
			}

		case msg := <-h.hints:
			h.mu.RLock()
			delivered := 0
			for _, client := range h.targets(msg) {
				select {
				case client.send <- msg.message:
					delivered++
				default:
					// Client buffer full, skip
				}
			}
			h.mu.RUnlock()
			if h.metrics != nil && delivered > 0 {
				h.metrics.PushHintsSent.Add(float64(delivered))
			}
		}
	}
}

// targets resolves a hint to connections. Caller holds h.mu.
func (h *Hub) targets(msg *hint) []*Client {
	var out []*Client
	if msg.admins {
		for client := range h.clients {
			if client.admin && client.userID != msg.exceptUserID {
				out = append(out, client)
			}
		}
		return out
	}
	for _, id := range msg.userIDs {
		for client := range h.byUser[id] {
			out = append(out, client)
		}
	}
	return out
}

func (h *Hub) updateGauge() {
	if h.metrics == nil {
		return
	}
	h.metrics.WebsocketClients.Set(float64(h.ClientCount()))
}

// ClientCount returns the number of registered connections
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Register adds a client to the hub. It reports false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// NotifyUsers tells the given users their unread summary may have changed
func (h *Hub) NotifyUsers(paperID string, userIDs ...string) {
	if len(userIDs) == 0 {
		return
	}
	h.enqueue(&hint{userIDs: userIDs}, paperID)
}

// NotifyAdmins tells every connected admin except exceptUserID that their
// unread summary may have changed
func (h *Hub) NotifyAdmins(paperID, exceptUserID string) {
	h.enqueue(&hint{admins: true, exceptUserID: exceptUserID}, paperID)
}

func (h *Hub) enqueue(msg *hint, paperID string) {
	data, err := json.Marshal(WSMessage{Type: MessageTypeUnreadChanged, PaperID: paperID})
	if err != nil {
		if h.logger != nil {
			h.logger.Error("failed to marshal hint", slog.Any("error", err))
		}
		return
	}
	msg.message = data

	select {
	case h.hints <- msg:
	default:
		// Hints only speed up polling, so dropping one is safe
		if h.logger != nil {
			h.logger.Warn("push hint dropped", slog.String("paper_id", paperID))
		}
	}
}
