package websocket

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// Connection timings
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 512
	sendBuffer     = 16
)

// Client is one viewer's push connection. Hints flow server to client;
// the only thing a client may send is an application-level ping.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
	admin  bool
	logger *slog.Logger
}

// NewClient wraps conn for the viewer userID. admin selects whether the
// connection receives hints for every paper's admin side.
func NewClient(hub *Hub, conn *websocket.Conn, userID string, admin bool, logger *slog.Logger) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		userID: userID,
		admin:  admin,
		logger: logger,
	}
}

// Serve pumps hints to the peer until either side closes. The caller must
// have registered the client with the hub.
func (c *Client) Serve() {
	go c.writeLoop()
	c.readLoop()
}

func (c *Client) readLoop() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) && c.logger != nil {
				c.logger.Warn("push connection closed unexpectedly",
					slog.String("user_id", c.userID),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		c.answer(frame)
	}
}

// writeLoop drains queued hints and keeps the connection alive. It ends
// when the hub closes send or a write fails.
func (c *Client) writeLoop() {
	keepalive := time.NewTicker(pingPeriod)
	defer func() {
		keepalive.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-keepalive.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// answer replies to one inbound frame
func (c *Client) answer(frame []byte) {
	var msg WSMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		c.enqueue(WSMessage{Type: MessageTypeError, Error: "invalid message format"})
		return
	}

	if msg.Type != MessageTypePing {
		c.enqueue(WSMessage{Type: MessageTypeError, Error: "unknown message type"})
		return
	}
	c.enqueue(WSMessage{Type: MessageTypePong})
}

// enqueue drops the message when the peer is too slow to keep up
func (c *Client) enqueue(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	select {
	case c.send <- data:
	default:
	}
}
