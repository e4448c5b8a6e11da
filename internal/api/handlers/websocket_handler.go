package handlers

import (
	"log/slog"

	gorillaws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/webrana-confchat/internal/api/middleware"
	"github.com/welldanyogia/webrana-confchat/internal/api/response"
	"github.com/welldanyogia/webrana-confchat/internal/websocket"
)

// WebSocketHandler upgrades viewers to the push hint channel
type WebSocketHandler struct {
	hub      *websocket.Hub
	upgrader gorillaws.Upgrader
	logger   *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler
func NewWebSocketHandler(hub *websocket.Hub, upgrader gorillaws.Upgrader, logger *slog.Logger) *WebSocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebSocketHandler{hub: hub, upgrader: upgrader, logger: logger}
}

// Connect handles GET /api/chat/ws. The connection only carries
// unread_changed hints; clients still poll for the actual counts.
func (h *WebSocketHandler) Connect(c echo.Context) error {
	viewer := middleware.Viewer(c)
	if viewer == nil {
		return response.Unauthorized(c, "missing authorization header")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader has already written the error response
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return nil
	}

	client := websocket.NewClient(h.hub, conn, viewer.ID, viewer.IsAdmin(), h.logger)
	if !h.hub.Register(client) {
		conn.Close()
		return nil
	}

	client.Serve()
	return nil
}
