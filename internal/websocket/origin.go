package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/welldanyogia/webrana-confchat/internal/logger"
)

// ParseOrigins splits a comma-separated ALLOWED_ORIGINS value, dropping blanks
func ParseOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// NewSecureUpgrader creates a WebSocket upgrader that accepts same-origin
// requests and the listed origins. "*" allows every origin.
func NewSecureUpgrader(allowedOrigins []string, secLogger *logger.SecurityLogger) websocket.Upgrader {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")

			// Same-origin and non-browser clients send no Origin
			if origin == "" {
				return true
			}

			for _, allowed := range allowedOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}

			if secLogger != nil {
				secLogger.InvalidOrigin(r.RemoteAddr, origin)
			}
			return false
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}
