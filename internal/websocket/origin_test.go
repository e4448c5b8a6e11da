package websocket

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/welldanyogia/webrana-confchat/internal/logger"
)

func originRequest(origin string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/chat/ws", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"http://a.com", "http://b.com"}, ParseOrigins(" http://a.com , ,http://b.com,"))
	assert.Empty(t, ParseOrigins(""))
	assert.Empty(t, ParseOrigins(",,,"))
}

func TestNewSecureUpgrader(t *testing.T) {
	upgrader := NewSecureUpgrader([]string{"http://localhost:3000", "https://conf.example.org"}, nil)

	tests := []struct {
		origin   string
		expected bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://conf.example.org", true},
		{"https://CONF.example.org", false},
		{"https://conf.example.org/path", false},
		{"http://malicious.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			assert.Equal(t, tt.expected, upgrader.CheckOrigin(originRequest(tt.origin)))
		})
	}
}

func TestNewSecureUpgrader_DefaultAndWildcard(t *testing.T) {
	def := NewSecureUpgrader(nil, nil)
	assert.True(t, def.CheckOrigin(originRequest("http://localhost:3000")))
	assert.False(t, def.CheckOrigin(originRequest("http://other.com")))

	wild := NewSecureUpgrader([]string{"*"}, nil)
	assert.True(t, wild.CheckOrigin(originRequest("http://other.com")))
}

func TestNewSecureUpgrader_LogsRejection(t *testing.T) {
	var buf bytes.Buffer
	sec := logger.NewSecurityLoggerWithHandler(slog.NewJSONHandler(&buf, nil))
	upgrader := NewSecureUpgrader([]string{"http://localhost:3000"}, sec)

	assert.False(t, upgrader.CheckOrigin(originRequest("http://evil.com")))
	assert.Contains(t, buf.String(), "invalid_origin")
	assert.Contains(t, buf.String(), "http://evil.com")
}
