package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/welldanyogia/webrana-confchat/internal/websocket"
)

// Reconnect backoff of the push listener
const (
	minReconnectDelay = time.Second
	maxReconnectDelay = time.Minute
)

// PushURLSource yields the websocket URL of the push channel
type PushURLSource interface {
	PushURL() (string, error)
}

// PushListener turns server push hints into poller nudges. Hints only make
// polling faster; the poller stays correct without them.
type PushListener struct {
	source PushURLSource
	poller *UnreadPoller
	dialer *gorillaws.Dialer
	logger *slog.Logger

	// OnHint, if set, observes every hint
	OnHint func(paperID string)
}

// NewPushListener creates a listener that nudges poller
func NewPushListener(source PushURLSource, poller *UnreadPoller, logger *slog.Logger) *PushListener {
	if logger == nil {
		logger = slog.Default()
	}
	return &PushListener{
		source: source,
		poller: poller,
		dialer: gorillaws.DefaultDialer,
		logger: logger.With(slog.String("component", "push_listener")),
	}
}

// Run keeps a push connection open until ctx is cancelled or the viewer
// logs out, reconnecting with exponential backoff
func (l *PushListener) Run(ctx context.Context) {
	delay := minReconnectDelay

	for ctx.Err() == nil {
		connected, err := l.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrNotAuthenticated) {
			l.logger.Info("viewer logged out, stopping push listener")
			return
		}
		if err != nil {
			l.logger.Debug("push connection ended", slog.String("error", err.Error()))
		}
		if connected {
			delay = minReconnectDelay
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

// listen serves one connection and reports whether it was established
func (l *PushListener) listen(ctx context.Context) (bool, error) {
	url, err := l.source.PushURL()
	if err != nil {
		return false, err
	}

	conn, _, err := l.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	// Unblock ReadMessage on cancellation
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	// Catch up on anything missed while disconnected
	l.poller.Nudge()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}

		var msg websocket.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type != websocket.MessageTypeUnreadChanged {
			continue
		}

		if l.OnHint != nil {
			l.OnHint(msg.PaperID)
		}
		l.poller.Nudge()
	}
}
