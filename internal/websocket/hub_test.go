package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/welldanyogia/webrana-confchat/internal/metrics"
)

func startHub(t *testing.T, m *metrics.Metrics) *Hub {
	hub := NewHub(nil, m)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub
}

func register(t *testing.T, hub *Hub, userID string, admin bool) *Client {
	client := NewClient(hub, nil, userID, admin, nil)
	require.True(t, hub.Register(client))
	return client
}

func receive(t *testing.T, client *Client) WSMessage {
	select {
	case data := <-client.send:
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a message")
		return WSMessage{}
	}
}

func assertSilent(t *testing.T, client *Client) {
	select {
	case data := <-client.send:
		t.Fatalf("unexpected message %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_NewHub(t *testing.T) {
	hub := NewHub(nil, nil)

	assert.NotNil(t, hub.clients)
	assert.NotNil(t, hub.byUser)
	assert.NotNil(t, hub.register)
	assert.NotNil(t, hub.unregister)
	assert.Equal(t, 0, hub.ClientCount())
}

func TestHub_NotifyUsers_ReachesEveryConnectionOfTheUser(t *testing.T) {
	hub := startHub(t, nil)
	tab1 := register(t, hub, "author-1", false)
	tab2 := register(t, hub, "author-1", false)
	other := register(t, hub, "author-2", false)

	hub.NotifyUsers("paper-1", "author-1")

	for _, c := range []*Client{tab1, tab2} {
		msg := receive(t, c)
		assert.Equal(t, MessageTypeUnreadChanged, msg.Type)
		assert.Equal(t, "paper-1", msg.PaperID)
	}
	assertSilent(t, other)
}

func TestHub_NotifyAdmins_SkipsSenderAndParticipants(t *testing.T) {
	m := metrics.New()
	hub := startHub(t, m)
	sender := register(t, hub, "admin-1", true)
	colleague := register(t, hub, "admin-2", true)
	author := register(t, hub, "author-1", false)

	hub.NotifyAdmins("paper-1", "admin-1")

	assert.Equal(t, "paper-1", receive(t, colleague).PaperID)
	assertSilent(t, sender)
	assertSilent(t, author)
	require.Eventually(t, func() bool { return testutil.ToFloat64(m.PushHintsSent) == 1.0 }, time.Second, 5*time.Millisecond)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	m := metrics.New()
	hub := startHub(t, m)
	client := register(t, hub, "author-1", false)

	require.Eventually(t, func() bool { return testutil.ToFloat64(m.WebsocketClients) == 1.0 }, time.Second, 5*time.Millisecond)

	hub.Unregister(client)

	_, open := <-client.send
	assert.False(t, open)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	// Hints for a departed user are ignored
	hub.NotifyUsers("paper-1", "author-1")
}

func TestHub_StopReleasesClients(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := register(t, hub, "author-1", false)
	cancel()
	<-stopped

	_, open := <-client.send
	assert.False(t, open)
	assert.False(t, hub.Register(NewClient(hub, nil, "late", false, nil)))

	// Must not block once the hub is gone
	hub.Unregister(client)
}

func TestClient_AnswersPing(t *testing.T) {
	client := NewClient(NewHub(nil, nil), nil, "u", false, nil)

	client.answer([]byte(`{"type":"ping"}`))

	assert.Equal(t, MessageTypePong, receive(t, client).Type)
}

func TestClient_RejectsUnknownFrames(t *testing.T) {
	client := NewClient(NewHub(nil, nil), nil, "u", false, nil)

	client.answer([]byte(`not json`))
	msg := receive(t, client)
	assert.Equal(t, MessageTypeError, msg.Type)
	assert.Equal(t, "invalid message format", msg.Error)

	client.answer([]byte(`{"type":"subscribe"}`))
	assert.Equal(t, "unknown message type", receive(t, client).Error)
}

func TestWSMessage_JSON(t *testing.T) {
	data, err := json.Marshal(WSMessage{Type: MessageTypeUnreadChanged, PaperID: "p1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"unread_changed","paperId":"p1"}`, string(data))
}
