package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colon-app/backend/internal/auth"
	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/storetest"
)

func receive(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case msg := <-c.Messages():
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return WSMessage{}
	}
}

func TestBroadcastOnlyReachesBotRoom(t *testing.T) {
	hub := NewHub(nil, nil, nil)
	a := NewClient(hub, nil, "bot-a", "user-1", nil)
	b := NewClient(hub, nil, "bot-b", "user-1", nil)
	hub.Register(a)
	hub.Register(b)
	assert.Equal(t, 1, hub.Subscribers("bot-a"))

	hub.Publish("bot-a", EventSessionCompleted, map[string]string{"sessionId": "s1", "recordingId": "r1"})

	msg := receive(t, a)
	assert.Equal(t, EventSessionCompleted, msg.Event)
	assert.JSONEq(t, `{"sessionId":"s1","recordingId":"r1"}`, string(msg.Data))
	assert.Empty(t, b.Messages())

	hub.Unregister(a)
	assert.Equal(t, 0, hub.Subscribers("bot-a"))
}

// loopback stands in for Redis: published events come back through the subscription.
type loopback struct {
	mu       sync.Mutex
	handlers map[string]func(string, []byte)
	fail     error
	canceled []string
}

func (l *loopback) PublishBotEvent(botID, event string, payload []byte) error {
	if l.fail != nil {
		return l.fail
	}
	l.mu.Lock()
	h := l.handlers[botID]
	l.mu.Unlock()
	if h != nil {
		h(event, payload)
	}
	return nil
}

func (l *loopback) SubscribeBot(botID string, handler func(string, []byte)) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[botID] = handler
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.handlers, botID)
		l.canceled = append(l.canceled, botID)
	}, nil
}

func TestPublishThroughRedisDeliversOnce(t *testing.T) {
	bus := &loopback{handlers: map[string]func(string, []byte){}}
	hub := NewHub(nil, bus, bus)
	c := NewClient(hub, nil, "bot-1", "user-1", nil)
	hub.Register(c)

	hub.Publish("bot-1", EventMeetingEvent, models.MeetingEvent{EventID: "e1", Content: "hello"})

	msg := receive(t, c)
	assert.Equal(t, EventMeetingEvent, msg.Event)
	assert.Contains(t, string(msg.Data), `"content":"hello"`)
	assert.Empty(t, c.Messages())

	hub.Unregister(c)
	assert.Equal(t, []string{"bot-1"}, bus.canceled)
}

func TestPublishFallsBackToLocalWhenRedisFails(t *testing.T) {
	bus := &loopback{handlers: map[string]func(string, []byte){}, fail: errors.New("redis down")}
	hub := NewHub(nil, bus, bus)
	c := NewClient(hub, nil, "bot-1", "user-1", nil)
	hub.Register(c)

	hub.Publish("bot-1", EventMeetingEvent, map[string]string{"content": "hi"})
	assert.Equal(t, EventMeetingEvent, receive(t, c).Event)
}

func TestServeWs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mem := storetest.New()
	require.NoError(t, mem.Bots().Create(context.Background(), &models.Bot{UserID: "user-1", BotID: "bot-1", BotName: "B"}))
	jwtSvc := auth.NewJWTService("secret")
	hub := NewHub(nil, nil, nil)

	r := gin.New()
	r.GET("/ws", ServeWs(hub, jwtSvc, mem.Bots(), nil))
	srv := httptest.NewServer(r)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	owner, err := jwtSvc.Generate("user-1", "a@example.com", "A", time.Hour)
	require.NoError(t, err)
	other, err := jwtSvc.Generate("user-2", "b@example.com", "B", time.Hour)
	require.NoError(t, err)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?botId=bot-1&token=bad", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(wsURL+"?botId=bot-1&token="+other, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?botId=bot-1&token="+owner, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Subscribers("bot-1") == 1 }, time.Second, 10*time.Millisecond)
	hub.Publish("bot-1", EventMeetingEvent, map[string]string{"content": "hello"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, EventMeetingEvent, msg.Event)
	var data map[string]string
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "hello", data["content"])
}
