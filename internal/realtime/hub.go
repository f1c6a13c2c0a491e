package realtime

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

const (
	// PingInterval and PongWait are used for heartbeat.
	PingInterval = 30
	PongWait     = 60
)

// Events pushed to subscribers.
const (
	EventMeetingEvent     = "meeting_event"
	EventSessionCompleted = "session_completed"
)

// Hub maintains bot_id -> set of connections and broadcasts messages.
// Uses Redis pub/sub for horizontal scaling: publish to Redis, deliver from the subscription.
type Hub struct {
	// botID -> map[clientID]*Client
	rooms    map[string]map[string]*Client
	subs     map[string]func() // cancel Redis subscription per bot
	mu       sync.RWMutex
	logger   *zap.Logger
	redis    RedisPublisher
	redisSub RedisSubscriber
}

// RedisPublisher is the interface for publishing to Redis (for cross-instance broadcast).
type RedisPublisher interface {
	PublishBotEvent(botID, event string, payload []byte) error
}

// RedisSubscriber subscribes to bot channels and invokes handler for incoming events.
type RedisSubscriber interface {
	SubscribeBot(botID string, handler func(event string, payload []byte)) (cancel func(), err error)
}

// NewHub creates a new WebSocket hub. Both Redis sides may be nil for a single instance.
func NewHub(logger *zap.Logger, redisPub RedisPublisher, redisSub RedisSubscriber) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		rooms:    make(map[string]map[string]*Client),
		subs:     make(map[string]func()),
		logger:   logger,
		redis:    redisPub,
		redisSub: redisSub,
	}
}

// Register adds a client to its bot's room. Starts the Redis subscription for the bot on the first client.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	if h.rooms[c.BotID] == nil {
		h.rooms[c.BotID] = make(map[string]*Client)
		if h.redisSub != nil {
			botID := c.BotID
			cancel, err := h.redisSub.SubscribeBot(botID, func(event string, payload []byte) {
				h.Broadcast(botID, event, json.RawMessage(payload))
			})
			if err != nil {
				h.logger.Warn("redis subscribe failed", zap.Error(err), zap.String("bot_id", botID))
			} else {
				h.subs[botID] = cancel
			}
		}
	}
	h.rooms[c.BotID][c.ID] = c
	h.mu.Unlock()
	h.logger.Debug("client subscribed", zap.String("client_id", c.ID), zap.String("bot_id", c.BotID))
}

// Unregister removes a client. Cancels the Redis subscription when the last client leaves.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if m, ok := h.rooms[c.BotID]; ok {
		delete(m, c.ID)
		if len(m) == 0 {
			delete(h.rooms, c.BotID)
			if cancel, ok := h.subs[c.BotID]; ok {
				cancel()
				delete(h.subs, c.BotID)
			}
		}
	}
	h.mu.Unlock()
	h.logger.Debug("client unsubscribed", zap.String("client_id", c.ID), zap.String("bot_id", c.BotID))
}

// Broadcast sends a message to the local clients watching a bot.
func (h *Hub) Broadcast(botID, event string, payload interface{}) {
	var data []byte
	switch v := payload.(type) {
	case []byte:
		data = v
	case json.RawMessage:
		data = v
	default:
		var err error
		if data, err = json.Marshal(payload); err != nil {
			h.logger.Warn("encode realtime payload failed", zap.Error(err), zap.String("event", event))
			return
		}
	}
	msg := WSMessage{Event: event, Data: data}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[botID] {
		select {
		case c.send <- msg:
		default:
			// buffer full, skip
		}
	}
}

// Publish fans an event out to every instance. With Redis configured the subscription performs the
// local delivery too, so clients on this instance receive it exactly once.
func (h *Hub) Publish(botID, event string, payload interface{}) {
	if h.redis == nil {
		h.Broadcast(botID, event, payload)
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("encode realtime payload failed", zap.Error(err), zap.String("event", event))
		return
	}
	if err := h.redis.PublishBotEvent(botID, event, data); err != nil {
		h.logger.Warn("redis publish failed, delivering locally", zap.Error(err), zap.String("bot_id", botID))
		h.Broadcast(botID, event, json.RawMessage(data))
	}
}

// Subscribers returns the number of local clients watching a bot.
func (h *Hub) Subscribers(botID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[botID])
}
