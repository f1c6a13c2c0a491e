package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "bot:"
	publishTimeout = 5 * time.Second
)

// envelope is what travels on a bot channel. Data is the already-encoded event payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	At    int64           `json:"at"`
}

// RedisPubSub carries bot events between API instances and from the worker to the API.
type RedisPubSub struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPubSub creates a pub/sub bridge over client.
func NewRedisPubSub(client *redis.Client, logger *zap.Logger) *RedisPubSub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPubSub{client: client, logger: logger.Named("pubsub")}
}

// Channel returns the Redis channel carrying a bot's events.
func Channel(botID string) string {
	return channelPrefix + botID
}

func encodeEnvelope(event string, payload []byte, at time.Time) ([]byte, error) {
	return json.Marshal(envelope{Event: event, Data: payload, At: at.Unix()})
}

func decodeEnvelope(raw string) (envelope, error) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return envelope{}, err
	}
	if env.Event == "" {
		return envelope{}, errors.New("envelope without event")
	}
	return env, nil
}

// PublishBotEvent implements RedisPublisher.
func (r *RedisPubSub) PublishBotEvent(botID, event string, payload []byte) error {
	body, err := encodeEnvelope(event, payload, time.Now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	return r.client.Publish(ctx, Channel(botID), body).Err()
}

// SubscribeBot implements RedisSubscriber. The subscription is confirmed before it returns;
// messages are relayed on a goroutine until cancel is called.
func (r *RedisPubSub) SubscribeBot(botID string, handler func(event string, payload []byte)) (cancel func(), err error) {
	ctx, stop := context.WithCancel(context.Background())
	sub := r.client.Subscribe(ctx, Channel(botID))
	if _, err := sub.Receive(ctx); err != nil {
		stop()
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(botID), err)
	}
	go r.relay(ctx, sub, handler)
	return stop, nil
}

func (r *RedisPubSub) relay(ctx context.Context, sub *redis.PubSub, handler func(event string, payload []byte)) {
	defer sub.Close()
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			env, err := decodeEnvelope(msg.Payload)
			if err != nil {
				r.logger.Debug("dropping unreadable message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			handler(env.Event, env.Data)
		}
	}
}
