package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/colon-app/backend/internal/auth"
	"github.com/colon-app/backend/internal/store"
	"github.com/colon-app/backend/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the bearer token is the access check
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TokenValidator turns the token query parameter into claims.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// Client represents a single WebSocket connection watching one bot.
type Client struct {
	ID     string
	BotID  string
	UserID string
	hub    *Hub
	conn   *websocket.Conn
	send   chan WSMessage
	logger *zap.Logger
}

// NewClient builds a client bound to hub. conn may be nil when the caller drains Messages itself.
func NewClient(hub *Hub, conn *websocket.Conn, botID, userID string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		ID:     uuid.New().String(),
		BotID:  botID,
		UserID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan WSMessage, 256),
		logger: logger,
	}
}

// Messages exposes the outbound queue.
func (c *Client) Messages() <-chan WSMessage {
	return c.send
}

// ServeWs handles GET /ws?botId&token: it authenticates the caller, checks bot ownership,
// upgrades the connection and streams the bot's events until the client goes away.
func ServeWs(hub *Hub, validator TokenValidator, bots store.Bots, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		botID := c.Query("botId")
		token := c.Query("token")
		if botID == "" || token == "" {
			response.BadRequest(c, "botId and token are required")
			return
		}
		claims, err := validator.Validate(token)
		if err != nil {
			response.Unauthorized(c, "Invalid or expired token")
			return
		}
		bot, err := bots.Get(c.Request.Context(), claims.Subject, botID)
		if err != nil {
			logger.Error("get bot failed", zap.Error(err), zap.String("action", "subscribe"), zap.String("bot_id", botID))
			response.Internal(c, "Failed to subscribe")
			return
		}
		if bot == nil {
			response.NotFound(c, "Bot not found")
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(hub, conn, botID, claims.Subject, logger)
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

// readPump only services control frames; subscribers never send events upstream.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket closed", zap.Error(err), zap.String("client_id", c.ID))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait * time.Second))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
