// Package sessions puts bots into meetings and takes them out again.
package sessions

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/colon-app/backend/internal/middleware"
	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/store"
	"github.com/colon-app/backend/pkg/pagination"
	"github.com/colon-app/backend/pkg/recall"
	"github.com/colon-app/backend/pkg/request"
	"github.com/colon-app/backend/pkg/response"
	"github.com/colon-app/backend/pkg/validation"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 500
)

// Provider is the meeting-bot API used to join and leave calls.
type Provider interface {
	CreateBot(ctx context.Context, req recall.CreateBotRequest) (*recall.Bot, error)
	LeaveCall(ctx context.Context, botID string) error
}

// Handler handles invite, leave and session lookups.
type Handler struct {
	bots     store.Bots
	sessions store.Sessions
	events   store.Events
	provider Provider
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a sessions handler.
func NewHandler(bots store.Bots, sessions store.Sessions, events store.Events, provider Provider, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		bots:     bots,
		sessions: sessions,
		events:   events,
		provider: provider,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register mounts the authenticated session routes.
func (h *Handler) Register(rg gin.IRoutes) {
	rg.POST("/bots/:id/invite", h.Invite)
	rg.POST("/bots/:id/leave", h.Leave)
	rg.GET("/bots/:id/session", h.Current)
	rg.GET("/bots/:id/sessions/:sessionId/events", h.ListEvents)
}

type inviteRequest struct {
	MeetingURL string `json:"meetingUrl" validate:"required,meeturl"`
}

type inviteResponse struct {
	SessionID  string    `json:"sessionId"`
	BotID      string    `json:"botId"`
	MeetingURL string    `json:"meetingUrl"`
	Status     string    `json:"status"`
	JoinedAt   time.Time `json:"joinedAt"`
}

var validate = validation.New()

// Invite handles POST /bots/:id/invite.
func (h *Handler) Invite(c *gin.Context) {
	ctx := c.Request.Context()
	userID, botID := middleware.UserID(c), c.Param("id")
	log := h.logger.With(zap.String("action", "inviteBot"), zap.String("user_id", userID), zap.String("bot_id", botID))

	bot, err := h.bots.Get(ctx, userID, botID)
	if err != nil {
		log.Error("get bot failed", zap.Error(err))
		response.Internal(c, "Failed to invite bot")
		return
	}
	if bot == nil {
		response.NotFound(c, "Bot not found")
		return
	}
	active, err := h.sessions.GetActive(ctx, botID)
	if err != nil {
		log.Error("get active session failed", zap.Error(err))
		response.Internal(c, "Failed to invite bot")
		return
	}
	if active != nil {
		response.Conflict(c, "Bot is already in a meeting")
		return
	}

	var req inviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	reserved, err := h.bots.TransitionStatus(ctx, userID, botID, models.BotStatusIdle, models.BotStatusInMeeting)
	if err != nil {
		log.Error("reserve bot failed", zap.Error(err))
		response.Internal(c, "Failed to invite bot")
		return
	}
	if !reserved {
		response.Conflict(c, "Bot is already in a meeting")
		return
	}

	remote, err := h.provider.CreateBot(ctx, recall.CreateBotRequest{MeetingURL: req.MeetingURL, BotName: bot.BotName})
	if err != nil {
		log.Error("provider create bot failed", zap.Error(err))
		h.release(ctx, log, userID, botID)
		response.Internal(c, "Failed to invite bot to meeting")
		return
	}

	now := h.now()
	sess := &models.Session{
		BotID:       botID,
		SessionID:   models.NewID(),
		UserID:      userID,
		MeetingURL:  req.MeetingURL,
		RecallBotID: remote.ID,
		Status:      models.SessionStatusJoining,
		JoinedAt:    now,
		CreatedAt:   now,
	}
	if err := h.sessions.Create(ctx, sess); err != nil {
		log.Error("create session failed", zap.Error(err), zap.String("recall_bot_id", remote.ID))
		if lerr := h.provider.LeaveCall(ctx, remote.ID); lerr != nil {
			log.Warn("provider cleanup failed", zap.Error(lerr), zap.String("recall_bot_id", remote.ID))
		}
		h.release(ctx, log, userID, botID)
		response.Internal(c, "Failed to invite bot to meeting")
		return
	}

	log.Info("bot invited", zap.String("session_id", sess.SessionID), zap.String("recall_bot_id", remote.ID))
	response.OK(c, inviteResponse{
		SessionID:  sess.SessionID,
		BotID:      botID,
		MeetingURL: sess.MeetingURL,
		Status:     sess.Status,
		JoinedAt:   sess.JoinedAt,
	})
}

// release returns a reserved bot to idle after a failed invite.
func (h *Handler) release(ctx context.Context, log *zap.Logger, userID, botID string) {
	if err := h.bots.SetStatus(ctx, userID, botID, models.BotStatusIdle); err != nil {
		log.Error("release bot failed", zap.Error(err))
	}
}

// Leave handles POST /bots/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	ctx := c.Request.Context()
	userID, botID := middleware.UserID(c), c.Param("id")
	log := h.logger.With(zap.String("action", "leaveBot"), zap.String("user_id", userID), zap.String("bot_id", botID))

	bot, err := h.bots.Get(ctx, userID, botID)
	if err != nil {
		log.Error("get bot failed", zap.Error(err))
		response.Internal(c, "Failed to remove bot")
		return
	}
	if bot == nil {
		response.NotFound(c, "Bot not found")
		return
	}
	active, err := h.sessions.GetActive(ctx, botID)
	if err != nil {
		log.Error("get active session failed", zap.Error(err))
		response.Internal(c, "Failed to remove bot")
		return
	}
	if active == nil {
		response.NotFound(c, "No active session found")
		return
	}

	if err := h.provider.LeaveCall(ctx, active.RecallBotID); err != nil {
		log.Error("provider leave call failed", zap.Error(err), zap.String("recall_bot_id", active.RecallBotID))
		response.Internal(c, "Failed to remove bot from meeting")
		return
	}

	now := h.now()
	if err := h.sessions.MarkLeaving(ctx, botID, active.SessionID, now, now.Add(models.SessionRetention)); err != nil {
		log.Error("mark session leaving failed", zap.Error(err), zap.String("session_id", active.SessionID))
		response.Internal(c, "Failed to remove bot")
		return
	}
	if err := h.bots.SetStatus(ctx, userID, botID, models.BotStatusIdle); err != nil {
		log.Error("set bot idle failed", zap.Error(err))
		response.Internal(c, "Failed to remove bot")
		return
	}

	log.Info("bot left meeting", zap.String("session_id", active.SessionID))
	response.OK(c, gin.H{"sessionId": active.SessionID, "status": models.SessionStatusLeaving})
}

type sessionSummary struct {
	SessionID  string    `json:"sessionId"`
	MeetingURL string    `json:"meetingUrl"`
	Status     string    `json:"status"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// Current handles GET /bots/:id/session.
func (h *Handler) Current(c *gin.Context) {
	ctx := c.Request.Context()
	userID, botID := middleware.UserID(c), c.Param("id")

	bot, err := h.bots.Get(ctx, userID, botID)
	if err != nil {
		h.logger.Error("get bot failed", zap.Error(err), zap.String("action", "getSession"), zap.String("user_id", userID), zap.String("bot_id", botID))
		response.Internal(c, "Failed to get session")
		return
	}
	if bot == nil {
		response.NotFound(c, "Bot not found")
		return
	}
	active, err := h.sessions.GetActive(ctx, botID)
	if err != nil {
		h.logger.Error("get active session failed", zap.Error(err), zap.String("action", "getSession"), zap.String("bot_id", botID))
		response.Internal(c, "Failed to get session")
		return
	}
	if active == nil {
		response.OK(c, gin.H{"session": nil})
		return
	}
	response.OK(c, sessionSummary{
		SessionID:  active.SessionID,
		MeetingURL: active.MeetingURL,
		Status:     active.Status,
		JoinedAt:   active.JoinedAt,
	})
}

type eventCursor struct {
	EventID string `json:"eventId"`
}

// ListEvents handles GET /bots/:id/sessions/:sessionId/events.
func (h *Handler) ListEvents(c *gin.Context) {
	ctx := c.Request.Context()
	userID, botID, sessionID := middleware.UserID(c), c.Param("id"), c.Param("sessionId")
	log := h.logger.With(zap.String("action", "listMeetingEvents"), zap.String("user_id", userID), zap.String("bot_id", botID), zap.String("session_id", sessionID))

	q := models.EventQuery{
		EventType: c.Query("type"),
		Limit:     pagination.Limit(c.Query("limit"), defaultEventLimit, maxEventLimit),
	}
	switch q.EventType {
	case "", models.EventTypeTranscription, models.EventTypeReaction, models.EventTypeComment:
	default:
		response.ValidationError(c, "type must be one of: transcription, reaction, comment")
		return
	}
	if token := c.Query("nextToken"); token != "" {
		var cur eventCursor
		if err := pagination.Decode(token, &cur); err != nil {
			response.BadRequest(c, "Invalid nextToken")
			return
		}
		q.After = cur.EventID
	}

	bot, err := h.bots.Get(ctx, userID, botID)
	if err != nil {
		log.Error("get bot failed", zap.Error(err))
		response.Internal(c, "Failed to list meeting events")
		return
	}
	if bot == nil {
		response.NotFound(c, "Bot not found")
		return
	}
	sess, err := h.sessions.Get(ctx, botID, sessionID)
	if err != nil {
		log.Error("get session failed", zap.Error(err))
		response.Internal(c, "Failed to list meeting events")
		return
	}
	if sess == nil || sess.UserID != userID {
		response.NotFound(c, "Session not found")
		return
	}

	list, next, err := h.events.List(ctx, sessionID, q)
	if err != nil {
		log.Error("list events failed", zap.Error(err))
		response.Internal(c, "Failed to list meeting events")
		return
	}
	var nextToken *string
	if next != "" {
		token, err := pagination.Encode(eventCursor{EventID: next})
		if err != nil {
			log.Error("encode cursor failed", zap.Error(err))
			response.Internal(c, "Failed to list meeting events")
			return
		}
		nextToken = &token
	}
	response.OK(c, gin.H{"events": list, "nextToken": nextToken})
}

// bindAndValidate decodes the body into dst and runs schema validation, writing the error response on failure.
func bindAndValidate(c *gin.Context, dst interface{}) bool {
	if err := request.BindJSON(c, dst); err != nil {
		if errors.Is(err, request.ErrMalformed) {
			response.BadRequest(c, "Invalid JSON in request body")
		} else {
			response.BadRequest(c, "Could not read request body")
		}
		return false
	}
	if err := validate.Struct(dst); err != nil {
		response.ValidationError(c, validation.Message(err))
		return false
	}
	return true
}
