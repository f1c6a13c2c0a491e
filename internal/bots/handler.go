package bots

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/colon-app/backend/internal/middleware"
	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/store"
	"github.com/colon-app/backend/pkg/request"
	"github.com/colon-app/backend/pkg/response"
	"github.com/colon-app/backend/pkg/validation"
)

// Handler handles bot CRUD endpoints.
type Handler struct {
	bots     store.Bots
	sessions store.Sessions
	logger   *zap.Logger
	now      func() time.Time
}

// NewHandler creates a bots handler.
func NewHandler(bots store.Bots, sessions store.Sessions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{bots: bots, sessions: sessions, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Register mounts the bot routes on an authenticated group.
func (h *Handler) Register(rg gin.IRoutes) {
	rg.GET("/bots", h.List)
	rg.POST("/bots", h.Create)
	rg.GET("/bots/:id", h.Get)
	rg.PUT("/bots/:id", h.Update)
	rg.DELETE("/bots/:id", h.Delete)
}

type botWithSession struct {
	models.Bot
	CurrentSession *models.Session `json:"currentSession"`
}

// List handles GET /bots.
func (h *Handler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	list, err := h.bots.List(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list bots failed", zap.Error(err), zap.String("action", "listBots"), zap.String("user_id", userID))
		response.Internal(c, "Failed to list bots")
		return
	}
	response.OK(c, gin.H{"bots": list})
}

// Get handles GET /bots/:id. The active session, if any, is attached as currentSession.
func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	userID, botID := middleware.UserID(c), c.Param("id")
	bot, err := h.bots.Get(ctx, userID, botID)
	if err != nil {
		h.logger.Error("get bot failed", zap.Error(err), zap.String("action", "getBot"), zap.String("user_id", userID), zap.String("bot_id", botID))
		response.Internal(c, "Failed to get bot")
		return
	}
	if bot == nil {
		response.NotFound(c, "Bot not found")
		return
	}
	active, err := h.sessions.GetActive(ctx, botID)
	if err != nil {
		h.logger.Error("get active session failed", zap.Error(err), zap.String("action", "getBot"), zap.String("bot_id", botID))
		response.Internal(c, "Failed to get bot")
		return
	}
	response.OK(c, botWithSession{Bot: *bot, CurrentSession: active})
}

// Create handles POST /bots.
func (h *Handler) Create(c *gin.Context) {
	userID := middleware.UserID(c)
	in, ok := bindBot(c)
	if !ok {
		return
	}
	now := h.now()
	bot := &models.Bot{
		UserID:    userID,
		BotID:     models.NewID(),
		Status:    models.BotStatusIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	in.apply(bot)
	if err := h.bots.Create(c.Request.Context(), bot); err != nil {
		h.logger.Error("create bot failed", zap.Error(err), zap.String("action", "createBot"), zap.String("user_id", userID))
		response.Internal(c, "Failed to create bot")
		return
	}
	h.logger.Info("bot created", zap.String("user_id", userID), zap.String("bot_id", bot.BotID))
	response.Created(c, bot)
}

// Update handles PUT /bots/:id. The payload is validated in full and merged over the stored bot.
func (h *Handler) Update(c *gin.Context) {
	ctx := c.Request.Context()
	userID, botID := middleware.UserID(c), c.Param("id")
	bot, err := h.bots.Get(ctx, userID, botID)
	if err != nil {
		h.logger.Error("get bot failed", zap.Error(err), zap.String("action", "updateBot"), zap.String("user_id", userID), zap.String("bot_id", botID))
		response.Internal(c, "Failed to update bot")
		return
	}
	if bot == nil {
		response.NotFound(c, "Bot not found")
		return
	}
	in, ok := bindBot(c)
	if !ok {
		return
	}
	in.apply(bot)
	bot.UpdatedAt = h.now()
	if err := h.bots.Update(ctx, bot); err != nil {
		h.logger.Error("update bot failed", zap.Error(err), zap.String("action", "updateBot"), zap.String("user_id", userID), zap.String("bot_id", botID))
		response.Internal(c, "Failed to update bot")
		return
	}
	response.OK(c, bot)
}

// Delete handles DELETE /bots/:id. A bot in a meeting cannot be deleted.
func (h *Handler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	userID, botID := middleware.UserID(c), c.Param("id")
	bot, err := h.bots.Get(ctx, userID, botID)
	if err != nil {
		h.logger.Error("get bot failed", zap.Error(err), zap.String("action", "deleteBot"), zap.String("user_id", userID), zap.String("bot_id", botID))
		response.Internal(c, "Failed to delete bot")
		return
	}
	if bot == nil {
		response.NotFound(c, "Bot not found")
		return
	}
	if bot.Status == models.BotStatusInMeeting {
		response.Conflict(c, "Cannot delete a bot that is in a meeting")
		return
	}
	// Sessions go first so a failure leaves the bot in place for a retry.
	if err := h.sessions.DeleteEndedByBot(ctx, userID, botID); err != nil {
		h.logger.Error("delete bot sessions failed", zap.Error(err), zap.String("action", "deleteBot"), zap.String("user_id", userID), zap.String("bot_id", botID))
		response.Internal(c, "Failed to delete bot")
		return
	}
	if err := h.bots.Delete(ctx, userID, botID); err != nil {
		h.logger.Error("delete bot failed", zap.Error(err), zap.String("action", "deleteBot"), zap.String("user_id", userID), zap.String("bot_id", botID))
		response.Internal(c, "Failed to delete bot")
		return
	}
	response.NoContent(c)
}

// bindBot decodes and validates the body, writing the error response itself on failure.
func bindBot(c *gin.Context) (*botInput, bool) {
	var in botInput
	if err := request.BindJSON(c, &in); err != nil {
		if errors.Is(err, request.ErrMalformed) {
			response.BadRequest(c, "Invalid JSON in request body")
		} else {
			response.BadRequest(c, "Could not read request body")
		}
		return nil, false
	}
	if err := in.Validate(); err != nil {
		response.ValidationError(c, validation.Message(err))
		return nil, false
	}
	return &in, true
}
