// Package users serves the caller's profile, settings and account deletion.
package users

import (
	"context"
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

// RecordingPurger removes all of a user's recordings with their media.
type RecordingPurger interface {
	PurgeUser(ctx context.Context, userID, botID string) (int, error)
}

// IdentityDeleter removes the account at the identity provider.
type IdentityDeleter interface {
	DeleteUser(ctx context.Context, userID string) error
}

// Deps groups the stores touched by account deletion.
type Deps struct {
	Users      store.Users
	Bots       store.Bots
	Sessions   store.Sessions
	Events     store.Events
	Recordings RecordingPurger
	Identity   IdentityDeleter
}

// Handler handles /auth/me and /settings.
type Handler struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a users handler.
func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{deps: deps, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Register mounts the user routes on an authenticated group.
func (h *Handler) Register(rg gin.IRoutes) {
	rg.GET("/auth/me", h.Me)
	rg.GET("/settings", h.GetSettings)
	rg.PUT("/settings", h.UpdateSettings)
	rg.DELETE("/settings/account", h.DeleteAccount)
}

// Me handles GET /auth/me. The first call creates the user from the token claims.
func (h *Handler) Me(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	u, err := h.deps.Users.Get(ctx, userID)
	if err != nil {
		h.logger.Error("get user failed", zap.Error(err), zap.String("action", "getMe"), zap.String("user_id", userID))
		response.Internal(c, "Failed to get user")
		return
	}
	if u != nil {
		response.OK(c, u)
		return
	}

	now := h.now()
	u = &models.User{UserID: userID, Language: models.LanguageJA, CreatedAt: now, UpdatedAt: now}
	if claims := middleware.Claims(c); claims != nil {
		u.Email = claims.Email
		u.DisplayName = claims.Name
		u.AvatarURL = claims.Picture
	}
	if u.DisplayName == "" {
		u.DisplayName = u.Email
	}
	stored, err := h.deps.Users.Create(ctx, u)
	if err != nil {
		h.logger.Error("create user failed", zap.Error(err), zap.String("action", "getMe"), zap.String("user_id", userID))
		response.Internal(c, "Failed to get user")
		return
	}
	h.logger.Info("user created", zap.String("user_id", userID))
	response.OK(c, stored)
}

// GetSettings handles GET /settings.
func (h *Handler) GetSettings(c *gin.Context) {
	userID := middleware.UserID(c)
	u, err := h.deps.Users.Get(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("get user failed", zap.Error(err), zap.String("action", "getSettings"), zap.String("user_id", userID))
		response.Internal(c, "Failed to get settings")
		return
	}
	if u == nil {
		response.NotFound(c, "User not found")
		return
	}
	response.OK(c, u.Settings())
}

type settingsInput struct {
	Language string `json:"language" validate:"required,oneof=ja en"`
}

var validate = validation.New()

// UpdateSettings handles PUT /settings.
func (h *Handler) UpdateSettings(c *gin.Context) {
	userID := middleware.UserID(c)
	var in settingsInput
	if err := request.BindJSON(c, &in); err != nil {
		if errors.Is(err, request.ErrMalformed) {
			response.BadRequest(c, "Invalid JSON in request body")
		} else {
			response.BadRequest(c, "Could not read request body")
		}
		return
	}
	if err := validate.Struct(&in); err != nil {
		response.ValidationError(c, validation.Message(err))
		return
	}
	u, err := h.deps.Users.UpdateLanguage(c.Request.Context(), userID, in.Language)
	if err != nil {
		h.logger.Error("update settings failed", zap.Error(err), zap.String("action", "updateSettings"), zap.String("user_id", userID))
		response.Internal(c, "Failed to update settings")
		return
	}
	if u == nil {
		response.NotFound(c, "User not found")
		return
	}
	response.OK(c, u.Settings())
}

// DeleteAccount handles DELETE /settings/account. Local data goes first; the identity provider
// account is removed last and its failure only gets logged.
func (h *Handler) DeleteAccount(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)
	log := h.logger.With(zap.String("action", "deleteAccount"), zap.String("user_id", userID))

	steps := []struct {
		name string
		run  func() error
	}{
		{"recordings", func() error { _, err := h.deps.Recordings.PurgeUser(ctx, userID, ""); return err }},
		{"bots", func() error { return h.deps.Bots.DeleteByUser(ctx, userID) }},
		{"sessions", func() error { return h.deps.Sessions.DeleteByUser(ctx, userID) }},
		{"events", func() error { return h.deps.Events.DeleteByUser(ctx, userID) }},
		{"user", func() error { return h.deps.Users.Delete(ctx, userID) }},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			log.Error("account deletion failed", zap.Error(err), zap.String("step", step.name))
			response.Internal(c, "Failed to delete account")
			return
		}
	}

	if h.deps.Identity != nil {
		if err := h.deps.Identity.DeleteUser(ctx, userID); err != nil {
			log.Warn("identity provider deletion failed", zap.Error(err))
		}
	}
	log.Info("account deleted")
	response.NoContent(c)
}
