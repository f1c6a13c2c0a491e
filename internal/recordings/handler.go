// Package recordings serves stored meeting recordings and ingests them from provider webhooks.
package recordings

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/colon-app/backend/internal/middleware"
	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/store"
	"github.com/colon-app/backend/pkg/pagination"
	"github.com/colon-app/backend/pkg/response"
)

const (
	defaultListLimit = 10
	maxListLimit     = 50
)

// ObjectStore is the media storage used by the read and delete endpoints.
type ObjectStore interface {
	ObjectDeleter
	PlaybackURL(ctx context.Context, key string) (string, error)
	DownloadURL(ctx context.Context, key string) (string, error)
}

// Handler handles recording HTTP endpoints.
type Handler struct {
	recordings store.Recordings
	objects    ObjectStore
	purger     *Purger
	logger     *zap.Logger
}

// NewHandler creates a recordings handler.
func NewHandler(recordings store.Recordings, objects ObjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		recordings: recordings,
		objects:    objects,
		purger:     NewPurger(recordings, objects, logger),
		logger:     logger,
	}
}

// Register mounts the recording routes on an authenticated group.
func (h *Handler) Register(rg gin.IRoutes) {
	rg.GET("/recordings", h.List)
	rg.DELETE("/recordings", h.DeleteAll)
	rg.GET("/recordings/:id", h.Get)
	rg.DELETE("/recordings/:id", h.Delete)
}

type listCursor struct {
	RecordingID string `json:"recordingId"`
}

// List handles GET /recordings?limit&nextToken&botId.
func (h *Handler) List(c *gin.Context) {
	userID := middleware.UserID(c)
	q := models.RecordingQuery{
		BotID: c.Query("botId"),
		Limit: pagination.Limit(c.Query("limit"), defaultListLimit, maxListLimit),
	}
	if token := c.Query("nextToken"); token != "" {
		var cur listCursor
		if err := pagination.Decode(token, &cur); err != nil || cur.RecordingID == "" {
			response.BadRequest(c, "Invalid nextToken")
			return
		}
		q.After = cur.RecordingID
	}

	list, next, err := h.recordings.List(c.Request.Context(), userID, q)
	if err != nil {
		h.logger.Error("list recordings failed", zap.Error(err), zap.String("action", "listRecordings"), zap.String("user_id", userID))
		response.Internal(c, "Failed to list recordings")
		return
	}
	var nextToken *string
	if next != "" {
		token, err := pagination.Encode(listCursor{RecordingID: next})
		if err != nil {
			h.logger.Error("encode cursor failed", zap.Error(err), zap.String("action", "listRecordings"))
			response.Internal(c, "Failed to list recordings")
			return
		}
		nextToken = &token
	}
	response.OK(c, gin.H{"recordings": list, "nextToken": nextToken})
}

type recordingDetail struct {
	models.Recording
	PlaybackURL *string `json:"playbackUrl"`
	DownloadURL *string `json:"downloadUrl"`
}

// Get handles GET /recordings/:id. Signed URLs are attached only once the recording is ready.
func (h *Handler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	userID, recordingID := middleware.UserID(c), c.Param("id")
	log := h.logger.With(zap.String("action", "getRecording"), zap.String("user_id", userID), zap.String("recording_id", recordingID))

	rec, err := h.recordings.Get(ctx, userID, recordingID)
	if err != nil {
		log.Error("get recording failed", zap.Error(err))
		response.Internal(c, "Failed to get recording")
		return
	}
	if rec == nil {
		response.NotFound(c, "Recording not found")
		return
	}

	out := recordingDetail{Recording: *rec}
	if rec.Status == models.RecordingStatusReady && rec.S3Key != "" {
		playback, err := h.objects.PlaybackURL(ctx, rec.S3Key)
		if err != nil {
			log.Error("sign playback url failed", zap.Error(err))
			response.Internal(c, "Failed to get recording")
			return
		}
		download, err := h.objects.DownloadURL(ctx, rec.S3Key)
		if err != nil {
			log.Error("sign download url failed", zap.Error(err))
			response.Internal(c, "Failed to get recording")
			return
		}
		out.PlaybackURL, out.DownloadURL = &playback, &download
	}
	response.OK(c, out)
}

// Delete handles DELETE /recordings/:id. Deleting an unknown recording succeeds.
func (h *Handler) Delete(c *gin.Context) {
	ctx := c.Request.Context()
	userID, recordingID := middleware.UserID(c), c.Param("id")
	log := h.logger.With(zap.String("action", "deleteRecording"), zap.String("user_id", userID), zap.String("recording_id", recordingID))

	rec, err := h.recordings.Get(ctx, userID, recordingID)
	if err != nil {
		log.Error("get recording failed", zap.Error(err))
		response.Internal(c, "Failed to delete recording")
		return
	}
	if rec == nil {
		response.NoContent(c)
		return
	}
	if err := h.purger.DeleteOne(ctx, rec); err != nil {
		log.Error("delete recording failed", zap.Error(err))
		response.Internal(c, "Failed to delete recording")
		return
	}
	log.Info("recording deleted", zap.String("bot_id", rec.BotID))
	response.NoContent(c)
}

// DeleteAll handles DELETE /recordings[?botId].
func (h *Handler) DeleteAll(c *gin.Context) {
	userID, botID := middleware.UserID(c), c.Query("botId")
	if _, err := h.purger.PurgeUser(c.Request.Context(), userID, botID); err != nil {
		h.logger.Error("purge recordings failed", zap.Error(err), zap.String("action", "deleteRecordings"),
			zap.String("user_id", userID), zap.String("bot_id", botID))
		response.Internal(c, "Failed to delete recordings")
		return
	}
	response.NoContent(c)
}
