package sessions

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/pkg/recall"
	"github.com/colon-app/backend/pkg/response"
)

// DefaultTrialBotName is used when a trial invite does not name its bot.
const DefaultTrialBotName = "Colon Trial Bot"

// TrialHandler lets anonymous visitors try a bot. Nothing it does is persisted.
type TrialHandler struct {
	provider Provider
	logger   *zap.Logger
	now      func() time.Time
}

// NewTrialHandler creates a trial handler.
func NewTrialHandler(provider Provider, logger *zap.Logger) *TrialHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrialHandler{provider: provider, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Register mounts the public trial routes.
func (h *TrialHandler) Register(rg gin.IRoutes) {
	rg.POST("/trial/invite", h.Invite)
	rg.POST("/trial/leave", h.Leave)
}

type trialInviteRequest struct {
	MeetingURL string `json:"meetingUrl" validate:"required,meeturl"`
	BotName    string `json:"botName" validate:"omitempty,max=50"`
}

type trialLeaveRequest struct {
	RecallBotID string `json:"recallBotId"`
}

// Invite handles POST /trial/invite.
func (h *TrialHandler) Invite(c *gin.Context) {
	var req trialInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.BotName == "" {
		req.BotName = DefaultTrialBotName
	}
	remote, err := h.provider.CreateBot(c.Request.Context(), recall.CreateBotRequest{MeetingURL: req.MeetingURL, BotName: req.BotName})
	if err != nil {
		h.logger.Error("provider create bot failed", zap.Error(err), zap.String("action", "trialInvite"))
		response.Internal(c, "Failed to invite bot to meeting")
		return
	}
	h.logger.Info("trial bot invited", zap.String("recall_bot_id", remote.ID))
	response.OK(c, gin.H{
		"recallBotId": remote.ID,
		"meetingUrl":  req.MeetingURL,
		"botName":     req.BotName,
		"status":      models.SessionStatusJoining,
		"joinedAt":    h.now(),
	})
}

// Leave handles POST /trial/leave.
func (h *TrialHandler) Leave(c *gin.Context) {
	var req trialLeaveRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.RecallBotID == "" {
		response.BadRequest(c, "recallBotId is required")
		return
	}
	if err := h.provider.LeaveCall(c.Request.Context(), req.RecallBotID); err != nil {
		h.logger.Error("provider leave call failed", zap.Error(err), zap.String("action", "trialLeave"), zap.String("recall_bot_id", req.RecallBotID))
		response.Internal(c, "Failed to remove bot from meeting")
		return
	}
	response.OK(c, gin.H{"status": models.SessionStatusLeaving})
}
