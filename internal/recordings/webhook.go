package recordings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	svix "github.com/svix/svix-webhooks/go"
	"go.uber.org/zap"

	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/realtime"
	"github.com/colon-app/backend/internal/store"
	"github.com/colon-app/backend/pkg/queue"
	"github.com/colon-app/backend/pkg/response"
)

// maxWebhookBody bounds the delivery body read before verification.
const maxWebhookBody = 1 << 20

// Header pairs: the provider sends webhook-*; the Svix verifier reads svix-*.
var signatureHeaders = [][2]string{
	{"webhook-id", "svix-id"},
	{"webhook-timestamp", "svix-timestamp"},
	{"webhook-signature", "svix-signature"},
}

// MediaLocator asks the provider where a finished bot's media lives.
type MediaLocator interface {
	MediaURL(ctx context.Context, botID string) (string, error)
}

// Deduper reports whether a delivery id is new.
// A claimed id is released with Forget when its delivery could not be handled.
type Deduper interface {
	FirstSeen(ctx context.Context, id string) (bool, error)
	Done(ctx context.Context, id string) error
	Forget(ctx context.Context, id string) error
}

// RetryQueue hands failed transfers to the worker.
type RetryQueue interface {
	EnqueueRecordingIngest(ctx context.Context, payload queue.RecordingIngestPayload) error
}

// WebhookDeps groups the collaborators of the webhook handler. Seen, Retries and Publisher are optional.
type WebhookDeps struct {
	Sessions  store.Sessions
	Events    store.Events
	Media     MediaLocator
	Ingestor  *Ingestor
	Seen      Deduper
	Retries   RetryQueue
	Publisher Publisher
}

// WebhookHandler handles POST /webhooks/recording from the meeting-bot provider.
type WebhookHandler struct {
	verifier *svix.Webhook
	deps     WebhookDeps
	logger   *zap.Logger
	now      func() time.Time
}

// NewWebhookHandler creates a webhook handler verifying deliveries with the given signing secret (whsec_...).
func NewWebhookHandler(secret string, deps WebhookDeps, logger *zap.Logger) (*WebhookHandler, error) {
	verifier, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("webhook secret: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{
		verifier: verifier,
		deps:     deps,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Register mounts the public webhook route.
func (h *WebhookHandler) Register(rg gin.IRoutes) {
	rg.POST("/webhooks/recording", h.Receive)
}

// Receive verifies, deduplicates and dispatches one delivery. Every verified delivery is acknowledged
// with 200 so the provider does not retry events this service chose to drop.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		response.BadRequest(c, "Could not read request body")
		return
	}
	headers := svixHeaders(c.Request.Header)
	if err := h.verifier.Verify(body, headers); err != nil {
		h.logger.Warn("invalid webhook signature", zap.Error(err))
		response.Unauthorized(c, "Invalid webhook signature")
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	id := headers.Get("svix-id")
	claimed := false
	if id != "" && h.deps.Seen != nil {
		first, err := h.deps.Seen.FirstSeen(ctx, id)
		switch {
		case err != nil:
			h.logger.Warn("webhook dedupe unavailable", zap.Error(err), zap.String("message_id", id))
		case !first:
			h.logger.Info("duplicate webhook delivery ignored", zap.String("message_id", id))
			response.OK(c, gin.H{"received": true})
			return
		default:
			claimed = true
		}
	}

	ev, err := ParseWebhookEvent(body)
	if err != nil {
		h.logger.Warn("malformed webhook payload", zap.Error(err))
		h.settle(ctx, id, claimed, nil)
		response.OK(c, gin.H{"received": true})
		return
	}
	h.logger.Info("webhook received", zap.String("event", ev.EventName()), zap.String("recall_bot_id", ev.RecallBotID()))
	h.settle(ctx, id, claimed, h.dispatch(ctx, ev))
	response.OK(c, gin.H{"received": true})
}

// settle keeps a handled delivery id and releases one whose handling failed, so a redelivery
// of the same message is processed again.
func (h *WebhookHandler) settle(ctx context.Context, id string, claimed bool, handleErr error) {
	if !claimed {
		return
	}
	if handleErr != nil {
		if err := h.deps.Seen.Forget(ctx, id); err != nil {
			h.logger.Warn("release webhook id failed", zap.Error(err), zap.String("message_id", id))
		}
		return
	}
	if err := h.deps.Seen.Done(ctx, id); err != nil {
		h.logger.Warn("mark webhook id failed", zap.Error(err), zap.String("message_id", id))
	}
}

func svixHeaders(in http.Header) http.Header {
	out := in.Clone()
	for _, pair := range signatureHeaders {
		if out.Get(pair[1]) == "" {
			out.Set(pair[1], in.Get(pair[0]))
		}
	}
	return out
}

// dispatch handles one event. It returns an error only when nothing durable recorded the work,
// so redelivery is the remaining way to finish it.
func (h *WebhookHandler) dispatch(ctx context.Context, ev WebhookEvent) error {
	switch e := ev.(type) {
	case *DoneEvent:
		return h.handleDone(ctx, e)
	case *StatusEvent:
		fields := []zap.Field{zap.String("recall_bot_id", e.Bot.ID), zap.String("sub_code", e.SubCode)}
		if e.Name == EventBotFatal {
			h.logger.Warn("bot fatal error", fields...)
		} else {
			h.logger.Info("bot status", append(fields, zap.String("event", e.Name))...)
		}
	case *TranscriptionEvent:
		if e.Transcript == nil {
			return nil
		}
		return h.saveMeetingEvent(ctx, e.Bot.ID, models.EventTypeTranscription, e.Transcript.Speaker, e.Text(),
			e.Transcript.Language, e.Transcript.IsFinal)
	case *ReactionEvent:
		return h.saveMeetingEvent(ctx, e.Bot.ID, models.EventTypeReaction, e.Participant.Name, e.Reaction, "", nil)
	case *ChatMessageEvent:
		return h.saveMeetingEvent(ctx, e.Bot.ID, models.EventTypeComment, e.Participant.Name, e.Message, "", nil)
	case *UnknownEvent:
		h.logger.Info("unhandled webhook event", zap.String("event", e.Name))
	}
	return nil
}

// saveMeetingEvent appends an in-call event to the session of the provider bot and pushes it live.
func (h *WebhookHandler) saveMeetingEvent(ctx context.Context, recallBotID, eventType, speaker, content, language string, isFinal *bool) error {
	if recallBotID == "" || content == "" {
		return nil
	}
	log := h.logger.With(zap.String("recall_bot_id", recallBotID), zap.String("event_type", eventType))
	sess, err := h.deps.Sessions.GetByRecallBotID(ctx, recallBotID)
	if err != nil {
		log.Error("resolve session failed", zap.Error(err))
		return err
	}
	if sess == nil {
		log.Warn("no session found for meeting event")
		return nil
	}
	if speaker == "" {
		speaker = "Unknown"
	}
	now := h.now()
	ev := &models.MeetingEvent{
		SessionID:   sess.SessionID,
		EventID:     models.NewID(),
		UserID:      sess.UserID,
		BotID:       sess.BotID,
		EventType:   eventType,
		SpeakerName: speaker,
		Content:     content,
		Language:    language,
		IsFinal:     isFinal,
		Timestamp:   now,
		CreatedAt:   now,
	}
	if err := h.deps.Events.Append(ctx, ev); err != nil {
		log.Error("save meeting event failed", zap.Error(err), zap.String("session_id", sess.SessionID))
		return err
	}
	if h.deps.Publisher != nil {
		h.deps.Publisher.Publish(sess.BotID, realtime.EventMeetingEvent, ev)
	}
	log.Debug("meeting event saved", zap.String("session_id", sess.SessionID))
	return nil
}

func (h *WebhookHandler) handleDone(ctx context.Context, e *DoneEvent) error {
	log := h.logger.With(zap.String("action", "botDone"), zap.String("recall_bot_id", e.Bot.ID))
	if e.Bot.ID == "" {
		log.Warn("bot.done without bot id")
		return nil
	}
	sess, err := h.deps.Sessions.GetByRecallBotID(ctx, e.Bot.ID)
	if err != nil {
		log.Error("resolve session failed", zap.Error(err))
		return err
	}
	if sess == nil {
		log.Warn("no session found for recall bot")
		return nil
	}
	if sess.Status == models.SessionStatusCompleted {
		log.Info("session already completed", zap.String("session_id", sess.SessionID))
		return nil
	}
	log = log.With(zap.String("user_id", sess.UserID), zap.String("bot_id", sess.BotID), zap.String("session_id", sess.SessionID))

	mediaURL := e.VideoURL
	if mediaURL == "" && h.deps.Media != nil {
		mediaURL, err = h.deps.Media.MediaURL(ctx, e.Bot.ID)
		if err != nil {
			log.Warn("media lookup failed", zap.Error(err))
		}
	}
	if mediaURL == "" {
		log.Warn("no media url available, abandoning recording")
		return nil
	}

	payload := queue.RecordingIngestPayload{
		BotID:      sess.BotID,
		SessionID:  sess.SessionID,
		MediaURL:   mediaURL,
		MeetingURL: e.MeetingURL(),
		Duration:   e.DurationSeconds(),
	}
	_, err = h.deps.Ingestor.Ingest(ctx, payload)
	if err == nil {
		return nil
	}
	log.Error("recording ingest failed", zap.Error(err))
	if h.deps.Retries == nil {
		return err
	}
	if qerr := h.deps.Retries.EnqueueRecordingIngest(ctx, payload); qerr != nil {
		err = errors.Join(err, qerr)
		log.Error("enqueue recording ingest failed", zap.Error(err))
		return err
	}
	return nil
}
