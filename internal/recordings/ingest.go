package recordings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/realtime"
	"github.com/colon-app/backend/internal/store"
	"github.com/colon-app/backend/pkg/queue"
	"github.com/colon-app/backend/pkg/storage"
)

// DefaultBotName is stored on recordings whose bot no longer exists.
const DefaultBotName = "Unknown Bot"

// Uploader writes media into object storage.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) error
}

// Publisher pushes live updates to subscribers of a bot.
type Publisher interface {
	Publish(botID, event string, payload interface{})
}

// Ingestor copies a finished meeting's media into storage and closes its session.
// The webhook runs it inline and the worker runs it again for deliveries that failed.
type Ingestor struct {
	bots       store.Bots
	sessions   store.Sessions
	recordings store.Recordings
	objects    Uploader
	publisher  Publisher
	http       *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewIngestor creates an ingestor. publisher may be nil.
func NewIngestor(bots store.Bots, sessions store.Sessions, recordings store.Recordings, objects Uploader, publisher Publisher, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		bots:       bots,
		sessions:   sessions,
		recordings: recordings,
		objects:    objects,
		publisher:  publisher,
		http:       &http.Client{},
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Ingest downloads p.MediaURL, stores it and records the result. It returns (nil, nil) when the
// session is gone or already completed, so replays are harmless.
func (i *Ingestor) Ingest(ctx context.Context, p queue.RecordingIngestPayload) (*models.Recording, error) {
	log := i.logger.With(zap.String("bot_id", p.BotID), zap.String("session_id", p.SessionID))

	sess, err := i.sessions.Get(ctx, p.BotID, p.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		log.Warn("session no longer exists, skipping ingest")
		return nil, nil
	}
	if sess.Status == models.SessionStatusCompleted {
		log.Info("session already completed, skipping ingest")
		return nil, nil
	}

	// Completing an active session ends the bot's meeting. A session that already left
	// released the bot then, and the bot may since have joined another meeting.
	endsMeeting := sess.IsActive()

	rec, err := i.recordings.GetBySession(ctx, sess.UserID, sess.SessionID)
	if err != nil {
		return nil, fmt.Errorf("get recording: %w", err)
	}
	if rec != nil {
		log.Info("recording already stored, finishing session", zap.String("recording_id", rec.RecordingID))
	} else {
		if rec, err = i.store(ctx, sess, p); err != nil {
			return nil, err
		}
	}

	// The bot is released before the session completes: while the session is still active no
	// invite can take the bot, and a retry after either step failing repeats both.
	if endsMeeting {
		if err := i.bots.SetStatus(ctx, sess.UserID, sess.BotID, models.BotStatusIdle); err != nil {
			return nil, fmt.Errorf("release bot: %w", err)
		}
	}
	now := i.now()
	if err := i.sessions.MarkCompleted(ctx, sess.BotID, sess.SessionID, rec.RecordingID, now, now.Add(models.SessionRetention)); err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}

	if i.publisher != nil {
		i.publisher.Publish(sess.BotID, realtime.EventSessionCompleted, map[string]string{
			"sessionId":   sess.SessionID,
			"recordingId": rec.RecordingID,
		})
	}
	log.Info("recording ingested", zap.String("user_id", sess.UserID), zap.String("recording_id", rec.RecordingID),
		zap.Float64("file_size_mb", rec.FileSizeMB))
	return rec, nil
}

// store uploads the media and inserts the session's recording row.
func (i *Ingestor) store(ctx context.Context, sess *models.Session, p queue.RecordingIngestPayload) (*models.Recording, error) {
	botName := DefaultBotName
	bot, err := i.bots.Get(ctx, sess.UserID, sess.BotID)
	if err != nil {
		return nil, fmt.Errorf("get bot: %w", err)
	}
	if bot != nil && bot.BotName != "" {
		botName = bot.BotName
	}

	recordingID := models.NewID()
	key := storage.RecordingKey(sess.UserID, recordingID)
	size, err := i.transfer(ctx, p.MediaURL, key)
	if err != nil {
		return nil, err
	}

	now := i.now()
	startedAt := sess.JoinedAt
	if startedAt.IsZero() {
		startedAt = now
	}
	meetingURL := p.MeetingURL
	if meetingURL == "" {
		meetingURL = sess.MeetingURL
	}
	rec := &models.Recording{
		UserID:          sess.UserID,
		RecordingID:     recordingID,
		BotID:           sess.BotID,
		BotName:         botName,
		SessionID:       sess.SessionID,
		RecallBotID:     sess.RecallBotID,
		MeetingURL:      meetingURL,
		S3Key:           key,
		FileSizeMB:      megabytes(size),
		DurationSeconds: p.Duration,
		Status:          models.RecordingStatusReady,
		StartedAt:       startedAt,
		EndedAt:         &now,
		CreatedAt:       now,
	}
	if err := i.recordings.Create(ctx, rec); err != nil {
		// A concurrent run for the same session may have won the insert.
		winner, getErr := i.recordings.GetBySession(ctx, sess.UserID, sess.SessionID)
		if getErr != nil || winner == nil {
			return nil, fmt.Errorf("create recording: %w", err)
		}
		i.logger.Warn("recording created concurrently, leaving duplicate object", zap.String("s3_key", key),
			zap.String("recording_id", winner.RecordingID))
		return winner, nil
	}
	return rec, nil
}

// transfer streams the media at url into key and returns the number of bytes stored.
func (i *Ingestor) transfer(ctx context.Context, url, key string) (int64, error) {
	if url == "" {
		return 0, errors.New("media url is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := i.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download status: %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = storage.RecordingContentType
	}
	body := &countingReader{r: resp.Body}
	if err := i.objects.Upload(ctx, key, contentType, body, resp.ContentLength); err != nil {
		return 0, fmt.Errorf("upload: %w", err)
	}
	return body.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// megabytes converts bytes to MiB rounded to two decimals.
func megabytes(n int64) float64 {
	return math.Round(float64(n)/(1024*1024)*100) / 100
}
