package recordings

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/realtime"
	"github.com/colon-app/backend/internal/storetest"
	"github.com/colon-app/backend/pkg/dedupe"
	"github.com/colon-app/backend/pkg/queue"
	"github.com/colon-app/backend/pkg/storage"
)

var signingKey = []byte("0123456789abcdef0123456789abcdef")

func webhookSecret() string {
	return "whsec_" + base64.StdEncoding.EncodeToString(signingKey)
}

func sign(id string, ts time.Time, body []byte) string {
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(id + "." + strconv.FormatInt(ts.Unix(), 10) + "." + string(body)))
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type published struct {
	botID, event string
	payload      interface{}
}

type fakePublisher struct {
	mu  sync.Mutex
	got []published
}

func (p *fakePublisher) Publish(botID, event string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, published{botID, event, payload})
}

type fakeMedia struct {
	url   string
	calls int
}

func (m *fakeMedia) MediaURL(context.Context, string) (string, error) {
	m.calls++
	return m.url, nil
}

type fakeRetries struct {
	jobs []queue.RecordingIngestPayload
	err  error
}

func (q *fakeRetries) EnqueueRecordingIngest(_ context.Context, p queue.RecordingIngestPayload) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, p)
	return nil
}

type webhookFixture struct {
	mem       *storetest.Memory
	objects   *storetest.Objects
	media     *fakeMedia
	retries   *fakeRetries
	publisher *fakePublisher
	router    *gin.Engine
	mediaSrv  *httptest.Server
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		mem:       storetest.New(),
		objects:   storetest.NewObjects(),
		media:     &fakeMedia{},
		retries:   &fakeRetries{},
		publisher: &fakePublisher{},
	}
	f.mediaSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/video.mp4" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(bytes.Repeat([]byte("v"), 2*1024*1024))
	}))
	t.Cleanup(f.mediaSrv.Close)

	ctx := context.Background()
	joined := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, f.mem.Bots().Create(ctx, &models.Bot{
		UserID: "user-1", BotID: "bot-1", BotName: "Scribe", Status: models.BotStatusInMeeting,
	}))
	require.NoError(t, f.mem.Sessions().Create(ctx, &models.Session{
		BotID: "bot-1", SessionID: "sess-1", UserID: "user-1", RecallBotID: "rb-1",
		MeetingURL: "https://meet.google.com/abc-defg-hij", Status: models.SessionStatusInMeeting, JoinedAt: joined,
	}))

	ingestor := NewIngestor(f.mem.Bots(), f.mem.Sessions(), f.mem.Recordings(), f.objects, f.publisher, nil)
	h, err := NewWebhookHandler(webhookSecret(), WebhookDeps{
		Sessions:  f.mem.Sessions(),
		Events:    f.mem.Events(),
		Media:     f.media,
		Ingestor:  ingestor,
		Seen:      dedupe.NewMemory(time.Hour),
		Retries:   f.retries,
		Publisher: f.publisher,
	}, nil)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	f.router = gin.New()
	h.Register(f.router)
	return f
}

func (f *webhookFixture) deliver(id, body string) *httptest.ResponseRecorder {
	now := time.Now()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/recording", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("webhook-id", id)
	req.Header.Set("webhook-timestamp", strconv.FormatInt(now.Unix(), 10))
	req.Header.Set("webhook-signature", sign(id, now, []byte(body)))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)
	body := `{"event":"bot.chat_message","data":{"bot":{"id":"rb-1"},"participant":{"name":"A"},"message":"hi"}}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/recording", bytes.NewBufferString(body))
	req.Header.Set("webhook-id", "msg_1")
	req.Header.Set("webhook-timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set("webhook-signature", "v1,"+base64.StdEncoding.EncodeToString([]byte("forged")))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.mem.AllEvents())

	req = httptest.NewRequest(http.MethodPost, "/webhooks/recording", bytes.NewBufferString(body))
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookBotDoneWithoutMediaAbandons(t *testing.T) {
	f := newWebhookFixture(t)

	w := f.deliver("msg_done", `{"event":"bot.done","data":{"bot":{"id":"rb-1"}}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())

	assert.Equal(t, 1, f.media.calls)
	assert.Empty(t, f.mem.AllRecordings())
	assert.Empty(t, f.retries.jobs)
	assert.Equal(t, models.SessionStatusInMeeting, f.mem.AllSessions()[0].Status)
}

func TestWebhookBotDoneStoresRecording(t *testing.T) {
	f := newWebhookFixture(t)
	body := `{"event":"bot.done","data":{"bot":{"id":"rb-1"},"video_url":"` + f.mediaSrv.URL + `/video.mp4","duration":125}}`

	w := f.deliver("msg_done", body)
	require.Equal(t, http.StatusOK, w.Code)

	recs := f.mem.AllRecordings()
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, models.RecordingStatusReady, rec.Status)
	assert.Equal(t, "Scribe", rec.BotName)
	assert.Equal(t, 2.0, rec.FileSizeMB)
	assert.Equal(t, 125, rec.DurationSeconds)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", rec.MeetingURL)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), rec.StartedAt)
	assert.Equal(t, storage.RecordingKey("user-1", rec.RecordingID), rec.S3Key)
	_, stored := f.objects.Get(rec.S3Key)
	assert.True(t, stored)
	assert.Zero(t, f.media.calls)

	sess := f.mem.AllSessions()[0]
	assert.Equal(t, models.SessionStatusCompleted, sess.Status)
	assert.Equal(t, rec.RecordingID, sess.RecordingID)
	require.NotNil(t, sess.ExpiresAt)

	bot, err := f.mem.Bots().Get(context.Background(), "user-1", "bot-1")
	require.NoError(t, err)
	assert.Equal(t, models.BotStatusIdle, bot.Status)

	require.Len(t, f.publisher.got, 1)
	assert.Equal(t, realtime.EventSessionCompleted, f.publisher.got[0].event)

	// A second bot.done for the same provider bot finds the session completed.
	w = f.deliver("msg_done_again", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, f.mem.AllRecordings(), 1)
}

func TestWebhookBotDoneTransferFailureEnqueues(t *testing.T) {
	f := newWebhookFixture(t)
	f.objects.FailUpload = true

	w := f.deliver("msg_done", `{"event":"bot.done","data":{"bot":{"id":"rb-1"},"video_url":"`+f.mediaSrv.URL+`/video.mp4"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	assert.Empty(t, f.mem.AllRecordings())
	require.Len(t, f.retries.jobs, 1)
	assert.Equal(t, queue.RecordingIngestPayload{
		BotID: "bot-1", SessionID: "sess-1", MediaURL: f.mediaSrv.URL + "/video.mp4",
	}, f.retries.jobs[0])
}

func TestWebhookRedeliveryAfterUnrecoverableFailureIsProcessed(t *testing.T) {
	f := newWebhookFixture(t)
	f.objects.FailUpload = true
	f.retries.err = errors.New("redis: connection refused")
	body := `{"event":"bot.done","data":{"bot":{"id":"rb-1"},"video_url":"` + f.mediaSrv.URL + `/video.mp4"}}`

	require.Equal(t, http.StatusOK, f.deliver("msg_done", body).Code)
	assert.Empty(t, f.mem.AllRecordings())
	assert.Empty(t, f.retries.jobs)

	f.objects.FailUpload = false
	f.retries.err = nil
	require.Equal(t, http.StatusOK, f.deliver("msg_done", body).Code)

	require.Len(t, f.mem.AllRecordings(), 1)
	sess, _ := f.mem.Sessions().Get(context.Background(), "bot-1", "sess-1")
	assert.Equal(t, models.SessionStatusCompleted, sess.Status)

	// Handled now, so a third delivery is a duplicate.
	require.Equal(t, http.StatusOK, f.deliver("msg_done", body).Code)
	assert.Len(t, f.mem.AllRecordings(), 1)
}

func TestWebhookDuplicateDeliveryProcessedOnce(t *testing.T) {
	f := newWebhookFixture(t)
	body := `{"event":"bot.chat_message","data":{"bot":{"id":"rb-1"},"participant":{"name":"Ken"},"message":"hello"}}`

	require.Equal(t, http.StatusOK, f.deliver("msg_same", body).Code)
	require.Equal(t, http.StatusOK, f.deliver("msg_same", body).Code)

	events := f.mem.AllEvents()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeComment, events[0].EventType)
	assert.Equal(t, "Ken", events[0].SpeakerName)
	assert.Equal(t, "hello", events[0].Content)
}

func TestWebhookMeetingEvents(t *testing.T) {
	f := newWebhookFixture(t)

	f.deliver("m1", `{"event":"bot.transcription","data":{"bot":{"id":"rb-1"},"transcript":{"words":[{"text":"good"},{"text":"morning"}],"is_final":false,"language":"en"}}}`)
	f.deliver("m2", `{"event":"bot.reaction","data":{"bot":{"id":"rb-1"},"participant":{"name":"Mio"},"reaction":"👍"}}`)
	f.deliver("m3", `{"event":"bot.chat_message","data":{"bot":{"id":"rb-1"},"message":""}}`)
	f.deliver("m4", `{"event":"bot.chat_message","data":{"bot":{"id":"rb-unknown"},"message":"lost"}}`)
	w := f.deliver("m5", `{"event":"bot.call_ended","data":{"bot":{"id":"rb-1"}}}`)
	assert.Equal(t, http.StatusOK, w.Code)

	events := f.mem.AllEvents()
	require.Len(t, events, 2)
	byType := map[string]models.MeetingEvent{}
	for _, e := range events {
		byType[e.EventType] = e
	}
	tr := byType[models.EventTypeTranscription]
	assert.Equal(t, "good morning", tr.Content)
	assert.Equal(t, "Unknown", tr.SpeakerName)
	assert.Equal(t, "en", tr.Language)
	require.NotNil(t, tr.IsFinal)
	assert.False(t, *tr.IsFinal)
	assert.Equal(t, "Mio", byType[models.EventTypeReaction].SpeakerName)

	require.Len(t, f.publisher.got, 2)
	for _, p := range f.publisher.got {
		assert.Equal(t, "bot-1", p.botID)
		assert.Equal(t, realtime.EventMeetingEvent, p.event)
	}
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	f := newWebhookFixture(t)
	w := f.deliver("m1", `{"event":"participant_events.join","data":{}}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true}`, w.Body.String())
}
