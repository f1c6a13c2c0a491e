package recordings

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/storetest"
	"github.com/colon-app/backend/pkg/queue"
)

func TestIngestSkipsMissingSession(t *testing.T) {
	mem := storetest.New()
	ing := NewIngestor(mem.Bots(), mem.Sessions(), mem.Recordings(), storetest.NewObjects(), nil, nil)

	rec, err := ing.Ingest(context.Background(), queue.RecordingIngestPayload{BotID: "bot-1", SessionID: "gone", MediaURL: "http://unused"})
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestIngestDefaultsBotNameAndReportsDownloadErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("media"))
	}))
	defer srv.Close()

	ctx := context.Background()
	mem := storetest.New()
	require.NoError(t, mem.Sessions().Create(ctx, &models.Session{
		BotID: "deleted-bot", SessionID: "s1", UserID: "user-1", Status: models.SessionStatusLeaving,
		MeetingURL: "https://meet.google.com/aaa-bbbb-ccc",
	}))
	ing := NewIngestor(mem.Bots(), mem.Sessions(), mem.Recordings(), storetest.NewObjects(), nil, nil)

	_, err := ing.Ingest(ctx, queue.RecordingIngestPayload{BotID: "deleted-bot", SessionID: "s1", MediaURL: srv.URL + "/missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Empty(t, mem.AllRecordings())

	rec, err := ing.Ingest(ctx, queue.RecordingIngestPayload{BotID: "deleted-bot", SessionID: "s1", MediaURL: srv.URL + "/ok", Duration: 30})
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, DefaultBotName, rec.BotName)
	assert.Equal(t, "https://meet.google.com/aaa-bbbb-ccc", rec.MeetingURL)
	assert.False(t, rec.StartedAt.IsZero())

	again, err := ing.Ingest(ctx, queue.RecordingIngestPayload{BotID: "deleted-bot", SessionID: "s1", MediaURL: srv.URL + "/ok"})
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Len(t, mem.AllRecordings(), 1)
}

func mediaServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("media"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestRetryAfterPartialFailureReusesRecording(t *testing.T) {
	srv := mediaServer(t)
	ctx := context.Background()
	mem := storetest.New()
	objects := storetest.NewObjects()
	require.NoError(t, mem.Bots().Create(ctx, &models.Bot{UserID: "user-1", BotID: "bot-1", BotName: "Scribe", Status: models.BotStatusInMeeting}))
	require.NoError(t, mem.Sessions().Create(ctx, &models.Session{
		BotID: "bot-1", SessionID: "s1", UserID: "user-1", Status: models.SessionStatusJoining,
	}))
	ing := NewIngestor(mem.Bots(), mem.Sessions(), mem.Recordings(), objects, nil, nil)
	payload := queue.RecordingIngestPayload{BotID: "bot-1", SessionID: "s1", MediaURL: srv.URL + "/v.mp4"}

	mem.Fail["sessions.MarkCompleted"] = storetest.ErrInjected
	_, err := ing.Ingest(ctx, payload)
	require.ErrorIs(t, err, storetest.ErrInjected)
	require.Len(t, mem.AllRecordings(), 1)

	delete(mem.Fail, "sessions.MarkCompleted")
	rec, err := ing.Ingest(ctx, payload)
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.Len(t, mem.AllRecordings(), 1)
	assert.Len(t, objects.Keys(), 1)
	sess, _ := mem.Sessions().Get(ctx, "bot-1", "s1")
	assert.Equal(t, models.SessionStatusCompleted, sess.Status)
	assert.Equal(t, mem.AllRecordings()[0].RecordingID, sess.RecordingID)
	bot, _ := mem.Bots().Get(ctx, "user-1", "bot-1")
	assert.Equal(t, models.BotStatusIdle, bot.Status)
}

func TestIngestOfEarlierSessionKeepsBotInMeeting(t *testing.T) {
	srv := mediaServer(t)
	ctx := context.Background()
	mem := storetest.New()
	require.NoError(t, mem.Bots().Create(ctx, &models.Bot{UserID: "user-1", BotID: "bot-1", BotName: "Scribe", Status: models.BotStatusInMeeting}))
	require.NoError(t, mem.Sessions().Create(ctx, &models.Session{
		BotID: "bot-1", SessionID: "s1", UserID: "user-1", Status: models.SessionStatusLeaving,
	}))
	require.NoError(t, mem.Sessions().Create(ctx, &models.Session{
		BotID: "bot-1", SessionID: "s2", UserID: "user-1", Status: models.SessionStatusJoining,
	}))
	ing := NewIngestor(mem.Bots(), mem.Sessions(), mem.Recordings(), storetest.NewObjects(), nil, nil)

	rec, err := ing.Ingest(ctx, queue.RecordingIngestPayload{BotID: "bot-1", SessionID: "s1", MediaURL: srv.URL + "/v.mp4"})
	require.NoError(t, err)
	require.NotNil(t, rec)

	bot, _ := mem.Bots().Get(ctx, "user-1", "bot-1")
	assert.Equal(t, models.BotStatusInMeeting, bot.Status)
	active, _ := mem.Sessions().GetActive(ctx, "bot-1")
	require.NotNil(t, active)
	assert.Equal(t, "s2", active.SessionID)
	s1, _ := mem.Sessions().Get(ctx, "bot-1", "s1")
	assert.Equal(t, models.SessionStatusCompleted, s1.Status)
}

func TestIngestRetryAfterReleaseFailureFreesBot(t *testing.T) {
	srv := mediaServer(t)
	ctx := context.Background()
	mem := storetest.New()
	require.NoError(t, mem.Bots().Create(ctx, &models.Bot{UserID: "user-1", BotID: "bot-1", BotName: "Scribe", Status: models.BotStatusInMeeting}))
	require.NoError(t, mem.Sessions().Create(ctx, &models.Session{
		BotID: "bot-1", SessionID: "s1", UserID: "user-1", Status: models.SessionStatusInMeeting,
	}))
	ing := NewIngestor(mem.Bots(), mem.Sessions(), mem.Recordings(), storetest.NewObjects(), nil, nil)
	payload := queue.RecordingIngestPayload{BotID: "bot-1", SessionID: "s1", MediaURL: srv.URL + "/v.mp4"}

	mem.Fail["bots.SetStatus"] = storetest.ErrInjected
	_, err := ing.Ingest(ctx, payload)
	require.ErrorIs(t, err, storetest.ErrInjected)
	sess, _ := mem.Sessions().Get(ctx, "bot-1", "s1")
	assert.True(t, sess.IsActive(), "session stays active until the bot is released")

	delete(mem.Fail, "bots.SetStatus")
	_, err = ing.Ingest(ctx, payload)
	require.NoError(t, err)

	bot, _ := mem.Bots().Get(ctx, "user-1", "bot-1")
	assert.Equal(t, models.BotStatusIdle, bot.Status)
	sess, _ = mem.Sessions().Get(ctx, "bot-1", "s1")
	assert.Equal(t, models.SessionStatusCompleted, sess.Status)
	assert.Len(t, mem.AllRecordings(), 1)
}
