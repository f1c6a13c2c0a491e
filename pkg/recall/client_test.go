package recall

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/", APIKey: "key", MediaRetries: 3}, nil)
}

func TestCreateBot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bot", r.URL.Path)
		assert.Equal(t, "Token key", r.Header.Get("Authorization"))

		var req CreateBotRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://meet.google.com/abc-defg-hij", req.MeetingURL)
		assert.Equal(t, "Colon", req.BotName)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"rb-1","meeting_url":{"meeting_id":"abc-defg-hij","platform":"google_meet"}}`))
	})

	bot, err := c.CreateBot(context.Background(), CreateBotRequest{MeetingURL: "https://meet.google.com/abc-defg-hij", BotName: "Colon"})
	require.NoError(t, err)
	assert.Equal(t, "rb-1", bot.ID)
}

func TestCreateBotProviderError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"bad"}`, http.StatusBadRequest)
	})
	_, err := c.CreateBot(context.Background(), CreateBotRequest{MeetingURL: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestLeaveCall(t *testing.T) {
	var called atomic.Bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bot/rb-1/leave_call", r.URL.Path)
		called.Store(true)
		_, _ = w.Write([]byte(`{}`))
	})
	require.NoError(t, c.LeaveCall(context.Background(), "rb-1"))
	assert.True(t, called.Load())
}

func TestGetBotNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	_, err := c.GetBot(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBotMediaURL(t *testing.T) {
	var b Bot
	require.NoError(t, json.Unmarshal([]byte(`{
		"id":"rb-1",
		"video_url":"https://legacy/video.mp4",
		"recordings":[{"id":"r1","media_shortcuts":{"video_mixed":{"data":{"download_url":"https://media/video.mp4"}}}}]
	}`), &b))
	assert.Equal(t, "https://media/video.mp4", b.MediaURL())

	legacy := Bot{VideoURL: "https://legacy/video.mp4", Recordings: []Recording{{ID: "r1"}}}
	assert.Equal(t, "https://legacy/video.mp4", legacy.MediaURL())
}

func TestMediaURLRetriesUntilReady(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"id":"rb-1","recordings":[]}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"rb-1","video_url":"https://media/v.mp4"}`))
	})

	u, err := c.MediaURL(context.Background(), "rb-1")
	require.NoError(t, err)
	assert.Equal(t, "https://media/v.mp4", u)
	assert.EqualValues(t, 3, calls.Load())
}

func TestMediaURLGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"id":"rb-1"}`))
	})

	u, err := c.MediaURL(context.Background(), "rb-1")
	require.NoError(t, err)
	assert.Empty(t, u)
	assert.EqualValues(t, 4, calls.Load(), "one lookup plus three retries")
}

func TestMediaURLReportsPersistentFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	})
	_, err := c.MediaURL(context.Background(), "rb-1")
	assert.Error(t, err)
}
