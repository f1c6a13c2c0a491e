package recordings

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/colon-app/backend/internal/middleware"
	"github.com/colon-app/backend/internal/models"
	"github.com/colon-app/backend/internal/storetest"
	"github.com/colon-app/backend/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRecordingsRouter(mem *storetest.Memory, objects *storetest.Objects, userID string) *gin.Engine {
	r := gin.New()
	g := r.Group("", func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Next()
	})
	NewHandler(mem.Recordings(), objects, nil).Register(g)
	return r
}

func seedRecording(t *testing.T, mem *storetest.Memory, objects *storetest.Objects, userID, botID, recordingID, status string) {
	t.Helper()
	key := storage.RecordingKey(userID, recordingID)
	require.NoError(t, mem.Recordings().Create(context.Background(), &models.Recording{
		UserID: userID, RecordingID: recordingID, BotID: botID, BotName: "B", S3Key: key,
		Status: status, StartedAt: time.Now().UTC(), CreatedAt: time.Now().UTC(),
	}))
	objects.Put(key, []byte("video"))
}

func get(r http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

type listPage struct {
	Recordings []models.Recording `json:"recordings"`
	NextToken  *string            `json:"nextToken"`
}

func TestListPaginates(t *testing.T) {
	mem, objects := storetest.New(), storetest.NewObjects()
	for i := 0; i < 12; i++ {
		seedRecording(t, mem, objects, "user-1", "bot-1", fmt.Sprintf("rec-%02d", i), models.RecordingStatusReady)
	}
	seedRecording(t, mem, objects, "user-2", "bot-9", "rec-99", models.RecordingStatusReady)
	r := newRecordingsRouter(mem, objects, "user-1")

	w := get(r, http.MethodGet, "/recordings")
	require.Equal(t, http.StatusOK, w.Code)
	var page listPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Recordings, 10)
	assert.Equal(t, "rec-11", page.Recordings[0].RecordingID)
	require.NotNil(t, page.NextToken)

	w = get(r, http.MethodGet, "/recordings?nextToken="+*page.NextToken)
	require.Equal(t, http.StatusOK, w.Code)
	page = listPage{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Recordings, 2)
	assert.Equal(t, "rec-01", page.Recordings[0].RecordingID)
	assert.Nil(t, page.NextToken)
	assert.Contains(t, w.Body.String(), `"nextToken":null`)
}

func TestListLimits(t *testing.T) {
	mem, objects := storetest.New(), storetest.NewObjects()
	for i := 0; i < 60; i++ {
		seedRecording(t, mem, objects, "user-1", "bot-1", fmt.Sprintf("rec-%02d", i), models.RecordingStatusReady)
	}
	r := newRecordingsRouter(mem, objects, "user-1")

	for query, want := range map[string]int{"limit=5": 5, "limit=500": 50, "limit=abc": 10, "limit=-3": 10} {
		var page listPage
		w := get(r, http.MethodGet, "/recordings?"+query)
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.Len(t, page.Recordings, want, query)
	}

	assert.Equal(t, http.StatusBadRequest, get(r, http.MethodGet, "/recordings?nextToken=%21bad").Code)
}

func TestListFiltersByBot(t *testing.T) {
	mem, objects := storetest.New(), storetest.NewObjects()
	seedRecording(t, mem, objects, "user-1", "bot-1", "rec-1", models.RecordingStatusReady)
	seedRecording(t, mem, objects, "user-1", "bot-2", "rec-2", models.RecordingStatusReady)

	var page listPage
	w := get(newRecordingsRouter(mem, objects, "user-1"), http.MethodGet, "/recordings?botId=bot-2")
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Recordings, 1)
	assert.Equal(t, "rec-2", page.Recordings[0].RecordingID)
}

func TestGetSignsURLsOnlyWhenReady(t *testing.T) {
	mem, objects := storetest.New(), storetest.NewObjects()
	seedRecording(t, mem, objects, "user-1", "bot-1", "ready", models.RecordingStatusReady)
	seedRecording(t, mem, objects, "user-1", "bot-1", "pending", models.RecordingStatusProcessing)
	r := newRecordingsRouter(mem, objects, "user-1")

	var detail recordingDetail
	w := get(r, http.MethodGet, "/recordings/ready")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	require.NotNil(t, detail.PlaybackURL)
	require.NotNil(t, detail.DownloadURL)
	assert.Contains(t, *detail.DownloadURL, "attachment")
	assert.NotContains(t, *detail.PlaybackURL, "attachment")

	w = get(r, http.MethodGet, "/recordings/pending")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"playbackUrl":null`)
	assert.Contains(t, w.Body.String(), `"downloadUrl":null`)

	assert.Equal(t, http.StatusNotFound, get(r, http.MethodGet, "/recordings/missing").Code)
	assert.Equal(t, http.StatusNotFound, get(newRecordingsRouter(mem, objects, "user-2"), http.MethodGet, "/recordings/ready").Code)
}

func TestDeleteIsIdempotent(t *testing.T) {
	mem, objects := storetest.New(), storetest.NewObjects()
	seedRecording(t, mem, objects, "user-1", "bot-1", "rec-1", models.RecordingStatusReady)
	r := newRecordingsRouter(mem, objects, "user-1")

	assert.Equal(t, http.StatusNoContent, get(r, http.MethodDelete, "/recordings/rec-1").Code)
	assert.Equal(t, http.StatusNoContent, get(r, http.MethodDelete, "/recordings/rec-1").Code)
	assert.Empty(t, objects.Keys())
	assert.Empty(t, mem.AllRecordings())
}

func TestDeleteKeepsMetadataWhenStorageFails(t *testing.T) {
	mem, objects := storetest.New(), storetest.NewObjects()
	seedRecording(t, mem, objects, "user-1", "bot-1", "rec-1", models.RecordingStatusReady)
	objects.FailDelete = true
	r := newRecordingsRouter(mem, objects, "user-1")

	assert.Equal(t, http.StatusInternalServerError, get(r, http.MethodDelete, "/recordings/rec-1").Code)
	assert.Len(t, mem.AllRecordings(), 1)

	objects.FailDelete = false
	assert.Equal(t, http.StatusNoContent, get(r, http.MethodDelete, "/recordings/rec-1").Code)
	assert.Empty(t, mem.AllRecordings())
}

func TestDeleteAllOnlyTouchesCaller(t *testing.T) {
	mem, objects := storetest.New(), storetest.NewObjects()
	seedRecording(t, mem, objects, "user-1", "bot-1", "a", models.RecordingStatusReady)
	seedRecording(t, mem, objects, "user-1", "bot-2", "b", models.RecordingStatusReady)
	seedRecording(t, mem, objects, "user-2", "bot-3", "c", models.RecordingStatusReady)
	r := newRecordingsRouter(mem, objects, "user-1")

	assert.Equal(t, http.StatusNoContent, get(r, http.MethodDelete, "/recordings?botId=bot-2").Code)
	assert.Len(t, mem.AllRecordings(), 2)

	assert.Equal(t, http.StatusNoContent, get(r, http.MethodDelete, "/recordings").Code)
	left := mem.AllRecordings()
	require.Len(t, left, 1)
	assert.Equal(t, "user-2", left[0].UserID)
	assert.Equal(t, []string{storage.RecordingKey("user-2", "c")}, objects.Keys())
}
