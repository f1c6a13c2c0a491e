package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobEnvelope(t *testing.T) {
	job, err := NewJob(JobTypeRecordingIngest, RecordingIngestPayload{
		BotID:     "bot-1",
		SessionID: "sess-1",
		MediaURL:  "https://media/v.mp4",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobTypeRecordingIngest, job.Type)
	assert.Zero(t, job.Attempt)

	raw, err := json.Marshal(job)
	require.NoError(t, err)
	var decoded Job
	require.NoError(t, json.Unmarshal(raw, &decoded))

	var payload RecordingIngestPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, "sess-1", payload.SessionID)
	assert.Equal(t, "https://media/v.mp4", payload.MediaURL)
}
