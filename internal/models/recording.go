package models

import "time"

// Recording status values.
const (
	RecordingStatusProcessing = "processing"
	RecordingStatusReady      = "ready"
	RecordingStatusFailed     = "failed"
)

// Recording is a stored meeting recording.
type Recording struct {
	UserID          string     `json:"userId"`
	RecordingID     string     `json:"recordingId"`
	BotID           string     `json:"botId"`
	BotName         string     `json:"botName"`
	SessionID       string     `json:"sessionId,omitempty"`
	RecallBotID     string     `json:"recallBotId,omitempty"`
	MeetingURL      string     `json:"meetingUrl"`
	S3Key           string     `json:"s3Key"`
	FileSizeMB      float64    `json:"fileSizeMb"`
	DurationSeconds int        `json:"durationSeconds"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	EndedAt         *time.Time `json:"endedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// RecordingQuery selects a page of a user's recordings, newest first.
type RecordingQuery struct {
	BotID string
	Limit int
	// After is the last recording id of the previous page.
	After string
}
