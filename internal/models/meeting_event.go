package models

import "time"

// Meeting event types.
const (
	EventTypeTranscription = "transcription"
	EventTypeReaction      = "reaction"
	EventTypeComment       = "comment"
)

// MeetingEvent is an in-call occurrence captured while a session is active.
type MeetingEvent struct {
	SessionID   string    `json:"sessionId"`
	EventID     string    `json:"eventId"`
	UserID      string    `json:"userId"`
	BotID       string    `json:"botId"`
	EventType   string    `json:"eventType"`
	SpeakerName string    `json:"speakerName"`
	Content     string    `json:"content"`
	Language    string    `json:"language,omitempty"`
	IsFinal     *bool     `json:"isFinal,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	CreatedAt   time.Time `json:"createdAt"`
}

// EventQuery selects a page of a session's events in chronological order.
type EventQuery struct {
	EventType string
	Limit     int
	After     string
}
