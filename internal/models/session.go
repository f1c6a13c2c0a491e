package models

import "time"

// Session status values.
const (
	SessionStatusJoining   = "joining"
	SessionStatusInMeeting = "in_meeting"
	SessionStatusLeaving   = "leaving"
	SessionStatusEnded     = "ended"
	SessionStatusCompleted = "completed"
)

// SessionRetention is how long a finished session is kept before pruning.
const SessionRetention = 24 * time.Hour

// Session is one stay of a bot in a meeting.
type Session struct {
	BotID       string     `json:"botId"`
	SessionID   string     `json:"sessionId"`
	UserID      string     `json:"userId"`
	MeetingURL  string     `json:"meetingUrl"`
	RecallBotID string     `json:"recallBotId"`
	Status      string     `json:"status"`
	JoinedAt    time.Time  `json:"joinedAt"`
	LeftAt      *time.Time `json:"leftAt,omitempty"`
	EndedAt     *time.Time `json:"endedAt,omitempty"`
	RecordingID string     `json:"recordingId,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// IsActive reports whether the session still occupies its bot.
func (s *Session) IsActive() bool {
	return IsActiveSessionStatus(s.Status)
}

// IsActiveSessionStatus reports whether status counts as an active session.
func IsActiveSessionStatus(status string) bool {
	return status == SessionStatusJoining || status == SessionStatusInMeeting
}
